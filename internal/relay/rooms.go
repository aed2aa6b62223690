package relay

import "time"

// Conn is one client session as seen by the relay.
type Conn interface {
	ID() string
	Send(frame []byte) error
	Close() error
}

// State is the lifecycle state of a connection.
type State int

const (
	StateConnecting State = iota
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

type member struct {
	conn        Conn
	rooms       map[string]struct{}
	state       State
	connectedAt time.Time
}

// roomTable is owned by the dispatch loop and never touched from elsewhere.
type roomTable struct {
	members map[string]*member            // connID -> member
	rooms   map[string]map[string]*member // room -> connID -> member
}

func newRoomTable() *roomTable {
	return &roomTable{
		members: make(map[string]*member),
		rooms:   make(map[string]map[string]*member),
	}
}

func (t *roomTable) add(m *member) {
	t.members[m.conn.ID()] = m
}

func (t *roomTable) get(connID string) (*member, bool) {
	m, ok := t.members[connID]
	return m, ok
}

// join reports whether the connection was newly added to room.
func (t *roomTable) join(m *member, room string) bool {
	if _, ok := m.rooms[room]; ok {
		return false
	}
	m.rooms[room] = struct{}{}

	roomMembers, ok := t.rooms[room]
	if !ok {
		roomMembers = make(map[string]*member)
		t.rooms[room] = roomMembers
	}
	roomMembers[m.conn.ID()] = m
	return true
}

// remove drops the connection and every membership it held.
// Rooms left empty cease to exist.
func (t *roomTable) remove(m *member) []string {
	id := m.conn.ID()
	left := make([]string, 0, len(m.rooms))
	for room := range m.rooms {
		if roomMembers, ok := t.rooms[room]; ok {
			delete(roomMembers, id)
			if len(roomMembers) == 0 {
				delete(t.rooms, room)
			}
		}
		left = append(left, room)
	}
	m.rooms = make(map[string]struct{})
	delete(t.members, id)
	return left
}

// recipients snapshots the members of room, minus exclude.
func (t *roomTable) recipients(room, exclude string) []*member {
	roomMembers, ok := t.rooms[room]
	if !ok {
		return nil
	}
	out := make([]*member, 0, len(roomMembers))
	for id, m := range roomMembers {
		if id == exclude {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (t *roomTable) roomSizes() map[string]int {
	sizes := make(map[string]int, len(t.rooms))
	for room, roomMembers := range t.rooms {
		sizes[room] = len(roomMembers)
	}
	return sizes
}
