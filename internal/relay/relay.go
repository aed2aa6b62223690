package relay

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"time"

	"github.com/ylxai/Hafiportrait-sub001/internal/domain"
	"github.com/ylxai/Hafiportrait-sub001/internal/metrics"
	pkglog "github.com/ylxai/Hafiportrait-sub001/pkg/log"
)

var ErrStopped = errors.New("relay stopped")

// BroadcastObserver is told about every room broadcast that originated on
// this instance. It runs on the dispatch loop and must not block.
type BroadcastObserver interface {
	OnBroadcast(room, msgType string, frame []byte)
}

// Health is the query-only snapshot served by the health endpoint.
type Health struct {
	Status      string  `json:"status"`
	Timestamp   string  `json:"timestamp"`
	Uptime      float64 `json:"uptime"`
	Connections int64   `json:"connections"`
}

// Stats describes the membership table.
type Stats struct {
	Rooms       map[string]int `json:"rooms"`
	Connections int            `json:"connections"`
}

type Option func(*Relay)

// WithObserver registers the observer of local room broadcasts.
func WithObserver(o BroadcastObserver) Option {
	return func(r *Relay) {
		r.observer = o
	}
}

// WithClock overrides the time source used for server timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		r.now = now
	}
}

// Relay owns room membership and fans messages out to room members.
// Every mutation runs on the goroutine started by Run, so the table needs
// no lock; the connection count is atomic and readable from anywhere.
type Relay struct {
	cmds        chan func()
	stopped     chan struct{}
	table       *roomTable
	connections atomic.Int64
	startedAt   time.Time
	now         func() time.Time
	observer    BroadcastObserver
}

func New(opts ...Option) *Relay {
	r := &Relay{
		cmds:    make(chan func()),
		stopped: make(chan struct{}),
		table:   newRoomTable(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.startedAt = r.now()
	return r
}

// Run processes commands until ctx is done, then closes every connection.
func (r *Relay) Run(ctx context.Context) error {
	l := pkglog.L()
	l.Info().Msg("relay dispatch loop started")

	defer close(r.stopped)
	for {
		select {
		case fn := <-r.cmds:
			fn()
		case <-ctx.Done():
			for _, m := range r.table.members {
				r.drop(m, "server shutdown")
			}
			l.Info().Msg("relay dispatch loop stopped")
			return nil
		}
	}
}

// do runs fn on the dispatch loop and waits for it to finish.
func (r *Relay) do(fn func()) bool {
	done := make(chan struct{})
	select {
	case r.cmds <- func() {
		defer close(done)
		fn()
	}:
	case <-r.stopped:
		return false
	}
	<-done
	return true
}

// Connect registers a connection with no rooms.
func (r *Relay) Connect(conn Conn) error {
	ok := r.do(func() {
		m := &member{
			conn:        conn,
			rooms:       make(map[string]struct{}),
			state:       StateConnecting,
			connectedAt: r.now(),
		}
		r.table.add(m)
		m.state = StateConnected
		r.connections.Add(1)
		metrics.Connections.Inc()

		l := pkglog.L()
		l.Info().Str(pkglog.FieldClientID, conn.ID()).Msg("client connected")
	})
	if !ok {
		return ErrStopped
	}
	return nil
}

// Join adds the connection to room. Joining twice is a no-op.
func (r *Relay) Join(connID, room string) {
	r.do(func() {
		r.join(connID, room)
	})
}

func (r *Relay) join(connID, room string) (*member, bool) {
	m, ok := r.table.get(connID)
	if !ok {
		return nil, false
	}
	if r.table.join(m, room) {
		metrics.RoomsJoined.Inc()
		l := pkglog.L()
		l.Info().Str(pkglog.FieldClientID, connID).Str(pkglog.FieldRoom, room).Msg("client joined room")
	}
	return m, true
}

// JoinEvent joins the event room of eventID and acknowledges to the caller only.
func (r *Relay) JoinEvent(connID string, eventID any) {
	room := domain.EventRoom(domain.FormatValue(eventID))

	r.do(func() {
		m, ok := r.join(connID, room)
		if !ok {
			return
		}
		ack, err := domain.EncodeFrame(domain.MsgTypeJoinedEvent, domain.JoinedEventMessage{
			EventID:   eventID,
			SocketID:  connID,
			Timestamp: domain.FormatTimestamp(r.now()),
		})
		if err != nil {
			l := pkglog.L()
			l.Error().Err(err).Str(pkglog.FieldClientID, connID).Msg("failed to encode joined-event")
			return
		}
		r.sendTo(m, domain.MsgTypeJoinedEvent, ack)
	})
}

// JoinAdmin joins the admin room and replies with the current connection count.
func (r *Relay) JoinAdmin(connID string) {
	r.do(func() {
		m, ok := r.join(connID, domain.AdminRoom)
		if !ok {
			return
		}
		stats, err := domain.EncodeFrame(domain.MsgTypeAdminStats, domain.AdminStatsMessage{
			TotalConnections: r.connections.Load(),
			Timestamp:        domain.FormatTimestamp(r.now()),
		})
		if err != nil {
			l := pkglog.L()
			l.Error().Err(err).Str(pkglog.FieldClientID, connID).Msg("failed to encode admin-stats")
			return
		}
		r.sendTo(m, domain.MsgTypeAdminStats, stats)
	})
}

// Publish fans a client event out along its route: the event room (when the
// payload names one) and the admin room, both without the sender. Members of
// both rooms get two separate messages. Unknown types are dropped.
// The timestamp is taken on the dispatch loop, so stamps follow delivery order.
func (r *Relay) Publish(connID, eventType string, payload map[string]any) {
	route, ok := LookupRoute(eventType)
	if !ok {
		l := pkglog.L()
		l.Debug().Str(pkglog.FieldClientID, connID).Str(pkglog.FieldEventType, eventType).Msg("ignoring unknown event type")
		return
	}

	var room string
	if v, ok := route.RoomValue(payload); ok {
		room = domain.EventRoom(domain.FormatValue(v))
	}

	r.do(func() {
		ts := domain.FormatTimestamp(r.now())
		l := pkglog.L()

		if room != "" {
			frame, err := domain.EncodeFrame(route.RoomEvent, domain.Stamp(payload, ts))
			if err != nil {
				l.Error().Err(err).Str(pkglog.FieldEventType, eventType).Msg("failed to encode room message")
				return
			}
			r.broadcast(room, route.RoomEvent, frame, connID, true)
		}

		frame, err := domain.EncodeFrame(route.AdminEvent, route.AdminBody(payload, ts))
		if err != nil {
			l.Error().Err(err).Str(pkglog.FieldEventType, eventType).Msg("failed to encode admin message")
			return
		}
		r.broadcast(domain.AdminRoom, route.AdminEvent, frame, connID, true)
	})
}

// Deliver fans out a frame that another instance already broadcast.
// It reaches local members only and is not reported to the observer.
func (r *Relay) Deliver(room, msgType string, frame []byte) {
	r.do(func() {
		r.broadcast(room, msgType, frame, "", false)
	})
}

// Disconnect removes the connection from every room. Peers are not told.
// It returns the rooms left, and whether this call performed the removal.
func (r *Relay) Disconnect(connID, reason string) ([]string, bool) {
	var rooms []string
	removed := false
	r.do(func() {
		if m, ok := r.table.get(connID); ok {
			rooms = r.drop(m, reason)
			removed = true
		}
	})
	return rooms, removed
}

// HealthSnapshot never waits on the dispatch loop.
func (r *Relay) HealthSnapshot() Health {
	now := r.now()
	return Health{
		Status:      "ok",
		Timestamp:   domain.FormatTimestamp(now),
		Uptime:      now.Sub(r.startedAt).Seconds(),
		Connections: r.connections.Load(),
	}
}

// ConnectionCount returns the number of connected clients.
func (r *Relay) ConnectionCount() int64 {
	return r.connections.Load()
}

func (r *Relay) Stats() Stats {
	var s Stats
	ok := r.do(func() {
		s = Stats{
			Rooms:       r.table.roomSizes(),
			Connections: len(r.table.members),
		}
	})
	if !ok {
		return Stats{Rooms: map[string]int{}}
	}
	return s
}

// State reports the lifecycle state of a connection; unknown ids are disconnected.
func (r *Relay) State(connID string) State {
	state := StateDisconnected
	r.do(func() {
		if m, ok := r.table.get(connID); ok {
			state = m.state
		}
	})
	return state
}

func (r *Relay) broadcast(room, msgType string, frame []byte, exclude string, local bool) {
	recipients := r.table.recipients(room, exclude)
	delivered := 0
	for _, m := range recipients {
		if r.sendTo(m, msgType, frame) {
			delivered++
		}
	}

	l := pkglog.L()
	l.Debug().
		Str(pkglog.FieldRoom, room).
		Str(pkglog.FieldEventType, msgType).
		Int(pkglog.FieldRecipients, delivered).
		Msg("room broadcast")

	if local && r.observer != nil {
		r.observer.OnBroadcast(room, msgType, frame)
	}
}

// sendTo queues frame on one connection; a failed send drops it.
func (r *Relay) sendTo(m *member, msgType string, frame []byte) bool {
	if m.state != StateConnected {
		return false
	}
	if err := m.conn.Send(frame); err != nil {
		metrics.SendFailures.Inc()
		r.drop(m, "send failed: "+err.Error())
		return false
	}
	metrics.MessagesSent.WithLabelValues(msgType).Inc()
	return true
}

func (r *Relay) drop(m *member, reason string) []string {
	if m.state == StateDisconnected {
		return nil
	}
	rooms := r.table.remove(m)
	slices.Sort(rooms)
	m.state = StateDisconnected
	r.connections.Add(-1)
	metrics.Connections.Dec()

	if err := m.conn.Close(); err != nil {
		l := pkglog.L()
		l.Debug().Err(err).Str(pkglog.FieldClientID, m.conn.ID()).Msg("close after disconnect")
	}

	l := pkglog.L()
	l.Info().
		Str(pkglog.FieldClientID, m.conn.ID()).
		Str(pkglog.FieldReason, reason).
		Strs("rooms", rooms).
		Dur("session", r.now().Sub(m.connectedAt)).
		Msg("client disconnected")
	return rooms
}
