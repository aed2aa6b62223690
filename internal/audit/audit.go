package audit

import (
	"context"

	"github.com/ylxai/Hafiportrait-sub001/pkg/log"
)

// Audit actions for the relay.
const (
	ActionJoinEvent       = "relay.join_event"
	ActionJoinAdmin       = "relay.join_admin"
	ActionJoinAdminDenied = "relay.join_admin_denied"
	ActionPublish         = "relay.publish"
	ActionDisconnect      = "relay.disconnect"
)

// Field constants for audit entries.
const (
	FieldAction = "action"
	FieldDetail = "detail"
	FieldRooms  = "rooms"
	FieldActor  = "actor"
)

// Entry is one audited relay action. Empty fields are omitted.
type Entry struct {
	Action    string
	ClientID  string
	Room      string
	EventID   string
	EventType string
	Actor     string   // token subject of an admin join
	Rooms     []string // rooms released by a disconnect
	Detail    string
}

// Log emits e as a structured audit entry via the context logger.
func Log(ctx context.Context, e Entry, msg string) {
	l := log.Ctx(ctx)
	evt := l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, e.Action).
		Str(log.FieldClientID, e.ClientID)

	if e.Room != "" {
		evt = evt.Str(log.FieldRoom, e.Room)
	}
	if e.EventID != "" {
		evt = evt.Str(log.FieldEventID, e.EventID)
	}
	if e.EventType != "" {
		evt = evt.Str(log.FieldEventType, e.EventType)
	}
	if e.Actor != "" {
		evt = evt.Str(FieldActor, e.Actor)
	}
	if e.Rooms != nil {
		evt = evt.Strs(FieldRooms, e.Rooms)
	}
	if e.Detail != "" {
		evt = evt.Str(FieldDetail, e.Detail)
	}
	evt.Msg(msg)
}
