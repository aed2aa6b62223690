package relay

import (
	"github.com/ylxai/Hafiportrait-sub001/internal/domain"
)

// Route describes how one inbound event type fans out.
// The room branch fires only when RoomEvent is set and payload[RoomKey]
// is truthy; the admin branch always fires.
type Route struct {
	RoomKey    string
	RoomEvent  string
	AdminEvent string
	AdminBody  func(payload map[string]any, ts string) map[string]any
}

// HasRoomBranch reports whether the route broadcasts to an event room.
func (r Route) HasRoomBranch() bool {
	return r.RoomEvent != "" && r.RoomKey != ""
}

// RoomValue returns the room-scoping value when it is present and truthy.
func (r Route) RoomValue(payload map[string]any) (any, bool) {
	if !r.HasRoomBranch() {
		return nil, false
	}
	v, ok := payload[r.RoomKey]
	if !ok || !domain.Truthy(v) {
		return nil, false
	}
	return v, true
}

var routes = map[string]Route{
	domain.MsgTypePhotoUploaded: {
		RoomKey:    "eventId",
		RoomEvent:  domain.MsgTypeNewPhoto,
		AdminEvent: domain.MsgTypeAdminNotification,
		AdminBody: func(payload map[string]any, ts string) map[string]any {
			return notification(payload, ts, domain.NotificationPhotoUpload,
				"New photo uploaded: "+domain.Display(payload, "fileName"))
		},
	},
	domain.MsgTypeEventStatusUpdate: {
		RoomKey:    "eventId",
		RoomEvent:  domain.MsgTypeEventStatus,
		AdminEvent: domain.MsgTypeAdminNotification,
		AdminBody: func(payload map[string]any, ts string) map[string]any {
			return notification(payload, ts, domain.NotificationEventStatus,
				"Event "+domain.Display(payload, "eventId")+" status: "+domain.Display(payload, "status"))
		},
	},
	domain.MsgTypeDSLRNotification: {
		AdminEvent: domain.MsgTypeDSLRUpdate,
		AdminBody:  domain.Stamp,
	},
}

// LookupRoute returns the fan-out route of an inbound event type.
func LookupRoute(eventType string) (Route, bool) {
	r, ok := routes[eventType]
	return r, ok
}

// notification builds an admin-notification body. eventId is copied only
// when the publisher sent one, null included.
func notification(payload map[string]any, ts, kind, message string) map[string]any {
	body := map[string]any{
		"type":      kind,
		"message":   message,
		"timestamp": ts,
	}
	if v, ok := payload["eventId"]; ok {
		body["eventId"] = v
	}
	return body
}
