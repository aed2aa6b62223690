package domain

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// WebSocket message types from client.
const (
	MsgTypeJoinEvent         = "join-event"
	MsgTypeJoinAdmin         = "join-admin"
	MsgTypePhotoUploaded     = "photo-uploaded"
	MsgTypeDSLRNotification  = "dslr-notification"
	MsgTypeEventStatusUpdate = "event-status-update"
	MsgTypePing              = "ping"
)

// WebSocket message types to client.
const (
	MsgTypeJoinedEvent       = "joined-event"
	MsgTypeAdminStats        = "admin-stats"
	MsgTypeNewPhoto          = "new-photo"
	MsgTypeAdminNotification = "admin-notification"
	MsgTypeDSLRUpdate        = "dslr-update"
	MsgTypeEventStatus       = "event-status"
	MsgTypeError             = "error"
	MsgTypePong              = "pong"
)

// Admin notification kinds carried in the "type" field of admin-notification.
const (
	NotificationPhotoUpload = "photo-upload"
	NotificationEventStatus = "event-status"
)

// Error codes
const (
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeBadRequest   = "BAD_REQUEST"
)

var ErrMalformedFrame = errors.New("malformed frame")

// Frame is the envelope of every WebSocket message in both directions.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// DecodeFrame parses a client frame. A frame that is not a JSON object or
// carries no type is malformed.
func DecodeFrame(raw []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if f.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	return &f, nil
}

// HasData reports whether the frame carried a data member.
func (f *Frame) HasData() bool {
	return len(f.Data) > 0
}

// Payload decodes the frame data as a JSON object. Missing data and
// non-object data both yield an empty payload.
func (f *Frame) Payload() map[string]any {
	payload := make(map[string]any)
	if !f.HasData() {
		return payload
	}
	if err := json.Unmarshal(f.Data, &payload); err != nil || payload == nil {
		return make(map[string]any)
	}
	return payload
}

// Value decodes the frame data as an arbitrary JSON value.
func (f *Frame) Value() (any, error) {
	if !f.HasData() {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(f.Data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

type outFrame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// EncodeFrame builds the wire form of an outbound message.
func EncodeFrame(msgType string, data any) ([]byte, error) {
	return json.Marshal(outFrame{Type: msgType, Data: data})
}

// Client -> Server messages

type JoinAdminMessage struct {
	Token string `json:"token"`
}

// Server -> Client messages

type JoinedEventMessage struct {
	EventID   any    `json:"eventId"`
	SocketID  string `json:"socketId"`
	Timestamp string `json:"timestamp"`
}

type AdminStatsMessage struct {
	TotalConnections int64  `json:"totalConnections"`
	Timestamp        string `json:"timestamp"`
}

type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		Code:    code,
		Message: message,
	}
}

type PongMessage struct {
	Timestamp string `json:"timestamp"`
}
