package pubsub

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

// Event is one room broadcast carried between relay instances.
// Payload is the already-encoded client frame.
type Event struct {
	Type      string          `json:"type"`
	RoomID    string          `json:"room_id"`
	Origin    string          `json:"origin,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewRawEvent wraps an already-encoded payload without re-marshalling it.
func NewRawEvent(eventType, roomID, origin string, payload []byte) *Event {
	return &Event{
		Type:      eventType,
		RoomID:    roomID,
		Origin:    origin,
		Payload:   json.RawMessage(payload),
		Timestamp: time.Now(),
	}
}

// PubSub is the bus shared by relay instances. A pattern subscription
// lives until ctx is done or the bus is closed; its channel is then closed.
type PubSub interface {
	Publish(ctx context.Context, channel string, event *Event) error
	SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error)
	Close() error
}

// subscriptionBuffer bounds every driver's outbound event channel.
const subscriptionBuffer = 256

func encodeEvent(event *Event) ([]byte, error) {
	return json.Marshal(event)
}

func decodeEvent(data []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// forward hands event to a subscriber without blocking the driver.
// It reports false once ctx is done.
func forward(ctx context.Context, out chan<- *Event, event *Event, driver string) bool {
	select {
	case out <- event:
		return true
	case <-ctx.Done():
		return false
	default:
		l := logger()
		l.Warn().Str("driver", driver).Str("room_id", event.RoomID).Msg("subscriber is behind, dropping event")
		return true
	}
}
