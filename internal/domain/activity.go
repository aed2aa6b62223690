package domain

import "time"

// Activity is one accepted publish, as written to the activity stream.
type Activity struct {
	ConnectionID string         `json:"connection_id"`
	EventType    string         `json:"event_type"`
	EventID      string         `json:"event_id,omitempty"`
	Payload      map[string]any `json:"payload"`
	ReceivedAt   time.Time      `json:"received_at"`
}

// PartitionKey keys activity by event so one event's history stays ordered.
func (a *Activity) PartitionKey() string {
	if a.EventID == "" {
		return AdminRoom
	}
	return a.EventID
}
