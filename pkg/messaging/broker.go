package messaging

import (
	"context"
	"time"
)

// Broker publishes events for other processes. The underlying connection is
// owned by the caller.
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// Channels used by the service
const (
	ChannelNotifications = "notifications"
)

// Event is the envelope published on a channel
type Event struct {
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

func NewEvent(eventType string, payload interface{}) Event {
	return Event{
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}
