// Package events defines all event types used in cquest.
package events

import (
	"encoding/json"
	"time"
)

// EventType represents the type of event.
type EventType string

const (
	// Assistant events
	EventTypeAssistantResponse EventType = "assistant_response"

	// Service events
	EventTypeServiceOutput EventType = "service_output"

	// Application data events
	EventTypeDataSaved EventType = "data_saved"

	// Connection events
	EventTypeHeartbeat EventType = "heartbeat"
)

// Kind names the family of entity an event belongs to.
type Kind string

const (
	KindAssistant Kind = "assistant"
	KindService   Kind = "service"
	KindAppData   Kind = "appdata"
	KindSystem    Kind = "system"
)

// Topic identifies the entity an event is about. Transports decide how a
// topic maps onto channel names.
type Topic struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id,omitempty"`
}

// String renders the topic as "kind" or "kind/id".
func (t Topic) String() string {
	if t.ID == "" {
		return string(t.Kind)
	}
	return string(t.Kind) + "/" + t.ID
}

// Event is the base interface for all events.
type Event interface {
	// Type returns the event type.
	Type() EventType

	// Timestamp returns when the event occurred.
	Timestamp() time.Time

	// Topic returns the entity the event belongs to.
	Topic() Topic

	// ToJSON serializes the event to JSON.
	ToJSON() ([]byte, error)
}

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	EventType  EventType   `json:"event"`
	EventTime  time.Time   `json:"timestamp"`
	EventTopic Topic       `json:"topic"`
	Payload    interface{} `json:"payload"`
}

// Type returns the event type.
func (e *BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e *BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// Topic returns the entity the event belongs to.
func (e *BaseEvent) Topic() Topic {
	return e.EventTopic
}

// ToJSON serializes the event to JSON.
func (e *BaseEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// NewEvent creates a new base event with the given type, topic and payload.
func NewEvent(eventType EventType, topic Topic, payload interface{}) *BaseEvent {
	return &BaseEvent{
		EventType:  eventType,
		EventTime:  time.Now().UTC(),
		EventTopic: topic,
		Payload:    payload,
	}
}

// HeartbeatPayload is sent periodically to connected clients.
type HeartbeatPayload struct {
	Sequence      int64 `json:"sequence"`
	UptimeSeconds int64 `json:"uptime_seconds"`
}

// NewHeartbeatEvent creates a new heartbeat event.
func NewHeartbeatEvent(sequence, uptimeSeconds int64) *BaseEvent {
	return NewEvent(EventTypeHeartbeat, Topic{Kind: KindSystem}, HeartbeatPayload{
		Sequence:      sequence,
		UptimeSeconds: uptimeSeconds,
	})
}
