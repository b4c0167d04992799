package events

import (
	"encoding/json"
	"sync"
	"time"

	"messbook/internal/models"
)

const (
	// EventRecordChanged is published by the store after every committed write.
	EventRecordChanged = "record_changed"
	// EventTransitionCommitted is published by the service after a status write.
	EventTransitionCommitted = "transition_committed"
	EventRecordRevealed      = "record_revealed"
	EventListingUpdated      = "listing_updated"
)

// Operations carried in RecordChangedPayload.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// RecordChangedPayload tells live subscribers which kind must be re-queried.
type RecordChangedPayload struct {
	RecordID string      `json:"record_id"`
	Kind     models.Kind `json:"kind"`
	Op       string      `json:"op"`
	// Origin is set by the cross-instance relay for events it re-publishes.
	Origin string `json:"origin,omitempty"`
}

// TransitionPayload describes a committed status change.
type TransitionPayload struct {
	RecordID  string        `json:"record_id"`
	Kind      models.Kind   `json:"kind"`
	From      models.Status `json:"from"`
	To        models.Status `json:"to"`
	TargetRef string        `json:"target_ref,omitempty"`
	Remark    string        `json:"remark,omitempty"`
	ActorRole models.Role   `json:"actor_role"`
	ActorID   string        `json:"actor_id,omitempty"`
	At        time.Time     `json:"at"`
	// Record is the committed state, unredacted; consumers mask before output.
	Record *models.Record `json:"record,omitempty"`
}

// RevealPayload is an audit entry for an unmasked phone read.
type RevealPayload struct {
	RecordID  string      `json:"record_id"`
	ActorRole models.Role `json:"actor_role"`
	ActorID   string      `json:"actor_id"`
	At        time.Time   `json:"at"`
}

// ListingPayload reports a change to a listing profile.
type ListingPayload struct {
	ListingID string `json:"listing_id"`
	Field     string `json:"field"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the JSON payload into v.
func (e *Event) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
// Handlers run synchronously on the publisher's goroutine and must not block.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
