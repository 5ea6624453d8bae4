package interfaces

import "context"

// EventType identifies a class of event on the internal bus.
type EventType string

const (
	// EventOffloadResult is published for every outcome the scheduler
	// produces, with the outcome as payload.
	EventOffloadResult EventType = "offload.result"

	// EventQueueRejected is published when admission turns an item away.
	EventQueueRejected EventType = "queue.rejected"

	// EventBreakerStateChanged is published on circuit breaker
	// transitions for operator visibility.
	EventBreakerStateChanged EventType = "breaker.state_changed"
)

// Event is a message on the internal pub/sub bus.
type Event struct {
	Type    EventType   `json:"type"`
	Topic   string      `json:"topic,omitempty"` // Category-specific routing, e.g. "result.vision"
	Payload interface{} `json:"payload"`
}

// EventHandler processes a published event.
type EventHandler func(ctx context.Context, event Event) error

// EventService is a lightweight in-process pub/sub bus.
type EventService interface {
	Subscribe(eventType EventType, handler EventHandler) error
	Publish(ctx context.Context, event Event) error
	PublishSync(ctx context.Context, event Event) error
}
