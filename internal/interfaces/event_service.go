package interfaces

import "context"

// EventType identifies a pub/sub event category.
type EventType string

const (
	// EventMatchProgress carries a *models.ProgressEvent payload.
	EventMatchProgress EventType = "match.progress"

	// EventCollectionTriggered requests one collection cycle.
	EventCollectionTriggered EventType = "collection.triggered"

	// EventCollectionCompleted reports a finished collection cycle.
	EventCollectionCompleted EventType = "collection.completed"

	// EventBackfillCompleted reports a finished backfill for one combination.
	EventBackfillCompleted EventType = "backfill.completed"
)

// Event is a typed payload published to subscribers.
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler processes a published event.
type EventHandler func(ctx context.Context, event Event) error

// EventService is the in-process pub/sub bus.
type EventService interface {
	Subscribe(eventType EventType, handler EventHandler) error
	Publish(ctx context.Context, event Event) error
	PublishSync(ctx context.Context, event Event) error
	Close() error
}
