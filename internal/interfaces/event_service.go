package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	EventPipelinePhase      EventType = "pipeline_phase"
	EventIngestStarted      EventType = "ingest_started"
	EventIngestFinished     EventType = "ingest_finished"
	EventDocumentStored     EventType = "document_stored"
	EventEmailSynced        EventType = "email_synced"
	EventEmbeddingTriggered EventType = "embedding_triggered"
	EventQueryStarted       EventType = "query_started"
	EventQueryFinished      EventType = "query_finished"
)

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages the pub/sub event bus feeding websocket
// subscribers and internal listeners.
type EventService interface {
	// Subscribe to an event type
	Subscribe(eventType EventType, handler EventHandler) error

	// Publish an event to all subscribers asynchronously
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
