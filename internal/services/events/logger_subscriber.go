package events

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ice/internal/interfaces"
	"github.com/ternarybob/ice/internal/models"
)

// NewLoggerSubscriber creates an event handler that logs all events
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		logEvent := logger.Debug().
			Str("event_type", string(event.Type))

		if payload, ok := event.Payload.(models.PipelineEvent); ok {
			if payload.Phase != "" {
				logEvent = logEvent.Str("phase", payload.Phase)
			}
			if payload.Message != "" {
				logEvent = logEvent.Str("message", payload.Message)
			}
			if source, ok := payload.Data["source"].(string); ok {
				logEvent = logEvent.Str("source", source)
			}
			if docID, ok := payload.Data["document_id"].(string); ok {
				logEvent = logEvent.Str("document_id", docID)
			}
		}

		logEvent.Msg("Event published")

		return nil
	}
}

// SubscribeLoggerToAllEvents subscribes the logger to all known event types
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	subscriber := NewLoggerSubscriber(logger)

	eventTypes := []interfaces.EventType{
		interfaces.EventPipelinePhase,
		interfaces.EventIngestStarted,
		interfaces.EventIngestFinished,
		interfaces.EventDocumentStored,
		interfaces.EventEmailSynced,
		interfaces.EventEmbeddingTriggered,
		interfaces.EventQueryStarted,
		interfaces.EventQueryFinished,
	}

	for _, eventType := range eventTypes {
		if err := eventService.Subscribe(eventType, subscriber); err != nil {
			return fmt.Errorf("failed to subscribe logger to event type %s: %w", eventType, err)
		}
	}

	logger.Info().
		Int("event_type_count", len(eventTypes)).
		Msg("Logger subscribed to all event types")

	return nil
}
