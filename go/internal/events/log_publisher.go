package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// LogPublisher writes events to the structured log. Used when no broker is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, event Event) error {
	log.Info().
		Str("event_id", event.ID.String()).
		Str("event_type", string(event.Type)).
		Str("flow_id", event.FlowID.String()).
		RawJSON("payload", event.Payload).
		Msg("lifecycle event")
	return nil
}

// Emit builds and publishes an event, logging instead of returning any failure.
func Emit(ctx context.Context, pub Publisher, eventType EventType, flowID uuid.UUID, at time.Time, payload any) {
	if pub == nil {
		return
	}
	event, err := New(eventType, flowID, at, payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to build event")
		return
	}
	if err := pub.Publish(ctx, event); err != nil {
		log.Warn().
			Err(err).
			Str("event_id", event.ID.String()).
			Str("event_type", string(eventType)).
			Msg("failed to publish event")
	}
}
