package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	VerificationSucceeded EventType = "VerificationSucceeded"
	CodeResent            EventType = "CodeResent"
	SessionCommitted      EventType = "SessionCommitted"
	SessionCommitFailed   EventType = "SessionCommitFailed"
)

// Event is a lifecycle notification emitted by a flow
type Event struct {
	ID        uuid.UUID       `json:"event_id"`
	Type      EventType       `json:"event_type"`
	FlowID    uuid.UUID       `json:"flow_id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// New builds an event with a fresh id and the payload encoded as JSON
func New(eventType EventType, flowID uuid.UUID, at time.Time, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:        uuid.New(),
		Type:      eventType,
		FlowID:    flowID,
		Timestamp: at.UTC(),
		Payload:   data,
	}, nil
}

// Publisher delivers lifecycle events. Callers treat failures as best-effort.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Nop discards every event
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
