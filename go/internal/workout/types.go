package workout

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/ironclad/go/internal/events"
	"github.com/mcdev12/ironclad/go/internal/raceguard"
)

var (
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrDisposed          = errors.New("session flow is closed")
)

type Status string

const (
	StatusIdle       Status = "idle"
	StatusRunning    Status = "running"
	StatusPaused     Status = "paused"
	StatusFinalizing Status = "finalizing"
	StatusCommitted  Status = "committed"
)

// Committer records the final duration of a session with the backend
type Committer interface {
	CommitSessionDuration(ctx context.Context, sessionID string, durationSeconds int) error
}

type Deps struct {
	Committer Committer
	Guard     *raceguard.Guard
	Publisher events.Publisher
	Clock     clockwork.Clock

	// OnCommitted runs once, after the backend accepted the duration
	OnCommitted func(sessionID string, durationSeconds int)
}

// State is a snapshot of a session flow for rendering
type State struct {
	FlowID       uuid.UUID `json:"flow_id"`
	SessionID    string    `json:"session_id"`
	Status       Status    `json:"status"`
	TotalSeconds int       `json:"total_seconds"`
	LastError    string    `json:"last_error,omitempty"`
}
