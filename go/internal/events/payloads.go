package events

import (
	"time"
)

// Event payload types shared between the flows and the gateway

// VerificationSucceededPayload is the payload for a VerificationSucceeded event
type VerificationSucceededPayload struct {
	Identity   string    `json:"identity"`
	VerifiedAt time.Time `json:"verified_at"`
}

// CodeResentPayload is the payload for a CodeResent event
type CodeResentPayload struct {
	Identity         string    `json:"identity"`
	ResentAt         time.Time `json:"resent_at"`
	CooldownSeconds  int       `json:"cooldown_seconds"`
	ExpiresInSeconds int       `json:"expires_in_seconds"`
}

// SessionCommittedPayload is the payload for a SessionCommitted event
type SessionCommittedPayload struct {
	SessionID       string    `json:"session_id"`
	DurationSeconds int       `json:"duration_seconds"`
	CommittedAt     time.Time `json:"committed_at"`
}

// SessionCommitFailedPayload is the payload for a SessionCommitFailed event
type SessionCommitFailedPayload struct {
	SessionID       string    `json:"session_id"`
	DurationSeconds int       `json:"duration_seconds"`
	Error           string    `json:"error"`
	FailedAt        time.Time `json:"failed_at"`
}
