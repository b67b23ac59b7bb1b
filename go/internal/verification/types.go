package verification

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/ironclad/go/internal/anchor"
	"github.com/mcdev12/ironclad/go/internal/countdown"
	"github.com/mcdev12/ironclad/go/internal/credential"
	"github.com/mcdev12/ironclad/go/internal/events"
	"github.com/mcdev12/ironclad/go/internal/raceguard"
)

// CodeLength is the number of digits in a one-time code
const CodeLength = 6

const (
	DefaultResendSeconds = 60
	DefaultExpirySeconds = 300
)

var (
	ErrNoPendingIdentity = errors.New("no identity pending verification")
	ErrInvalidDigit      = errors.New("code slots accept a single digit")
	ErrInvalidPosition   = errors.New("code slot out of range")
	ErrResendCooldown    = errors.New("resend is cooling down")
)

type Status string

const (
	StatusCollecting Status = "collecting"
	StatusSubmitting Status = "submitting"
	StatusVerified   Status = "verified"
	StatusRejected   Status = "rejected"
)

// Verifier is the backend side of verification
type Verifier interface {
	VerifyCode(ctx context.Context, identity, code string) (credential.Credential, error)
	ResendCode(ctx context.Context, identity string) error
}

// CredentialSink stores the credential handed out on success
type CredentialSink interface {
	Save(ctx context.Context, cred credential.Credential) error
}

// Deps are the collaborators a Flow needs. Anchors, Countdowns and KV must share
// the same underlying storage for a restart to pick up where it left off.
type Deps struct {
	Verifier    Verifier
	Credentials CredentialSink
	Anchors     *anchor.Store
	Countdowns  *countdown.Controller
	KV          anchor.KV
	Guard       *raceguard.Guard
	Publisher   events.Publisher
	Clock       clockwork.Clock

	ResendSeconds int
	ExpirySeconds int

	// OnVerified runs once, after the credential is stored
	OnVerified func(identity string)
}

// State is a snapshot of a flow for rendering
type State struct {
	FlowID    uuid.UUID `json:"flow_id"`
	Identity  string    `json:"identity"`
	Status    Status    `json:"status"`
	Digits    []string  `json:"digits"`
	Focus     int       `json:"focus"`
	LastError string    `json:"last_error,omitempty"`
}

// Code joins the entered digits
func (s State) Code() string {
	return strings.Join(s.Digits, "")
}
