package verification

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/ironclad/go/internal/anchor"
	"github.com/mcdev12/ironclad/go/internal/countdown"
	"github.com/mcdev12/ironclad/go/internal/credential"
	"github.com/mcdev12/ironclad/go/internal/events"
	"github.com/mcdev12/ironclad/go/internal/raceguard"
	"github.com/rs/zerolog/log"
)

var (
	digitPattern = regexp.MustCompile(`^\d?$`)
	codePattern  = regexp.MustCompile(`^\d{1,6}$`)
)

// Flow collects a six digit code, submits it once it is complete and handles
// the resend cooldown and the expiry countdown for one identity.
type Flow struct {
	id       uuid.UUID
	deps     Deps
	identity string
	resendID string
	expiryID string

	mu        sync.Mutex
	status    Status
	digits    [CodeLength]string
	focus     int
	lastError string
	resending bool
	closed    bool

	listeners  map[int]func(State)
	nextListen int
}

// NewFlow starts verification for identity, or for the persisted pending
// identity when identity is empty. It ensures the resend and expiry anchors, so
// reopening the flow after a restart resumes both countdowns.
func NewFlow(ctx context.Context, deps Deps, identity string) (*Flow, error) {
	if deps.Verifier == nil || deps.Anchors == nil || deps.KV == nil {
		return nil, fmt.Errorf("verification flow needs a verifier, anchors and a kv")
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Countdowns == nil {
		deps.Countdowns = countdown.NewController(deps.Anchors, deps.Clock)
	}
	if deps.Guard == nil {
		deps.Guard = raceguard.New()
	}
	if deps.Publisher == nil {
		deps.Publisher = events.Nop{}
	}
	if deps.ResendSeconds <= 0 {
		deps.ResendSeconds = DefaultResendSeconds
	}
	if deps.ExpirySeconds <= 0 {
		deps.ExpirySeconds = DefaultExpirySeconds
	}

	identity, err := resolveIdentity(ctx, deps.KV, identity)
	if err != nil {
		return nil, err
	}

	scope := "otp:" + identity
	f := &Flow{
		id:        uuid.New(),
		deps:      deps,
		identity:  identity,
		resendID:  anchor.TimerID(scope, "resend"),
		expiryID:  anchor.TimerID(scope, "expiry"),
		status:    StatusCollecting,
		listeners: make(map[int]func(State)),
	}

	deps.Anchors.Ensure(ctx, f.resendID, deps.ResendSeconds)
	deps.Anchors.Ensure(ctx, f.expiryID, deps.ExpirySeconds)

	log.Debug().
		Str("flow_id", f.id.String()).
		Str("identity", identity).
		Msg("verification flow opened")

	return f, nil
}

func (f *Flow) ID() uuid.UUID         { return f.id }
func (f *Flow) Identity() string      { return f.identity }
func (f *Flow) ResendTimerID() string { return f.resendID }
func (f *Flow) ExpiryTimerID() string { return f.expiryID }

// State returns a snapshot of the flow
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

// ResendCountdown is the time left before a new code may be requested
func (f *Flow) ResendCountdown(ctx context.Context) countdown.State {
	return f.deps.Countdowns.Query(ctx, f.resendID)
}

// ExpiryCountdown is the time left before the current code expires
func (f *Flow) ExpiryCountdown(ctx context.Context) countdown.State {
	return f.deps.Countdowns.Query(ctx, f.expiryID)
}

// OnChange registers fn to receive every state change. The returned func removes it.
func (f *Flow) OnChange(fn func(State)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := f.nextListen
	f.nextListen++
	f.listeners[key] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, key)
	}
}

// EnterDigit sets slot position to value, a single digit or empty to clear it.
// Filling the last empty slot submits the code. Input is ignored while a code
// is being submitted and after verification succeeded.
func (f *Flow) EnterDigit(ctx context.Context, position int, value string) error {
	if !digitPattern.MatchString(value) {
		return ErrInvalidDigit
	}
	if position < 0 || position >= CodeLength {
		return ErrInvalidPosition
	}

	f.mu.Lock()
	if f.closed || f.status == StatusSubmitting || f.status == StatusVerified {
		f.mu.Unlock()
		return nil
	}

	f.digits[position] = value
	f.focus = position
	if value != "" && position < CodeLength-1 {
		f.focus++
	}

	code, complete := f.codeLocked()
	if complete {
		f.status = StatusSubmitting
		f.lastError = ""
	}
	state, listeners := f.snapshotLocked(), f.listenersLocked()
	f.mu.Unlock()

	notify(listeners, state)
	if complete {
		f.submit(ctx, code)
	}
	return nil
}

// EnterCode replaces the slots with a pasted code. The whole code is checked
// before any slot changes; a complete code submits once.
func (f *Flow) EnterCode(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil
	}
	if !codePattern.MatchString(code) {
		return ErrInvalidDigit
	}

	f.mu.Lock()
	if f.closed || f.status == StatusSubmitting || f.status == StatusVerified {
		f.mu.Unlock()
		return nil
	}

	f.digits = [CodeLength]string{}
	for i, r := range code {
		f.digits[i] = string(r)
	}
	f.focus = min(len(code), CodeLength-1)

	full, complete := f.codeLocked()
	if complete {
		f.status = StatusSubmitting
		f.lastError = ""
	}
	state, listeners := f.snapshotLocked(), f.listenersLocked()
	f.mu.Unlock()

	notify(listeners, state)
	if complete {
		f.submit(ctx, full)
	}
	return nil
}

func (f *Flow) submit(ctx context.Context, code string) {
	log.Debug().Str("flow_id", f.id.String()).Msg("submitting verification code")

	cred, err := f.deps.Verifier.VerifyCode(ctx, f.identity, code)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		log.Debug().Str("flow_id", f.id.String()).Msg("verification resolved after close - ignoring")
		return
	}

	if err != nil {
		f.status = StatusRejected
		f.digits = [CodeLength]string{}
		f.focus = 0
		f.lastError = describe(err)
		rejected := f.snapshotLocked()
		f.status = StatusCollecting
		collecting, listeners := f.snapshotLocked(), f.listenersLocked()
		f.mu.Unlock()

		log.Info().Err(err).Str("flow_id", f.id.String()).Msg("verification code rejected")
		notify(listeners, rejected)
		notify(listeners, collecting)
		return
	}

	// taken under the flow lock, after the closed check
	if !f.deps.Guard.TryEnter(f.id) {
		f.mu.Unlock()
		log.Debug().Str("flow_id", f.id.String()).Msg("verification success already handled")
		return
	}
	f.status = StatusVerified
	f.lastError = ""
	state, listeners := f.snapshotLocked(), f.listenersLocked()
	f.mu.Unlock()

	f.finish(ctx, cred)
	notify(listeners, state)
}

// finish runs the success side effects. Only the guard holder gets here.
func (f *Flow) finish(ctx context.Context, cred credential.Credential) {
	if f.deps.Credentials != nil {
		if err := f.deps.Credentials.Save(ctx, cred); err != nil {
			log.Error().Err(err).Str("flow_id", f.id.String()).Msg("failed to store credential")
		}
	}

	f.deps.Anchors.Clear(ctx, f.resendID)
	f.deps.Anchors.Clear(ctx, f.expiryID)
	if err := ClearPendingIdentity(ctx, f.deps.KV); err != nil {
		log.Warn().Err(err).Str("flow_id", f.id.String()).Msg("pending identity not cleared")
	}

	events.Emit(ctx, f.deps.Publisher, events.VerificationSucceeded, f.id, f.deps.Clock.Now(),
		events.VerificationSucceededPayload{Identity: f.identity, VerifiedAt: f.deps.Clock.Now().UTC()})

	log.Info().Str("flow_id", f.id.String()).Str("identity", f.identity).Msg("identity verified")

	if f.deps.OnVerified != nil {
		f.deps.OnVerified(f.identity)
	}
}

// Resend requests a fresh code. It is refused while the resend countdown is
// running, and a resend already in flight makes further calls no-ops.
func (f *Flow) Resend(ctx context.Context) error {
	f.mu.Lock()
	if f.closed || f.status == StatusVerified || f.resending {
		f.mu.Unlock()
		return nil
	}
	if !f.deps.Countdowns.Query(ctx, f.resendID).Elapsed {
		f.lastError = describe(ErrResendCooldown)
		state, listeners := f.snapshotLocked(), f.listenersLocked()
		f.mu.Unlock()
		notify(listeners, state)
		return ErrResendCooldown
	}
	f.resending = true
	f.mu.Unlock()

	err := f.deps.Verifier.ResendCode(ctx, f.identity)
	if err == nil {
		f.deps.Anchors.Reset(ctx, f.resendID, f.deps.ResendSeconds)
		f.deps.Anchors.Reset(ctx, f.expiryID, f.deps.ExpirySeconds)
	}

	f.mu.Lock()
	f.resending = false
	if err != nil {
		f.lastError = describe(err)
	} else {
		f.lastError = ""
	}
	closed := f.closed
	state, listeners := f.snapshotLocked(), f.listenersLocked()
	f.mu.Unlock()

	if err != nil {
		log.Info().Err(err).Str("flow_id", f.id.String()).Msg("resend failed")
		if !closed {
			notify(listeners, state)
		}
		return fmt.Errorf("resend code: %w", err)
	}

	events.Emit(ctx, f.deps.Publisher, events.CodeResent, f.id, f.deps.Clock.Now(), events.CodeResentPayload{
		Identity:         f.identity,
		ResentAt:         f.deps.Clock.Now().UTC(),
		CooldownSeconds:  f.deps.ResendSeconds,
		ExpiresInSeconds: f.deps.ExpirySeconds,
	})
	if !closed {
		notify(listeners, state)
	}
	return nil
}

// Close detaches the flow. A verification response arriving afterwards
// performs no side effects.
func (f *Flow) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.listeners = make(map[int]func(State))
	f.mu.Unlock()

	f.deps.Guard.TryEnter(f.id)
	log.Debug().Str("flow_id", f.id.String()).Msg("verification flow closed")
}

func (f *Flow) codeLocked() (string, bool) {
	var b strings.Builder
	for _, d := range f.digits {
		if d == "" {
			return "", false
		}
		b.WriteString(d)
	}
	return b.String(), true
}

func (f *Flow) snapshotLocked() State {
	return State{
		FlowID:    f.id,
		Identity:  f.identity,
		Status:    f.status,
		Digits:    append([]string(nil), f.digits[:]...),
		Focus:     f.focus,
		LastError: f.lastError,
	}
}

func (f *Flow) listenersLocked() []func(State) {
	out := make([]func(State), 0, len(f.listeners))
	for _, fn := range f.listeners {
		out = append(out, fn)
	}
	return out
}

func notify(listeners []func(State), state State) {
	for _, fn := range listeners {
		fn(state)
	}
}
