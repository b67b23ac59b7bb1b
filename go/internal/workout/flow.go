package workout

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/ironclad/go/internal/events"
	"github.com/mcdev12/ironclad/go/internal/raceguard"
	"github.com/mcdev12/ironclad/go/internal/stopwatch"
	"github.com/rs/zerolog/log"
)

// Flow tracks one workout session from start to its single committed duration.
type Flow struct {
	id        uuid.UUID
	deps      Deps
	sessionID string

	mu         sync.Mutex
	status     Status
	sw         *stopwatch.Stopwatch
	committed  int
	lastError  string
	closed     bool
	listeners  map[int]func(State)
	nextListen int
}

// NewFlow creates an idle session seeded with a previously recorded partial duration.
func NewFlow(deps Deps, sessionID string, initialSeconds int) (*Flow, error) {
	if deps.Committer == nil {
		return nil, fmt.Errorf("session flow needs a committer")
	}
	if sessionID == "" {
		return nil, fmt.Errorf("session flow needs a session id")
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Guard == nil {
		deps.Guard = raceguard.New()
	}
	if deps.Publisher == nil {
		deps.Publisher = events.Nop{}
	}

	return &Flow{
		id:        uuid.New(),
		deps:      deps,
		sessionID: sessionID,
		status:    StatusIdle,
		sw:        stopwatch.New(deps.Clock, initialSeconds),
		listeners: make(map[int]func(State)),
	}, nil
}

func (f *Flow) ID() uuid.UUID     { return f.id }
func (f *Flow) SessionID() string { return f.sessionID }

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

// OnChange registers fn to receive every transition. The returned func removes it.
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

func (f *Flow) Start() error {
	return f.transition(StatusIdle, StatusRunning)
}

func (f *Flow) Pause() error {
	return f.transition(StatusRunning, StatusPaused)
}

func (f *Flow) Resume() error {
	return f.transition(StatusPaused, StatusRunning)
}

// Toggle starts an idle session and flips between running and paused otherwise.
func (f *Flow) Toggle() error {
	switch f.State().Status {
	case StatusIdle:
		return f.Start()
	case StatusRunning:
		return f.Pause()
	case StatusPaused:
		return f.Resume()
	case StatusCommitted:
		return ErrDisposed
	default:
		return ErrInvalidTransition
	}
}

func (f *Flow) transition(from, to Status) error {
	f.mu.Lock()
	if err := f.usableLocked(); err != nil {
		f.mu.Unlock()
		return err
	}
	if f.status != from {
		current := f.status
		f.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s from %s", ErrInvalidTransition, from, to, current)
	}

	if to == StatusRunning {
		f.sw.Start()
	} else {
		f.sw.Pause()
	}
	f.status = to
	f.lastError = ""
	state, listeners := f.snapshotLocked(), f.listenersLocked()
	f.mu.Unlock()

	log.Debug().
		Str("flow_id", f.id.String()).
		Str("session_id", f.sessionID).
		Str("status", string(to)).
		Int("total_seconds", state.TotalSeconds).
		Msg("session transition")
	notify(listeners, state)
	return nil
}

// Finish stops the clock and commits the accumulated duration. On failure the
// session returns to its previous running or paused state with its time intact
// and the error is returned so the caller can retry. A Finish while a commit is
// in flight is ignored.
func (f *Flow) Finish(ctx context.Context) error {
	f.mu.Lock()
	if err := f.usableLocked(); err != nil {
		f.mu.Unlock()
		return err
	}
	if f.status == StatusFinalizing {
		f.mu.Unlock()
		return nil
	}
	if f.status != StatusRunning && f.status != StatusPaused {
		f.mu.Unlock()
		return fmt.Errorf("%w: cannot finish from %s", ErrInvalidTransition, f.status)
	}

	prior := f.status
	f.sw.Pause()
	seconds := f.sw.Snapshot()
	f.status = StatusFinalizing
	f.lastError = ""
	state, listeners := f.snapshotLocked(), f.listenersLocked()
	f.mu.Unlock()

	notify(listeners, state)

	if f.deps.Guard.Entered(f.id) {
		f.mu.Lock()
		f.status = prior
		if prior == StatusRunning && !f.closed {
			f.sw.Start()
		}
		f.mu.Unlock()
		return ErrDisposed
	}

	log.Info().
		Str("flow_id", f.id.String()).
		Str("session_id", f.sessionID).
		Int("duration_seconds", seconds).
		Msg("committing session")

	if err := f.deps.Committer.CommitSessionDuration(ctx, f.sessionID, seconds); err != nil {
		f.fail(ctx, prior, seconds, err)
		return fmt.Errorf("commit session: %w", err)
	}

	f.mu.Lock()
	if f.closed || !f.deps.Guard.TryEnter(f.id) {
		f.mu.Unlock()
		log.Debug().Str("flow_id", f.id.String()).Msg("session commit resolved after close - ignoring")
		return nil
	}
	f.status = StatusCommitted
	f.committed = seconds
	f.sw = nil
	state, listeners = f.snapshotLocked(), f.listenersLocked()
	f.mu.Unlock()

	events.Emit(ctx, f.deps.Publisher, events.SessionCommitted, f.id, f.deps.Clock.Now(), events.SessionCommittedPayload{
		SessionID:       f.sessionID,
		DurationSeconds: seconds,
		CommittedAt:     f.deps.Clock.Now().UTC(),
	})
	if f.deps.OnCommitted != nil {
		f.deps.OnCommitted(f.sessionID, seconds)
	}
	notify(listeners, state)
	return nil
}

func (f *Flow) fail(ctx context.Context, prior Status, seconds int, err error) {
	log.Warn().
		Err(err).
		Str("flow_id", f.id.String()).
		Str("session_id", f.sessionID).
		Msg("session commit failed")

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.status = prior
	if prior == StatusRunning {
		f.sw.Start()
	}
	f.lastError = describe(err)
	state, listeners := f.snapshotLocked(), f.listenersLocked()
	f.mu.Unlock()

	events.Emit(ctx, f.deps.Publisher, events.SessionCommitFailed, f.id, f.deps.Clock.Now(), events.SessionCommitFailedPayload{
		SessionID:       f.sessionID,
		DurationSeconds: seconds,
		Error:           err.Error(),
		FailedAt:        f.deps.Clock.Now().UTC(),
	})
	notify(listeners, state)
}

// Close disposes the flow. A commit resolving afterwards runs no hooks.
func (f *Flow) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	if f.sw != nil {
		f.sw.Pause()
	}
	f.listeners = make(map[int]func(State))
	f.mu.Unlock()

	f.deps.Guard.TryEnter(f.id)
	log.Debug().Str("flow_id", f.id.String()).Msg("session flow closed")
}

func (f *Flow) usableLocked() error {
	if f.closed || f.status == StatusCommitted {
		return ErrDisposed
	}
	return nil
}

func (f *Flow) snapshotLocked() State {
	total := f.committed
	if f.sw != nil {
		total = f.sw.Snapshot()
	}
	return State{
		FlowID:       f.id,
		SessionID:    f.sessionID,
		Status:       f.status,
		TotalSeconds: total,
		LastError:    f.lastError,
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
