package workout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/ironclad/go/clients/coach_api_client"
	"github.com/mcdev12/ironclad/go/internal/events"
	"github.com/mcdev12/ironclad/go/internal/raceguard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type commit struct {
	sessionID string
	seconds   int
}

type fakeCommitter struct {
	mu      sync.Mutex
	err     error
	commits []commit

	started chan struct{}
	release chan struct{}
}

func (c *fakeCommitter) CommitSessionDuration(_ context.Context, sessionID string, seconds int) error {
	c.mu.Lock()
	c.commits = append(c.commits, commit{sessionID, seconds})
	err, started, release := c.err, c.started, c.release
	c.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}
	return err
}

func (c *fakeCommitter) calls() []commit {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]commit(nil), c.commits...)
}

type fixture struct {
	clock     *clockwork.FakeClock
	committer *fakeCommitter
	events    *events.Recorder
	hooks     []int
	deps      Deps
}

func newFixture() *fixture {
	fx := &fixture{
		clock:     clockwork.NewFakeClock(),
		committer: &fakeCommitter{},
		events:    &events.Recorder{},
	}
	fx.deps = Deps{
		Committer:   fx.committer,
		Publisher:   fx.events,
		Clock:       fx.clock,
		OnCommitted: func(_ string, seconds int) { fx.hooks = append(fx.hooks, seconds) },
	}
	return fx
}

func (fx *fixture) open(t *testing.T, initial int) *Flow {
	t.Helper()
	f, err := NewFlow(fx.deps, "w-1", initial)
	require.NoError(t, err)
	return f
}

func TestPausedTimeIsNotCommitted(t *testing.T) {
	fx := newFixture()
	f := fx.open(t, 0)

	require.NoError(t, f.Start())
	fx.clock.Advance(3 * time.Second)
	require.NoError(t, f.Pause())
	fx.clock.Advance(5 * time.Second)
	require.NoError(t, f.Resume())
	fx.clock.Advance(2 * time.Second)

	require.NoError(t, f.Finish(context.Background()))
	assert.Equal(t, []commit{{"w-1", 5}}, fx.committer.calls())

	state := f.State()
	assert.Equal(t, StatusCommitted, state.Status)
	assert.Equal(t, 5, state.TotalSeconds)
	assert.Equal(t, []int{5}, fx.hooks)
	assert.Len(t, fx.events.OfType(events.SessionCommitted), 1)
}

func TestSeededSession(t *testing.T) {
	fx := newFixture()
	f := fx.open(t, 600)

	require.NoError(t, f.Toggle())
	fx.clock.Advance(30 * time.Second)
	require.NoError(t, f.Toggle())
	assert.Equal(t, StatusPaused, f.State().Status)

	require.NoError(t, f.Finish(context.Background()))
	assert.Equal(t, []commit{{"w-1", 630}}, fx.committer.calls())
}

func TestInvalidTransitions(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()
	f := fx.open(t, 0)

	assert.ErrorIs(t, f.Pause(), ErrInvalidTransition)
	assert.ErrorIs(t, f.Resume(), ErrInvalidTransition)
	assert.ErrorIs(t, f.Finish(ctx), ErrInvalidTransition)
	assert.Empty(t, fx.committer.calls())

	require.NoError(t, f.Start())
	assert.ErrorIs(t, f.Start(), ErrInvalidTransition)
	assert.ErrorIs(t, f.Resume(), ErrInvalidTransition)

	require.NoError(t, f.Finish(ctx))
	assert.ErrorIs(t, f.Start(), ErrDisposed)
	assert.ErrorIs(t, f.Toggle(), ErrDisposed)
	assert.ErrorIs(t, f.Finish(ctx), ErrDisposed)
	assert.Len(t, fx.committer.calls(), 1)
}

func TestFailedCommitPreservesSession(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()
	fx.committer.err = errors.New("connection reset")
	f := fx.open(t, 0)

	require.NoError(t, f.Start())
	fx.clock.Advance(42 * time.Second)

	err := f.Finish(ctx)
	require.Error(t, err)
	assert.True(t, coach_api_client.IsTransient(err))

	state := f.State()
	assert.Equal(t, StatusRunning, state.Status)
	assert.Equal(t, 42, state.TotalSeconds)
	assert.Equal(t, "Could not save the workout. Please try again.", state.LastError)
	assert.Empty(t, fx.hooks)
	assert.Len(t, fx.events.OfType(events.SessionCommitFailed), 1)

	// the stopwatch kept running; pause and retry commits the same total
	require.NoError(t, f.Pause())
	fx.committer.err = nil
	require.NoError(t, f.Finish(ctx))

	calls := fx.committer.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, 42, calls[0].seconds)
	assert.Equal(t, 42, calls[1].seconds)
	assert.Equal(t, []int{42}, fx.hooks)
}

func TestFailedCommitFromPausedStaysPaused(t *testing.T) {
	fx := newFixture()
	fx.committer.err = coach_api_client.ErrNotFound
	f := fx.open(t, 10)

	require.NoError(t, f.Start())
	require.NoError(t, f.Pause())
	assert.ErrorIs(t, f.Finish(context.Background()), coach_api_client.ErrNotFound)

	fx.clock.Advance(time.Minute)
	state := f.State()
	assert.Equal(t, StatusPaused, state.Status)
	assert.Equal(t, 10, state.TotalSeconds)
	assert.Equal(t, "Workout not found.", state.LastError)
}

func TestFinishWhileFinalizingIsIgnored(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()
	fx.committer.started = make(chan struct{}, 1)
	fx.committer.release = make(chan struct{})
	f := fx.open(t, 0)

	require.NoError(t, f.Start())
	fx.clock.Advance(7 * time.Second)

	done := make(chan error, 1)
	go func() { done <- f.Finish(ctx) }()
	<-fx.committer.started

	assert.Equal(t, StatusFinalizing, f.State().Status)
	assert.NoError(t, f.Finish(ctx))
	assert.ErrorIs(t, f.Pause(), ErrInvalidTransition)

	close(fx.committer.release)
	require.NoError(t, <-done)

	assert.Len(t, fx.committer.calls(), 1)
	assert.Equal(t, []int{7}, fx.hooks)
}

func TestCloseAbsorbsLateCommit(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()
	fx.committer.started = make(chan struct{}, 1)
	fx.committer.release = make(chan struct{})
	f := fx.open(t, 0)

	require.NoError(t, f.Start())
	done := make(chan error, 1)
	go func() { done <- f.Finish(ctx) }()
	<-fx.committer.started

	f.Close()
	close(fx.committer.release)
	require.NoError(t, <-done)

	assert.Empty(t, fx.hooks)
	assert.Empty(t, fx.events.OfType(events.SessionCommitted))
	assert.ErrorIs(t, f.Start(), ErrDisposed)
}

func TestFinishAfterCloseDoesNotCommit(t *testing.T) {
	fx := newFixture()
	f := fx.open(t, 0)
	require.NoError(t, f.Start())
	f.Close()

	assert.ErrorIs(t, f.Finish(context.Background()), ErrDisposed)
	assert.Empty(t, fx.committer.calls())
}

func TestOnChangeSeesTransitions(t *testing.T) {
	fx := newFixture()
	f := fx.open(t, 0)

	var seen []Status
	f.OnChange(func(s State) { seen = append(seen, s.Status) })

	require.NoError(t, f.Start())
	require.NoError(t, f.Pause())
	require.NoError(t, f.Finish(context.Background()))

	assert.Equal(t, []Status{StatusRunning, StatusPaused, StatusFinalizing, StatusCommitted}, seen)
}

func TestNewFlowValidation(t *testing.T) {
	_, err := NewFlow(Deps{}, "w-1", 0)
	assert.Error(t, err)
	_, err = NewFlow(Deps{Committer: &fakeCommitter{}}, "", 0)
	assert.Error(t, err)
}

func TestFinishWithTakenGuardRestoresStatus(t *testing.T) {
	fx := newFixture()
	guard := raceguard.New()
	fx.deps.Guard = guard
	f := fx.open(t, 0)

	require.NoError(t, f.Start())
	fx.clock.Advance(4 * time.Second)
	require.NoError(t, f.Pause())

	guard.TryEnter(f.ID())
	assert.ErrorIs(t, f.Finish(context.Background()), ErrDisposed)
	assert.Equal(t, StatusPaused, f.State().Status)
	assert.Equal(t, 4, f.State().TotalSeconds)
	assert.Empty(t, fx.committer.calls())
}

func TestLateCommitAfterForgetStaysAbsorbed(t *testing.T) {
	ctx := context.Background()
	fx := newFixture()
	guard := raceguard.New()
	fx.deps.Guard = guard
	fx.committer.started = make(chan struct{}, 1)
	fx.committer.release = make(chan struct{})
	f := fx.open(t, 0)

	require.NoError(t, f.Start())
	done := make(chan error, 1)
	go func() { done <- f.Finish(ctx) }()
	<-fx.committer.started

	f.Close()
	guard.Forget(f.ID())
	close(fx.committer.release)
	require.NoError(t, <-done)

	assert.Empty(t, fx.hooks)
	assert.Empty(t, fx.events.OfType(events.SessionCommitted))
	assert.Equal(t, 0, guard.Len())
}
