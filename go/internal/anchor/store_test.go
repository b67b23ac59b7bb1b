package anchor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// brokenKV fails every call, like storage that is disabled or over quota
type brokenKV struct{}

var errStorageDisabled = errors.New("storage disabled")

func (brokenKV) Get(context.Context, string) (string, bool, error) { return "", false, errStorageDisabled }
func (brokenKV) Set(context.Context, string, string) error         { return errStorageDisabled }
func (brokenKV) Delete(context.Context, string) error              { return errStorageDisabled }

func TestEnsureIsIdempotent(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(t0)
	s := NewStore(NewMemoryKV(), clock)

	first := s.Ensure(ctx, "otp:a:expiry", 300)
	assert.Equal(t, t0.Add(300*time.Second).UnixMilli(), first)

	clock.Advance(10 * time.Second)
	second := s.Ensure(ctx, "otp:a:expiry", 60)
	assert.Equal(t, first, second, "second ensure must keep the first target")

	got, ok := s.Read(ctx, "otp:a:expiry")
	require.True(t, ok)
	assert.Equal(t, first, got)
}

func TestResetAlwaysOverwrites(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(t0)
	s := NewStore(NewMemoryKV(), clock)

	s.Ensure(ctx, "id", 60)
	clock.Advance(5 * time.Second)

	target := s.Reset(ctx, "id", 60)
	assert.Equal(t, t0.Add(65*time.Second).UnixMilli(), target)

	// reset on a missing anchor also writes
	other := s.Reset(ctx, "missing", 1)
	got, ok := s.Read(ctx, "missing")
	require.True(t, ok)
	assert.Equal(t, other, got)
}

func TestClearRemovesAnchor(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryKV(), clockwork.NewFakeClockAt(t0))

	s.Ensure(ctx, "id", 60)
	s.Clear(ctx, "id")

	_, ok := s.Read(ctx, "id")
	assert.False(t, ok)

	// a fresh ensure after clear starts a new countdown
	clock := clockwork.NewFakeClockAt(t0.Add(time.Minute))
	s2 := NewStore(s.kv, clock)
	assert.Equal(t, t0.Add(2*time.Minute).UnixMilli(), s2.Ensure(ctx, "id", 60))
}

func TestNegativeDurationClampsToNow(t *testing.T) {
	s := NewStore(NewMemoryKV(), clockwork.NewFakeClockAt(t0))
	assert.Equal(t, t0.UnixMilli(), s.Ensure(context.Background(), "id", -5))
}

func TestStoreSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()

	first := NewStore(kv, clockwork.NewFakeClockAt(t0)).Ensure(ctx, "id", 60)

	// a second store over the same KV rehydrates rather than creating a new target
	restarted := NewStore(kv, clockwork.NewFakeClockAt(t0.Add(30*time.Second)))
	assert.Equal(t, first, restarted.Ensure(ctx, "id", 60))
}

func TestStorageUnavailableDegradesToMemory(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(t0)
	s := NewStore(brokenKV{}, clock)

	target := s.Ensure(ctx, "id", 60)
	assert.Equal(t, t0.Add(60*time.Second).UnixMilli(), target)
	assert.True(t, s.Degraded("id"))

	clock.Advance(10 * time.Second)
	assert.Equal(t, target, s.Ensure(ctx, "id", 60))

	got, ok := s.Read(ctx, "id")
	require.True(t, ok)
	assert.Equal(t, target, got)

	reset := s.Reset(ctx, "id", 60)
	assert.Equal(t, t0.Add(70*time.Second).UnixMilli(), reset)

	s.Clear(ctx, "id")
	_, ok = s.Read(ctx, "id")
	assert.False(t, ok)
}

func TestUnparseableValueIsReplaced(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	require.NoError(t, kv.Set(ctx, "id", "not-a-number"))

	s := NewStore(kv, clockwork.NewFakeClockAt(t0))
	_, ok := s.Read(ctx, "id")
	assert.False(t, ok)

	target := s.Ensure(ctx, "id", 60)
	assert.Equal(t, t0.Add(time.Minute).UnixMilli(), target)

	raw, ok, err := kv.Get(ctx, "id")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1772366460000", raw)
}

func TestScopedKVIsolatesUsers(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	a := NewStore(Scoped(kv, "alice"), clockwork.NewFakeClockAt(t0))
	b := NewStore(Scoped(kv, "bob"), clockwork.NewFakeClockAt(t0.Add(time.Hour)))

	ta := a.Ensure(ctx, "id", 60)
	tb := b.Ensure(ctx, "id", 60)
	assert.NotEqual(t, ta, tb)

	_, ok, err := kv.Get(ctx, "alice/id")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTimerID(t *testing.T) {
	assert.Equal(t, "otp:jane@example.com:resend", TimerID("otp:jane@example.com", "resend"))
}

// flakyKV wraps a working KV and starts failing once down is set
type flakyKV struct {
	KV
	down bool
}

func (f *flakyKV) Get(ctx context.Context, key string) (string, bool, error) {
	if f.down {
		return "", false, errStorageDisabled
	}
	return f.KV.Get(ctx, key)
}

func (f *flakyKV) Set(ctx context.Context, key, value string) error {
	if f.down {
		return errStorageDisabled
	}
	return f.KV.Set(ctx, key, value)
}

func (f *flakyKV) Delete(ctx context.Context, key string) error {
	if f.down {
		return errStorageDisabled
	}
	return f.KV.Delete(ctx, key)
}

func TestOutageAfterSuccessfulWriteKeepsTarget(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(t0)
	kv := &flakyKV{KV: NewMemoryKV()}
	s := NewStore(kv, clock)

	resend := s.Ensure(ctx, "otp:a:resend", 60)
	expiry := s.Reset(ctx, "otp:a:expiry", 300)
	clock.Advance(5 * time.Second)
	kv.down = true

	got, ok := s.Read(ctx, "otp:a:resend")
	require.True(t, ok)
	assert.Equal(t, resend, got)

	got, ok = s.Read(ctx, "otp:a:expiry")
	require.True(t, ok)
	assert.Equal(t, expiry, got)

	// reopening the view must not start a new countdown
	assert.Equal(t, resend, s.Ensure(ctx, "otp:a:resend", 60))
	assert.False(t, s.Degraded("otp:a:resend"))

	s.Clear(ctx, "otp:a:resend")
	_, ok = s.Read(ctx, "otp:a:resend")
	assert.False(t, ok)
}

func TestOutageAfterReadKeepsTarget(t *testing.T) {
	ctx := context.Background()
	kv := &flakyKV{KV: NewMemoryKV()}
	first := NewStore(kv, clockwork.NewFakeClockAt(t0)).Ensure(ctx, "id", 60)

	// a restarted store that only read the anchor before the outage
	restarted := NewStore(kv, clockwork.NewFakeClockAt(t0.Add(10*time.Second)))
	got, ok := restarted.Read(ctx, "id")
	require.True(t, ok)
	require.Equal(t, first, got)

	kv.down = true
	got, ok = restarted.Read(ctx, "id")
	require.True(t, ok)
	assert.Equal(t, first, got)
}
