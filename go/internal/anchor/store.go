package anchor

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// TimerID composes a timer identifier from a user-scoped namespace and a name,
// e.g. TimerID("otp:jane@example.com", "resend").
func TimerID(scope, name string) string {
	return scope + ":" + name
}

// Store persists absolute timer targets (epoch milliseconds) keyed by timer ID.
//
// Storage failures never reach callers: when the KV cannot be read or written the
// affected anchor is kept in process memory instead, so the timer still counts down
// correctly until the process exits. Every target the store has written or read is
// also remembered, so an outage that starts later falls back to the last known value.
type Store struct {
	kv    KV
	clock clockwork.Clock

	// anchors that could not be persisted
	degraded map[string]int64
	// last target written to or read from the KV
	known map[string]int64
	mu    sync.Mutex
}

// NewStore creates an anchor store over kv
func NewStore(kv KV, clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{
		kv:       kv,
		clock:    clock,
		degraded: make(map[string]int64),
		known:    make(map[string]int64),
	}
}

// Ensure returns the existing target for timerID, or persists now+duration and returns it.
// Safe to call every time a view that shows the timer is opened.
func (s *Store) Ensure(ctx context.Context, timerID string, durationSeconds int) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if target, ok := s.degraded[timerID]; ok {
		return target
	}

	target := s.targetFromNow(durationSeconds)
	stored, err := setIfAbsent(ctx, s.kv, timerID, formatTarget(target))
	if err != nil {
		if known, ok := s.known[timerID]; ok {
			log.Warn().Err(err).Str("timer_id", timerID).Msg("anchor storage unavailable - using last known target")
			return known
		}
		s.degrade(timerID, target, err)
		return target
	}

	existing, ok := parseTarget(timerID, stored)
	if !ok {
		// unreadable value left behind by someone else; replace it
		return s.write(ctx, timerID, target)
	}
	s.known[timerID] = existing
	return existing
}

// Reset overwrites the target for timerID with now+duration.
func (s *Store) Reset(ctx context.Context, timerID string, durationSeconds int) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.write(ctx, timerID, s.targetFromNow(durationSeconds))
}

// Clear removes the anchor for timerID
func (s *Store) Clear(ctx context.Context, timerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.degraded, timerID)
	delete(s.known, timerID)
	if err := s.kv.Delete(ctx, timerID); err != nil {
		log.Warn().Err(err).Str("timer_id", timerID).Msg("failed to clear persisted anchor")
	}
}

// Read returns the target for timerID, if any
func (s *Store) Read(ctx context.Context, timerID string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if target, ok := s.degraded[timerID]; ok {
		return target, true
	}

	raw, ok, err := s.kv.Get(ctx, timerID)
	if err != nil {
		log.Warn().Err(err).Str("timer_id", timerID).Msg("failed to read persisted anchor")
		target, ok := s.known[timerID]
		return target, ok
	}
	if !ok {
		delete(s.known, timerID)
		return 0, false
	}
	target, ok := parseTarget(timerID, raw)
	if !ok {
		delete(s.known, timerID)
		return 0, false
	}
	s.known[timerID] = target
	return target, true
}

// Degraded reports whether timerID currently lives only in process memory.
func (s *Store) Degraded(timerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.degraded[timerID]
	return ok
}

func (s *Store) write(ctx context.Context, timerID string, target int64) int64 {
	if err := s.kv.Set(ctx, timerID, formatTarget(target)); err != nil {
		s.degrade(timerID, target, err)
		return target
	}
	delete(s.degraded, timerID)
	s.known[timerID] = target
	return target
}

func (s *Store) degrade(timerID string, target int64, err error) {
	log.Warn().
		Err(err).
		Str("timer_id", timerID).
		Int64("target_epoch_ms", target).
		Msg("anchor storage unavailable - keeping anchor in memory")
	s.degraded[timerID] = target
}

func (s *Store) targetFromNow(durationSeconds int) int64 {
	if durationSeconds < 0 {
		durationSeconds = 0
	}
	return s.clock.Now().Add(time.Duration(durationSeconds) * time.Second).UnixMilli()
}

func formatTarget(target int64) string {
	return strconv.FormatInt(target, 10)
}

func parseTarget(timerID, raw string) (int64, bool) {
	target, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Warn().Err(err).Str("timer_id", timerID).Str("value", raw).Msg("ignoring unparseable anchor")
		return 0, false
	}
	return target, true
}
