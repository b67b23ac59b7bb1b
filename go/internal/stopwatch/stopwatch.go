package stopwatch

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Stopwatch accumulates running time for a session. Time is measured from the
// wall clock at start/pause boundaries, so a process that was suspended while
// running still accounts for the full interval.
type Stopwatch struct {
	clock clockwork.Clock

	accumulated  time.Duration
	runningSince time.Time
	running      bool
	mu           sync.Mutex
}

// New creates a paused stopwatch seeded with a previously recorded duration
func New(clock clockwork.Clock, initialSeconds int) *Stopwatch {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if initialSeconds < 0 {
		initialSeconds = 0
	}
	return &Stopwatch{
		clock:       clock,
		accumulated: time.Duration(initialSeconds) * time.Second,
	}
}

// Start begins accumulating. No-op when already running.
func (s *Stopwatch) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.runningSince = s.clock.Now()
}

// Pause stops accumulating. No-op when already paused.
func (s *Stopwatch) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.accumulated += s.sinceStart()
	s.running = false
}

// Running reports whether the stopwatch is accumulating
func (s *Stopwatch) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// ElapsedSeconds is the whole seconds accumulated so far, for display.
func (s *Stopwatch) ElapsedSeconds() int {
	return s.Snapshot()
}

// Snapshot reads the accumulated whole seconds at this instant. Commits must use
// a snapshot taken at the moment of the commit, never an earlier display value.
func (s *Stopwatch) Snapshot() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := s.accumulated
	if s.running {
		total += s.sinceStart()
	}
	return int(total / time.Second)
}

func (s *Stopwatch) sinceStart() time.Duration {
	d := s.clock.Since(s.runningSince)
	if d < 0 {
		// wall clock stepped backwards; count nothing for this interval
		return 0
	}
	return d
}
