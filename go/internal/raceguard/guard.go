package raceguard

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Guard is a set of one-shot latches keyed by flow instance ID.
// Each terminal transition goes through TryEnter so that a double click, a
// duplicated network response or a re-invoked effect runs its side effect once.
type Guard struct {
	entered map[uuid.UUID]struct{}
	mu      sync.Mutex
}

// New creates an empty guard
func New() *Guard {
	return &Guard{
		entered: make(map[uuid.UUID]struct{}),
	}
}

// TryEnter returns true the first time it is called for flowID and false on every later call.
func (g *Guard) TryEnter(flowID uuid.UUID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.entered[flowID]; ok {
		log.Debug().Str("flow_id", flowID.String()).Msg("race guard already entered - dropping terminal transition")
		return false
	}
	g.entered[flowID] = struct{}{}
	return true
}

// Entered reports whether the latch for flowID has been taken.
func (g *Guard) Entered(flowID uuid.UUID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.entered[flowID]
	return ok
}

// Forget drops the latch for flowID. Call it only after the flow is closed and
// no longer reachable; a later TryEnter for the same ID would succeed again.
func (g *Guard) Forget(flowID uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entered, flowID)
}

// Len is the number of latches held
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entered)
}
