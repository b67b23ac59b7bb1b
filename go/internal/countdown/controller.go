package countdown

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// TickInterval is how often an attachment recomputes its state
const TickInterval = time.Second

// State is the derived view of a countdown. It is never persisted.
type State struct {
	RemainingSeconds int  `json:"remaining_seconds"`
	Elapsed          bool `json:"elapsed"`
}

// Compute derives the countdown state for targetMs at now.
func Compute(targetMs int64, now time.Time) State {
	remaining := (targetMs - now.UnixMilli()) / 1000
	if remaining < 0 {
		remaining = 0
	}
	return State{
		RemainingSeconds: int(remaining),
		Elapsed:          remaining == 0,
	}
}

// AnchorReader is what the controller needs from the anchor store
type AnchorReader interface {
	Read(ctx context.Context, timerID string) (int64, bool)
}

// Controller turns anchors into remaining-seconds values. It does not own
// persistence; every tick reads the anchor again so a reset is picked up and a
// suspended process catches up instead of drifting.
type Controller struct {
	anchors AnchorReader
	clock   clockwork.Clock
}

// NewController creates a countdown controller
func NewController(anchors AnchorReader, clock clockwork.Clock) *Controller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Controller{
		anchors: anchors,
		clock:   clock,
	}
}

// Query computes the current state of timerID. A missing anchor counts as elapsed.
func (c *Controller) Query(ctx context.Context, timerID string) State {
	target, ok := c.anchors.Read(ctx, timerID)
	if !ok {
		return State{Elapsed: true}
	}
	return Compute(target, c.clock.Now())
}

// Attachment is a running countdown subscription. C is closed after the first
// elapsed state, after Detach, or when the attach context is cancelled.
type Attachment struct {
	C <-chan State

	timerID string
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

// TimerID returns the timer this attachment follows
func (a *Attachment) TimerID() string {
	return a.timerID
}

// Detach stops the tick and waits for it to finish. Safe to call more than once.
func (a *Attachment) Detach() {
	a.once.Do(a.cancel)
	<-a.done
}

// Done is closed once the attachment has stopped ticking
func (a *Attachment) Done() <-chan struct{} {
	return a.done
}

// Attach starts a 1-second recomputation of timerID. The current state is sent
// first. The caller must Detach (or cancel ctx) when it stops displaying the timer.
func (c *Controller) Attach(ctx context.Context, timerID string) *Attachment {
	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan State, 1)
	a := &Attachment{
		C:       ch,
		timerID: timerID,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	// created before the goroutine starts so fake clocks see the waiter immediately
	ticker := c.clock.NewTicker(TickInterval)

	go func() {
		defer close(a.done)
		defer close(ch)
		defer ticker.Stop()

		var (
			lastTarget int64
			lastState  State
			started    bool
		)

		for {
			target, ok := c.anchors.Read(ctx, timerID)
			state := State{Elapsed: true}
			if ok {
				state = Compute(target, c.clock.Now())
			}

			// never count back up for the same anchor; a reset changes the target
			if started && ok && target == lastTarget && state.RemainingSeconds > lastState.RemainingSeconds {
				state = lastState
			}
			started = true
			lastTarget, lastState = target, state

			select {
			case ch <- state:
			case <-ctx.Done():
				return
			}

			if state.Elapsed {
				log.Debug().Str("timer_id", timerID).Msg("countdown elapsed - detaching")
				return
			}

			select {
			case <-ticker.Chan():
			case <-ctx.Done():
				return
			}
		}
	}()

	return a
}
