package lobby

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Scheduler arms single-shot delayed callbacks against an injected
// clock, so lifecycle transitions are testable on a fake clock without
// wall-clock delays.
type Scheduler struct {
	clock clockwork.Clock
}

// NewScheduler creates a scheduler. Pass clockwork.NewRealClock() in
// production and a FakeClock in tests.
func NewScheduler(clock clockwork.Clock) *Scheduler {
	return &Scheduler{clock: clock}
}

// Handle identifies a scheduled callback and allows cancelling it
// before it fires.
type Handle struct {
	timer    clockwork.Timer
	cancelCh chan struct{}
	once     sync.Once
}

// Schedule invokes fn at most once, after at least d has elapsed. The
// callback runs on its own goroutine; callers serialize their own
// state.
func (s *Scheduler) Schedule(d time.Duration, fn func()) *Handle {
	h := &Handle{
		timer:    s.clock.NewTimer(d),
		cancelCh: make(chan struct{}),
	}

	go func() {
		select {
		case <-h.timer.Chan():
			fn()
		case <-h.cancelCh:
		}
	}()

	return h
}

// Cancel stops a scheduled callback. No-op if the callback already
// fired, and safe to call more than once or with a nil handle.
// The timer is stopped and drained before the cancel channel closes:
// otherwise a fire racing the cancel leaves both select cases ready
// and the cancelled callback could still run.
func (s *Scheduler) Cancel(h *Handle) {
	if h == nil {
		return
	}
	h.once.Do(func() {
		stopAndDrainTimer(h.timer)
		close(h.cancelCh)
	})
}

// stopAndDrainTimer safely stops a timer and drains its channel,
// following the pattern from the time.Timer.Stop documentation.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
