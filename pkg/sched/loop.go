package sched

import (
	"context"
	"time"
)

// Loop ticks repeatedly, sleeping until the next due time between passes.
//
// It exits when StopLoop is called (typically from inside a running action),
// when the context is cancelled, or after one bounded idle sleep once no
// tasks remain. The return value is the running flag at exit: false means a
// deliberate stop (StopLoop or context cancellation), true means the
// scheduler simply ran out of tasks.
func (s *Scheduler) Loop(ctx context.Context) bool {
	s.running = true

	// Drop a stale wake token from a StopLoop that raced a previous exit.
	select {
	case <-s.wake:
	default:
	}

	for s.running {
		if ctx.Err() != nil {
			s.running = false
			break
		}

		s.Tick()
		if !s.running {
			break
		}

		next, ok := s.NextTaskTime()
		if !ok {
			s.sleep(ctx, s.cfg.IdleSleep)
			break
		}
		if d := next.Sub(s.now()); d > 0 {
			s.sleep(ctx, d)
		}
	}

	return s.running
}

// StopLoop asks Loop to exit at the next iteration boundary. It is the
// sanctioned way to break the loop from inside a running action, and it
// wakes a sleeping loop promptly.
func (s *Scheduler) StopLoop() {
	s.running = false
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	case <-s.wake:
	}
}
