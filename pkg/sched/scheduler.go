package sched

import (
	"fmt"
	"time"

	logx "rhythm/pkg/logx"
)

// Config tunes a Scheduler. The zero value is usable.
type Config struct {
	// LateThreshold is how far past its scheduled time a run may start
	// before it counts as late in metrics. Default 10ms.
	LateThreshold time.Duration

	// IdleSleep is the bounded sleep Loop performs once before exiting when
	// no tasks remain. Default 100ms.
	IdleSleep time.Duration

	// Metrics enables run accounting (total runs, late runs, run time).
	Metrics bool

	// Now overrides the clock. Tests use this; nil means time.Now.
	Now func() time.Time

	// OnFailure receives every action/cleanup failure. When nil, failures
	// are logged on the scheduler's logger instead.
	OnFailure func(Failure)
}

const (
	defaultLateThreshold = 10 * time.Millisecond
	defaultIdleSleep     = 100 * time.Millisecond
)

// Scheduler is a single-threaded task scheduler. All methods must be called
// from the one goroutine that owns it; see the package docs.
type Scheduler struct {
	cfg Config
	log logx.Logger
	now func() time.Time

	tasks  []*task
	nextID TaskID

	// Cached earliest next-run across active tasks. Maintained in O(1) on
	// registration, recomputed fully on every tick.
	nextAt  time.Time
	nextSet bool

	running bool
	wake    chan struct{}

	// metrics
	totalRuns    uint64
	lateRuns     uint64
	totalRunTime time.Duration
	metricsStart time.Time
}

func New(cfg Config, log logx.Logger) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.LateThreshold <= 0 {
		cfg.LateThreshold = defaultLateThreshold
	}
	if cfg.IdleSleep <= 0 {
		cfg.IdleSleep = defaultIdleSleep
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		cfg:          cfg,
		log:          log,
		now:          now,
		nextID:       1,
		wake:         make(chan struct{}, 1),
		metricsStart: now(),
	}
}

// ScheduleAt registers a one-shot task due at the given time. A time in the
// past makes the task due on the next tick.
func (s *Scheduler) ScheduleAt(at time.Time, fn TaskFn, cleanup TaskFn) TaskID {
	return s.add(&task{
		fn:      fn,
		cleanup: cleanup,
		nextRun: at,
		active:  true,
	})
}

// ScheduleAfter registers a one-shot task due after the given delay.
func (s *Scheduler) ScheduleAfter(delay time.Duration, fn TaskFn, cleanup TaskFn) (TaskID, error) {
	if delay < 0 {
		return 0, ErrNegativeDelay
	}
	return s.ScheduleAt(s.now().Add(delay), fn, cleanup), nil
}

// ScheduleEvery registers a recurring task. A zero interval is accepted and
// means the task is due on every tick.
func (s *Scheduler) ScheduleEvery(interval time.Duration, fn TaskFn, opt EveryOptions) (TaskID, error) {
	if interval < 0 {
		return 0, ErrNegativeInterval
	}
	first := s.now()
	if !opt.RunImmediately {
		first = first.Add(interval)
	}
	id := s.add(&task{
		fn:         fn,
		cleanup:    opt.Cleanup,
		interval:   interval,
		recurring:  true,
		nextRun:    first,
		skipIfLate: opt.SkipIfLate,
		active:     true,
	})
	return id, nil
}

func (s *Scheduler) add(t *task) TaskID {
	t.id = s.nextID
	s.nextID++
	s.tasks = append(s.tasks, t)
	s.foldNext(t.nextRun)
	s.log.Debug("task scheduled",
		logx.Int64("task", int64(t.id)),
		logx.Bool("recurring", t.recurring),
		logx.Time("next_run", t.nextRun),
	)
	return t.id
}

// CancelTask marks the task inactive and runs its cleanup before returning.
// It reports false for an unknown or already-inactive id; cancelling twice
// is safe. The record itself is purged on the next tick.
func (s *Scheduler) CancelTask(id TaskID) bool {
	for _, t := range s.tasks {
		if t.id != id {
			continue
		}
		if !t.active {
			return false
		}
		s.deactivate(t)
		return true
	}
	return false
}

// Tick runs every currently-due task once, reschedules recurring tasks,
// purges finished ones, and recomputes the cached next wake time.
func (s *Scheduler) Tick() {
	now := s.now()
	s.nextAt, s.nextSet = time.Time{}, false

	// Tasks registered by a running action join the store beyond n and are
	// first eligible on the next tick, even if already due.
	n := len(s.tasks)
	for i := 0; i < n; i++ {
		t := s.tasks[i]
		if !t.active || t.nextRun.After(now) {
			continue
		}
		s.runOne(t, now)
	}

	// Purge inactive tasks and fold the survivors' next-run times.
	alive := s.tasks[:0]
	for _, t := range s.tasks {
		if !t.active {
			continue
		}
		alive = append(alive, t)
		s.foldNext(t.nextRun)
	}
	for i := len(alive); i < len(s.tasks); i++ {
		s.tasks[i] = nil
	}
	s.tasks = alive
}

func (s *Scheduler) runOne(t *task, now time.Time) {
	var start time.Time
	var late bool
	if s.cfg.Metrics {
		start = s.now()
		late = start.Sub(t.nextRun) > s.cfg.LateThreshold
	}

	if err := s.invoke(t.fn, t.id); err != nil {
		s.report(Failure{Task: t.id, Kind: FailureAction, Err: err})
	}

	if s.cfg.Metrics {
		s.noteRun(s.now().Sub(start), late)
	}

	if !t.active {
		// The action cancelled its own task; cleanup already ran there.
		return
	}

	switch {
	case t.recurring && t.interval > 0:
		if t.skipIfLate {
			// Jump to the first interval boundary after now, dropping
			// whatever backlog accumulated.
			for !t.nextRun.After(now) {
				t.nextRun = t.nextRun.Add(t.interval)
			}
		} else {
			t.nextRun = t.nextRun.Add(t.interval)
		}
	case t.recurring:
		// Zero interval: due again on every tick.
		t.nextRun = now
	default:
		s.deactivate(t)
	}
}

// deactivate retires a task and fires its cleanup exactly once.
func (s *Scheduler) deactivate(t *task) {
	t.active = false
	if t.cleanup == nil || t.cleanupDone {
		return
	}
	t.cleanupDone = true
	if err := s.invoke(t.cleanup, t.id); err != nil {
		s.report(Failure{Task: t.id, Kind: FailureCleanup, Err: err})
	}
}

func (s *Scheduler) invoke(fn TaskFn, id TaskID) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(id)
}

func (s *Scheduler) report(f Failure) {
	if s.cfg.OnFailure != nil {
		s.cfg.OnFailure(f)
		return
	}
	s.log.Error("task "+f.Kind.String()+" failed",
		logx.Int64("task", int64(f.Task)),
		logx.Err(f.Err),
	)
}

func (s *Scheduler) foldNext(at time.Time) {
	if !s.nextSet || at.Before(s.nextAt) {
		s.nextAt = at
		s.nextSet = true
	}
}

// TimeUntilNextTask reports the remaining duration until the earliest due
// task, zero if one is already due, and false when nothing is scheduled.
func (s *Scheduler) TimeUntilNextTask() (time.Duration, bool) {
	if !s.nextSet {
		return 0, false
	}
	now := s.now()
	if !s.nextAt.After(now) {
		return 0, true
	}
	return s.nextAt.Sub(now), true
}

// NextTaskTime reports the absolute time of the earliest due task.
func (s *Scheduler) NextTaskTime() (time.Time, bool) {
	return s.nextAt, s.nextSet
}

// TaskCount is the number of records in the store, counting inactive tasks
// that are still awaiting the next tick's purge.
func (s *Scheduler) TaskCount() int {
	return len(s.tasks)
}
