package sched

import "time"

// TaskID identifies a task for the lifetime of one Scheduler. IDs are
// monotonically increasing and never reused, even after cancellation.
type TaskID int64

// TaskFn is a task action or cleanup. It receives the task's own id so the
// task can, for example, cancel itself.
type TaskFn func(id TaskID) error

// EveryOptions tunes ScheduleEvery.
type EveryOptions struct {
	// Cleanup runs exactly once when the task permanently leaves the
	// scheduler (cancellation). It never runs between recurring runs.
	Cleanup TaskFn

	// RunImmediately makes the first run due right away instead of one
	// interval from now.
	RunImmediately bool

	// SkipIfLate drops backlog: a task that missed one or more intervals
	// jumps to the next interval boundary after "now" instead of catching
	// up run by run.
	SkipIfLate bool
}

type task struct {
	id          TaskID
	fn          TaskFn
	cleanup     TaskFn
	interval    time.Duration // meaningful only when recurring
	recurring   bool
	nextRun     time.Time
	skipIfLate  bool
	active      bool
	cleanupDone bool
}
