// Package sched implements rhythm's single-threaded, caller-driven task
// scheduler.
//
// The scheduler owns a flat store of one-shot and recurring tasks. Nothing
// runs in the background: time only "passes" when the owner calls Tick()
// (run everything currently due, once) or Loop() (tick, sleep until the next
// due time, repeat). All state is meant to be touched from one goroutine;
// there is no internal locking.
//
// Scheduling notes:
//   - A one-shot task whose time is already past is simply due on the next
//     tick; past times are not an error.
//   - ScheduleEvery with a zero interval is valid and means "due on every
//     tick". It does not degrade to a one-shot.
//   - Tasks registered from inside a running action become eligible starting
//     with the next tick, never inside the current pass.
//
// Actions and cleanups return errors; panics are recovered. Failures are
// handed to Config.OnFailure and never stop the tick.
package sched
