// Package jobs binds the YAML job list onto the scheduler core.
//
// It compiles job definitions (interval, cron, one-shot), registers them as
// scheduler tasks that exec their commands, records completed runs in the
// history store, and reports task failures with per-job rate limiting.
//
// Everything here runs on the goroutine that drives the scheduler loop;
// config updates reach it through a recurring poll task, so the core's
// single-owner model is never violated.
package jobs
