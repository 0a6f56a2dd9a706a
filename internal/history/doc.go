// Package history persists a journal of completed job runs.
//
// It records what already happened (start time, duration, error); it never
// restores scheduled tasks, which stay in-memory by design.
package history
