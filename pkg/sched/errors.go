package sched

import "errors"

var (
	ErrNegativeDelay    = errors.New("sched: negative delay")
	ErrNegativeInterval = errors.New("sched: negative interval")
)

// FailureKind distinguishes where a task failure happened.
type FailureKind int

const (
	FailureAction FailureKind = iota
	FailureCleanup
)

func (k FailureKind) String() string {
	switch k {
	case FailureAction:
		return "action"
	case FailureCleanup:
		return "cleanup"
	default:
		return "unknown"
	}
}

// Failure describes a single failed action or cleanup run. Failures are
// reported to Config.OnFailure; they never abort a tick.
type Failure struct {
	Task TaskID
	Kind FailureKind
	Err  error
}
