package history

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("history disabled")

// Config configures the run-history store.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl append log)
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", history is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	MaxRecords  int           // prune target; 0 means keep everything
}

// RunRecord is one completed job run. Keep it compact and schema-stable.
type RunRecord struct {
	At       time.Time     `json:"at"`
	Job      string        `json:"job"`
	Task     int64         `json:"task"`
	Duration time.Duration `json:"took"`
	Error    string        `json:"err,omitempty"`
}
