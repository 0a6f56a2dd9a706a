package config

import logx "rhythm/pkg/logx"

// Config mirrors the rhythmd YAML config file.
//
// Duration-valued fields are carried as strings ("10ms", "2h30m") and parsed
// with ParseDurationField at the point of use so a bad value names its exact
// config path in the error.
type Config struct {
	Log       LogConfig     `yaml:"log"`
	Scheduler SchedConfig   `yaml:"scheduler"`
	History   HistoryConfig `yaml:"history"`
	Jobs      []JobConfig   `yaml:"jobs"`
}

type LogConfig struct {
	Level   string        `yaml:"level"`
	Console bool          `yaml:"console"`
	File    LogFileConfig `yaml:"file"`
}

type LogFileConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

func (c LogConfig) Logx() logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File:    logx.FileConfig{Enabled: c.File.Enabled, Path: c.File.Path},
	}
}

type SchedConfig struct {
	Metrics       bool   `yaml:"metrics"`
	LateThreshold string `yaml:"late_threshold"` // default 10ms
	IdleSleep     string `yaml:"idle_sleep"`     // default 100ms

	// StatusInterval > 0 registers a recurring task that logs a scheduler
	// snapshot. Empty disables it.
	StatusInterval string `yaml:"status_interval"`
}

// HistoryConfig configures the run-history store.
//
// Driver values:
//   - "none" or empty: history disabled
//   - "file":   append-only JSON Lines file
//   - "sqlite": SQLite database file
type HistoryConfig struct {
	Driver      string `yaml:"driver"`
	Path        string `yaml:"path"`
	BusyTimeout string `yaml:"busy_timeout"` // sqlite only
	MaxRecords  int    `yaml:"max_records"`  // prune target; 0 keeps everything
}

// JobConfig declares one scheduled job. Exactly one of Every, Cron, At or
// After selects the trigger.
type JobConfig struct {
	Name string `yaml:"name"`

	Every string `yaml:"every"` // recurring interval, e.g. "30s"
	Cron  string `yaml:"cron"`  // cron spec, e.g. "0 3 * * *" or "@hourly"
	At    string `yaml:"at"`    // one-shot absolute time, RFC3339
	After string `yaml:"after"` // one-shot delay from startup

	Command []string `yaml:"command"` // argv; Command[0] is the binary
	Timeout string   `yaml:"timeout"` // per-run exec timeout

	RunImmediately bool `yaml:"run_immediately"` // every-jobs only
	SkipIfLate     bool `yaml:"skip_if_late"`    // every-jobs only
}

// Default returns the config used as the decode base, so omitted fields keep
// sane values.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:   "info",
			Console: true,
		},
		Scheduler: SchedConfig{
			Metrics:       true,
			LateThreshold: "10ms",
			IdleSleep:     "100ms",
		},
		History: HistoryConfig{
			Driver: "none",
		},
	}
}
