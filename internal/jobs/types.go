package jobs

import (
	"context"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"rhythm/internal/config"
	"rhythm/internal/history"
	"rhythm/pkg/logx"
	"rhythm/pkg/sched"
)

type jobKind int

const (
	jobEvery jobKind = iota
	jobCron
	jobAt
	jobAfter
)

const (
	defaultJobTimeout  = time.Minute
	updatePollInterval = time.Second
)

type jobDef struct {
	name string
	kind jobKind
	spec string // printable trigger, e.g. `every 30s`, `cron 0 3 * * *`

	every    time.Duration
	schedule cron.Schedule // cron jobs only
	at       time.Time
	after    time.Duration

	command []string
	timeout time.Duration

	runImmediately bool
	skipIfLate     bool

	// runtime state
	id      sched.TaskID
	runs    uint64
	lastRun time.Time
	lastErr string
}

// same reports whether two compiled defs describe the same job, so Apply can
// leave an unchanged registration alone across config reloads.
func (d *jobDef) same(o *jobDef) bool {
	return d.kind == o.kind &&
		d.spec == o.spec &&
		d.timeout == o.timeout &&
		d.runImmediately == o.runImmediately &&
		d.skipIfLate == o.skipIfLate &&
		strings.Join(d.command, "\x00") == strings.Join(o.command, "\x00")
}

// Service owns the compiled job set. Not safe for concurrent use; see the
// package docs.
type Service struct {
	log  logx.Logger
	core *sched.Scheduler
	hist history.Store
	rep  *Reporter

	parser cron.Parser
	jobs   map[string]*jobDef

	ctx context.Context // base context for command execution
	now func() time.Time

	statusEvery time.Duration
	statusTask  sched.TaskID

	// ReloadHook, when set, runs before Apply for every config update the
	// poll task drains (the daemon uses it to re-apply log settings).
	ReloadHook func(cfg *config.Config)
}
