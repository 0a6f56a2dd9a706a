package jobs

import (
	"time"

	"golang.org/x/time/rate"

	"rhythm/pkg/logx"
	"rhythm/pkg/sched"
)

const (
	failureLogInterval = 30 * time.Second
	failureLogBurst    = 3
)

// Reporter is the scheduler's failure channel. It attributes failures to job
// names and rate-limits repeated errors per task so a flapping job cannot
// flood the log. Suppressed failures are counted, never lost: the count is
// attached to the next failure that does get logged.
//
// Called only from the scheduler goroutine; no locking.
type Reporter struct {
	log logx.Logger

	names      map[sched.TaskID]string
	limiters   map[sched.TaskID]*rate.Limiter
	suppressed map[sched.TaskID]uint64
}

func NewReporter(log logx.Logger) *Reporter {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Reporter{
		log:        log,
		names:      map[sched.TaskID]string{},
		limiters:   map[sched.TaskID]*rate.Limiter{},
		suppressed: map[sched.TaskID]uint64{},
	}
}

// Label attributes a task id to a job name for failure messages.
func (r *Reporter) Label(id sched.TaskID, name string) {
	if id == 0 {
		return
	}
	r.names[id] = name
}

// Forget drops all state for a task id. Call when a task is cancelled or a
// cron chain moves on to a new id.
func (r *Reporter) Forget(id sched.TaskID) {
	delete(r.names, id)
	delete(r.limiters, id)
	delete(r.suppressed, id)
}

// Report implements the scheduler's OnFailure contract.
func (r *Reporter) Report(f sched.Failure) {
	lim := r.limiters[f.Task]
	if lim == nil {
		lim = rate.NewLimiter(rate.Every(failureLogInterval), failureLogBurst)
		r.limiters[f.Task] = lim
	}
	if !lim.Allow() {
		r.suppressed[f.Task]++
		return
	}

	fields := []logx.Field{
		logx.Int64("task", int64(f.Task)),
		logx.String("kind", f.Kind.String()),
		logx.Err(f.Err),
	}
	if name, ok := r.names[f.Task]; ok {
		fields = append(fields, logx.String("job", name))
	}
	if n := r.suppressed[f.Task]; n > 0 {
		fields = append(fields, logx.Uint64("suppressed", n))
		r.suppressed[f.Task] = 0
	}
	r.log.Error("task failed", fields...)
}
