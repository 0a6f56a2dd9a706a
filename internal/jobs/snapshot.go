package jobs

import (
	"sort"
	"time"

	"rhythm/pkg/logx"
	"rhythm/pkg/sched"
)

type JobInfo struct {
	Name      string
	Trigger   string
	Task      sched.TaskID
	Runs      uint64
	LastRun   time.Time
	LastError string
}

type Snapshot struct {
	Jobs       []JobInfo
	TaskCount  int
	NextRun    time.Time
	NextRunSet bool
	Metrics    sched.Metrics
}

func (s *Service) Snapshot() Snapshot {
	items := make([]JobInfo, 0, len(s.jobs))
	for _, d := range s.jobs {
		items = append(items, JobInfo{
			Name:      d.name,
			Trigger:   d.spec,
			Task:      d.id,
			Runs:      d.runs,
			LastRun:   d.lastRun,
			LastError: d.lastErr,
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })

	next, ok := s.core.NextTaskTime()
	return Snapshot{
		Jobs:       items,
		TaskCount:  s.core.TaskCount(),
		NextRun:    next,
		NextRunSet: ok,
		Metrics:    s.core.Metrics(),
	}
}

// logStatus is the action behind scheduler.status_interval.
func (s *Service) logStatus() {
	snap := s.Snapshot()

	fields := []logx.Field{
		logx.Int("jobs", len(snap.Jobs)),
		logx.Int("tasks", snap.TaskCount),
		logx.Uint64("runs", snap.Metrics.TotalRuns),
		logx.Uint64("late_runs", snap.Metrics.LateRuns),
		logx.Float64("busy_fraction", snap.Metrics.RunTimeFraction()),
	}
	if until, ok := s.core.TimeUntilNextTask(); ok {
		fields = append(fields, logx.Duration("next_in", until))
	}
	s.log.Info("scheduler status", fields...)

	for _, j := range snap.Jobs {
		if j.LastError == "" {
			continue
		}
		s.log.Warn("job unhealthy",
			logx.String("job", j.Name),
			logx.String("trigger", j.Trigger),
			logx.Time("last_run", j.LastRun),
			logx.String("last_error", j.LastError),
		)
	}
}
