package sched

import (
	"math"
	"time"
)

// Metrics is a snapshot of run accounting since the last reset. Counters
// saturate at their maximum instead of wrapping.
type Metrics struct {
	TotalRuns         uint64
	LateRuns          uint64
	TotalRunTime      time.Duration
	MeasurementWindow time.Duration
}

// RunTimeFraction is the share of the measurement window spent running
// tasks, 0 when the window is empty.
func (m Metrics) RunTimeFraction() float64 {
	if m.MeasurementWindow <= 0 {
		return 0
	}
	return float64(m.TotalRunTime) / float64(m.MeasurementWindow)
}

// Metrics returns the current snapshot. The measurement window is the
// wall-clock time since New or the last ResetMetrics.
func (s *Scheduler) Metrics() Metrics {
	return Metrics{
		TotalRuns:         s.totalRuns,
		LateRuns:          s.lateRuns,
		TotalRunTime:      s.totalRunTime,
		MeasurementWindow: s.now().Sub(s.metricsStart),
	}
}

// ResetMetrics zeroes the counters and restarts the measurement window. It
// does not touch scheduled tasks.
func (s *Scheduler) ResetMetrics() {
	s.totalRuns = 0
	s.lateRuns = 0
	s.totalRunTime = 0
	s.metricsStart = s.now()
}

const maxDuration = time.Duration(math.MaxInt64)

func (s *Scheduler) noteRun(took time.Duration, late bool) {
	if s.totalRuns < math.MaxUint64 {
		s.totalRuns++
	}
	if late && s.lateRuns < math.MaxUint64 {
		s.lateRuns++
	}
	if maxDuration-s.totalRunTime > took {
		s.totalRunTime += took
	} else {
		s.totalRunTime = maxDuration
	}
}
