package sched

import (
	"math"
	"testing"
	"time"
)

func TestMetricsCountsRunsAndLateness(t *testing.T) {
	t.Parallel()
	s, clk := newTestScheduler(Config{Metrics: true})

	// Due 20ms ago with a 10ms threshold: late. The action itself takes 1ms.
	s.ScheduleAt(clk.now().Add(-20*time.Millisecond), func(TaskID) error {
		clk.advance(time.Millisecond)
		return nil
	}, nil)
	s.Tick()

	m := s.Metrics()
	if m.TotalRuns != 1 || m.LateRuns != 1 {
		t.Fatalf("TotalRuns=%d LateRuns=%d, want 1/1", m.TotalRuns, m.LateRuns)
	}
	if m.TotalRunTime != time.Millisecond {
		t.Fatalf("TotalRunTime = %v, want 1ms", m.TotalRunTime)
	}

	// An on-time run counts as a run but not as late.
	s.ScheduleAt(clk.now(), func(TaskID) error { return nil }, nil)
	s.Tick()
	m = s.Metrics()
	if m.TotalRuns != 2 || m.LateRuns != 1 {
		t.Fatalf("TotalRuns=%d LateRuns=%d, want 2/1", m.TotalRuns, m.LateRuns)
	}
}

func TestMetricsReset(t *testing.T) {
	t.Parallel()
	s, clk := newTestScheduler(Config{Metrics: true})

	s.ScheduleAt(clk.now().Add(-time.Second), func(TaskID) error {
		clk.advance(time.Millisecond)
		return nil
	}, nil)
	s.Tick()

	s.ResetMetrics()
	m := s.Metrics()
	if m.TotalRuns != 0 || m.LateRuns != 0 || m.TotalRunTime != 0 {
		t.Fatalf("metrics not zeroed: %+v", m)
	}

	clk.advance(50 * time.Millisecond)
	if w := s.Metrics().MeasurementWindow; w != 50*time.Millisecond {
		t.Fatalf("MeasurementWindow = %v, want 50ms", w)
	}
}

func TestMetricsDisabled(t *testing.T) {
	t.Parallel()
	s, clk := newTestScheduler(Config{})

	s.ScheduleAt(clk.now(), func(TaskID) error { return nil }, nil)
	s.Tick()
	if m := s.Metrics(); m.TotalRuns != 0 {
		t.Fatalf("metrics recorded while disabled: %+v", m)
	}
}

func TestRunTimeFraction(t *testing.T) {
	t.Parallel()

	m := Metrics{TotalRunTime: 25 * time.Millisecond, MeasurementWindow: 100 * time.Millisecond}
	if got := m.RunTimeFraction(); got != 0.25 {
		t.Fatalf("RunTimeFraction = %v, want 0.25", got)
	}
	if got := (Metrics{}).RunTimeFraction(); got != 0 {
		t.Fatalf("RunTimeFraction on zero window = %v, want 0", got)
	}
}

func TestCountersSaturate(t *testing.T) {
	t.Parallel()
	s, _ := newTestScheduler(Config{Metrics: true})

	s.totalRuns = math.MaxUint64
	s.lateRuns = math.MaxUint64
	s.totalRunTime = maxDuration - time.Millisecond

	s.noteRun(5*time.Millisecond, true)

	if s.totalRuns != math.MaxUint64 {
		t.Fatalf("totalRuns wrapped: %d", s.totalRuns)
	}
	if s.lateRuns != math.MaxUint64 {
		t.Fatalf("lateRuns wrapped: %d", s.lateRuns)
	}
	if s.totalRunTime != maxDuration {
		t.Fatalf("totalRunTime = %v, want saturated max", s.totalRunTime)
	}
}
