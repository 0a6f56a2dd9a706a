package sched

import (
	"context"
	"testing"
	"time"

	logx "rhythm/pkg/logx"
)

// The loop tests run against the real clock with short intervals; keep the
// margins generous enough for a loaded CI box.

func TestLoopEndToEnd(t *testing.T) {
	t.Parallel()
	s := New(Config{IdleSleep: 20 * time.Millisecond}, logx.Nop())

	var aRuns, cRuns, dRuns int

	// A fires at 200ms, 400ms, ..., 1000ms.
	if _, err := s.ScheduleEvery(200*time.Millisecond, func(TaskID) error {
		aRuns++
		return nil
	}, EveryOptions{}); err != nil {
		t.Fatalf("ScheduleEvery(A): %v", err)
	}

	// B fires once at 100ms and registers C (due 300ms, 500ms, ..., 900ms).
	if _, err := s.ScheduleAfter(100*time.Millisecond, func(TaskID) error {
		_, err := s.ScheduleEvery(200*time.Millisecond, func(TaskID) error {
			cRuns++
			return nil
		}, EveryOptions{})
		return err
	}, nil); err != nil {
		t.Fatalf("ScheduleAfter(B): %v", err)
	}

	// D fires once at 1000ms and stops the loop.
	if _, err := s.ScheduleAfter(1000*time.Millisecond, func(TaskID) error {
		dRuns++
		s.StopLoop()
		return nil
	}, nil); err != nil {
		t.Fatalf("ScheduleAfter(D): %v", err)
	}

	if s.Loop(context.Background()) {
		t.Fatal("Loop returned true after StopLoop")
	}

	if aRuns != 5 {
		t.Errorf("A ran %d times, want 5", aRuns)
	}
	if cRuns != 4 {
		t.Errorf("C ran %d times, want 4", cRuns)
	}
	if dRuns != 1 {
		t.Errorf("D ran %d times, want 1", dRuns)
	}
}

func TestLoopExitsOnExhaustion(t *testing.T) {
	t.Parallel()
	s := New(Config{IdleSleep: 10 * time.Millisecond}, logx.Nop())

	runs := 0
	if _, err := s.ScheduleAfter(10*time.Millisecond, func(TaskID) error {
		runs++
		return nil
	}, nil); err != nil {
		t.Fatalf("ScheduleAfter: %v", err)
	}

	if !s.Loop(context.Background()) {
		t.Fatal("Loop returned false on natural exhaustion, want true")
	}
	if runs != 1 {
		t.Fatalf("runs = %d, want 1", runs)
	}
}

func TestLoopStopsOnContextCancel(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())

	if _, err := s.ScheduleEvery(20*time.Millisecond, func(TaskID) error { return nil }, EveryOptions{}); err != nil {
		t.Fatalf("ScheduleEvery: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	start := time.Now()
	if s.Loop(ctx) {
		t.Fatal("Loop returned true after context cancellation")
	}
	if took := time.Since(start); took > 2*time.Second {
		t.Fatalf("Loop took %v to honor cancellation", took)
	}
}

func TestStopLoopWakesSleepingLoop(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())

	// The only task is far in the future, so the loop goes into a long sleep.
	if _, err := s.ScheduleAfter(time.Hour, func(TaskID) error { return nil }, nil); err != nil {
		t.Fatalf("ScheduleAfter: %v", err)
	}

	go func() {
		time.Sleep(30 * time.Millisecond)
		s.StopLoop()
	}()

	start := time.Now()
	if s.Loop(context.Background()) {
		t.Fatal("Loop returned true after StopLoop")
	}
	if took := time.Since(start); took > 5*time.Second {
		t.Fatalf("StopLoop did not wake the loop promptly (%v)", took)
	}
}
