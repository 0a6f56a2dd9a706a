package jobs

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"rhythm/internal/config"
	"rhythm/internal/history"
	"rhythm/pkg/logx"
	"rhythm/pkg/sched"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

// newTestService wires a service onto a scheduler core driven by a fake
// clock. Commands still exec for real; tests use tiny coreutils binaries.
func newTestService(t *testing.T, hist history.Store) (*Service, *sched.Scheduler, *fakeClock) {
	t.Helper()
	clk := &fakeClock{t: time.Now()}
	rep := NewReporter(logx.Nop())
	core := sched.New(sched.Config{Now: clk.now, OnFailure: rep.Report}, logx.Nop())
	svc := New(core, hist, rep, logx.Nop())
	svc.now = clk.now
	svc.ctx = context.Background()
	return svc, core, clk
}

func jobList(jobs ...config.JobConfig) *config.Config {
	cfg := config.Default()
	cfg.Jobs = jobs
	return cfg
}

func TestApplyRegistersJobs(t *testing.T) {
	t.Parallel()
	svc, core, _ := newTestService(t, nil)

	cfg := jobList(
		config.JobConfig{Name: "a", Every: "1h", Command: []string{"true"}},
		config.JobConfig{Name: "b", Cron: "0 3 * * *", Command: []string{"true"}},
	)
	if err := svc.Apply(cfg); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	snap := svc.Snapshot()
	if len(snap.Jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(snap.Jobs))
	}
	if core.TaskCount() != 2 {
		t.Fatalf("TaskCount = %d, want 2", core.TaskCount())
	}
	if snap.Jobs[0].Name != "a" || snap.Jobs[0].Trigger != "every 1h" {
		t.Fatalf("unexpected first job: %+v", snap.Jobs[0])
	}
}

func TestApplyReconcilesChanges(t *testing.T) {
	t.Parallel()
	svc, core, _ := newTestService(t, nil)

	if err := svc.Apply(jobList(
		config.JobConfig{Name: "keep", Every: "1h", Command: []string{"true"}},
		config.JobConfig{Name: "drop", Every: "1h", Command: []string{"true"}},
		config.JobConfig{Name: "change", Every: "1h", Command: []string{"true"}},
	)); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	keepID := svc.jobs["keep"].id
	changeID := svc.jobs["change"].id

	if err := svc.Apply(jobList(
		config.JobConfig{Name: "keep", Every: "1h", Command: []string{"true"}},
		config.JobConfig{Name: "change", Every: "30m", Command: []string{"true"}},
		config.JobConfig{Name: "new", Every: "1h", Command: []string{"true"}},
	)); err != nil {
		t.Fatalf("second Apply: %v", err)
	}

	if got := svc.jobs["keep"].id; got != keepID {
		t.Fatalf("unchanged job was re-registered: id %d -> %d", keepID, got)
	}
	if got := svc.jobs["change"].id; got == changeID {
		t.Fatal("changed job kept its old registration")
	}
	if _, ok := svc.jobs["drop"]; ok {
		t.Fatal("removed job still present")
	}
	if _, ok := svc.jobs["new"]; !ok {
		t.Fatal("new job missing")
	}

	// Cancelled records purge on the next tick; afterwards the store holds
	// exactly the three live registrations.
	core.Tick()
	if core.TaskCount() != 3 {
		t.Fatalf("TaskCount = %d after reconcile, want 3", core.TaskCount())
	}
}

func TestEveryJobRunsAndRecordsHistory(t *testing.T) {
	t.Parallel()
	hist, err := history.Open(history.Config{
		Driver: "file",
		Path:   filepath.Join(t.TempDir(), "runs.jsonl"),
	}, logx.Nop())
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	defer hist.Close()

	svc, core, clk := newTestService(t, hist)
	if err := svc.Apply(jobList(
		config.JobConfig{Name: "ok", Every: "10ms", RunImmediately: true, Command: []string{"true"}},
		config.JobConfig{Name: "bad", Every: "10ms", RunImmediately: true, Command: []string{"false"}},
	)); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	core.Tick()
	clk.advance(10 * time.Millisecond)
	core.Tick()

	snap := svc.Snapshot()
	if snap.Jobs[1].Runs != 2 {
		t.Fatalf("ok job runs = %d, want 2", snap.Jobs[1].Runs)
	}
	if snap.Jobs[0].LastError == "" {
		t.Fatal("failing job has no LastError")
	}

	recs, err := hist.RecentRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(recs) != 4 {
		t.Fatalf("history records = %d, want 4", len(recs))
	}
	var failures int
	for _, r := range recs {
		if r.Error != "" {
			failures++
		}
	}
	if failures != 2 {
		t.Fatalf("failed records = %d, want 2", failures)
	}
}

func TestCronJobChains(t *testing.T) {
	t.Parallel()
	svc, core, clk := newTestService(t, nil)

	if err := svc.Apply(jobList(
		config.JobConfig{Name: "minutely", Cron: "* * * * *", Command: []string{"true"}},
	)); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	firstID := svc.jobs["minutely"].id

	// Jump past the next activation; the run re-registers the following one.
	clk.advance(61 * time.Second)
	core.Tick()

	def := svc.jobs["minutely"]
	if def == nil {
		t.Fatal("cron job disappeared")
	}
	if def.runs != 1 {
		t.Fatalf("runs = %d, want 1", def.runs)
	}
	if def.id == firstID {
		t.Fatal("cron chain did not register a fresh task")
	}
	if core.TaskCount() != 1 {
		t.Fatalf("TaskCount = %d, want 1 (the chained activation)", core.TaskCount())
	}

	// The chained task was registered mid-tick and must not have run in the
	// same pass even though the clock had already passed its minute boundary
	// check; run it by crossing the next boundary.
	clk.advance(61 * time.Second)
	core.Tick()
	if def.runs != 2 {
		t.Fatalf("runs = %d after second boundary, want 2", def.runs)
	}
}

func TestOneShotJobRetires(t *testing.T) {
	t.Parallel()
	svc, core, clk := newTestService(t, nil)

	if err := svc.Apply(jobList(
		config.JobConfig{Name: "later", After: "50ms", Command: []string{"true"}},
	)); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(svc.jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(svc.jobs))
	}

	clk.advance(50 * time.Millisecond)
	core.Tick()

	if len(svc.jobs) != 0 {
		t.Fatalf("one-shot job not retired: %d left", len(svc.jobs))
	}
	if core.TaskCount() != 0 {
		t.Fatalf("TaskCount = %d, want 0", core.TaskCount())
	}
}

func TestJobTimeout(t *testing.T) {
	t.Parallel()
	svc, core, clk := newTestService(t, nil)

	if err := svc.Apply(jobList(
		config.JobConfig{Name: "slow", Every: "1h", RunImmediately: true, Timeout: "20ms", Command: []string{"sleep", "5"}},
	)); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	_ = clk

	start := time.Now()
	core.Tick()
	if took := time.Since(start); took > 5*time.Second {
		t.Fatalf("timeout did not bound the run (%v)", took)
	}
	if lastErr := svc.jobs["slow"].lastErr; lastErr == "" {
		t.Fatal("timed-out job has no LastError")
	}
}

func TestStartPollsConfigUpdates(t *testing.T) {
	t.Parallel()
	svc, core, clk := newTestService(t, nil)

	updates := make(chan *config.Config, 1)
	reloads := 0
	svc.ReloadHook = func(*config.Config) { reloads++ }

	if err := svc.Start(context.Background(), jobList(
		config.JobConfig{Name: "a", Every: "1h", Command: []string{"true"}},
	), updates); err != nil {
		t.Fatalf("Start: %v", err)
	}

	updates <- jobList(
		config.JobConfig{Name: "b", Every: "1h", Command: []string{"true"}},
	)

	clk.advance(updatePollInterval + time.Millisecond)
	core.Tick()

	if reloads != 1 {
		t.Fatalf("reload hook ran %d times, want 1", reloads)
	}
	if _, ok := svc.jobs["b"]; !ok {
		t.Fatal("updated config not applied")
	}
	if _, ok := svc.jobs["a"]; ok {
		t.Fatal("stale job survived the update")
	}
}

func TestCompileRejectsBadCron(t *testing.T) {
	t.Parallel()
	svc, _, _ := newTestService(t, nil)
	if _, err := svc.compile(config.JobConfig{Name: "x", Cron: "not a cron", Command: []string{"true"}}, 0); err == nil {
		t.Fatal("expected error for invalid cron spec")
	}
}
