package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	sdnotify "github.com/coreos/go-systemd/v22/daemon"

	"rhythm/internal/config"
	"rhythm/internal/history"
	"rhythm/internal/jobs"
	"rhythm/pkg/logx"
	"rhythm/pkg/sched"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./rhythm.yml", "path to config yaml")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	mgr := config.NewManager(cfgPath, logx.NewConsole("info"))
	cfg, err := mgr.Load()
	if err != nil {
		return err
	}

	logSvc, log := logx.New(cfg.Log.Logx())
	defer logSvc.Close()

	hist, err := history.Open(historyConfig(cfg), log)
	if err != nil {
		return err
	}
	if hist != nil {
		defer hist.Close()
	}

	schedCfg, err := schedConfig(cfg)
	if err != nil {
		return err
	}
	rep := jobs.NewReporter(log)
	schedCfg.OnFailure = rep.Report
	core := sched.New(schedCfg, log)

	svc := jobs.New(core, hist, rep, log)
	svc.ReloadHook = func(c *config.Config) {
		logSvc.Apply(c.Log.Logx())
	}

	go func() {
		if werr := mgr.Watch(ctx); werr != nil && ctx.Err() == nil {
			log.Warn("config watch ended", logx.Err(werr))
		}
	}()

	if err := svc.Start(ctx, cfg, mgr.Updates()); err != nil {
		return err
	}

	_, _ = sdnotify.SdNotify(false, sdnotify.SdNotifyReady)
	defer func() { _, _ = sdnotify.SdNotify(false, sdnotify.SdNotifyStopping) }()

	log.Info("rhythmd started",
		logx.String("config", cfgPath),
		logx.Int("jobs", len(cfg.Jobs)),
		logx.Bool("metrics", cfg.Scheduler.Metrics),
	)

	exhausted := core.Loop(ctx)
	log.Info("rhythmd exiting", logx.Bool("exhausted", exhausted))
	return nil
}

func schedConfig(cfg *config.Config) (sched.Config, error) {
	late, err := config.ParseDurationField("scheduler.late_threshold", cfg.Scheduler.LateThreshold)
	if err != nil {
		return sched.Config{}, err
	}
	idle, err := config.ParseDurationField("scheduler.idle_sleep", cfg.Scheduler.IdleSleep)
	if err != nil {
		return sched.Config{}, err
	}
	return sched.Config{
		LateThreshold: late,
		IdleSleep:     idle,
		Metrics:       cfg.Scheduler.Metrics,
	}, nil
}

func historyConfig(cfg *config.Config) history.Config {
	// Validated at load time; a parse error here cannot happen.
	busy, _ := config.ParseDurationField("history.busy_timeout", cfg.History.BusyTimeout)
	return history.Config{
		Driver:      cfg.History.Driver,
		Path:        cfg.History.Path,
		BusyTimeout: busy,
		MaxRecords:  cfg.History.MaxRecords,
	}
}
