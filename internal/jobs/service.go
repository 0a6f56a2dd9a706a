package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"rhythm/internal/config"
	"rhythm/internal/history"
	"rhythm/pkg/logx"
	"rhythm/pkg/sched"
)

func New(core *sched.Scheduler, hist history.Store, rep *Reporter, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:  log,
		core: core,
		hist: hist,
		rep:  rep,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		jobs:   map[string]*jobDef{},
		now:    time.Now,
	}
}

// Start applies the initial config and, when an updates channel is given,
// registers the recurring poll task that drains it. The caller then drives
// the scheduler loop itself.
func (s *Service) Start(ctx context.Context, cfg *config.Config, updates <-chan *config.Config) error {
	s.ctx = ctx
	if err := s.Apply(cfg); err != nil {
		return err
	}
	if updates != nil {
		if _, err := s.core.ScheduleEvery(updatePollInterval, s.pollUpdates(updates), sched.EveryOptions{SkipIfLate: true}); err != nil {
			return err
		}
	}
	s.log.Info("jobs service started", logx.Int("jobs", len(s.jobs)))
	return nil
}

// Apply reconciles the registered job set with the config: unchanged jobs
// keep their registration, changed ones are cancelled and re-added.
func (s *Service) Apply(cfg *config.Config) error {
	desired := make(map[string]*jobDef, len(cfg.Jobs))
	order := make([]string, 0, len(cfg.Jobs))
	for i, jc := range cfg.Jobs {
		def, err := s.compile(jc, i)
		if err != nil {
			return err
		}
		desired[def.name] = def
		order = append(order, def.name)
	}

	for name, cur := range s.jobs {
		want, ok := desired[name]
		if ok && cur.same(want) {
			// Keep the live registration and its runtime state.
			continue
		}
		s.unregister(cur)
		delete(s.jobs, name)
		if ok {
			s.log.Info("job changed; re-registering", logx.String("job", name))
		} else {
			s.log.Info("job removed", logx.String("job", name))
		}
	}

	for _, name := range order {
		if _, ok := s.jobs[name]; ok {
			continue
		}
		def := desired[name]
		if err := s.register(def); err != nil {
			s.log.Error("job register failed", logx.String("job", name), logx.Err(err))
			continue
		}
		s.jobs[name] = def
		s.log.Debug("job registered",
			logx.String("job", name),
			logx.String("trigger", def.spec),
			logx.Duration("timeout", def.timeout),
		)
	}

	return s.applyStatus(cfg.Scheduler.StatusInterval)
}

func (s *Service) compile(jc config.JobConfig, idx int) (*jobDef, error) {
	path := fmt.Sprintf("jobs[%d]", idx)

	def := &jobDef{
		name:           jc.Name,
		command:        jc.Command,
		runImmediately: jc.RunImmediately,
		skipIfLate:     jc.SkipIfLate,
	}

	var err error
	def.timeout, err = config.ParseDurationOrDefault(path+".timeout", jc.Timeout, defaultJobTimeout)
	if err != nil {
		return nil, err
	}

	switch {
	case jc.Every != "":
		def.kind = jobEvery
		def.every, err = config.ParseDurationField(path+".every", jc.Every)
		def.spec = "every " + jc.Every
	case jc.Cron != "":
		def.kind = jobCron
		def.schedule, err = s.parser.Parse(jc.Cron)
		if err != nil {
			err = fmt.Errorf("%s.cron: %w", path, err)
		}
		def.spec = "cron " + jc.Cron
	case jc.At != "":
		def.kind = jobAt
		def.at, err = config.ParseTimeField(path+".at", jc.At)
		def.spec = "at " + jc.At
	case jc.After != "":
		def.kind = jobAfter
		def.after, err = config.ParseDurationField(path+".after", jc.After)
		def.spec = "after " + jc.After
	default:
		err = fmt.Errorf("%s (%s): no trigger", path, jc.Name)
	}
	if err != nil {
		return nil, err
	}
	return def, nil
}

func (s *Service) register(def *jobDef) error {
	switch def.kind {
	case jobEvery:
		id, err := s.core.ScheduleEvery(def.every, s.runAction(def), sched.EveryOptions{
			Cleanup:        s.retireAction(def),
			RunImmediately: def.runImmediately,
			SkipIfLate:     def.skipIfLate,
		})
		if err != nil {
			return err
		}
		def.id = id
	case jobCron:
		if !s.registerCron(def) {
			return fmt.Errorf("cron spec %q yields no future activation", def.spec)
		}
	case jobAt:
		def.id = s.core.ScheduleAt(def.at, s.runAction(def), s.retireAction(def))
	case jobAfter:
		id, err := s.core.ScheduleAfter(def.after, s.runAction(def), s.retireAction(def))
		if err != nil {
			return err
		}
		def.id = id
	}
	s.rep.Label(def.id, def.name)
	return nil
}

// registerCron schedules the next cron activation as a one-shot task whose
// action chains the one after it. Reports false when the expression has no
// future activation.
func (s *Service) registerCron(def *jobDef) bool {
	next := def.schedule.Next(s.now())
	if next.IsZero() {
		return false
	}
	s.rep.Forget(def.id)
	def.id = s.core.ScheduleAt(next, func(id sched.TaskID) error {
		err := s.runJob(def, id)
		// Chain the next activation. Registration from inside an action is
		// legal; the new task becomes eligible on the next tick.
		if s.jobs[def.name] == def && !s.registerCron(def) {
			s.log.Warn("cron job has no further activations", logx.String("job", def.name))
			delete(s.jobs, def.name)
		}
		return err
	}, nil)
	s.rep.Label(def.id, def.name)
	return true
}

func (s *Service) unregister(def *jobDef) {
	s.core.CancelTask(def.id)
	s.rep.Forget(def.id)
}

// runAction adapts a job into a scheduler task action.
func (s *Service) runAction(def *jobDef) sched.TaskFn {
	return func(id sched.TaskID) error {
		return s.runJob(def, id)
	}
}

// retireAction is the task cleanup: it drops a finished or cancelled
// one-shot job from the live set. Cleanup runs exactly once per task, so the
// map delete cannot race a re-registration of the same name.
func (s *Service) retireAction(def *jobDef) sched.TaskFn {
	return func(id sched.TaskID) error {
		s.rep.Forget(id)
		if s.jobs[def.name] == def {
			delete(s.jobs, def.name)
			s.log.Debug("job retired", logx.String("job", def.name))
		}
		return nil
	}
}

func (s *Service) runJob(def *jobDef, id sched.TaskID) error {
	start := time.Now()
	err := s.execute(def)
	took := time.Since(start)

	def.runs++
	def.lastRun = start
	def.lastErr = ""
	if err != nil {
		def.lastErr = err.Error()
	}

	s.recordRun(history.RunRecord{
		At:       start,
		Job:      def.name,
		Task:     int64(id),
		Duration: took,
		Error:    def.lastErr,
	})

	if err != nil {
		return fmt.Errorf("job %s: %w", def.name, err)
	}
	s.log.Debug("job ok", logx.String("job", def.name), logx.Duration("took", took))
	return nil
}

func (s *Service) recordRun(rec history.RunRecord) {
	if s.hist == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.hist.AppendRun(ctx, rec); err != nil {
		s.log.Warn("history append failed", logx.String("job", rec.Job), logx.Err(err))
	}
}

// pollUpdates drains the config manager's updates channel from the scheduler
// goroutine, keeping all job mutations on the single owning thread.
func (s *Service) pollUpdates(updates <-chan *config.Config) sched.TaskFn {
	return func(sched.TaskID) error {
		for {
			select {
			case cfg := <-updates:
				if s.ReloadHook != nil {
					s.ReloadHook(cfg)
				}
				if err := s.Apply(cfg); err != nil {
					s.log.Warn("config apply failed; keeping previous job set", logx.Err(err))
				}
			default:
				return nil
			}
		}
	}
}

func (s *Service) applyStatus(raw string) error {
	every, err := config.ParseDurationField("scheduler.status_interval", raw)
	if err != nil {
		return err
	}
	if every == s.statusEvery {
		return nil
	}
	if s.statusTask != 0 {
		s.core.CancelTask(s.statusTask)
		s.statusTask = 0
	}
	s.statusEvery = every
	if every <= 0 {
		return nil
	}
	id, err := s.core.ScheduleEvery(every, func(sched.TaskID) error {
		s.logStatus()
		return nil
	}, sched.EveryOptions{SkipIfLate: true})
	if err != nil {
		return err
	}
	s.statusTask = id
	return nil
}
