package triggers

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"church-automation/internal/common/errors"
	"church-automation/internal/common/logging"
)

// Sweeper is the engine surface the scheduler drives: re-entry of
// business-hours deferrals and escalation of unacknowledged actions.
type Sweeper interface {
	ResumeDeferredFirings(ctx context.Context)
	SweepEscalations(ctx context.Context)
}

// SchedulerConfig sets the sweep cadence.
type SchedulerConfig struct {
	// DeferredInterval is how often deferred firings are re-checked.
	DeferredInterval time.Duration
	// EscalationInterval is how often overdue acknowledgments are swept.
	EscalationInterval time.Duration
	// DailyCron is the cron spec for the daily source sweep
	// (birthdays, anniversaries, due follow-ups).
	DailyCron string
}

// Scheduler runs the periodic work of the automation engine on a cron
// runner: deferred-firing resume, escalation sweeps, and the registered
// daily sources.
type Scheduler struct {
	config  SchedulerConfig
	sweeper Sweeper
	sources []Source
	logger  logging.Logger

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(config SchedulerConfig, sweeper Sweeper, logger logging.Logger, sources ...Source) *Scheduler {
	if config.DeferredInterval <= 0 {
		config.DeferredInterval = time.Minute
	}
	if config.EscalationInterval <= 0 {
		config.EscalationInterval = time.Minute
	}
	if config.DailyCron == "" {
		config.DailyCron = "0 8 * * *"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		config:  config,
		sweeper: sweeper,
		sources: sources,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register adds a source to the daily sweep. Must be called before Start.
func (s *Scheduler) Register(source Source) {
	s.sources = append(s.sources, source)
}

// Start registers the cron entries and begins running them.
func (s *Scheduler) Start() error {
	if s.cron != nil {
		return errors.InternalError("scheduler already started", nil)
	}
	runner := cron.New(cron.WithChain(
		cron.Recover(cronLogger{s.logger}),
		cron.SkipIfStillRunning(cronLogger{s.logger}),
	))

	if _, err := runner.AddFunc(fmt.Sprintf("@every %s", s.config.DeferredInterval), func() {
		s.sweeper.ResumeDeferredFirings(s.ctx)
	}); err != nil {
		return errors.ConfigError(fmt.Sprintf("invalid deferred sweep interval: %v", err))
	}
	if _, err := runner.AddFunc(fmt.Sprintf("@every %s", s.config.EscalationInterval), func() {
		s.sweeper.SweepEscalations(s.ctx)
	}); err != nil {
		return errors.ConfigError(fmt.Sprintf("invalid escalation sweep interval: %v", err))
	}
	if _, err := runner.AddFunc(s.config.DailyCron, s.runSources); err != nil {
		return errors.ConfigError(fmt.Sprintf("invalid daily cron spec %q: %v", s.config.DailyCron, err))
	}

	s.cron = runner
	s.cron.Start()
	s.logger.Info("Scheduler started",
		logging.Duration("deferred_interval", s.config.DeferredInterval),
		logging.Duration("escalation_interval", s.config.EscalationInterval),
		logging.String("daily_cron", s.config.DailyCron),
		logging.Int("sources", len(s.sources)),
	)
	return nil
}

// Stop cancels in-flight sweeps and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cancel()
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// RunSourcesNow runs the registered sources immediately, outside the
// daily schedule. Used at startup to catch up on entries that came due
// while the process was down.
func (s *Scheduler) RunSourcesNow() {
	s.runSources()
}

func (s *Scheduler) runSources() {
	for _, source := range s.sources {
		if s.ctx.Err() != nil {
			return
		}
		if err := source.Emit(s.ctx); err != nil {
			s.logger.Error("Scheduled source failed", err,
				logging.String("source", source.Name()),
			)
		}
	}
}

// cronLogger adapts the application logger to the cron runner's
// logging interface.
type cronLogger struct {
	logger logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, logging.Any("cron", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, err, logging.Any("cron", keysAndValues))
}
