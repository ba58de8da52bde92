// Package app assembles the application: storage, delivery channels,
// the rule engine, the scheduler and the HTTP API.
package app

import (
	"time"

	"church-automation/internal/auth"
	"church-automation/internal/channels"
	"church-automation/internal/common/errors"
	"church-automation/internal/common/logging"
	"church-automation/internal/config"
	"church-automation/internal/engine"
	"church-automation/internal/handlers"
	"church-automation/internal/hours"
	"church-automation/internal/storage"
	"church-automation/internal/storage/postgres"
	"church-automation/internal/storage/sqlite"
	"church-automation/internal/triggers"
)

// App holds all the application dependencies
type App struct {
	Config    *config.Config
	Storage   storage.Storage
	Registry  *channels.Registry
	Engine    *engine.Engine
	Scheduler *triggers.Scheduler
	Visitors  *triggers.VisitorService
	Prayers   *triggers.PrayerService
	Members   *triggers.MemberService
	Auth      *auth.Auth
	Handlers  *handlers.Handlers
	Logger    logging.Logger
}

// New creates a new application instance with all dependencies
func New(cfg *config.Config) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "app"}),
	}

	if err := app.initializeStorage(); err != nil {
		return nil, err
	}
	app.initializeChannels()
	app.initializeEngine()
	app.initializeTriggers()

	app.Auth = auth.New(cfg.JWTSecret, 24*time.Hour)
	app.Handlers = handlers.New(app.Storage, app.Engine, app.Visitors, app.Prayers, app.Members, app.Auth, cfg)

	return app, nil
}

func (app *App) initializeStorage() error {
	switch app.Config.DatabaseType {
	case "sqlite":
		adapter, err := sqlite.NewAdapter(app.Config.DatabasePath, app.Logger)
		if err != nil {
			return err
		}
		app.Storage = adapter
	case "postgres", "postgresql":
		adapter, err := postgres.NewAdapter(app.Config.PostgresDSN(), app.Logger)
		if err != nil {
			return err
		}
		app.Storage = adapter
	default:
		return errors.ConfigError("unsupported database type: " + app.Config.DatabaseType)
	}
	app.Logger.Info("Storage initialized",
		logging.Field{Key: "type", Value: app.Config.DatabaseType})
	return nil
}

// initializeChannels builds the delivery channel registry. Channels
// talking to external providers are wrapped in a circuit breaker;
// push and follow-up write to local storage and are not.
func (app *App) initializeChannels() {
	var chans []channels.Channel

	email := channels.NewEmailChannel(app.Config, app.Logger)
	chans = append(chans, channels.WithBreaker(email, app.Logger))

	twilio := channels.NewTwilioClient(app.Config, app.Logger)
	if twilio.Configured() {
		chans = append(chans,
			channels.WithBreaker(channels.NewSMSChannel(twilio, app.Config.TwilioFromPhone), app.Logger),
			channels.WithBreaker(channels.NewWhatsAppChannel(twilio, app.Config.TwilioWhatsAppFrom), app.Logger),
			channels.WithBreaker(channels.NewPhoneChannel(twilio, app.Config.TwilioFromPhone), app.Logger),
		)
	} else {
		app.Logger.Warn("Twilio not configured, SMS, WhatsApp and voice channels disabled")
	}

	chans = append(chans,
		channels.NewPushChannel(app.Storage, app.Storage, app.Logger),
		channels.NewFollowUpChannel(app.Storage),
	)

	app.Registry = channels.NewRegistry(chans...)
}

func (app *App) initializeEngine() {
	app.Engine = engine.NewEngine(app.Storage, app.Registry, hours.SystemClock{}, engine.Options{
		ChannelTimeout: app.Config.ChannelTimeout,
		EscalationDelays: engine.EscalationDelays{
			Urgent: app.Config.EscalationDelayUrgent,
			High:   app.Config.EscalationDelayHigh,
			Normal: app.Config.EscalationDelayNormal,
		},
		Logger: app.Logger,
	})
}

func (app *App) initializeTriggers() {
	app.Prayers = triggers.NewPrayerService(app.Engine, app.Logger)
	app.Visitors = triggers.NewVisitorService(app.Engine, app.Prayers, app.Logger)
	app.Members = triggers.NewMemberService(app.Storage, app.Engine, hours.SystemClock{}, app.Logger)

	followUps := triggers.NewFollowUpSource(app.Storage, app.Engine, hours.SystemClock{}, app.Logger)
	memberDates := triggers.NewMemberDatesSource(app.Storage, app.Engine, hours.SystemClock{}, app.Logger)
	app.Scheduler = triggers.NewScheduler(triggers.SchedulerConfig{
		DeferredInterval:   app.Config.DeferredSweepInterval,
		EscalationInterval: app.Config.EscalationSweepInterval,
		DailyCron:          app.Config.BirthdaySweepCron,
	}, app.Engine, app.Logger, followUps, memberDates)
}

// Cleanup releases resources on shutdown.
func (app *App) Cleanup() {
	if app.Scheduler != nil {
		app.Scheduler.Stop()
	}
	if app.Engine != nil {
		app.Engine.Shutdown()
		app.Engine.Wait()
	}
	if app.Storage != nil {
		if err := app.Storage.Close(); err != nil {
			app.Logger.Warn("Error closing storage",
				logging.Field{Key: "error", Value: err.Error()})
		}
	}
}
