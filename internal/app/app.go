package app

import (
	"context"
	"fmt"

	"github.com/civicnet/weeklymatch/internal/cache"
	"github.com/civicnet/weeklymatch/internal/config"
	"github.com/civicnet/weeklymatch/internal/cycle"
	"github.com/civicnet/weeklymatch/internal/database"
	"github.com/civicnet/weeklymatch/internal/history"
	"github.com/civicnet/weeklymatch/internal/meeting"
	"github.com/civicnet/weeklymatch/internal/monitoring"
	"github.com/civicnet/weeklymatch/internal/notification"
	"github.com/civicnet/weeklymatch/internal/profile"
	"github.com/civicnet/weeklymatch/internal/telemetry"
)

// App holds the wired collaborators shared by the HTTP service and the CLI
type App struct {
	Config       config.Config
	DB           *database.DB
	Redis        *cache.RedisService
	Profiles     *profile.Store
	History      *history.PostgresStore
	Metrics      *monitoring.CycleMetrics
	Health       *monitoring.HealthChecker
	Orchestrator *cycle.Orchestrator
}

// InitTelemetry installs the global logger and, when enabled, the OpenTelemetry providers.
// The returned function flushes telemetry and is safe to call when OTel is disabled.
func InitTelemetry(ctx context.Context, cfg config.Config) (func(), error) {
	if err := telemetry.InitGlobalLogger(&cfg.Log); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if !cfg.OTel.Enabled {
		return func() {}, nil
	}
	return telemetry.InitializeOpenTelemetry(ctx, &cfg.OTel)
}

// Build validates cfg, connects to Postgres (and Redis when configured) and wires the orchestrator.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := database.Open(ctx, database.Config{
		URL:          cfg.Database.URL,
		DBName:       cfg.Database.Name,
		Instrumented: cfg.OTel.Enabled,
	})
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:   cfg,
		DB:       db,
		Profiles: profile.NewStore(db.DB),
		History:  history.NewPostgresStore(db.DB),
		Health:   monitoring.NewHealthChecker(cfg.OTel.ServiceName, cfg.OTel.ServiceVersion),
	}
	a.Health.RegisterDatabaseCheck(db.Health)

	a.Metrics, err = monitoring.NewCycleMetrics()
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Redis.URL != "" {
		a.Redis, err = cache.NewRedisService(ctx, cache.RedisConfig{URL: cfg.Redis.URL, Instrumented: cfg.OTel.Enabled})
		if err != nil {
			telemetry.LogFromContext(ctx).WithError(err).Warn("Redis unavailable; running without cycle lock or summary cache")
			a.Redis = nil
		} else {
			a.Health.RegisterRedisCheck(a.Redis.HealthCheck)
		}
	}

	provisioner, err := NewProvisioner(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	dispatcher := notification.NewDispatcher(NewSender(cfg.Email), a.History,
		notification.NewPacer(cfg.Email.SendInterval), cfg.AppBaseURL)

	orchestratorCfg := cycle.Config{
		Profiles:          a.Profiles,
		History:           a.History,
		Dispatcher:        dispatcher,
		Metrics:           a.Metrics,
		Weights:           cfg.Matching.Weights,
		Cadence:           cfg.Matching.Cadence,
		InactiveAfterDays: cfg.Matching.InactiveAfterDays,
		LockTTL:           cfg.Matching.LockTTL,
	}
	if provisioner != nil {
		orchestratorCfg.Provisioner = provisioner
	}
	if a.Redis != nil {
		orchestratorCfg.Locker = a.Redis
		orchestratorCfg.Summaries = a.Redis
	}
	a.Orchestrator = cycle.NewOrchestrator(orchestratorCfg)

	return a, nil
}

// DefaultOptions turns the configured matching defaults into cycle options
func (a *App) DefaultOptions() cycle.Options {
	return DefaultOptions(a.Config.Matching)
}

func DefaultOptions(m config.MatchingConfig) cycle.Options {
	return cycle.Options{
		ExcludeRecentMatches:  m.ExcludeRecentMatches,
		MinDaysSinceLastMatch: m.MinDaysSinceLastMatch,
		MaxMatchesPerWeek:     m.MaxMatchesPerWeek,
		CreateMeetings:        m.CreateMeetings,
	}
}

// NewSender picks the email provider. Validate has already rejected unknown providers.
func NewSender(cfg config.EmailConfig) notification.Sender {
	if cfg.Provider == config.EmailProviderSendGrid {
		return notification.NewSendGridSender(notification.SendGridConfig{
			APIKey:      cfg.APIKey,
			FromAddress: cfg.FromAddress,
			FromName:    cfg.FromName,
			Host:        cfg.APIHost,
		})
	}
	return notification.NewLogSender()
}

// NewProvisioner returns nil when calendar integration is disabled.
func NewProvisioner(ctx context.Context, cfg config.Config) (*meeting.GoogleCalendarProvisioner, error) {
	if !cfg.Calendar.Enabled {
		return nil, nil
	}
	return meeting.NewGoogleCalendarProvisioner(ctx, meeting.GoogleConfig{
		CredentialsJSON: cfg.Calendar.CredentialsJSON,
		CredentialsFile: cfg.Calendar.CredentialsFile,
		CalendarID:      cfg.Calendar.CalendarID,
		AppBaseURL:      cfg.AppBaseURL,
		Schedule: meeting.Schedule{
			TimeZone:  cfg.Calendar.TimeZone,
			StartHour: cfg.Calendar.StartHour,
			Duration:  cfg.Calendar.Duration,
			LeadDays:  cfg.Calendar.LeadDays,
		},
	})
}

// Close releases connections
func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
}
