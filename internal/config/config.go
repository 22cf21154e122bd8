package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/civicnet/weeklymatch/internal/errors"
	"github.com/civicnet/weeklymatch/internal/matching"
	"github.com/civicnet/weeklymatch/internal/telemetry"
)

// Email providers understood by the notification layer.
const (
	EmailProviderSendGrid = "sendgrid"
	EmailProviderLog      = "log"
)

// Config holds runtime settings loaded from env vars.
type Config struct {
	HTTPAddr    string
	Environment string
	AppBaseURL  string
	CronSecret  string

	Database DatabaseConfig
	Redis    RedisConfig
	Email    EmailConfig
	Calendar CalendarConfig
	Matching MatchingConfig
	Log      telemetry.LogConfig
	OTel     telemetry.Config
}

// DatabaseConfig points at the Postgres instance holding profiles and match history.
type DatabaseConfig struct {
	URL  string
	Name string
}

// RedisConfig is optional; an empty URL disables the run lock.
type RedisConfig struct {
	URL string
}

// EmailConfig configures the outbound match email.
type EmailConfig struct {
	Provider     string
	APIKey       string
	APIHost      string
	FromAddress  string
	FromName     string
	SendInterval time.Duration
}

// CalendarConfig configures Google Calendar meeting provisioning.
type CalendarConfig struct {
	Enabled         bool
	CredentialsJSON string
	CredentialsFile string
	CalendarID      string
	TimeZone        string
	StartHour       int
	Duration        time.Duration
	LeadDays        int
}

// MatchingConfig holds cycle defaults; the trigger can override most of them per run.
type MatchingConfig struct {
	Cadence               string
	MaxMatchesPerWeek     int
	MinDaysSinceLastMatch int
	ExcludeRecentMatches  bool
	CreateMeetings        bool
	InactiveAfterDays     int
	LockTTL               time.Duration
	Weights               matching.Weights
}

// Load loads configuration from environment variables.
// Required for a real run: DATABASE_URL, and SENDGRID_API_KEY plus EMAIL_FROM when EMAIL_PROVIDER=sendgrid.
func Load() Config {
	return Config{
		HTTPAddr:    envOr("HTTP_ADDR", ":8080"),
		Environment: envOr("ENVIRONMENT", "development"),
		AppBaseURL:  strings.TrimRight(envOr("APP_BASE_URL", "http://localhost:3000"), "/"),
		CronSecret:  os.Getenv("CRON_SECRET"),
		Database: DatabaseConfig{
			URL:  os.Getenv("DATABASE_URL"),
			Name: envOr("DB_NAME", "postgres"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Email: EmailConfig{
			Provider:     envOr("EMAIL_PROVIDER", EmailProviderLog),
			APIKey:       os.Getenv("SENDGRID_API_KEY"),
			APIHost:      os.Getenv("SENDGRID_API_HOST"),
			FromAddress:  os.Getenv("EMAIL_FROM"),
			FromName:     envOr("EMAIL_FROM_NAME", "Civic Match"),
			SendInterval: time.Duration(envInt("EMAIL_SEND_INTERVAL_MS", 600)) * time.Millisecond,
		},
		Calendar: CalendarConfig{
			Enabled:         envBool("GOOGLE_CALENDAR_ENABLED", false),
			CredentialsJSON: os.Getenv("GOOGLE_CALENDAR_CREDENTIALS_JSON"),
			CredentialsFile: os.Getenv("GOOGLE_CALENDAR_CREDENTIALS_FILE"),
			CalendarID:      envOr("GOOGLE_CALENDAR_ID", "primary"),
			TimeZone:        envOr("MEETING_TIMEZONE", "America/New_York"),
			StartHour:       envInt("MEETING_START_HOUR", 12),
			Duration:        time.Duration(envInt("MEETING_DURATION_MINUTES", 30)) * time.Minute,
			LeadDays:        envInt("MEETING_LEAD_DAYS", 3),
		},
		Matching: MatchingConfig{
			Cadence:               envOr("MATCH_CADENCE", "biweekly"),
			MaxMatchesPerWeek:     envInt("MAX_MATCHES_PER_WEEK", 50),
			MinDaysSinceLastMatch: envInt("MIN_DAYS_SINCE_LAST_MATCH", 14),
			ExcludeRecentMatches:  envBool("EXCLUDE_RECENT_MATCHES", true),
			CreateMeetings:        envBool("CREATE_MEETINGS", false),
			InactiveAfterDays:     envInt("INACTIVE_AFTER_DAYS", 0),
			LockTTL:               time.Duration(envInt("CYCLE_LOCK_TTL_MINUTES", 30)) * time.Minute,
			Weights:               matching.DefaultWeights(),
		},
		Log: telemetry.LogConfig{
			Level:      telemetry.LogLevel(envOr("LOG_LEVEL", "info")),
			Format:     envOr("LOG_FORMAT", "json"),
			Output:     envOr("LOG_OUTPUT", "stdout"),
			Rotation:   envBool("LOG_ROTATION", false),
			MaxSize:    envInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: envInt("LOG_MAX_BACKUPS", 3),
			MaxAge:     envInt("LOG_MAX_AGE_DAYS", 28),
			Compress:   true,
		},
		OTel: telemetry.Config{
			ServiceName:    envOr("OTEL_SERVICE_NAME", "weeklymatch"),
			ServiceVersion: envOr("OTEL_SERVICE_VERSION", "1.0.0"),
			Environment:    envOr("ENVIRONMENT", "development"),
			OTLPEndpoint:   envOr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			Enabled:        envBool("OTEL_ENABLED", false),
		},
	}
}

// Validate checks that everything a cycle needs before touching any store is present.
func (c Config) Validate() error {
	if c.Database.URL == "" {
		return apperrors.NewConfigurationError("DATABASE_URL", "DATABASE_URL is required")
	}

	switch c.Email.Provider {
	case EmailProviderSendGrid:
		if c.Email.APIKey == "" {
			return apperrors.NewConfigurationError("SENDGRID_API_KEY", "SENDGRID_API_KEY is required for the sendgrid provider")
		}
		if c.Email.FromAddress == "" {
			return apperrors.NewConfigurationError("EMAIL_FROM", "EMAIL_FROM is required for the sendgrid provider")
		}
	case EmailProviderLog:
	default:
		return apperrors.NewConfigurationError("EMAIL_PROVIDER", "unknown email provider: "+c.Email.Provider)
	}

	if c.Calendar.Enabled && c.Calendar.CredentialsJSON == "" && c.Calendar.CredentialsFile == "" {
		return apperrors.NewConfigurationError("GOOGLE_CALENDAR_CREDENTIALS_JSON",
			"calendar credentials are required when GOOGLE_CALENDAR_ENABLED is set")
	}

	if c.Matching.Cadence != "weekly" && c.Matching.Cadence != "biweekly" {
		return apperrors.NewConfigurationError("MATCH_CADENCE", "MATCH_CADENCE must be weekly or biweekly")
	}

	return c.Matching.Weights.Validate()
}

// IsDevelopment returns true if running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
