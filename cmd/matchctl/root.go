package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/civicnet/weeklymatch/internal/app"
	"github.com/civicnet/weeklymatch/internal/config"
	"github.com/civicnet/weeklymatch/internal/telemetry"
)

const appName = "matchctl"

var (
	cfgFile string

	rootCmd = &cobra.Command{
		Use:           appName,
		Short:         "matchctl runs and inspects the weekly civic match cycle",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "optional config file overriding matching settings (yaml, json or toml)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().Bool("log-json", false, "json format for logging")

	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("log_json", rootCmd.PersistentFlags().Lookup("log-json"))
}

// loadConfig layers the .env file, the environment and then the "matching" section of the
// optional config file.
func loadConfig() (config.Config, error) {
	_ = godotenv.Load()
	cfg := config.Load()

	v := viper.GetViper()
	v.SetEnvPrefix("MATCHCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("reading config file %s: %w", cfgFile, err)
		}
		if err := applyFile(v, &cfg); err != nil {
			return cfg, err
		}
	}

	if v.GetBool("debug") {
		cfg.Log.Level = telemetry.DebugLevel
	}
	if v.GetBool("log_json") {
		cfg.Log.Format = "json"
	} else {
		cfg.Log.Format = "text"
	}
	// stdout carries command output
	cfg.Log.Output = "stderr"
	cfg.Log.Rotation = false
	return cfg, nil
}

// fileMatching mirrors the overridable part of config.MatchingConfig
type fileMatching struct {
	Cadence               *string `mapstructure:"cadence"`
	MaxMatchesPerWeek     *int    `mapstructure:"max_matches_per_week"`
	MinDaysSinceLastMatch *int    `mapstructure:"min_days_since_last_match"`
	ExcludeRecentMatches  *bool   `mapstructure:"exclude_recent_matches"`
	CreateMeetings        *bool   `mapstructure:"create_meetings"`
	InactiveAfterDays     *int    `mapstructure:"inactive_after_days"`
}

func applyFile(v *viper.Viper, cfg *config.Config) error {
	var m fileMatching
	if err := v.UnmarshalKey("matching", &m); err != nil {
		return fmt.Errorf("parsing matching section: %w", err)
	}
	if m.Cadence != nil {
		cfg.Matching.Cadence = *m.Cadence
	}
	if m.MaxMatchesPerWeek != nil {
		cfg.Matching.MaxMatchesPerWeek = *m.MaxMatchesPerWeek
	}
	if m.MinDaysSinceLastMatch != nil {
		cfg.Matching.MinDaysSinceLastMatch = *m.MinDaysSinceLastMatch
	}
	if m.ExcludeRecentMatches != nil {
		cfg.Matching.ExcludeRecentMatches = *m.ExcludeRecentMatches
	}
	if m.CreateMeetings != nil {
		cfg.Matching.CreateMeetings = *m.CreateMeetings
	}
	if m.InactiveAfterDays != nil {
		cfg.Matching.InactiveAfterDays = *m.InactiveAfterDays
	}

	// Weights decode over the defaults, so a file only needs the keys it changes.
	if v.IsSet("matching.weights") {
		if err := v.UnmarshalKey("matching.weights", &cfg.Matching.Weights); err != nil {
			return fmt.Errorf("parsing weights section: %w", err)
		}
	}
	return nil
}

// setup loads configuration, installs telemetry and builds the application
func setup(ctx context.Context) (*app.App, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	shutdown, err := app.InitTelemetry(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	a, err := app.Build(ctx, cfg)
	if err != nil {
		shutdown()
		return nil, nil, err
	}
	return a, func() {
		a.Close()
		shutdown()
	}, nil
}
