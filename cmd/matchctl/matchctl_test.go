package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicnet/weeklymatch/internal/config"
	"github.com/civicnet/weeklymatch/internal/cycle"
	"github.com/civicnet/weeklymatch/internal/matching"
)

func TestApplyFile(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(`
matching:
  cadence: weekly
  max_matches_per_week: 7
  create_meetings: true
  weights:
    same_city: 10
    max_reasons: 2
`)))

	cfg := config.Load()
	cfg.Matching.MinDaysSinceLastMatch = 14
	require.NoError(t, applyFile(v, &cfg))

	assert.Equal(t, "weekly", cfg.Matching.Cadence)
	assert.Equal(t, 7, cfg.Matching.MaxMatchesPerWeek)
	assert.True(t, cfg.Matching.CreateMeetings)
	assert.Equal(t, 14, cfg.Matching.MinDaysSinceLastMatch, "keys absent from the file keep their value")

	defaults := matching.DefaultWeights()
	assert.Equal(t, 10.0, cfg.Matching.Weights.SameCity)
	assert.Equal(t, 2, cfg.Matching.Weights.MaxReasons)
	assert.Equal(t, defaults.CausePerMatch, cfg.Matching.Weights.CausePerMatch)
	assert.Equal(t, defaults.Baseline, cfg.Matching.Weights.Baseline)
}

func newFlagCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	c := &cobra.Command{Use: "test"}
	addCycleFlags(c)
	c.Flags().Bool("dry-run", false, "")
	c.Flags().Bool("meetings", false, "")
	require.NoError(t, c.Flags().Parse(args))
	return c
}

func TestCycleOptions(t *testing.T) {
	defaults := cycle.Options{ExcludeRecentMatches: true, MinDaysSinceLastMatch: 14, MaxMatchesPerWeek: 50}

	t.Run("no flags keep defaults", func(t *testing.T) {
		opts, err := cycleOptions(newFlagCommand(t), defaults)
		require.NoError(t, err)
		assert.Equal(t, defaults, opts)
	})

	t.Run("overrides", func(t *testing.T) {
		opts, err := cycleOptions(newFlagCommand(t, "--force", "--dry-run", "--meetings",
			"--include-recent", "--max-matches=3", "--min-days=0"), defaults)
		require.NoError(t, err)
		assert.True(t, opts.Force)
		assert.True(t, opts.DryRun)
		assert.True(t, opts.CreateMeetings)
		assert.False(t, opts.ExcludeRecentMatches)
		assert.Equal(t, 3, opts.MaxMatchesPerWeek)
		assert.Equal(t, 0, opts.MinDaysSinceLastMatch)
	})

	t.Run("negative values rejected", func(t *testing.T) {
		_, err := cycleOptions(newFlagCommand(t, "--max-matches=-2"), defaults)
		assert.Error(t, err)
		_, err = cycleOptions(newFlagCommand(t, "--min-days=-5"), defaults)
		assert.Error(t, err)
	})
}

func TestPrintPreview(t *testing.T) {
	var buf bytes.Buffer
	printPreview(&buf, &cycle.Summary{
		Success: true,
		Pairs: []cycle.PairPreview{
			{UserA: "u1", UserB: "u2", NameA: "Ada", Score: 72, Reasons: []string{"Shared causes: housing", "Both in Oakland"}},
		},
	})
	out := buf.String()
	assert.Contains(t, out, "Ada (u1)")
	assert.Contains(t, out, "u2")
	assert.Contains(t, out, "Shared causes: housing; Both in Oakland")
	assert.Contains(t, out, "1 pairs")

	buf.Reset()
	printPreview(&buf, &cycle.Summary{Success: true, Skipped: true, Reason: "biweekly cadence: ISO week 25 is an off week"})
	assert.Contains(t, buf.String(), "would be skipped")

	buf.Reset()
	printPreview(&buf, &cycle.Summary{Success: true})
	assert.Contains(t, buf.String(), "no pairs")
}
