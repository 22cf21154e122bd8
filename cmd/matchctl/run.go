package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/civicnet/weeklymatch/internal/cycle"
)

// errCycleFailed makes the process exit non-zero without printing the summary twice
var errCycleFailed = errors.New("cycle failed")

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one match cycle now",
	Long: `Runs the cycle the cron endpoint would run: gate, selection, pairing, meetings,
notification and history. The summary is printed as JSON.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runCycle(cmd, false)
	},
}

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Show the pairs the next cycle would make without sending anything",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runCycle(cmd, true)
	},
}

func init() {
	addCycleFlags(runCmd)
	runCmd.Flags().Bool("dry-run", false, "select and pair only")
	runCmd.Flags().Bool("meetings", false, "create calendar meetings for each pair")

	addCycleFlags(previewCmd)
	previewCmd.Flags().Bool("json", false, "print the full summary as JSON")

	rootCmd.AddCommand(runCmd, previewCmd)
}

func addCycleFlags(c *cobra.Command) {
	c.Flags().Bool("force", false, "ignore the cadence gate")
	c.Flags().Int("max-matches", 0, "cap on pairs this cycle (0 keeps the configured value)")
	c.Flags().Int("min-days", -1, "days since a pair last matched before they can match again (-1 keeps the configured value)")
	c.Flags().Bool("include-recent", false, "allow pairs that matched recently")
}

func runCycle(cmd *cobra.Command, preview bool) error {
	a, cleanup, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	opts, err := cycleOptions(cmd, a.DefaultOptions())
	if err != nil {
		return err
	}
	if preview {
		opts.DryRun = true
		opts.Force = true
	}

	summary := a.Orchestrator.Run(cmd.Context(), opts)

	out := cmd.OutOrStdout()
	asJSON, _ := cmd.Flags().GetBool("json")
	if preview && !asJSON {
		printPreview(out, summary)
	} else if err := writeJSON(out, summary); err != nil {
		return err
	}
	if !summary.Success {
		return fmt.Errorf("%w: %s", errCycleFailed, summary.Error)
	}
	return nil
}

// cycleOptions applies the flags the user actually set over the configured defaults
func cycleOptions(cmd *cobra.Command, opts cycle.Options) (cycle.Options, error) {
	flags := cmd.Flags()
	if flags.Changed("force") {
		opts.Force, _ = flags.GetBool("force")
	}
	if flags.Changed("dry-run") {
		opts.DryRun, _ = flags.GetBool("dry-run")
	}
	if flags.Changed("meetings") {
		opts.CreateMeetings, _ = flags.GetBool("meetings")
	}
	if flags.Changed("include-recent") {
		include, _ := flags.GetBool("include-recent")
		opts.ExcludeRecentMatches = !include
	}
	if flags.Changed("max-matches") {
		n, _ := flags.GetInt("max-matches")
		if n < 0 {
			return opts, fmt.Errorf("--max-matches must not be negative")
		}
		if n > 0 {
			opts.MaxMatchesPerWeek = n
		}
	}
	if flags.Changed("min-days") {
		n, _ := flags.GetInt("min-days")
		if n < -1 {
			return opts, fmt.Errorf("--min-days must not be negative")
		}
		if n >= 0 {
			opts.MinDaysSinceLastMatch = n
		}
	}
	return opts, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
