package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/civicnet/weeklymatch/internal/matching"
)

var scoreCmd = &cobra.Command{
	Use:   "score <profile-id> <profile-id>",
	Short: "Score two members against each other and show when they last matched",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if args[0] == args[1] {
			return fmt.Errorf("a member cannot be scored against themselves")
		}

		a, cleanup, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		scorer, err := matching.NewScorer(a.Config.Matching.Weights)
		if err != nil {
			return err
		}
		left, err := a.Profiles.GetProfileByID(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		right, err := a.Profiles.GetProfileByID(cmd.Context(), args[1])
		if err != nil {
			return err
		}

		lastMatched, err := a.History.GetLastMatchedAt(cmd.Context(), left.ID, right.ID)
		if err != nil {
			return err
		}

		score, reasons := scorer.Score(left, right)
		return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
			"userA":         left.ID,
			"userB":         right.ID,
			"matchScore":    score,
			"matchReasons":  reasons,
			"lastMatchedAt": lastMatched,
		})
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the profiles and match_history tables",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, cleanup, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()
		if err := a.DB.Migrate(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd, migrateCmd)
}
