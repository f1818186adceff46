package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/LivingRiskyCo/dsx-tracker/internal/engine"
)

var passCmd = &cobra.Command{
	Use:   "pass",
	Short: "Run one aggregation pass",
	Long:  "Recomputes aliases, match records, and team aggregates from the full stored source record set and commits an atomic snapshot.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		eng, err := engine.New(st, cfg)
		if err != nil {
			return err
		}

		result, err := eng.RunPass(ctx)
		if err != nil {
			if eris.Is(err, engine.ErrPassInProgress) {
				return eris.New("another aggregation pass is already running; aborting")
			}
			return err
		}

		zap.L().Info("pass complete",
			zap.String("snapshot_id", result.Snapshot.ID),
			zap.Int("teams", result.Snapshot.Teams),
			zap.Int("matches", result.Snapshot.Matches),
			zap.Int("skipped_rows", result.Snapshot.SkippedRows),
			zap.Int("reviews", result.Reviews),
			zap.Int("tier_replacements", result.Replaced),
			zap.Duration("duration", result.Duration),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(passCmd)
}
