package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/LivingRiskyCo/dsx-tracker/internal/model"
	"github.com/LivingRiskyCo/dsx-tracker/internal/rank"
)

var (
	rankCohort   string
	rankMinGames int
	rankAll      bool
)

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Print the ranking table from the last committed snapshot",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		minGames := rankMinGames
		if minGames < 0 {
			minGames = cfg.Rating.MinGames
		}
		if rankAll {
			minGames = 0
		}

		svc := rank.NewService(st)
		view, err := svc.Rankings(ctx, model.Cohort(rankCohort), minGames)
		if err != nil {
			if eris.Is(err, rank.ErrNoSnapshot) {
				fmt.Fprintln(os.Stderr, "No committed snapshot yet. Run `dsx-tracker pass` first.")
				return nil
			}
			return err
		}

		if len(view.Rows) == 0 {
			fmt.Fprintln(os.Stderr, "No teams match the filter.")
			return nil
		}

		fmt.Printf("Showing data as of %s (snapshot %s)\n\n",
			view.AsOf.Format("2006-01-02 15:04:05 MST"), view.SnapshotID[:8])
		formatRankings(os.Stdout, view.Rows)
		return nil
	},
}

func formatRankings(w io.Writer, rows []model.RankedTeam) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tTEAM\tCOHORT\tGP\tW-D-L\tGF\tGA\tPPG\tSTRENGTH\tFLAGS")
	for _, r := range rows {
		flags := ""
		if r.LowSample {
			flags = "low-sample"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d-%d-%d\t%d\t%d\t%.2f\t%.1f\t%s\n",
			r.Rank, r.CanonicalName, r.Cohort, r.GamesPlayed,
			r.Wins, r.Draws, r.Losses, r.GoalsFor, r.GoalsAgainst,
			r.PPG, r.StrengthIndex, flags)
	}
	tw.Flush() //nolint:errcheck
}

func init() {
	rankCmd.Flags().StringVar(&rankCohort, "cohort", "", "filter to one cohort (birth year)")
	rankCmd.Flags().IntVar(&rankMinGames, "min-games", -1, "minimum games played (default from config)")
	rankCmd.Flags().BoolVar(&rankAll, "all", false, "include low-sample teams")
	rootCmd.AddCommand(rankCmd)
}
