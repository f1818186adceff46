package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/LivingRiskyCo/dsx-tracker/internal/model"
	"github.com/LivingRiskyCo/dsx-tracker/internal/rank"
)

var compareCmd = &cobra.Command{
	Use:   "compare <team-a> <team-b>",
	Short: "Compare two teams head-to-head or via common opponents",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		svc := rank.NewService(st)
		view, err := svc.Compare(ctx, args[0], args[1])
		if err != nil {
			switch {
			case eris.Is(err, rank.ErrNoSnapshot):
				fmt.Fprintln(os.Stderr, "No committed snapshot yet. Run `dsx-tracker pass` first.")
				return nil
			case eris.Is(err, rank.ErrUnknownTeam):
				return err
			}
			return err
		}

		fmt.Printf("Showing data as of %s\n\n", view.AsOf.Format("2006-01-02 15:04:05 MST"))

		res := view.Result
		switch res.Status {
		case model.ComparisonInsufficientData:
			fmt.Println("Insufficient data: no head-to-head matches and no common opponents.")
			return nil
		case model.ComparisonHeadToHead:
			fmt.Printf("Head-to-head (%d match(es)):\n", len(res.HeadToHead))
			for _, m := range res.HeadToHead {
				fmt.Printf("  %s  %d-%d (%s, tier %s)\n",
					m.Date.Format("2006-01-02"), m.GoalsFor, m.GoalsAgainst, m.Result, m.Tier)
			}
		case model.ComparisonCommonOpponents:
			fmt.Println("No direct meetings; comparing via common opponents.")
		}

		if len(res.CommonOpponents) > 0 {
			fmt.Printf("\nCommon opponents (%d):\n", len(res.CommonOpponents))
			for _, c := range res.CommonOpponents {
				fmt.Printf("  %-40s  avg GD %s: %+.2f   avg GD %s: %+.2f\n",
					c.CanonicalName, args[0], c.AvgGDTeamA, args[1], c.AvgGDTeamB)
			}
		}

		fmt.Printf("\nStrength index delta (%s - %s): %+.1f\n", args[0], args[1], res.StrengthDelta)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(compareCmd)
}
