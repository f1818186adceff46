package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/LivingRiskyCo/dsx-tracker/internal/rank"
)

var reviewsCmd = &cobra.Command{
	Use:   "reviews",
	Short: "List ambiguous-identity events awaiting manual confirmation",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		svc := rank.NewService(st)
		snap, reviews, err := svc.ReviewQueue(ctx)
		if err != nil {
			if eris.Is(err, rank.ErrNoSnapshot) {
				fmt.Fprintln(os.Stderr, "No committed snapshot yet. Run `dsx-tracker pass` first.")
				return nil
			}
			return err
		}

		if len(reviews) == 0 {
			fmt.Printf("No pending reviews as of %s.\n", snap.CommittedAt.Format("2006-01-02 15:04:05 MST"))
			return nil
		}

		fmt.Printf("Showing data as of %s (%d pending)\n\n",
			snap.CommittedAt.Format("2006-01-02 15:04:05 MST"), len(reviews))
		for _, rev := range reviews {
			fmt.Printf("%s  %q\n", rev.CreatedAt.Format("2006-01-02"), rev.RawName)
			for _, c := range rev.Candidates {
				fmt.Printf("    %.3f  %s  (%s)\n", c.Score, c.CanonicalName, shortID(c.TeamID))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reviewsCmd)
}
