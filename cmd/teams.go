package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/LivingRiskyCo/dsx-tracker/internal/model"
	"github.com/LivingRiskyCo/dsx-tracker/internal/rank"
)

var teamsCmd = &cobra.Command{
	Use:   "teams",
	Short: "Inspect the canonical team registry",
}

var teamsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List canonical teams and their alias counts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		svc := rank.NewService(st)
		snap, teams, err := svc.Teams(ctx)
		if err != nil {
			if eris.Is(err, rank.ErrNoSnapshot) {
				fmt.Fprintln(os.Stderr, "No committed snapshot yet. Run `dsx-tracker pass` first.")
				return nil
			}
			return err
		}

		fmt.Printf("Showing data as of %s (%d teams)\n\n",
			snap.CommittedAt.Format("2006-01-02 15:04:05 MST"), len(teams))
		formatTeams(os.Stdout, teams)
		return nil
	},
}

var teamsShowCmd = &cobra.Command{
	Use:   "show <team>",
	Short: "Show a team's aliases and resolved match log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		svc := rank.NewService(st)
		snap, team, matches, err := svc.TeamMatches(ctx, args[0])
		if err != nil {
			if eris.Is(err, rank.ErrNoSnapshot) {
				fmt.Fprintln(os.Stderr, "No committed snapshot yet. Run `dsx-tracker pass` first.")
				return nil
			}
			return err
		}

		fmt.Printf("Showing data as of %s\n\n", snap.CommittedAt.Format("2006-01-02 15:04:05 MST"))
		fmt.Printf("%s  (id %s)\n", team.CanonicalName, team.ID)
		fmt.Printf("Cohort: %s (confidence %.2f)\n", team.Cohort, team.CohortConfidence)
		fmt.Printf("Aliases:\n")
		for _, alias := range team.Aliases {
			fmt.Printf("  - %s\n", alias)
		}

		if len(matches) == 0 {
			fmt.Println("\nNo resolved matches.")
			return nil
		}

		fmt.Printf("\nMatches (%d):\n", len(matches))
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "DATE\tSCORE\tRESULT\tTIER\tPROVENANCE")
		for _, m := range matches {
			fmt.Fprintf(tw, "%s\t%d-%d\t%s\t%s\t%s\n",
				m.Date.Format("2006-01-02"), m.GoalsFor, m.GoalsAgainst,
				m.Result, m.Tier, m.Provenance)
		}
		tw.Flush() //nolint:errcheck
		return nil
	},
}

func formatTeams(w io.Writer, teams []model.CanonicalTeam) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TEAM\tCOHORT\tCONF\tALIASES\tID")
	for _, t := range teams {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%d\t%s\n",
			t.CanonicalName, t.Cohort, t.CohortConfidence, len(t.Aliases), shortID(t.ID))
	}
	tw.Flush() //nolint:errcheck
}

func shortID(id string) string {
	if i := strings.Index(id, "-"); i > 0 {
		return id[:i]
	}
	return id
}

func init() {
	teamsCmd.AddCommand(teamsListCmd)
	teamsCmd.AddCommand(teamsShowCmd)
	rootCmd.AddCommand(teamsCmd)
}
