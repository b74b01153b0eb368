package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/droidscope/internal/analytics"
	"github.com/lucasnoah/droidscope/internal/exploration"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Aggregate statistics over stored explorations",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDefaultDB()
		if err != nil {
			return err
		}
		defer database.Close()
		if err := database.Migrate(); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		out := cmd.OutOrStdout()

		overview, err := analytics.QueryOverview(database)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Explorations: %d total (%d completed, %d failed, %d stopped, %d running)\n\n",
			overview.Total, overview.Completed, overview.Failed, overview.Stopped, overview.Running)

		categories, err := analytics.QueryCategoryStats(database)
		if err != nil {
			return err
		}
		if len(categories) > 0 {
			fmt.Fprintln(out, "By category:")
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "  CATEGORY\tRUNS\tAVG UX\tP50 UX\tAVG COMPLEXITY")
			for _, c := range categories {
				fmt.Fprintf(w, "  %s\t%d\t%.1f\t%.1f\t%.1f\n", c.Category, c.Count, c.AvgUXScore, c.P50UXScore, c.AvgComplexity)
			}
			w.Flush()
			fmt.Fprintln(out)
		}

		personas, err := analytics.QueryPersonaStats(database)
		if err != nil {
			return err
		}
		if len(personas) > 0 {
			fmt.Fprintln(out, "By persona:")
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "  PERSONA\tRUNS\tAVG UX")
			for _, p := range personas {
				fmt.Fprintf(w, "  %s\t%d\t%.1f\n", exploration.Persona(p.Persona).Display(), p.Count, p.AvgUXScore)
			}
			w.Flush()
			fmt.Fprintln(out)
		}

		stages, err := analytics.QueryStageFailures(database)
		if err != nil {
			return err
		}
		if len(stages) > 0 {
			fmt.Fprintln(out, "Stage failure rates:")
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "  STAGE\tRUNS\tFAILURES\tRATE")
			for _, s := range stages {
				fmt.Fprintf(w, "  %d %s\t%d\t%d\t%.1f%%\n", s.Stage, exploration.StageName(s.Stage), s.Runs, s.Failures, s.FailureRate)
			}
			w.Flush()
		}
		return nil
	},
}
