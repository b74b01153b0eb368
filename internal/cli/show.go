package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/droidscope/internal/db"
	"github.com/lucasnoah/droidscope/internal/exploration"
)

var showCmd = &cobra.Command{
	Use:   "show <exploration-id>",
	Short: "Show one exploration's stages and result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		database, err := openDefaultDB()
		if err != nil {
			return err
		}
		defer database.Close()
		if err := database.Migrate(); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}

		ex, err := database.GetExploration(id)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return fmt.Errorf("exploration %s not found", id)
			}
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s (%s)\n", ex.AppName, ex.Category)
		fmt.Fprintf(out, "  id:       %s\n", ex.ID)
		fmt.Fprintf(out, "  persona:  %s\n", ex.Persona.Display())
		fmt.Fprintf(out, "  status:   %s\n", ex.Status)
		if ex.Error != "" {
			fmt.Fprintf(out, "  error:    %s\n", ex.Error)
		}
		fmt.Fprintf(out, "  created:  %s\n", ex.CreatedAt)

		stages, err := database.GetStages(id)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "\nStages:")
		for _, st := range stages {
			line := fmt.Sprintf("  %d. %-22s %s", st.StageNumber, exploration.StageName(st.StageNumber), st.Status)
			if st.ErrorMessage != "" {
				line += " (" + st.ErrorMessage + ")"
			}
			fmt.Fprintln(out, line)
		}

		res, err := database.GetResult(id)
		if errors.Is(err, db.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\nResult: ux %.1f, complexity %.1f\n  %s\n", res.UXScore, res.ComplexityScore, res.Summary)
		return nil
	},
}
