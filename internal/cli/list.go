package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/droidscope/internal/db"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored explorations",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDefaultDB()
		if err != nil {
			return err
		}
		defer database.Close()
		if err := database.Migrate(); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}

		filter := db.ListFilter{}
		filter.Category, _ = cmd.Flags().GetString("category")
		filter.Persona, _ = cmd.Flags().GetString("persona")
		filter.Limit, _ = cmd.Flags().GetInt("limit")

		items, err := database.ListExplorations(filter)
		if err != nil {
			return fmt.Errorf("list: %w", err)
		}
		if len(items) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no explorations found")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tAPP\tCATEGORY\tPERSONA\tSTATUS\tSTAGE\tCREATED")
		for _, ex := range items {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d/4\t%s\n",
				ex.ID, ex.AppName, ex.Category, ex.Persona, ex.Status, ex.CurrentStage, ex.CreatedAt)
		}
		return w.Flush()
	},
}

func init() {
	listCmd.Flags().String("category", "", "Filter by app category")
	listCmd.Flags().String("persona", "", "Filter by persona slug")
	listCmd.Flags().Int("limit", 0, "Maximum rows to return (0 = all)")
}
