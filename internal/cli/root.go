package cli

import (
	"github.com/spf13/cobra"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "droidscope",
	Short: "droidscope — staged UI exploration for Android apps",
	Long: `droidscope drives an on-device automation agent through a four-stage
exploration of a mobile app (basic mapping, persona walkthrough, stress
testing, final analysis) and streams progress to listeners over SSE.

All state is stored in ~/.droidscope/ (SQLite for queries, JSON and
markdown artifacts on disk).`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(dbCmd)
}
