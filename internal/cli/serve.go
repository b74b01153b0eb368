package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/droidscope/internal/agent"
	"github.com/lucasnoah/droidscope/internal/analysis"
	"github.com/lucasnoah/droidscope/internal/bus"
	"github.com/lucasnoah/droidscope/internal/config"
	"github.com/lucasnoah/droidscope/internal/db"
	"github.com/lucasnoah/droidscope/internal/executor"
	"github.com/lucasnoah/droidscope/internal/exploration"
	"github.com/lucasnoah/droidscope/internal/run"
	"github.com/lucasnoah/droidscope/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the exploration API server",
	Long: `Start the HTTP API on localhost: exploration start/stop, the three SSE
event streams (progress, logs, stages), and read access to stored results.

Configuration is read from ./droidscope.yaml or ~/.droidscope/config.yaml;
built-in defaults apply when neither exists.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if port, _ := cmd.Flags().GetInt("port"); cmd.Flags().Changed("port") {
			cfg.Server.Port = port
		}
		if errs := config.Validate(cfg); len(errs) > 0 {
			for _, e := range errs {
				fmt.Fprintf(cmd.ErrOrStderr(), "config: %s\n", e)
			}
			return fmt.Errorf("invalid configuration (%d errors)", len(errs))
		}

		storeDir := filepath.Join(cfg.DataDir, "explorations")
		if err := os.MkdirAll(storeDir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
		store := exploration.NewStore(storeDir)

		database, err := db.Open(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer database.Close()
		if err := database.Migrate(); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}

		analyzer, err := analysis.NewAnalyzer(cmd.Context(), cfg.LLM.Model, cfg.LLM.APIKeyEnv)
		if err != nil {
			return fmt.Errorf("analysis backend: %w", err)
		}
		runner := agent.NewCLIRunner(cfg.Agent.Binary, cfg.Agent.TimeoutDuration())

		b := bus.New(bus.Options{
			BufferSize:        cfg.Stream.BufferSize,
			KeepaliveInterval: cfg.Stream.KeepaliveDuration(),
		})
		defer b.Close()
		registry := run.NewRegistry()

		exec := executor.New(executor.Config{
			TemplateDir: cfg.Templates.Dir,
			MaxSteps:    cfg.Agent.MaxSteps,
			StressSteps: cfg.Agent.StressMaxSteps,
		}, store, database, b, registry, runner, analyzer)

		return web.NewServer(store, database, b, registry, exec, cfg.Server.Port).Start()
	},
}

// loadConfig honors an explicit --config path, falling back to the standard
// search locations.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return config.Load(path)
	}
	return config.LoadDefault()
}

func init() {
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("config", "", "Path to config file")
}
