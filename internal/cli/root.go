package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/interteks/loomtrack/internal/app"
)

type rootOptions struct {
	configPath string
	envFile    string
	port       int
	backend    string
	dataDir    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "loomtrack",
		Short: "Loom telemetry ingestion and efficiency backend",
		Long: `loomtrack ingests cumulative state counters from weaving looms, turns
them into per-month and per-shift buckets and serves live status to
dashboards.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "YAML config file (overrides CONFIG_FILE)")
	pf.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	pf.IntVar(&opts.port, "port", 0, "HTTP port (overrides PORT)")
	pf.StringVar(&opts.backend, "backend", "", "storage backend: auto|postgres|sqlite|file (overrides STORAGE_BACKEND)")
	pf.StringVar(&opts.dataDir, "data-dir", "", "file backend directory (overrides DATA_DIR)")

	root.AddCommand(newServeCmd(opts), newBackendCmd(opts))
	return root
}

// loadConfig applies flags on top of the file and environment layers.
func (o *rootOptions) loadConfig() (app.Config, error) {
	cfg, err := app.LoadConfig(o.configPath, o.envFile)
	if err != nil {
		return cfg, err
	}
	if o.port > 0 {
		cfg.Port = o.port
	}
	if b := strings.TrimSpace(o.backend); b != "" {
		cfg.StorageBackend = b
	}
	if d := strings.TrimSpace(o.dataDir); d != "" {
		cfg.DataDir = d
	}
	return cfg, cfg.Validate()
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}
