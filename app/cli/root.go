// Package cli provides the taskd command-line interface.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"taskd/app/config"
)

type globalFlags struct {
	configFile string
	envFile    string
}

// NewRootCommand creates the root command for taskd.
func NewRootCommand(version string) *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "taskd",
		Short: "Personal task manager service",
		Long: `taskd keeps each signed-in user's tasks in a document store
(Neo4j, MongoDB or memory) and serves them over a JSON HTTP API with
filtering, sorting and statistics.`,
		Version: version,
		// SilenceUsage prevents usage from being printed on errors
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "path to a TOML config file")
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "path to a dotenv file")

	root.AddCommand(newServeCommand(flags))
	root.AddCommand(newCheckCommand(flags))
	return root
}

func (f *globalFlags) load() (*config.Config, error) {
	return config.Load(config.Options{File: f.configFile, EnvFile: f.envFile})
}

func newLogger(cfg *config.Config) *slog.Logger {
	level, err := config.ParseLogLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	if err != nil {
		logger.Warn("falling back to info logging", "error", err)
	}
	return logger
}
