package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"taskd/app/config"
	"taskd/app/services"
)

// errSetupInvalid makes `taskd check` exit non-zero.
var errSetupInvalid = errors.New("setup is incomplete")

func newCheckCommand(flags *globalFlags) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate configuration and probe the task collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			report := diagnose(ctx, cfg)
			printReport(cmd.OutOrStdout(), report)
			if !report.Valid {
				return errSetupInvalid
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "time allowed for connecting to backends")
	return cmd
}

// diagnose collects configuration issues and, when the store can be opened,
// probes the task collection.
func diagnose(ctx context.Context, cfg *config.Config) services.SetupReport {
	issues := cfg.Validate()
	logger := newLogger(cfg)

	app := newApplication()
	defer func() { _ = app.Close(context.Background()) }()
	if err := buildTasks(ctx, cfg, logger, app); err != nil {
		issues = append(issues, fmt.Sprintf("General connection error: %v", err))
		return services.CheckSetup(ctx, issues, nil, cfg.Store.TaskCollection)
	}

	return services.CheckSetup(ctx, issues, app.repo, app.repo.Collection())
}

func printReport(w io.Writer, report services.SetupReport) {
	if report.Valid {
		_, _ = fmt.Fprintln(w, "Setup OK")
		return
	}
	_, _ = fmt.Fprintln(w, "Setup issues:")
	for _, issue := range report.Issues {
		_, _ = fmt.Fprintf(w, "  - %s\n", issue)
	}
}
