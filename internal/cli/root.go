package cli

import (
	"context"
	"fmt"
	"listing-tracker/internal/app"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Format     string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the tracker CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "tracker",
		Short: "Track for-sale listings and their price history",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "config/tracker.yaml", "path to the YAML configuration")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewRefreshCommand(opts))
	cmd.AddCommand(NewCleanupCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewAnalyticsCommand(opts))
	cmd.AddCommand(NewChangesCommand(opts))
	cmd.AddCommand(NewMarkCommand(opts))
	cmd.AddCommand(NewProbeCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// openApp loads the configuration and wires the application. Logs go to
// the command's stderr so stdout stays machine readable.
func openApp(ctx context.Context, cmd *cobra.Command, opts *RootOptions) (*app.App, error) {
	cfg, err := app.LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := cfg.Logging.NewLogger(cmd.ErrOrStderr())
	return app.New(ctx, cfg, logger)
}
