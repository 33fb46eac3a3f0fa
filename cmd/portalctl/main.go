// Command portalctl is the operator CLI for the PD portal.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pdportal/pd-portal/config"
	"github.com/pdportal/pd-portal/internal/app"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "portalctl",
	Short: "Operate the PD session portal",
	Long: `portalctl manages the PD portal database and runs maintenance jobs
by hand. It reads the same environment and .env file as the portal.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"portalctl version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(streaksCmd)
	rootCmd.AddCommand(featuresCmd)
}

var errNoDatabase = errors.New("command needs the postgres driver (set DB_DRIVER=postgres)")

// openInfra loads config and opens storage without migrating.
func openInfra(ctx context.Context) (*app.Infrastructure, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return app.Open(ctx, cfg, app.Options{})
}

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "List feature flags as resolved from the environment",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		for _, f := range config.LoadFeatureFlags().GetAllFeatures() {
			state := "off"
			if f.Enabled {
				state = "on"
			}
			fmt.Fprintf(out, "%-22s %-3s  %s\n", f.Name, state, f.Description)
		}
		return nil
	},
}
