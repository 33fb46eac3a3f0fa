package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdportal/pd-portal/internal/infrastructure/scheduler/jobs"
	"github.com/pdportal/pd-portal/pkg/timeutil"
)

var streaksCmd = &cobra.Command{
	Use:   "streaks",
	Short: "Streak maintenance",
}

var streaksResetStaleCmd = &cobra.Command{
	Use:   "reset-stale",
	Short: "Reset streaks with no attendance since the day before --as-of",
	Long: `Runs the reset_stale_streaks job once. Without --as-of the current
calendar day in APP_TIMEZONE is used.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		asOfRaw, _ := cmd.Flags().GetString("as-of")
		batchSize, _ := cmd.Flags().GetInt("batch-size")

		infra, err := openInfra(cmd.Context())
		if err != nil {
			return err
		}
		defer infra.Close()

		asOf := timeutil.Today()
		if asOfRaw != "" {
			if asOf, err = timeutil.ParseDate(asOfRaw); err != nil {
				return fmt.Errorf("--as-of: %w", err)
			}
		}

		jobCfg := jobs.ResetStaleStreaksConfig{
			BatchSize: infra.Config.Scheduler.StreakResetBatchSize,
			Timeout:   infra.Config.Scheduler.JobTimeout,
		}
		if batchSize > 0 {
			jobCfg.BatchSize = batchSize
		}

		job := jobs.NewResetStaleStreaksJob(infra.Repos.Streaks, infra.Log, jobCfg)
		stats, err := job.RunAsOf(cmd.Context(), asOf)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "as of %s: checked %d, reset %d, failed %d (%s)\n",
			timeutil.FormatDateStr(stats.AsOf), stats.Checked, stats.Reset, stats.Failed,
			stats.CompletedAt.Sub(stats.StartedAt).Round(time.Millisecond))
		return nil
	},
}

func init() {
	streaksResetStaleCmd.Flags().String("as-of", "", "calendar day to evaluate, YYYY-MM-DD")
	streaksResetStaleCmd.Flags().Int("batch-size", 0, "override STREAK_RESET_BATCH_SIZE")
	streaksCmd.AddCommand(streaksResetStaleCmd)
}
