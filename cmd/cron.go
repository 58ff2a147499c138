package main

import (
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sbiradar/outreach-cli/internal/scheduler"
)

var cronSpec string

var cronCmd = &cobra.Command{
	Use:   "cron",
	Short: "Run campaigns on a schedule",
	Long:  "Keeps the process alive and executes a campaign run on the given cron schedule. Overlapping runs are prevented by the run lock.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		c := cron.New()
		_, err = c.AddFunc(cronSpec, func() {
			summary, err := e.scheduler.Run(ctx)
			if err != nil {
				if eris.Is(err, scheduler.ErrRunInProgress) {
					zap.L().Warn("skipping scheduled run, previous run still active")
					return
				}
				zap.L().Error("scheduled run failed", zap.Error(err))
				return
			}
			zap.L().Info("scheduled run complete",
				zap.String("run_id", summary.RunID),
				zap.Int("sent", summary.Sent))
		})
		if err != nil {
			return eris.Wrapf(err, "invalid cron spec %q", cronSpec)
		}

		c.Start()
		zap.L().Info("cron scheduler started", zap.String("spec", cronSpec))

		<-ctx.Done()
		stopCtx := c.Stop()
		<-stopCtx.Done() // wait for an in-flight run to finish
		return nil
	},
}

func init() {
	cronCmd.Flags().StringVar(&cronSpec, "spec", "0 9 * * MON-FRI", "cron schedule for campaign runs")
	rootCmd.AddCommand(cronCmd)
}
