package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sbiradar/outreach-cli/internal/scheduler"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one campaign run",
	Long:  "Fires due follow-ups, then works through ranked lead/contact pairs until the send budget is spent. Safe to re-run: the dedup ledger skips every pair already attempted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		summary, err := e.scheduler.Run(ctx)
		if err != nil {
			if eris.Is(err, scheduler.ErrRunInProgress) {
				return eris.New("another run is in progress; try again later")
			}
			return eris.Wrap(err, "campaign run")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
