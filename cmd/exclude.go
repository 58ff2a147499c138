package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sbiradar/outreach-cli/internal/model"
)

var (
	excludeContact string
	excludeReason  string
)

var excludeCmd = &cobra.Command{
	Use:   "exclude <company>",
	Short: "Permanently suppress a company or a single contact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		reason := model.ExclusionReason(excludeReason)
		switch reason {
		case model.ReasonInterviewed, model.ReasonRejected, model.ReasonBlacklisted:
		default:
			return eris.Errorf("unknown reason %q (interviewed, rejected, blacklisted)", excludeReason)
		}

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.guard.Exclude(ctx, args[0], excludeContact, reason); err != nil {
			return err
		}

		zap.L().Info("exclusion recorded",
			zap.String("company", args[0]),
			zap.String("contact", excludeContact),
			zap.String("reason", excludeReason))
		return nil
	},
}

func init() {
	excludeCmd.Flags().StringVar(&excludeContact, "contact", "", "limit the exclusion to one contact email")
	excludeCmd.Flags().StringVar(&excludeReason, "reason", "blacklisted", "exclusion reason (interviewed, rejected, blacklisted)")
	rootCmd.AddCommand(excludeCmd)
}
