package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sbiradar/outreach-cli/internal/model"
)

var signalFile string

var signalCmd = &cobra.Command{
	Use:   "signal",
	Short: "Apply reply/bounce classifications to the ledger",
	Long:  "Reads classifier signals as one JSON object per line (from --file or stdin) and folds each into the ledger: replies close attempts and cancel follow-ups, bounces free alternates, interviews exclude the company.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var in io.Reader = os.Stdin
		if signalFile != "" {
			f, err := os.Open(signalFile)
			if err != nil {
				return eris.Wrapf(err, "open %s", signalFile)
			}
			defer f.Close() //nolint:errcheck
			in = f
		}

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		dec := json.NewDecoder(in)
		applied, alerts := 0, 0
		for n := 1; ; n++ {
			var sig model.ReplySignal
			if err := dec.Decode(&sig); err == io.EOF {
				break
			} else if err != nil {
				return eris.Wrapf(err, "decode signal %d", n)
			}

			alert, err := e.signals.Apply(ctx, sig)
			if err != nil {
				return eris.Wrapf(err, "apply signal %d", n)
			}
			applied++
			if alert != nil {
				alerts++
				e.notifier.InterviewAlert(ctx, *alert)
				zap.L().Info("interview alert",
					zap.String("company", alert.Company),
					zap.String("job_title", alert.JobTitle),
					zap.String("contact", alert.ContactEmail))
			}
		}

		zap.L().Info("signals applied", zap.Int("count", applied), zap.Int("interviews", alerts))
		return nil
	},
}

func init() {
	signalCmd.Flags().StringVar(&signalFile, "file", "", "signals file (default: stdin)")
	rootCmd.AddCommand(signalCmd)
}
