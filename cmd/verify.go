package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sbiradar/outreach-cli/internal/model"
)

var verifyCompany string

var verifyCmd = &cobra.Command{
	Use:   "verify [email]",
	Short: "Verify a contact email, or every contact at a company",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		var contacts []model.Contact
		switch {
		case len(args) == 1:
			contact, err := e.store.GetContact(ctx, args[0])
			if err != nil {
				return eris.Wrapf(err, "contact %s", args[0])
			}
			contacts = []model.Contact{*contact}
		case verifyCompany != "":
			contacts, err = e.store.ListContactsByCompany(ctx, verifyCompany)
			if err != nil {
				return err
			}
		default:
			return eris.New("pass an email argument or --company")
		}

		type verdict struct {
			Email   string                    `json:"email"`
			Score   int                       `json:"score"`
			Outcome model.VerificationOutcome `json:"outcome"`
			Reason  string                    `json:"reason,omitempty"`
			Checks  map[string]int            `json:"checks"`
		}
		verdicts := make([]verdict, 0, len(contacts))
		for _, contact := range contacts {
			res := e.verifier.Verify(ctx, contact)
			if err := e.store.UpdateContactVerification(ctx, contact.Email, res.Score, res.Outcome); err != nil {
				zap.L().Warn("saving verification verdict failed",
					zap.String("email", contact.Email), zap.Error(err))
			}
			verdicts = append(verdicts, verdict{
				Email:   contact.Email,
				Score:   res.Score,
				Outcome: res.Outcome,
				Reason:  res.Reason,
				Checks:  res.Checks,
			})
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(verdicts)
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifyCompany, "company", "", "verify every contact at this company")
	rootCmd.AddCommand(verifyCmd)
}
