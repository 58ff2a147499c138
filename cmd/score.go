package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sbiradar/outreach-cli/internal/model"
	"github.com/sbiradar/outreach-cli/internal/ranker"
)

var scoreTop int

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Preview the ranked send order without sending anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		profile, err := ranker.LoadProfile(cfg.Ranker.SkillProfilePath)
		if err != nil {
			return err
		}
		r := ranker.New(cfg.Ranker)

		leads, err := e.store.ListLeads(ctx, 0)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		var candidates []ranker.Candidate
		for _, lead := range leads {
			contacts, err := e.store.ListContactsByCompany(ctx, lead.Company)
			if err != nil {
				return err
			}
			for _, contact := range contacts {
				if contact.Outcome == model.OutcomeRejected {
					continue
				}
				candidates = append(candidates, ranker.Candidate{
					Lead:    lead,
					Contact: contact,
					Score:   r.Score(lead, contact, profile, now),
				})
			}
		}
		r.Rank(candidates, profile, now)

		if scoreTop > 0 && len(candidates) > scoreTop {
			candidates = candidates[:scoreTop]
		}

		type row struct {
			Company string         `json:"company"`
			Title   string         `json:"title"`
			Contact string         `json:"contact"`
			Tier    model.LeadTier `json:"tier"`
			Score   float64        `json:"score"`
		}
		rows := make([]row, len(candidates))
		for i, cand := range candidates {
			rows[i] = row{
				Company: cand.Lead.Company,
				Title:   cand.Lead.Title,
				Contact: cand.Contact.Email,
				Tier:    r.Tier(cand.Lead.Company),
				Score:   cand.Score,
			}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	},
}

func init() {
	scoreCmd.Flags().IntVar(&scoreTop, "top", 20, "show only the top N candidates (0 = all)")
	rootCmd.AddCommand(scoreCmd)
}
