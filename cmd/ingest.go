package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sbiradar/outreach-cli/internal/ingest"
	"github.com/sbiradar/outreach-cli/pkg/notion"
)

var (
	ingestLeadsPath    string
	ingestContactsPath string
	ingestFromNotion   bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load leads and contacts into the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if ingestLeadsPath == "" && ingestContactsPath == "" && !ingestFromNotion {
			return eris.New("nothing to ingest: pass --leads, --contacts, or --notion")
		}

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		if ingestLeadsPath != "" {
			leads, err := ingest.ReadLeads(ctx, ingestLeadsPath)
			if err != nil {
				return err
			}
			for i := range leads {
				if err := e.store.InsertLead(ctx, &leads[i]); err != nil {
					return eris.Wrap(err, "insert lead")
				}
			}
			zap.L().Info("leads ingested", zap.Int("count", len(leads)), zap.String("path", ingestLeadsPath))
		}

		if ingestContactsPath != "" {
			contacts, err := ingest.ReadContacts(ctx, ingestContactsPath)
			if err != nil {
				return err
			}
			for i := range contacts {
				if err := e.store.UpsertContact(ctx, &contacts[i]); err != nil {
					return eris.Wrap(err, "upsert contact")
				}
			}
			zap.L().Info("contacts ingested", zap.Int("count", len(contacts)), zap.String("path", ingestContactsPath))
		}

		if ingestFromNotion {
			if cfg.Notion.Token == "" || cfg.Notion.LeadDB == "" {
				return eris.New("notion sync needs OUTREACH_NOTION_TOKEN and OUTREACH_NOTION_LEAD_DB")
			}
			src := ingest.NewLeadSource(notion.NewClient(cfg.Notion.Token), cfg.Notion.LeadDB)
			queued, err := src.FetchQueued(ctx)
			if err != nil {
				return err
			}
			synced := 0
			for _, q := range queued {
				if err := e.store.InsertLead(ctx, &q.Lead); err != nil {
					return eris.Wrap(err, "insert notion lead")
				}
				if err := src.MarkSynced(ctx, q.PageID); err != nil {
					zap.L().Warn("lead stored but page not marked synced",
						zap.String("page_id", q.PageID), zap.Error(err))
					continue
				}
				synced++
			}
			zap.L().Info("notion leads synced", zap.Int("count", synced))
		}

		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestLeadsPath, "leads", "", "path to a leads file (.csv, .json, .jsonl)")
	ingestCmd.Flags().StringVar(&ingestContactsPath, "contacts", "", "path to a contacts file (.csv, .json, .jsonl, .xlsx)")
	ingestCmd.Flags().BoolVar(&ingestFromNotion, "notion", false, "pull queued leads from the Notion lead database")
	rootCmd.AddCommand(ingestCmd)
}
