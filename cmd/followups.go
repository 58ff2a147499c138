package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sbiradar/outreach-cli/internal/model"
)

var followupsHorizonDays int

var followupsCmd = &cobra.Command{
	Use:   "followups",
	Short: "List pending follow-up tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		horizon := time.Now().UTC().AddDate(0, 0, followupsHorizonDays)
		tasks, err := e.store.DueFollowUps(ctx, horizon)
		if err != nil {
			return err
		}

		type row struct {
			TaskID  string      `json:"task_id"`
			Stage   model.Stage `json:"stage"`
			DueAt   time.Time   `json:"due_at"`
			Company string      `json:"company"`
			Contact string      `json:"contact"`
			Title   string      `json:"job_title"`
		}
		rows := make([]row, 0, len(tasks))
		for _, task := range tasks {
			r := row{TaskID: task.ID, Stage: task.Stage, DueAt: task.DueAt}
			if attempt, err := e.store.GetAttempt(ctx, task.AttemptID); err == nil {
				r.Company = attempt.Company
				r.Contact = attempt.ContactEmail
				r.Title = attempt.JobTitle
			}
			rows = append(rows, r)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	},
}

func init() {
	followupsCmd.Flags().IntVar(&followupsHorizonDays, "horizon", 0, "include tasks due within N days from now")
	rootCmd.AddCommand(followupsCmd)
}
