package model

import "time"

// Classification is the reply/bounce classifier's verdict for an attempt.
type Classification string

const (
	ClassReplied  Classification = "replied"
	ClassBounced  Classification = "bounced"
	ClassNoSignal Classification = "no_signal"
)

// ReplySignal is one classifier event for a (contact, job) pair.
type ReplySignal struct {
	ContactEmail   string         `json:"contact_email"`
	JobTitle       string         `json:"job_title"`
	Classification Classification `json:"classification"`
	Interview      bool           `json:"interview,omitempty"`
	ReceivedAt     time.Time      `json:"received_at"`
}

// InterviewAlert surfaces an interview-positive reply in the run summary.
type InterviewAlert struct {
	Company      string `json:"company"`
	JobTitle     string `json:"job_title"`
	ContactEmail string `json:"contact_email"`
}

// RunSummary is the audit record a scheduler run always produces: every
// pair the run touched is accounted for in exactly one of these counters.
type RunSummary struct {
	RunID                string           `json:"run_id"`
	StartedAt            time.Time        `json:"started_at"`
	FinishedAt           time.Time        `json:"finished_at"`
	Attempted            int              `json:"attempted"`
	Sent                 int              `json:"sent"`
	SkippedDuplicate     int              `json:"skipped_duplicate"`
	SkippedExcluded      int              `json:"skipped_excluded"`
	VerificationRejected int              `json:"verification_rejected"`
	Bounced              int              `json:"bounced"`
	Failed               int              `json:"failed"`
	FollowUpsFired       int              `json:"followups_fired"`
	Replies              int              `json:"reply_count"`
	InterviewAlerts      []InterviewAlert `json:"interview_alerts,omitempty"`
}
