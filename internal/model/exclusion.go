package model

import "time"

// ExclusionReason explains why a company or contact is suppressed.
type ExclusionReason string

const (
	ReasonInterviewed ExclusionReason = "interviewed"
	ReasonRejected    ExclusionReason = "rejected"
	ReasonBlacklisted ExclusionReason = "blacklisted"
)

// ExclusionEntry is a permanent suppression rule. A company-level entry
// (empty ContactEmail) blocks every contact at that company. Entries never
// expire and are never mutated once recorded.
type ExclusionEntry struct {
	ID           string          `json:"id"`
	Company      string          `json:"company"`
	ContactEmail string          `json:"contact_email,omitempty"`
	Reason       ExclusionReason `json:"reason"`
	EffectiveAt  time.Time       `json:"effective_at"`
}

// FollowUpTask schedules a future follow-up send for an attempt that
// reached sent with no reply. Consumed by the follow-up planner when due.
type FollowUpTask struct {
	ID        string    `json:"id"`
	AttemptID string    `json:"attempt_id"`
	Stage     Stage     `json:"stage"`
	DueAt     time.Time `json:"due_at"`
	Done      bool      `json:"done"`
	CreatedAt time.Time `json:"created_at"`
}

// Due reports whether the task should fire at the given time.
func (t FollowUpTask) Due(now time.Time) bool {
	return !t.Done && !now.Before(t.DueAt)
}
