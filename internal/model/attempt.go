package model

import (
	"fmt"
	"strings"
	"time"
)

// Stage is the outreach stage of a send attempt.
type Stage string

const (
	StageInitial Stage = "initial"
	StageDay3    Stage = "day3"
	StageDay7    Stage = "day7"
	StageDay14   Stage = "day14"
)

// stageOrder defines the forward-only progression of stages.
var stageOrder = map[Stage]int{
	StageInitial: 0,
	StageDay3:    1,
	StageDay7:    2,
	StageDay14:   3,
}

// Next returns the stage that follows s, or "" if s is terminal or unknown.
func (s Stage) Next() Stage {
	switch s {
	case StageInitial:
		return StageDay3
	case StageDay3:
		return StageDay7
	case StageDay7:
		return StageDay14
	default:
		return ""
	}
}

// Before reports whether s precedes other in the stage progression.
func (s Stage) Before(other Stage) bool {
	si, ok1 := stageOrder[s]
	oi, ok2 := stageOrder[other]
	return ok1 && ok2 && si < oi
}

// AttemptOutcome is the delivery outcome of a send attempt.
type AttemptOutcome string

const (
	AttemptPending AttemptOutcome = "pending"
	AttemptSent    AttemptOutcome = "sent"
	AttemptBounced AttemptOutcome = "bounced"
	AttemptReplied AttemptOutcome = "replied"
	AttemptFailed  AttemptOutcome = "failed"
)

// Terminal reports whether the outcome permanently closes the attempt key.
// A failed attempt frees its composite key for a later run.
func (o AttemptOutcome) Terminal() bool {
	return o == AttemptReplied || o == AttemptBounced
}

// AttemptKey is the dedup ledger's composite key. At most one non-failed
// attempt may exist per key.
type AttemptKey struct {
	ContactEmail string
	JobTitle     string
}

// NewAttemptKey folds case so that the same recipient and title always map
// to the same ledger key.
func NewAttemptKey(contactEmail, jobTitle string) AttemptKey {
	return AttemptKey{
		ContactEmail: strings.ToLower(strings.TrimSpace(contactEmail)),
		JobTitle:     strings.ToLower(strings.TrimSpace(jobTitle)),
	}
}

func (k AttemptKey) String() string {
	return fmt.Sprintf("%s|%s", k.ContactEmail, k.JobTitle)
}

// SendAttempt is the unit the dedup ledger tracks.
type SendAttempt struct {
	ID           string         `json:"id"`
	ContactEmail string         `json:"contact_email"`
	Company      string         `json:"company"`
	JobTitle     string         `json:"job_title"`
	Stage        Stage          `json:"stage"`
	Outcome      AttemptOutcome `json:"outcome"`
	MessageID    string         `json:"message_id,omitempty"`
	Error        string         `json:"error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	Done         bool           `json:"done"`
	DoneReason   string         `json:"done_reason,omitempty"`
}

// Key returns the attempt's dedup ledger key.
func (a SendAttempt) Key() AttemptKey {
	return NewAttemptKey(a.ContactEmail, a.JobTitle)
}
