package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sbiradar/outreach-cli/internal/model"
)

// ErrDuplicateAttempt is returned by RecordAttempt when a non-failed
// attempt already holds the composite key. A racing writer receives this
// error; it never silently overwrites.
var ErrDuplicateAttempt = eris.New("store: duplicate attempt")

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = eris.New("store: not found")

// ErrStageRegression is returned when an attempt stage would move backward.
var ErrStageRegression = eris.New("store: stage may only advance forward")

// Store defines the durable state behind the campaign scheduler: the dedup
// ledger, the exclusion set, the follow-up queue, and the ingested
// lead/contact records. Every implementation must make RecordAttempt
// atomic per composite key.
type Store interface {
	// Leads
	InsertLead(ctx context.Context, lead *model.JobLead) error
	ListLeads(ctx context.Context, limit int) ([]model.JobLead, error)

	// Contacts
	UpsertContact(ctx context.Context, contact *model.Contact) error
	GetContact(ctx context.Context, email string) (*model.Contact, error)
	ListContactsByCompany(ctx context.Context, company string) ([]model.Contact, error)
	UpdateContactVerification(ctx context.Context, email string, score int, outcome model.VerificationOutcome) error

	// Dedup ledger
	RecordAttempt(ctx context.Context, attempt *model.SendAttempt) error
	AttemptExists(ctx context.Context, key model.AttemptKey) (bool, error)
	GetAttempt(ctx context.Context, id string) (*model.SendAttempt, error)
	GetAttemptByKey(ctx context.Context, key model.AttemptKey) (*model.SendAttempt, error)
	UpdateAttemptOutcome(ctx context.Context, id string, outcome model.AttemptOutcome, messageID, errMsg string) error
	AdvanceAttemptStage(ctx context.Context, id string, stage model.Stage) error
	MarkAttemptDone(ctx context.Context, id string, reason string) error
	CountContactsTried(ctx context.Context, company string) (int, error)
	ListTriedEmails(ctx context.Context, company string) ([]string, error)
	ListRepliedAttempts(ctx context.Context) ([]model.SendAttempt, error)

	// Exclusions
	AddExclusion(ctx context.Context, entry *model.ExclusionEntry) error
	FindExclusion(ctx context.Context, companyKey, contactEmail string) (*model.ExclusionEntry, error)

	// Follow-up queue
	CreateFollowUp(ctx context.Context, task *model.FollowUpTask) error
	DueFollowUps(ctx context.Context, now time.Time) ([]model.FollowUpTask, error)
	CompleteFollowUp(ctx context.Context, id string) error
	CancelFollowUpsForAttempt(ctx context.Context, attemptID string) error

	// Run summaries
	SaveRunSummary(ctx context.Context, summary *model.RunSummary) error
	ListRunSummaries(ctx context.Context, limit int) ([]model.RunSummary, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
