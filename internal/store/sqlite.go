package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sbiradar/outreach-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id            TEXT PRIMARY KEY,
	company       TEXT NOT NULL,
	title         TEXT NOT NULL,
	source        TEXT NOT NULL DEFAULT '',
	keywords      TEXT NOT NULL DEFAULT '[]',
	discovered_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS contacts (
	id               TEXT PRIMARY KEY,
	email            TEXT NOT NULL UNIQUE,
	company          TEXT NOT NULL,
	company_key      TEXT NOT NULL,
	discovery_method TEXT NOT NULL DEFAULT 'scraped',
	score            INTEGER NOT NULL DEFAULT 0,
	outcome          TEXT NOT NULL DEFAULT 'unverified',
	discovered_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS attempts (
	id            TEXT PRIMARY KEY,
	contact_email TEXT NOT NULL,
	company       TEXT NOT NULL,
	company_key   TEXT NOT NULL,
	job_title     TEXT NOT NULL,
	stage         TEXT NOT NULL DEFAULT 'initial',
	outcome       TEXT NOT NULL DEFAULT 'pending',
	message_id    TEXT NOT NULL DEFAULT '',
	error         TEXT NOT NULL DEFAULT '',
	done          INTEGER NOT NULL DEFAULT 0,
	done_reason   TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS exclusions (
	id            TEXT PRIMARY KEY,
	company       TEXT NOT NULL,
	company_key   TEXT NOT NULL,
	contact_email TEXT NOT NULL DEFAULT '',
	reason        TEXT NOT NULL,
	effective_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS followups (
	id         TEXT PRIMARY KEY,
	attempt_id TEXT NOT NULL REFERENCES attempts(id),
	stage      TEXT NOT NULL,
	due_at     DATETIME NOT NULL,
	done       INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS run_summaries (
	id          TEXT PRIMARY KEY,
	summary     TEXT NOT NULL,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME NOT NULL
);

-- The dedup invariant: at most one non-failed attempt per composite key.
-- A failed attempt frees the key for a later run.
CREATE UNIQUE INDEX IF NOT EXISTS ux_attempts_active
	ON attempts(contact_email, job_title) WHERE outcome != 'failed';

CREATE INDEX IF NOT EXISTS idx_attempts_company_key ON attempts(company_key);
CREATE INDEX IF NOT EXISTS idx_contacts_company_key ON contacts(company_key);
CREATE INDEX IF NOT EXISTS idx_exclusions_company_key ON exclusions(company_key);
CREATE INDEX IF NOT EXISTS idx_followups_due ON followups(done, due_at);
CREATE INDEX IF NOT EXISTS idx_leads_discovered ON leads(discovered_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Leads

func (s *SQLiteStore) InsertLead(ctx context.Context, lead *model.JobLead) error {
	if lead.ID == "" {
		lead.ID = uuid.New().String()
	}
	if lead.DiscoveredAt.IsZero() {
		lead.DiscoveredAt = time.Now().UTC()
	}
	keywordsJSON, err := json.Marshal(lead.Keywords)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal keywords")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO leads (id, company, title, source, keywords, discovered_at) VALUES (?, ?, ?, ?, ?, ?)`,
		lead.ID, lead.Company, lead.Title, lead.Source, string(keywordsJSON), lead.DiscoveredAt,
	)
	return eris.Wrap(err, "sqlite: insert lead")
}

func (s *SQLiteStore) ListLeads(ctx context.Context, limit int) ([]model.JobLead, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, company, title, source, keywords, discovered_at FROM leads
		 ORDER BY discovered_at ASC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close()

	var leads []model.JobLead
	for rows.Next() {
		var l model.JobLead
		var keywordsJSON string
		if err := rows.Scan(&l.ID, &l.Company, &l.Title, &l.Source, &keywordsJSON, &l.DiscoveredAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		if err := json.Unmarshal([]byte(keywordsJSON), &l.Keywords); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal keywords")
		}
		leads = append(leads, l)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: list leads iterate")
}

// Contacts

func (s *SQLiteStore) UpsertContact(ctx context.Context, contact *model.Contact) error {
	if contact.ID == "" {
		contact.ID = uuid.New().String()
	}
	if contact.DiscoveredAt.IsZero() {
		contact.DiscoveredAt = time.Now().UTC()
	}
	email := strings.ToLower(strings.TrimSpace(contact.Email))
	outcome := contact.Outcome
	if outcome == "" {
		outcome = model.OutcomeUnverified
	}
	// Existing verification state wins on conflict: a re-ingested contact
	// must not reset its score.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contacts (id, email, company, company_key, discovery_method, score, outcome, discovered_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(email) DO UPDATE SET company = excluded.company, company_key = excluded.company_key`,
		contact.ID, email, contact.Company, model.CompanyKey(contact.Company),
		string(contact.DiscoveryMethod), contact.VerificationScore, string(outcome), contact.DiscoveredAt,
	)
	return eris.Wrap(err, "sqlite: upsert contact")
}

func (s *SQLiteStore) GetContact(ctx context.Context, email string) (*model.Contact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, email, company, discovery_method, score, outcome, discovered_at
		 FROM contacts WHERE email = ?`, strings.ToLower(strings.TrimSpace(email)),
	)
	c, err := scanContact(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get contact")
	}
	return c, nil
}

func (s *SQLiteStore) ListContactsByCompany(ctx context.Context, company string) ([]model.Contact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, email, company, discovery_method, score, outcome, discovered_at
		 FROM contacts WHERE company_key = ? ORDER BY score DESC, discovered_at ASC`,
		model.CompanyKey(company),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list contacts")
	}
	defer rows.Close()

	var contacts []model.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan contact")
		}
		contacts = append(contacts, *c)
	}
	return contacts, eris.Wrap(rows.Err(), "sqlite: list contacts iterate")
}

func (s *SQLiteStore) UpdateContactVerification(ctx context.Context, email string, score int, outcome model.VerificationOutcome) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE contacts SET score = ?, outcome = ? WHERE email = ?`,
		score, string(outcome), strings.ToLower(strings.TrimSpace(email)),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: update contact verification")
	}
	return checkRowsAffected(res, "contact", email)
}

// Dedup ledger

func (s *SQLiteStore) RecordAttempt(ctx context.Context, attempt *model.SendAttempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = now
	}
	attempt.UpdatedAt = now
	if attempt.Stage == "" {
		attempt.Stage = model.StageInitial
	}
	if attempt.Outcome == "" {
		attempt.Outcome = model.AttemptPending
	}

	key := attempt.Key()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attempts (id, contact_email, company, company_key, job_title, stage, outcome,
		                       message_id, error, done, done_reason, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		attempt.ID, key.ContactEmail, attempt.Company, model.CompanyKey(attempt.Company),
		key.JobTitle, string(attempt.Stage), string(attempt.Outcome),
		attempt.MessageID, attempt.Error, boolToInt(attempt.Done), attempt.DoneReason,
		attempt.CreatedAt, attempt.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateAttempt
		}
		return eris.Wrap(err, "sqlite: record attempt")
	}
	return nil
}

func (s *SQLiteStore) AttemptExists(ctx context.Context, key model.AttemptKey) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM attempts WHERE contact_email = ? AND job_title = ? AND outcome != 'failed'`,
		key.ContactEmail, key.JobTitle,
	).Scan(&n)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: attempt exists")
	}
	return n > 0, nil
}

func (s *SQLiteStore) GetAttempt(ctx context.Context, id string) (*model.SendAttempt, error) {
	row := s.db.QueryRowContext(ctx, selectAttempt+` WHERE id = ?`, id)
	return s.scanAttemptRow(row)
}

func (s *SQLiteStore) GetAttemptByKey(ctx context.Context, key model.AttemptKey) (*model.SendAttempt, error) {
	row := s.db.QueryRowContext(ctx,
		selectAttempt+` WHERE contact_email = ? AND job_title = ? AND outcome != 'failed'`,
		key.ContactEmail, key.JobTitle,
	)
	return s.scanAttemptRow(row)
}

const selectAttempt = `SELECT id, contact_email, company, job_title, stage, outcome,
	message_id, error, done, done_reason, created_at, updated_at FROM attempts`

func (s *SQLiteStore) scanAttemptRow(row scannable) (*model.SendAttempt, error) {
	a, err := scanAttempt(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan attempt")
	}
	return a, nil
}

func (s *SQLiteStore) UpdateAttemptOutcome(ctx context.Context, id string, outcome model.AttemptOutcome, messageID, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE attempts SET outcome = ?, message_id = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(outcome), messageID, errMsg, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: update attempt outcome")
	}
	return checkRowsAffected(res, "attempt", id)
}

// AdvanceAttemptStage moves an attempt to the next stage. The update is
// optimistic: it only applies while the row still holds the stage we read,
// so concurrent planners cannot leapfrog or regress a stage.
func (s *SQLiteStore) AdvanceAttemptStage(ctx context.Context, id string, stage model.Stage) error {
	current, err := s.GetAttempt(ctx, id)
	if err != nil {
		return err
	}
	if !current.Stage.Before(stage) {
		return ErrStageRegression
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE attempts SET stage = ?, updated_at = ? WHERE id = ? AND stage = ?`,
		string(stage), time.Now().UTC(), id, string(current.Stage),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: advance attempt stage")
	}
	return checkRowsAffected(res, "attempt", id)
}

func (s *SQLiteStore) MarkAttemptDone(ctx context.Context, id string, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE attempts SET done = 1, done_reason = ?, updated_at = ? WHERE id = ?`,
		reason, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: mark attempt done")
	}
	return checkRowsAffected(res, "attempt", id)
}

func (s *SQLiteStore) CountContactsTried(ctx context.Context, company string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT contact_email) FROM attempts WHERE company_key = ?`,
		model.CompanyKey(company),
	).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count contacts tried")
}

func (s *SQLiteStore) ListTriedEmails(ctx context.Context, company string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT contact_email FROM attempts WHERE company_key = ?`,
		model.CompanyKey(company),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list tried emails")
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan tried email")
		}
		emails = append(emails, e)
	}
	return emails, eris.Wrap(rows.Err(), "sqlite: list tried emails iterate")
}

func (s *SQLiteStore) ListRepliedAttempts(ctx context.Context) ([]model.SendAttempt, error) {
	rows, err := s.db.QueryContext(ctx, selectAttempt+` WHERE outcome = 'replied' ORDER BY updated_at ASC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list replied attempts")
	}
	defer rows.Close()

	var attempts []model.SendAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan replied attempt")
		}
		attempts = append(attempts, *a)
	}
	return attempts, eris.Wrap(rows.Err(), "sqlite: list replied attempts iterate")
}

// Exclusions

func (s *SQLiteStore) AddExclusion(ctx context.Context, entry *model.ExclusionEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.EffectiveAt.IsZero() {
		entry.EffectiveAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO exclusions (id, company, company_key, contact_email, reason, effective_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Company, model.CompanyKey(entry.Company),
		strings.ToLower(entry.ContactEmail), string(entry.Reason), entry.EffectiveAt,
	)
	return eris.Wrap(err, "sqlite: add exclusion")
}

// FindExclusion returns the earliest matching entry: a company-level entry
// (empty contact_email) matches any contact at the company.
func (s *SQLiteStore) FindExclusion(ctx context.Context, companyKey, contactEmail string) (*model.ExclusionEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, company, contact_email, reason, effective_at FROM exclusions
		 WHERE company_key = ? AND (contact_email = '' OR contact_email = ?)
		 ORDER BY effective_at ASC LIMIT 1`,
		companyKey, strings.ToLower(contactEmail),
	)
	var e model.ExclusionEntry
	err := row.Scan(&e.ID, &e.Company, &e.ContactEmail, &e.Reason, &e.EffectiveAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find exclusion")
	}
	return &e, nil
}

// Follow-up queue

func (s *SQLiteStore) CreateFollowUp(ctx context.Context, task *model.FollowUpTask) error {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO followups (id, attempt_id, stage, due_at, done, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		task.ID, task.AttemptID, string(task.Stage), task.DueAt, boolToInt(task.Done), task.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: create followup")
}

func (s *SQLiteStore) DueFollowUps(ctx context.Context, now time.Time) ([]model.FollowUpTask, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, attempt_id, stage, due_at, done, created_at FROM followups
		 WHERE done = 0 AND due_at <= ? ORDER BY due_at ASC`, now.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: due followups")
	}
	defer rows.Close()

	var tasks []model.FollowUpTask
	for rows.Next() {
		var t model.FollowUpTask
		var done int
		if err := rows.Scan(&t.ID, &t.AttemptID, &t.Stage, &t.DueAt, &done, &t.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan followup")
		}
		t.Done = done != 0
		tasks = append(tasks, t)
	}
	return tasks, eris.Wrap(rows.Err(), "sqlite: due followups iterate")
}

func (s *SQLiteStore) CompleteFollowUp(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE followups SET done = 1 WHERE id = ?`, id)
	if err != nil {
		return eris.Wrap(err, "sqlite: complete followup")
	}
	return checkRowsAffected(res, "followup", id)
}

func (s *SQLiteStore) CancelFollowUpsForAttempt(ctx context.Context, attemptID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE followups SET done = 1 WHERE attempt_id = ? AND done = 0`, attemptID,
	)
	return eris.Wrap(err, "sqlite: cancel followups")
}

// Run summaries

func (s *SQLiteStore) SaveRunSummary(ctx context.Context, summary *model.RunSummary) error {
	if summary.RunID == "" {
		summary.RunID = uuid.New().String()
	}
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO run_summaries (id, summary, started_at, finished_at) VALUES (?, ?, ?, ?)`,
		summary.RunID, string(summaryJSON), summary.StartedAt, summary.FinishedAt,
	)
	return eris.Wrap(err, "sqlite: save run summary")
}

func (s *SQLiteStore) ListRunSummaries(ctx context.Context, limit int) ([]model.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT summary FROM run_summaries ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list run summaries")
	}
	defer rows.Close()

	var summaries []model.RunSummary
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run summary")
		}
		var rs model.RunSummary
		if err := json.Unmarshal([]byte(raw), &rs); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal run summary")
		}
		summaries = append(summaries, rs)
	}
	return summaries, eris.Wrap(rows.Err(), "sqlite: list run summaries iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func scanContact(row scannable) (*model.Contact, error) {
	var c model.Contact
	err := row.Scan(&c.ID, &c.Email, &c.Company, &c.DiscoveryMethod, &c.VerificationScore, &c.Outcome, &c.DiscoveredAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanAttempt(row scannable) (*model.SendAttempt, error) {
	var a model.SendAttempt
	var done int
	err := row.Scan(&a.ID, &a.ContactEmail, &a.Company, &a.JobTitle, &a.Stage, &a.Outcome,
		&a.MessageID, &a.Error, &done, &a.DoneReason, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Done = done != 0
	return &a, nil
}
