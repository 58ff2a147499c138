package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sbiradar/outreach-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. Declared as an
// interface so tests can substitute a pgxmock pool.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	company       TEXT NOT NULL,
	title         TEXT NOT NULL,
	source        TEXT NOT NULL DEFAULT '',
	keywords      JSONB NOT NULL DEFAULT '[]',
	discovered_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS contacts (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	email            TEXT NOT NULL UNIQUE,
	company          TEXT NOT NULL,
	company_key      TEXT NOT NULL,
	discovery_method TEXT NOT NULL DEFAULT 'scraped',
	score            INTEGER NOT NULL DEFAULT 0,
	outcome          TEXT NOT NULL DEFAULT 'unverified',
	discovered_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS attempts (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	contact_email TEXT NOT NULL,
	company       TEXT NOT NULL,
	company_key   TEXT NOT NULL,
	job_title     TEXT NOT NULL,
	stage         TEXT NOT NULL DEFAULT 'initial',
	outcome       TEXT NOT NULL DEFAULT 'pending',
	message_id    TEXT NOT NULL DEFAULT '',
	error         TEXT NOT NULL DEFAULT '',
	done          BOOLEAN NOT NULL DEFAULT false,
	done_reason   TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS exclusions (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	company       TEXT NOT NULL,
	company_key   TEXT NOT NULL,
	contact_email TEXT NOT NULL DEFAULT '',
	reason        TEXT NOT NULL,
	effective_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS followups (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	attempt_id TEXT NOT NULL REFERENCES attempts(id),
	stage      TEXT NOT NULL,
	due_at     TIMESTAMPTZ NOT NULL,
	done       BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_summaries (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	summary     JSONB NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS ux_attempts_active
	ON attempts(contact_email, job_title) WHERE outcome != 'failed';

CREATE INDEX IF NOT EXISTS idx_attempts_company_key ON attempts(company_key);
CREATE INDEX IF NOT EXISTS idx_contacts_company_key ON contacts(company_key);
CREATE INDEX IF NOT EXISTS idx_exclusions_company_key ON exclusions(company_key);
CREATE INDEX IF NOT EXISTS idx_followups_due ON followups(done, due_at);
CREATE INDEX IF NOT EXISTS idx_leads_discovered ON leads(discovered_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

// Leads

func (s *PostgresStore) InsertLead(ctx context.Context, lead *model.JobLead) error {
	if lead.ID == "" {
		lead.ID = uuid.New().String()
	}
	if lead.DiscoveredAt.IsZero() {
		lead.DiscoveredAt = time.Now().UTC()
	}
	keywordsJSON, err := json.Marshal(lead.Keywords)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal keywords")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO leads (id, company, title, source, keywords, discovered_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		lead.ID, lead.Company, lead.Title, lead.Source, keywordsJSON, lead.DiscoveredAt,
	)
	return eris.Wrap(err, "postgres: insert lead")
}

func (s *PostgresStore) ListLeads(ctx context.Context, limit int) ([]model.JobLead, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, company, title, source, keywords, discovered_at FROM leads
		 ORDER BY discovered_at ASC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	var leads []model.JobLead
	for rows.Next() {
		var l model.JobLead
		var keywordsJSON []byte
		if err := rows.Scan(&l.ID, &l.Company, &l.Title, &l.Source, &keywordsJSON, &l.DiscoveredAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		if err := json.Unmarshal(keywordsJSON, &l.Keywords); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal keywords")
		}
		leads = append(leads, l)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: list leads iterate")
}

// Contacts

func (s *PostgresStore) UpsertContact(ctx context.Context, contact *model.Contact) error {
	if contact.ID == "" {
		contact.ID = uuid.New().String()
	}
	if contact.DiscoveredAt.IsZero() {
		contact.DiscoveredAt = time.Now().UTC()
	}
	outcome := contact.Outcome
	if outcome == "" {
		outcome = model.OutcomeUnverified
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO contacts (id, email, company, company_key, discovery_method, score, outcome, discovered_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (email) DO UPDATE SET company = excluded.company, company_key = excluded.company_key`,
		contact.ID, strings.ToLower(strings.TrimSpace(contact.Email)), contact.Company,
		model.CompanyKey(contact.Company), string(contact.DiscoveryMethod),
		contact.VerificationScore, string(outcome), contact.DiscoveredAt,
	)
	return eris.Wrap(err, "postgres: upsert contact")
}

func (s *PostgresStore) GetContact(ctx context.Context, email string) (*model.Contact, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, email, company, discovery_method, score, outcome, discovered_at
		 FROM contacts WHERE email = $1`, strings.ToLower(strings.TrimSpace(email)),
	)
	c, err := scanContact(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get contact")
	}
	return c, nil
}

func (s *PostgresStore) ListContactsByCompany(ctx context.Context, company string) ([]model.Contact, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, email, company, discovery_method, score, outcome, discovered_at
		 FROM contacts WHERE company_key = $1 ORDER BY score DESC, discovered_at ASC`,
		model.CompanyKey(company),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list contacts")
	}
	defer rows.Close()

	var contacts []model.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan contact")
		}
		contacts = append(contacts, *c)
	}
	return contacts, eris.Wrap(rows.Err(), "postgres: list contacts iterate")
}

func (s *PostgresStore) UpdateContactVerification(ctx context.Context, email string, score int, outcome model.VerificationOutcome) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE contacts SET score = $1, outcome = $2 WHERE email = $3`,
		score, string(outcome), strings.ToLower(strings.TrimSpace(email)),
	)
	if err != nil {
		return eris.Wrap(err, "postgres: update contact verification")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "contact %s", email)
	}
	return nil
}

// Dedup ledger

func (s *PostgresStore) RecordAttempt(ctx context.Context, attempt *model.SendAttempt) error {
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
	_, err := s.pool.Exec(ctx,
		`INSERT INTO attempts (id, contact_email, company, company_key, job_title, stage, outcome,
		                       message_id, error, done, done_reason, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		attempt.ID, key.ContactEmail, attempt.Company, model.CompanyKey(attempt.Company),
		key.JobTitle, string(attempt.Stage), string(attempt.Outcome),
		attempt.MessageID, attempt.Error, attempt.Done, attempt.DoneReason,
		attempt.CreatedAt, attempt.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateAttempt
		}
		return eris.Wrap(err, "postgres: record attempt")
	}
	return nil
}

func (s *PostgresStore) AttemptExists(ctx context.Context, key model.AttemptKey) (bool, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(1) FROM attempts WHERE contact_email = $1 AND job_title = $2 AND outcome != 'failed'`,
		key.ContactEmail, key.JobTitle,
	).Scan(&n)
	if err != nil {
		return false, eris.Wrap(err, "postgres: attempt exists")
	}
	return n > 0, nil
}

const pgSelectAttempt = `SELECT id, contact_email, company, job_title, stage, outcome,
	message_id, error, done, done_reason, created_at, updated_at FROM attempts`

func (s *PostgresStore) GetAttempt(ctx context.Context, id string) (*model.SendAttempt, error) {
	row := s.pool.QueryRow(ctx, pgSelectAttempt+` WHERE id = $1`, id)
	return s.scanAttemptRow(row)
}

func (s *PostgresStore) GetAttemptByKey(ctx context.Context, key model.AttemptKey) (*model.SendAttempt, error) {
	row := s.pool.QueryRow(ctx,
		pgSelectAttempt+` WHERE contact_email = $1 AND job_title = $2 AND outcome != 'failed'`,
		key.ContactEmail, key.JobTitle,
	)
	return s.scanAttemptRow(row)
}

func (s *PostgresStore) scanAttemptRow(row pgx.Row) (*model.SendAttempt, error) {
	a, err := scanAttemptPg(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan attempt")
	}
	return a, nil
}

func (s *PostgresStore) UpdateAttemptOutcome(ctx context.Context, id string, outcome model.AttemptOutcome, messageID, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE attempts SET outcome = $1, message_id = $2, error = $3, updated_at = $4 WHERE id = $5`,
		string(outcome), messageID, errMsg, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: update attempt outcome")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "attempt %s", id)
	}
	return nil
}

func (s *PostgresStore) AdvanceAttemptStage(ctx context.Context, id string, stage model.Stage) error {
	current, err := s.GetAttempt(ctx, id)
	if err != nil {
		return err
	}
	if !current.Stage.Before(stage) {
		return ErrStageRegression
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE attempts SET stage = $1, updated_at = $2 WHERE id = $3 AND stage = $4`,
		string(stage), time.Now().UTC(), id, string(current.Stage),
	)
	if err != nil {
		return eris.Wrap(err, "postgres: advance attempt stage")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "attempt %s", id)
	}
	return nil
}

func (s *PostgresStore) MarkAttemptDone(ctx context.Context, id string, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE attempts SET done = true, done_reason = $1, updated_at = $2 WHERE id = $3`,
		reason, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: mark attempt done")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "attempt %s", id)
	}
	return nil
}

func (s *PostgresStore) CountContactsTried(ctx context.Context, company string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(DISTINCT contact_email) FROM attempts WHERE company_key = $1`,
		model.CompanyKey(company),
	).Scan(&n)
	return n, eris.Wrap(err, "postgres: count contacts tried")
}

func (s *PostgresStore) ListTriedEmails(ctx context.Context, company string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT contact_email FROM attempts WHERE company_key = $1`,
		model.CompanyKey(company),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list tried emails")
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, eris.Wrap(err, "postgres: scan tried email")
		}
		emails = append(emails, e)
	}
	return emails, eris.Wrap(rows.Err(), "postgres: list tried emails iterate")
}

func (s *PostgresStore) ListRepliedAttempts(ctx context.Context) ([]model.SendAttempt, error) {
	rows, err := s.pool.Query(ctx, pgSelectAttempt+` WHERE outcome = 'replied' ORDER BY updated_at ASC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list replied attempts")
	}
	defer rows.Close()

	var attempts []model.SendAttempt
	for rows.Next() {
		a, err := scanAttemptPg(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan replied attempt")
		}
		attempts = append(attempts, *a)
	}
	return attempts, eris.Wrap(rows.Err(), "postgres: list replied attempts iterate")
}

// Exclusions

func (s *PostgresStore) AddExclusion(ctx context.Context, entry *model.ExclusionEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.EffectiveAt.IsZero() {
		entry.EffectiveAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO exclusions (id, company, company_key, contact_email, reason, effective_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.Company, model.CompanyKey(entry.Company),
		strings.ToLower(entry.ContactEmail), string(entry.Reason), entry.EffectiveAt,
	)
	return eris.Wrap(err, "postgres: add exclusion")
}

func (s *PostgresStore) FindExclusion(ctx context.Context, companyKey, contactEmail string) (*model.ExclusionEntry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, company, contact_email, reason, effective_at FROM exclusions
		 WHERE company_key = $1 AND (contact_email = '' OR contact_email = $2)
		 ORDER BY effective_at ASC LIMIT 1`,
		companyKey, strings.ToLower(contactEmail),
	)
	var e model.ExclusionEntry
	err := row.Scan(&e.ID, &e.Company, &e.ContactEmail, &e.Reason, &e.EffectiveAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find exclusion")
	}
	return &e, nil
}

// Follow-up queue

func (s *PostgresStore) CreateFollowUp(ctx context.Context, task *model.FollowUpTask) error {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO followups (id, attempt_id, stage, due_at, done, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		task.ID, task.AttemptID, string(task.Stage), task.DueAt, task.Done, task.CreatedAt,
	)
	return eris.Wrap(err, "postgres: create followup")
}

func (s *PostgresStore) DueFollowUps(ctx context.Context, now time.Time) ([]model.FollowUpTask, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, attempt_id, stage, due_at, done, created_at FROM followups
		 WHERE done = false AND due_at <= $1 ORDER BY due_at ASC`, now.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: due followups")
	}
	defer rows.Close()

	var tasks []model.FollowUpTask
	for rows.Next() {
		var t model.FollowUpTask
		if err := rows.Scan(&t.ID, &t.AttemptID, &t.Stage, &t.DueAt, &t.Done, &t.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan followup")
		}
		tasks = append(tasks, t)
	}
	return tasks, eris.Wrap(rows.Err(), "postgres: due followups iterate")
}

func (s *PostgresStore) CompleteFollowUp(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE followups SET done = true WHERE id = $1`, id)
	if err != nil {
		return eris.Wrap(err, "postgres: complete followup")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "followup %s", id)
	}
	return nil
}

func (s *PostgresStore) CancelFollowUpsForAttempt(ctx context.Context, attemptID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE followups SET done = true WHERE attempt_id = $1 AND done = false`, attemptID,
	)
	return eris.Wrap(err, "postgres: cancel followups")
}

// Run summaries

func (s *PostgresStore) SaveRunSummary(ctx context.Context, summary *model.RunSummary) error {
	if summary.RunID == "" {
		summary.RunID = uuid.New().String()
	}
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summary")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO run_summaries (id, summary, started_at, finished_at) VALUES ($1, $2, $3, $4)`,
		summary.RunID, summaryJSON, summary.StartedAt, summary.FinishedAt,
	)
	return eris.Wrap(err, "postgres: save run summary")
}

func (s *PostgresStore) ListRunSummaries(ctx context.Context, limit int) ([]model.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT summary FROM run_summaries ORDER BY started_at DESC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list run summaries")
	}
	defer rows.Close()

	var summaries []model.RunSummary
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run summary")
		}
		var rs model.RunSummary
		if err := json.Unmarshal(raw, &rs); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal run summary")
		}
		summaries = append(summaries, rs)
	}
	return summaries, eris.Wrap(rows.Err(), "postgres: list run summaries iterate")
}

func scanAttemptPg(row pgx.Row) (*model.SendAttempt, error) {
	var a model.SendAttempt
	err := row.Scan(&a.ID, &a.ContactEmail, &a.Company, &a.JobTitle, &a.Stage, &a.Outcome,
		&a.MessageID, &a.Error, &a.Done, &a.DoneReason, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
