package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbiradar/outreach-cli/internal/model"
)

func newMockPostgres(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresWithPool(mock), mock
}

func TestPostgres_Migrate(t *testing.T) {
	st, mock := newMockPostgres(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS leads").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, st.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_RecordAttempt(t *testing.T) {
	st, mock := newMockPostgres(t)

	mock.ExpectExec("INSERT INTO attempts").
		WithArgs(pgxmock.AnyArg(), "hr@acme.com", "Acme", "acme", "backend engineer",
			"initial", "pending", "", "", false, "", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	a := &model.SendAttempt{ContactEmail: "HR@Acme.com", Company: "Acme", JobTitle: "Backend Engineer"}
	require.NoError(t, st.RecordAttempt(context.Background(), a))
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, model.StageInitial, a.Stage)
	assert.Equal(t, model.AttemptPending, a.Outcome)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_RecordAttempt_UniqueViolation(t *testing.T) {
	st, mock := newMockPostgres(t)

	mock.ExpectExec("INSERT INTO attempts").
		WithArgs(pgxmock.AnyArg(), "hr@acme.com", "Acme", "acme", "backend engineer",
			"initial", "pending", "", "", false, "", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "ux_attempts_active"})

	a := &model.SendAttempt{ContactEmail: "hr@acme.com", Company: "Acme", JobTitle: "Backend Engineer"}
	err := st.RecordAttempt(context.Background(), a)
	assert.ErrorIs(t, err, ErrDuplicateAttempt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_AttemptExists(t *testing.T) {
	st, mock := newMockPostgres(t)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs("hr@acme.com", "backend engineer").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))

	exists, err := st.AttemptExists(context.Background(), model.NewAttemptKey(" HR@Acme.com", "Backend Engineer "))
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_AdvanceAttemptStage_Regression(t *testing.T) {
	st, mock := newMockPostgres(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT id, contact_email").
		WithArgs("a1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "contact_email", "company", "job_title", "stage", "outcome",
			"message_id", "error", "done", "done_reason", "created_at", "updated_at",
		}).AddRow("a1", "hr@acme.com", "Acme", "backend engineer", "day7", "sent",
			"", "", false, "", now, now))

	err := st.AdvanceAttemptStage(context.Background(), "a1", model.StageDay3)
	assert.ErrorIs(t, err, ErrStageRegression)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateAttemptOutcome_NotFound(t *testing.T) {
	st, mock := newMockPostgres(t)

	mock.ExpectExec("UPDATE attempts SET outcome").
		WithArgs("sent", "mid-1", "", pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := st.UpdateAttemptOutcome(context.Background(), "missing", model.AttemptSent, "mid-1", "")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FindExclusion(t *testing.T) {
	st, mock := newMockPostgres(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT id, company, contact_email, reason, effective_at FROM exclusions").
		WithArgs("acme", "hr@acme.com").
		WillReturnRows(pgxmock.NewRows([]string{"id", "company", "contact_email", "reason", "effective_at"}).
			AddRow("e1", "Acme", "", "interviewed", now))

	e, err := st.FindExclusion(context.Background(), "acme", "hr@acme.com")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, model.ReasonInterviewed, e.Reason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FindExclusion_NoMatch(t *testing.T) {
	st, mock := newMockPostgres(t)

	mock.ExpectQuery("SELECT id, company, contact_email, reason, effective_at FROM exclusions").
		WithArgs("globex", "hr@globex.com").
		WillReturnRows(pgxmock.NewRows([]string{"id", "company", "contact_email", "reason", "effective_at"}))

	e, err := st.FindExclusion(context.Background(), "globex", "hr@globex.com")
	require.NoError(t, err)
	assert.Nil(t, e)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_DueFollowUps(t *testing.T) {
	st, mock := newMockPostgres(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT id, attempt_id, stage, due_at, done, created_at FROM followups").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "attempt_id", "stage", "due_at", "done", "created_at"}).
			AddRow("f1", "a1", "day3", now.Add(-time.Hour), false, now.Add(-72*time.Hour)))

	tasks, err := st.DueFollowUps(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, model.StageDay3, tasks[0].Stage)
	assert.NoError(t, mock.ExpectationsWereMet())
}
