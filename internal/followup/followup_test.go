package followup

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sbiradar/outreach-cli/internal/config"
	"github.com/sbiradar/outreach-cli/internal/guard"
	"github.com/sbiradar/outreach-cli/internal/model"
	"github.com/sbiradar/outreach-cli/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newTestPlanner(t *testing.T) (*Planner, store.Store) {
	t.Helper()
	st := newTestStore(t)
	cfg := config.FollowUpConfig{Day3Offset: 3, Day7Offset: 7, Day14Offset: 14}
	return New(st, guard.New(st), cfg), st
}

func seedAttempt(t *testing.T, st store.Store, stage model.Stage) *model.SendAttempt {
	t.Helper()
	attempt := &model.SendAttempt{
		ID:           uuid.NewString(),
		ContactEmail: "careers@acme.com",
		Company:      "Acme Corp",
		JobTitle:     "Backend Engineer",
		Stage:        stage,
		Outcome:      model.AttemptSent,
		CreatedAt:    time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, st.RecordAttempt(context.Background(), attempt))
	return attempt
}

// countingSender records the stages it was asked to send.
type countingSender struct {
	stages []model.Stage
	err    error
}

func (s *countingSender) SendStage(_ context.Context, _ *model.SendAttempt, stage model.Stage) error {
	if s.err != nil {
		return s.err
	}
	s.stages = append(s.stages, stage)
	return nil
}

func TestScheduleNext_AnchorsToInitialSend(t *testing.T) {
	planner, st := newTestPlanner(t)
	ctx := context.Background()
	attempt := seedAttempt(t, st, model.StageInitial)

	require.NoError(t, planner.ScheduleNext(ctx, attempt, time.Now().UTC()))

	// Due three days after the initial send, not after scheduling time.
	due, err := st.DueFollowUps(ctx, attempt.CreatedAt.AddDate(0, 0, 3))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, model.StageDay3, due[0].Stage)
	assert.Equal(t, attempt.CreatedAt.AddDate(0, 0, 3), due[0].DueAt.UTC())
}

func TestScheduleNext_AfterDay14ClosesAttempt(t *testing.T) {
	planner, st := newTestPlanner(t)
	ctx := context.Background()
	attempt := seedAttempt(t, st, model.StageDay14)

	require.NoError(t, planner.ScheduleNext(ctx, attempt, time.Now().UTC()))

	got, err := st.GetAttempt(ctx, attempt.ID)
	require.NoError(t, err)
	assert.True(t, got.Done)
	assert.Equal(t, "followup sequence complete", got.DoneReason)
}

func TestRunDue_FiresAndAdvances(t *testing.T) {
	planner, st := newTestPlanner(t)
	ctx := context.Background()
	attempt := seedAttempt(t, st, model.StageInitial)
	require.NoError(t, planner.ScheduleNext(ctx, attempt, time.Now().UTC()))

	sender := &countingSender{}
	fired, err := planner.RunDue(ctx, attempt.CreatedAt.AddDate(0, 0, 4), sender)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)
	assert.Equal(t, []model.Stage{model.StageDay3}, sender.stages)

	got, err := st.GetAttempt(ctx, attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StageDay3, got.Stage)

	// The day7 task is now queued.
	due, err := st.DueFollowUps(ctx, attempt.CreatedAt.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, model.StageDay7, due[0].Stage)
}

func TestRunDue_ExclusionDiscardsTask(t *testing.T) {
	planner, st := newTestPlanner(t)
	ctx := context.Background()
	attempt := seedAttempt(t, st, model.StageInitial)
	require.NoError(t, planner.ScheduleNext(ctx, attempt, time.Now().UTC()))

	g := guard.New(st)
	require.NoError(t, g.Exclude(ctx, "Acme Corp", "", model.ReasonRejected))

	sender := &countingSender{}
	fired, err := planner.RunDue(ctx, attempt.CreatedAt.AddDate(0, 0, 4), sender)
	require.NoError(t, err)
	assert.Zero(t, fired)
	assert.Empty(t, sender.stages)

	got, err := st.GetAttempt(ctx, attempt.ID)
	require.NoError(t, err)
	assert.True(t, got.Done)
	assert.Equal(t, "excluded: rejected", got.DoneReason)

	// Discarded, not deferred: nothing left in the queue.
	due, err := st.DueFollowUps(ctx, attempt.CreatedAt.AddDate(0, 0, 100))
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestRunDue_Day14CompletesSequence(t *testing.T) {
	planner, st := newTestPlanner(t)
	ctx := context.Background()
	attempt := seedAttempt(t, st, model.StageDay7)

	task := &model.FollowUpTask{
		ID:        uuid.NewString(),
		AttemptID: attempt.ID,
		Stage:     model.StageDay14,
		DueAt:     attempt.CreatedAt.AddDate(0, 0, 14),
		CreatedAt: attempt.CreatedAt,
	}
	require.NoError(t, st.CreateFollowUp(ctx, task))

	sender := &countingSender{}
	fired, err := planner.RunDue(ctx, attempt.CreatedAt.AddDate(0, 0, 15), sender)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)

	got, err := st.GetAttempt(ctx, attempt.ID)
	require.NoError(t, err)
	assert.True(t, got.Done)

	due, err := st.DueFollowUps(ctx, attempt.CreatedAt.AddDate(0, 0, 100))
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestRunDue_SendFailureLeavesTaskQueued(t *testing.T) {
	planner, st := newTestPlanner(t)
	ctx := context.Background()
	attempt := seedAttempt(t, st, model.StageInitial)
	require.NoError(t, planner.ScheduleNext(ctx, attempt, time.Now().UTC()))

	sender := &countingSender{err: eris.New("relay down")}
	fired, err := planner.RunDue(ctx, attempt.CreatedAt.AddDate(0, 0, 4), sender)
	require.NoError(t, err)
	assert.Zero(t, fired)

	// Still queued for the next sweep.
	due, err := st.DueFollowUps(ctx, attempt.CreatedAt.AddDate(0, 0, 4))
	require.NoError(t, err)
	require.Len(t, due, 1)

	// The stage advance already happened; the retry path must accept the
	// same stage instead of treating it as a regression.
	sender.err = nil
	fired, err = planner.RunDue(ctx, attempt.CreatedAt.AddDate(0, 0, 4), sender)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)
}

func TestRunDue_RepliedAttemptDropsTask(t *testing.T) {
	planner, st := newTestPlanner(t)
	ctx := context.Background()
	attempt := seedAttempt(t, st, model.StageInitial)
	require.NoError(t, planner.ScheduleNext(ctx, attempt, time.Now().UTC()))
	require.NoError(t, st.UpdateAttemptOutcome(ctx, attempt.ID, model.AttemptReplied, "", ""))

	sender := &countingSender{}
	fired, err := planner.RunDue(ctx, attempt.CreatedAt.AddDate(0, 0, 4), sender)
	require.NoError(t, err)
	assert.Zero(t, fired)
	assert.Empty(t, sender.stages)

	due, err := st.DueFollowUps(ctx, attempt.CreatedAt.AddDate(0, 0, 100))
	require.NoError(t, err)
	assert.Empty(t, due)
}
