package signals

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sbiradar/outreach-cli/internal/config"
	"github.com/sbiradar/outreach-cli/internal/guard"
	"github.com/sbiradar/outreach-cli/internal/model"
	"github.com/sbiradar/outreach-cli/internal/retryresolve"
	"github.com/sbiradar/outreach-cli/internal/store"
	"github.com/sbiradar/outreach-cli/internal/verifier"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeResolver struct{}

func (fakeResolver) LookupMX(_ context.Context, domain string) ([]*net.MX, error) {
	return []*net.MX{{Host: "mx." + domain, Pref: 10}}, nil
}

func newTestProcessor(t *testing.T) (*Processor, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	v := verifier.New(config.VerifierConfig{
		SyntaxWeight:      20,
		MXWeight:          30,
		HRPatternWeight:   20,
		CorporateWeight:   15,
		DomainMatchWeight: 15,
		VerifiedThreshold: 60,
		DNSTimeoutSecs:    1,
		HRKeywords:        []string{"career", "hr"},
	}, fakeResolver{})
	r := retryresolve.New(st, v, config.RetryConfig{MaxContactsPerCompany: 2})
	return New(st, guard.New(st), r), st
}

func seedSentAttempt(t *testing.T, st store.Store) *model.SendAttempt {
	t.Helper()
	attempt := &model.SendAttempt{
		ID:           uuid.NewString(),
		ContactEmail: "hr@acmecorp.com",
		Company:      "Acme Corp",
		JobTitle:     "Backend Engineer",
		Stage:        model.StageInitial,
		Outcome:      model.AttemptSent,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, st.RecordAttempt(context.Background(), attempt))
	require.NoError(t, st.CreateFollowUp(context.Background(), &model.FollowUpTask{
		ID:        uuid.NewString(),
		AttemptID: attempt.ID,
		Stage:     model.StageDay3,
		DueAt:     attempt.CreatedAt.AddDate(0, 0, 3),
		CreatedAt: attempt.CreatedAt,
	}))
	return attempt
}

func TestApply_ReplyClosesAttemptAndCancelsFollowUps(t *testing.T) {
	p, st := newTestProcessor(t)
	ctx := context.Background()
	attempt := seedSentAttempt(t, st)

	alert, err := p.Apply(ctx, model.ReplySignal{
		ContactEmail:   "HR@AcmeCorp.com",
		JobTitle:       "Backend Engineer",
		Classification: model.ClassReplied,
		ReceivedAt:     time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Nil(t, alert)

	got, err := st.GetAttempt(ctx, attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptReplied, got.Outcome)
	assert.True(t, got.Done)
	assert.Equal(t, "replied", got.DoneReason)

	due, err := st.DueFollowUps(ctx, attempt.CreatedAt.AddDate(0, 0, 30))
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestApply_InterviewExcludesCompany(t *testing.T) {
	p, st := newTestProcessor(t)
	ctx := context.Background()
	seedSentAttempt(t, st)

	alert, err := p.Apply(ctx, model.ReplySignal{
		ContactEmail:   "hr@acmecorp.com",
		JobTitle:       "Backend Engineer",
		Classification: model.ClassReplied,
		Interview:      true,
	})
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, "Acme Corp", alert.Company)

	entry, err := st.FindExclusion(ctx, model.CompanyKey("Acme Corp"), "anyone@acmecorp.com")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, model.ReasonInterviewed, entry.Reason)
}

func TestApply_BounceResolvesAlternate(t *testing.T) {
	p, st := newTestProcessor(t)
	ctx := context.Background()
	attempt := seedSentAttempt(t, st)

	require.NoError(t, st.UpsertContact(ctx, &model.Contact{
		ID:              uuid.NewString(),
		Email:           "careers@acmecorp.com",
		Company:         "Acme Corp",
		DiscoveryMethod: model.DiscoveryPattern,
		Outcome:         model.OutcomeUnverified,
		DiscoveredAt:    time.Now().UTC(),
	}))

	alert, err := p.Apply(ctx, model.ReplySignal{
		ContactEmail:   "hr@acmecorp.com",
		JobTitle:       "Backend Engineer",
		Classification: model.ClassBounced,
	})
	require.NoError(t, err)
	assert.Nil(t, alert)

	got, err := st.GetAttempt(ctx, attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptBounced, got.Outcome)

	// The alternate was verified and is ready for the next run.
	alt, err := st.GetContact(ctx, "careers@acmecorp.com")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeVerified, alt.Outcome)
}

func TestApply_NoSignalIsNoop(t *testing.T) {
	p, st := newTestProcessor(t)
	ctx := context.Background()
	attempt := seedSentAttempt(t, st)

	alert, err := p.Apply(ctx, model.ReplySignal{
		ContactEmail:   "hr@acmecorp.com",
		JobTitle:       "Backend Engineer",
		Classification: model.ClassNoSignal,
	})
	require.NoError(t, err)
	assert.Nil(t, alert)

	got, err := st.GetAttempt(ctx, attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptSent, got.Outcome)
}

func TestApply_UnknownAttemptIgnored(t *testing.T) {
	p, _ := newTestProcessor(t)

	alert, err := p.Apply(context.Background(), model.ReplySignal{
		ContactEmail:   "nobody@nowhere.com",
		JobTitle:       "Ghost Role",
		Classification: model.ClassReplied,
	})
	require.NoError(t, err)
	assert.Nil(t, alert)
}
