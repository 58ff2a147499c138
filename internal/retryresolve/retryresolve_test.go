package retryresolve

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
	"github.com/sbiradar/outreach-cli/internal/model"
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

func newTestResolver(t *testing.T) (*Resolver, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	vcfg := config.VerifierConfig{
		SyntaxWeight:      20,
		MXWeight:          30,
		HRPatternWeight:   20,
		CorporateWeight:   15,
		DomainMatchWeight: 15,
		VerifiedThreshold: 60,
		DNSTimeoutSecs:    1,
		FreeDomains:       []string{"gmail.com"},
		SystemPrefixes:    []string{"noreply"},
		HRKeywords:        []string{"career", "hr", "recruit"},
	}
	v := verifier.New(vcfg, fakeResolver{})
	return New(st, v, config.RetryConfig{MaxContactsPerCompany: 2}), st
}

func seedContact(t *testing.T, st store.Store, email string) {
	t.Helper()
	require.NoError(t, st.UpsertContact(context.Background(), &model.Contact{
		ID:              uuid.NewString(),
		Email:           email,
		Company:         "Acme Corp",
		DiscoveryMethod: model.DiscoveryPattern,
		Outcome:         model.OutcomeUnverified,
		DiscoveredAt:    time.Now().UTC(),
	}))
}

func bouncedAttempt(t *testing.T, st store.Store, email string) *model.SendAttempt {
	t.Helper()
	attempt := &model.SendAttempt{
		ID:           uuid.NewString(),
		ContactEmail: email,
		Company:      "Acme Corp",
		JobTitle:     "Backend Engineer",
		Stage:        model.StageInitial,
		Outcome:      model.AttemptPending,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, st.RecordAttempt(context.Background(), attempt))
	require.NoError(t, st.UpdateAttemptOutcome(context.Background(), attempt.ID, model.AttemptBounced, "", "550 no such user"))
	attempt.Outcome = model.AttemptBounced
	return attempt
}

func TestResolve_PicksVerifiedAlternate(t *testing.T) {
	r, st := newTestResolver(t)
	ctx := context.Background()

	seedContact(t, st, "hr@acmecorp.com")
	seedContact(t, st, "careers@acmecorp.com")
	bounced := bouncedAttempt(t, st, "hr@acmecorp.com")

	alt, err := r.Resolve(ctx, bounced)
	require.NoError(t, err)
	require.NotNil(t, alt)
	assert.Equal(t, "careers@acmecorp.com", alt.Email)
	assert.Equal(t, model.OutcomeVerified, alt.Outcome)

	// The verification verdict was persisted.
	saved, err := st.GetContact(ctx, "careers@acmecorp.com")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeVerified, saved.Outcome)
	assert.NotZero(t, saved.VerificationScore)
}

func TestResolve_SkipsUnverifiableContacts(t *testing.T) {
	r, st := newTestResolver(t)
	ctx := context.Background()

	seedContact(t, st, "hr@acmecorp.com")
	// A personal address at a free provider scores below the threshold.
	seedContact(t, st, "bob@gmail.com")
	bounced := bouncedAttempt(t, st, "hr@acmecorp.com")

	alt, err := r.Resolve(ctx, bounced)
	require.NoError(t, err)
	assert.Nil(t, alt)
}

func TestResolve_CeilingStopsRetries(t *testing.T) {
	r, st := newTestResolver(t)
	ctx := context.Background()

	seedContact(t, st, "hr@acmecorp.com")
	seedContact(t, st, "careers@acmecorp.com")
	seedContact(t, st, "talent@acmecorp.com")

	// Two distinct contacts already in the ledger hits the ceiling.
	bouncedAttempt(t, st, "hr@acmecorp.com")
	bounced := bouncedAttempt(t, st, "careers@acmecorp.com")

	alt, err := r.Resolve(ctx, bounced)
	require.NoError(t, err)
	assert.Nil(t, alt)
}

func TestResolve_NeverReusesTriedAddress(t *testing.T) {
	r, st := newTestResolver(t)
	ctx := context.Background()

	seedContact(t, st, "hr@acmecorp.com")
	bounced := bouncedAttempt(t, st, "HR@AcmeCorp.com")

	// The only contact is the one that bounced, despite the case difference.
	alt, err := r.Resolve(ctx, bounced)
	require.NoError(t, err)
	assert.Nil(t, alt)
}

func TestResolve_NoContactsAtCompany(t *testing.T) {
	r, st := newTestResolver(t)
	ctx := context.Background()

	seedContact(t, st, "hr@acmecorp.com")
	bounced := bouncedAttempt(t, st, "hr@acmecorp.com")

	alt, err := r.Resolve(ctx, bounced)
	require.NoError(t, err)
	assert.Nil(t, alt)
}
