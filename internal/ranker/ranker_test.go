package ranker

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbiradar/outreach-cli/internal/config"
	"github.com/sbiradar/outreach-cli/internal/model"
)

func testRankerConfig() config.RankerConfig {
	return config.RankerConfig{
		FlagshipCompanies: []string{"Stripe", "Google"},
		ScalingCompanies:  []string{"Razorpay"},
		FlagshipBonus:     30,
		ScalingBonus:      20,
		VolumeBonus:       10,
		FreshnessWeight:   25,
		KeywordBonus:      2,
		KeywordBonusCap:   20,
		VerifierWeight:    10,
	}
}

func TestTier_FoldsCompanyNames(t *testing.T) {
	r := New(testRankerConfig())

	assert.Equal(t, model.TierFlagship, r.Tier("Stripe, Inc."))
	assert.Equal(t, model.TierFlagship, r.Tier("STRIPE"))
	assert.Equal(t, model.TierScaling, r.Tier("Razorpay"))
	assert.Equal(t, model.TierVolume, r.Tier("Some Consultancy"))
	assert.Equal(t, model.TierUnknown, r.Tier(""))
}

func TestScore_Components(t *testing.T) {
	r := New(testRankerConfig())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	profile := Profile{Skills: []string{"go", "postgres", "kubernetes"}}

	lead := model.JobLead{
		Company:      "Stripe",
		Title:        "Backend Engineer",
		Keywords:     []string{"Go", "Postgres", "graphql"},
		DiscoveredAt: now, // today: full freshness
	}
	contact := model.Contact{Email: "careers@stripe.com", VerificationScore: 80}

	// flagship 30 + freshness 25*1.0 + keywords 2*2 + verifier 10*0.8 = 67.
	assert.InDelta(t, 67.0, r.Score(lead, contact, profile, now), 0.001)
}

func TestScore_FreshnessDecay(t *testing.T) {
	r := New(testRankerConfig())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	score := func(ageDays int) float64 {
		lead := model.JobLead{
			Company:      "Some Consultancy",
			DiscoveredAt: now.Add(-time.Duration(ageDays) * 24 * time.Hour),
		}
		return r.Score(lead, model.Contact{}, Profile{}, now)
	}

	assert.Greater(t, score(0), score(7))
	assert.Greater(t, score(7), score(30))
	assert.Greater(t, score(30), score(90))
	// Very old leads keep a floor above the bare tier bonus.
	assert.Greater(t, score(365), 10.0)
}

func TestScore_KeywordBonusCapped(t *testing.T) {
	cfg := testRankerConfig()
	cfg.KeywordBonusCap = 6
	r := New(cfg)
	now := time.Now().UTC()

	skills := []string{"go", "postgres", "kubernetes", "grpc", "kafka"}
	lead := model.JobLead{
		Company:      "Acme",
		Keywords:     skills, // 5 overlaps at 2 each would be 10 uncapped
		DiscoveredAt: now,
	}
	withCap := r.Score(lead, model.Contact{}, Profile{Skills: skills}, now)

	lead.Keywords = skills[:3]
	threeOverlaps := r.Score(lead, model.Contact{}, Profile{Skills: skills}, now)
	assert.Equal(t, threeOverlaps, withCap)
}

func TestRank_DeterministicWithTieBreak(t *testing.T) {
	r := New(testRankerConfig())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	older := model.JobLead{ID: "older", Company: "Acme", DiscoveredAt: now.Add(-time.Hour)}
	newer := model.JobLead{ID: "newer", Company: "Globex", DiscoveredAt: now}
	top := model.JobLead{ID: "top", Company: "Stripe", DiscoveredAt: now}

	build := func() []Candidate {
		return []Candidate{
			{Lead: newer}, {Lead: top}, {Lead: older},
		}
	}

	first := build()
	r.Rank(first, Profile{}, now)
	require.Equal(t, "top", first[0].Lead.ID)
	// Acme and Globex tie on score; the older discovery wins.
	assert.Equal(t, "older", first[1].Lead.ID)
	assert.Equal(t, "newer", first[2].Lead.ID)

	// Re-ranking identical inputs yields the identical order.
	second := build()
	r.Rank(second, Profile{}, now)
	for i := range first {
		assert.Equal(t, first[i].Lead.ID, second[i].Lead.ID)
	}
}

func TestLoadProfile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"skills:\n  - go\n  - postgres\nexperience_years: 4\n"), 0o644))

	p, err := LoadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "postgres"}, p.Skills)
	assert.Equal(t, 4, p.ExperienceYrs)
}

func TestLoadProfile_MissingFileIsEmpty(t *testing.T) {
	p, err := LoadProfile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, p.Skills)
}
