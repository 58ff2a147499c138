// Package ranker orders (lead, contact) pairs for the scheduler. Scoring is
// a pure function of its inputs so re-ranking after a crash reproduces the
// same order.
package ranker

import (
	"sort"
	"strings"
	"time"

	"github.com/sbiradar/outreach-cli/internal/config"
	"github.com/sbiradar/outreach-cli/internal/model"
)

// Candidate pairs a lead with a chosen contact for ranking.
type Candidate struct {
	Lead    model.JobLead
	Contact model.Contact
	Score   float64
}

// Ranker scores candidates from named config weights.
type Ranker struct {
	cfg      config.RankerConfig
	flagship map[string]bool
	scaling  map[string]bool
}

// New builds a Ranker. Tier membership lists are folded through
// model.CompanyKey so "Acme, Inc." and "ACME" land in the same tier.
func New(cfg config.RankerConfig) *Ranker {
	return &Ranker{
		cfg:      cfg,
		flagship: foldSet(cfg.FlagshipCompanies),
		scaling:  foldSet(cfg.ScalingCompanies),
	}
}

// Tier returns the configured tier for a company.
func (r *Ranker) Tier(company string) model.LeadTier {
	key := model.CompanyKey(company)
	switch {
	case r.flagship[key]:
		return model.TierFlagship
	case r.scaling[key]:
		return model.TierScaling
	case key != "":
		return model.TierVolume
	default:
		return model.TierUnknown
	}
}

// Score computes the additive priority of one candidate at reference time
// now. Components: tier bonus, freshness decay, keyword overlap with the
// operator skill profile, and the contact's verification score.
func (r *Ranker) Score(lead model.JobLead, contact model.Contact, profile Profile, now time.Time) float64 {
	var score float64

	switch r.Tier(lead.Company) {
	case model.TierFlagship:
		score += r.cfg.FlagshipBonus
	case model.TierScaling:
		score += r.cfg.ScalingBonus
	case model.TierVolume:
		score += r.cfg.VolumeBonus
	}

	score += r.cfg.FreshnessWeight * freshnessFraction(now.Sub(lead.DiscoveredAt))

	overlap := keywordOverlap(lead.Keywords, profile.Skills)
	kw := float64(overlap) * r.cfg.KeywordBonus
	if kw > r.cfg.KeywordBonusCap {
		kw = r.cfg.KeywordBonusCap
	}
	score += kw

	score += r.cfg.VerifierWeight * float64(contact.VerificationScore) / 100

	return score
}

// Rank scores and sorts candidates in place, highest first. Ties break by
// earliest DiscoveredAt so long-queued leads are not starved.
func (r *Ranker) Rank(candidates []Candidate, profile Profile, now time.Time) {
	for i := range candidates {
		candidates[i].Score = r.Score(candidates[i].Lead, candidates[i].Contact, profile, now)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Lead.DiscoveredAt.Before(candidates[j].Lead.DiscoveredAt)
	})
}

// freshnessSteps maps lead age in days to a fraction of the freshness
// weight. Stepped rather than continuous; ages beyond the last step decay
// to a floor rather than zero so old leads still rank above nothing.
var freshnessSteps = []struct {
	days int
	frac float64
}{
	{0, 1.00},
	{1, 0.95},
	{2, 0.90},
	{3, 0.85},
	{7, 0.70},
	{14, 0.50},
	{30, 0.30},
	{60, 0.15},
	{90, 0.05},
}

func freshnessFraction(age time.Duration) float64 {
	if age < 0 {
		return 1.0
	}
	days := int(age.Hours() / 24)
	frac := freshnessSteps[len(freshnessSteps)-1].frac
	for _, step := range freshnessSteps {
		if days <= step.days {
			return step.frac
		}
		frac = step.frac
	}
	return frac
}

func keywordOverlap(leadKeywords, skills []string) int {
	if len(leadKeywords) == 0 || len(skills) == 0 {
		return 0
	}
	skillSet := make(map[string]bool, len(skills))
	for _, s := range skills {
		skillSet[strings.ToLower(strings.TrimSpace(s))] = true
	}
	n := 0
	seen := make(map[string]bool, len(leadKeywords))
	for _, kw := range leadKeywords {
		k := strings.ToLower(strings.TrimSpace(kw))
		if skillSet[k] && !seen[k] {
			seen[k] = true
			n++
		}
	}
	return n
}

func foldSet(companies []string) map[string]bool {
	set := make(map[string]bool, len(companies))
	for _, c := range companies {
		set[model.CompanyKey(c)] = true
	}
	return set
}
