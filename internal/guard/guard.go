// Package guard enforces the permanent exclusion set. A company-level
// entry blocks every contact at that company; entries never expire.
package guard

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sbiradar/outreach-cli/internal/model"
	"github.com/sbiradar/outreach-cli/internal/store"
)

// Guard answers "may we contact this pair right now". It is consulted
// before the initial send and again immediately before each follow-up
// fires, so an exclusion entered in between still suppresses the follow-up.
type Guard struct {
	store store.Store
}

func New(st store.Store) *Guard {
	return &Guard{store: st}
}

// Allowed reports whether outreach to contactEmail at company is permitted.
// When blocked, the matching entry is returned for audit logging.
func (g *Guard) Allowed(ctx context.Context, company, contactEmail string) (bool, *model.ExclusionEntry, error) {
	key := model.CompanyKey(company)
	entry, err := g.store.FindExclusion(ctx, key, contactEmail)
	if err != nil {
		return false, nil, eris.Wrap(err, "guard: find exclusion")
	}
	if entry == nil {
		return true, nil, nil
	}
	zap.L().Info("outreach blocked by exclusion",
		zap.String("company", company),
		zap.String("contact", contactEmail),
		zap.String("reason", string(entry.Reason)))
	return false, entry, nil
}

// Exclude records a new exclusion entry. An empty contactEmail makes the
// entry company-wide.
func (g *Guard) Exclude(ctx context.Context, company, contactEmail string, reason model.ExclusionReason) error {
	entry := &model.ExclusionEntry{
		Company:      company,
		ContactEmail: contactEmail,
		Reason:       reason,
	}
	if err := g.store.AddExclusion(ctx, entry); err != nil {
		return eris.Wrap(err, "guard: add exclusion")
	}
	zap.L().Info("exclusion added",
		zap.String("company", company),
		zap.String("contact", contactEmail),
		zap.String("reason", string(reason)))
	return nil
}
