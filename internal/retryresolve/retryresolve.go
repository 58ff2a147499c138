// Package retryresolve picks an alternate contact for a company after a
// bounce, within the per-company contact ceiling.
package retryresolve

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sbiradar/outreach-cli/internal/config"
	"github.com/sbiradar/outreach-cli/internal/model"
	"github.com/sbiradar/outreach-cli/internal/verifier"
)

// ContactSource is the store surface the resolver needs: the ledger's
// tried-address history and the company's contact book.
type ContactSource interface {
	ListTriedEmails(ctx context.Context, company string) ([]string, error)
	ListContactsByCompany(ctx context.Context, company string) ([]model.Contact, error)
	UpdateContactVerification(ctx context.Context, email string, score int, outcome model.VerificationOutcome) error
}

// Resolver finds the next viable contact at a company whose last attempt
// bounced. It never reuses an address the ledger has already seen.
type Resolver struct {
	store       ContactSource
	verifier    *verifier.Verifier
	maxContacts int
}

// New creates a bounce resolver. maxContacts counts distinct addresses
// tried per company, including the bounced one.
func New(st ContactSource, v *verifier.Verifier, cfg config.RetryConfig) *Resolver {
	maxContacts := cfg.MaxContactsPerCompany
	if maxContacts <= 0 {
		maxContacts = 2
	}
	return &Resolver{store: st, verifier: v, maxContacts: maxContacts}
}

// MaxContacts reports the distinct-contact ceiling per company.
func (r *Resolver) MaxContacts() int {
	return r.maxContacts
}

// Resolve returns the alternate contact to try after the given bounced
// attempt, or nil when the company is exhausted: either the contact
// ceiling is reached or no untried contact passes verification.
func (r *Resolver) Resolve(ctx context.Context, bounced *model.SendAttempt) (*model.Contact, error) {
	tried, err := r.store.ListTriedEmails(ctx, bounced.Company)
	if err != nil {
		return nil, eris.Wrap(err, "retryresolve: list tried emails")
	}
	if len(tried) >= r.maxContacts {
		zap.L().Info("contact ceiling reached, giving up on company",
			zap.String("company", bounced.Company),
			zap.Int("tried", len(tried)))
		return nil, nil
	}

	triedSet := make(map[string]bool, len(tried)+1)
	for _, email := range tried {
		triedSet[email] = true
	}
	triedSet[strings.ToLower(strings.TrimSpace(bounced.ContactEmail))] = true

	candidates, err := r.store.ListContactsByCompany(ctx, bounced.Company)
	if err != nil {
		return nil, eris.Wrap(err, "retryresolve: list contacts")
	}

	for _, candidate := range candidates {
		if triedSet[candidate.Email] {
			continue
		}

		res := r.verifier.Verify(ctx, candidate)
		if err := r.store.UpdateContactVerification(ctx, candidate.Email, res.Score, res.Outcome); err != nil {
			return nil, eris.Wrap(err, "retryresolve: save verification")
		}
		if res.Outcome != model.OutcomeVerified {
			zap.L().Debug("alternate contact failed verification",
				zap.String("email", candidate.Email),
				zap.Int("score", res.Score),
				zap.String("reason", res.Reason))
			continue
		}

		candidate.VerificationScore = res.Score
		candidate.Outcome = res.Outcome
		zap.L().Info("resolved alternate contact after bounce",
			zap.String("company", bounced.Company),
			zap.String("bounced", bounced.ContactEmail),
			zap.String("alternate", candidate.Email))
		return &candidate, nil
	}

	zap.L().Info("no viable alternate contact",
		zap.String("company", bounced.Company))
	return nil, nil
}
