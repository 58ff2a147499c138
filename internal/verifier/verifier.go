// Package verifier scores contact deliverability before any send.
// Verification is advisory and additive: every check contributes weighted
// points, a handful of hard conditions zero the score outright, and
// inconclusive lookups degrade the score instead of failing the pipeline.
package verifier

import (
	"context"
	"errors"
	"net"
	"net/mail"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sbiradar/outreach-cli/internal/config"
	"github.com/sbiradar/outreach-cli/internal/model"
)

// Resolver is the DNS surface the verifier needs. net.DefaultResolver in
// production; a fake in tests.
type Resolver interface {
	LookupMX(ctx context.Context, domain string) ([]*net.MX, error)
}

// Result is the verifier's verdict. Score is 0-100; Checks records the
// contribution of each named check for audit logging.
type Result struct {
	Score   int
	Outcome model.VerificationOutcome
	Checks  map[string]int
	Reason  string
}

// mxStatus is the cached outcome of an MX lookup for one domain.
type mxStatus int

const (
	mxUnknown mxStatus = iota
	mxFound
	mxMissing
	mxTimeout
)

// Verifier scores contacts. Safe for concurrent use; the MX cache is
// process-local and never expires within a run.
type Verifier struct {
	cfg      config.VerifierConfig
	resolver Resolver

	mu      sync.Mutex
	mxCache map[string]mxStatus

	disposable map[string]bool
	free       map[string]bool
	knownBad   map[string]bool
	knownGood  map[string]bool
}

// New creates a Verifier. A nil resolver falls back to net.DefaultResolver.
func New(cfg config.VerifierConfig, resolver Resolver) *Verifier {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &Verifier{
		cfg:        cfg,
		resolver:   resolver,
		mxCache:    make(map[string]mxStatus),
		disposable: toSet(cfg.DisposableDomains),
		free:       toSet(cfg.FreeDomains),
		knownBad:   toSet(cfg.KnownBadAddresses),
		knownGood:  toSet(cfg.KnownGoodAddresses),
	}
}

// Verify scores a contact against the lead's company. It never returns an
// error: a resolver failure is an inconclusive check, not a pipeline fault.
func (v *Verifier) Verify(ctx context.Context, contact model.Contact) Result {
	res := Result{Checks: make(map[string]int)}
	email := strings.ToLower(strings.TrimSpace(contact.Email))

	if v.knownBad[email] {
		res.Outcome = model.OutcomeRejected
		res.Reason = "known bad address"
		return res
	}
	if v.knownGood[email] {
		res.Score = 100
		res.Outcome = model.OutcomeVerified
		res.Reason = "known good address"
		return res
	}

	if !validSyntax(email) {
		res.Outcome = model.OutcomeRejected
		res.Reason = "invalid syntax"
		return res
	}
	res.Checks["syntax"] = v.cfg.SyntaxWeight
	res.Score += v.cfg.SyntaxWeight

	local, domain, _ := strings.Cut(email, "@")
	if v.disposable[domain] {
		res.Score = 0
		res.Outcome = model.OutcomeRejected
		res.Reason = "disposable domain"
		return res
	}
	for _, prefix := range v.cfg.SystemPrefixes {
		if strings.HasPrefix(local, prefix) {
			res.Score = 0
			res.Outcome = model.OutcomeRejected
			res.Reason = "system mailbox"
			return res
		}
	}

	switch v.lookupMX(ctx, domain) {
	case mxFound:
		res.Checks["mx"] = v.cfg.MXWeight
		res.Score += v.cfg.MXWeight
	case mxTimeout:
		// Inconclusive: credit half, do not reject on DNS flakiness.
		res.Checks["mx"] = v.cfg.MXWeight / 2
		res.Score += v.cfg.MXWeight / 2
	case mxMissing:
		res.Checks["mx"] = 0
	}

	if v.isHRAddress(local) {
		res.Checks["hr_pattern"] = v.cfg.HRPatternWeight
		res.Score += v.cfg.HRPatternWeight
	}

	if !v.free[domain] {
		res.Checks["corporate_domain"] = v.cfg.CorporateWeight
		res.Score += v.cfg.CorporateWeight

		if domainMatchesCompany(domain, contact.Company) {
			res.Checks["domain_match"] = v.cfg.DomainMatchWeight
			res.Score += v.cfg.DomainMatchWeight
		}
	}

	if res.Score > 100 {
		res.Score = 100
	}
	if res.Score >= v.cfg.VerifiedThreshold {
		res.Outcome = model.OutcomeVerified
	} else {
		res.Outcome = model.OutcomeRejected
		res.Reason = "below threshold"
	}
	zap.L().Debug("contact verified",
		zap.String("email", email),
		zap.Int("score", res.Score),
		zap.String("outcome", string(res.Outcome)))
	return res
}

func (v *Verifier) lookupMX(ctx context.Context, domain string) mxStatus {
	v.mu.Lock()
	if st, ok := v.mxCache[domain]; ok {
		v.mu.Unlock()
		return st
	}
	v.mu.Unlock()

	timeout := time.Duration(v.cfg.DNSTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	lookupCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	st := mxFound
	records, err := v.resolver.LookupMX(lookupCtx, domain)
	switch {
	case err != nil && (lookupCtx.Err() != nil || isTemporary(err)):
		st = mxTimeout
	case err != nil, len(records) == 0:
		st = mxMissing
	}

	v.mu.Lock()
	v.mxCache[domain] = st
	v.mu.Unlock()
	return st
}

func (v *Verifier) isHRAddress(local string) bool {
	for _, kw := range v.cfg.HRKeywords {
		if strings.Contains(local, kw) {
			return true
		}
	}
	return false
}

func validSyntax(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	// mail.ParseAddress accepts domains without a dot; real MTAs don't.
	_, domain, ok := strings.Cut(email, "@")
	return ok && strings.Contains(domain, ".")
}

// domainMatchesCompany reports whether the registrable label of the email
// domain appears in the folded company name, e.g. hr@acmecorp.com for
// "Acme Corp" does not match but hr@acme.com for "Acme Inc" does.
func domainMatchesCompany(domain, company string) bool {
	label, _, _ := strings.Cut(domain, ".")
	if label == "" || company == "" {
		return false
	}
	key := strings.ReplaceAll(model.CompanyKey(company), " ", "")
	return strings.Contains(key, label) || strings.Contains(label, key)
}

func isTemporary(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTimeout || dnsErr.IsTemporary
	}
	return false
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[strings.ToLower(strings.TrimSpace(it))] = true
	}
	return set
}
