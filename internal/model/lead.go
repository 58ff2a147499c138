package model

import (
	"strings"
	"time"
)

// LeadTier classifies an employer for priority scoring.
type LeadTier string

const (
	TierFlagship LeadTier = "flagship" // top-tier employers, highest response value
	TierScaling  LeadTier = "scaling"  // unicorns and high-growth companies
	TierVolume   LeadTier = "volume"   // high-volume traditional employers
	TierUnknown  LeadTier = "unknown"
)

// JobLead is a scraped opportunity. Leads are immutable once ingested;
// a re-scrape inserts a superseding row rather than mutating this one.
type JobLead struct {
	ID           string    `json:"id"`
	Company      string    `json:"company" validate:"required"`
	Title        string    `json:"title" validate:"required"`
	Source       string    `json:"source"`
	Keywords     []string  `json:"keywords,omitempty"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// DiscoveryMethod describes how a contact was found.
type DiscoveryMethod string

const (
	DiscoveryCurated DiscoveryMethod = "curated"
	DiscoveryPattern DiscoveryMethod = "pattern"
	DiscoveryScraped DiscoveryMethod = "scraped"
)

// VerificationOutcome is the verifier's verdict on a contact.
type VerificationOutcome string

const (
	OutcomeVerified   VerificationOutcome = "verified"
	OutcomeUnverified VerificationOutcome = "unverified"
	OutcomeRejected   VerificationOutcome = "rejected"
)

// Contact is a candidate recipient for a lead. The verification score and
// outcome are the only mutable fields: set once by the verifier, never
// lowered without re-verification.
type Contact struct {
	ID                string              `json:"id"`
	Email             string              `json:"email" validate:"required,email"`
	Company           string              `json:"company" validate:"required"`
	DiscoveryMethod   DiscoveryMethod     `json:"discovery_method"`
	VerificationScore int                 `json:"verification_score"`
	Outcome           VerificationOutcome `json:"outcome"`
	DiscoveredAt      time.Time           `json:"discovered_at"`
}

// Domain returns the part of the contact's email after '@', lowercased.
func (c Contact) Domain() string {
	at := strings.LastIndex(c.Email, "@")
	if at < 0 || at == len(c.Email)-1 {
		return ""
	}
	return strings.ToLower(c.Email[at+1:])
}
