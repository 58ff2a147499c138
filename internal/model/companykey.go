package model

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// legalSuffixes are trailing tokens stripped when folding company names, so
// "Acme Corp." and "acme" land on the same exclusion/ledger key.
var legalSuffixes = []string{
	"inc", "inc.", "llc", "llp", "ltd", "ltd.", "limited", "corp",
	"corp.", "corporation", "co", "co.", "company", "pvt", "pvt.",
	"private", "gmbh", "plc", "technologies", "labs",
}

var foldCaser = cases.Fold()

// CompanyKey folds a company name into its canonical matching key:
// Unicode-normalized, case-folded, punctuation collapsed, legal suffixes
// trimmed.
func CompanyKey(name string) string {
	s := norm.NFKC.String(name)
	s = foldCaser.String(s)

	// Collapse punctuation to spaces so "Acme, Inc." splits cleanly.
	s = strings.Map(func(r rune) rune {
		switch r {
		case ',', ';', '(', ')', '/', '&':
			return ' '
		}
		return r
	}, s)

	fields := strings.Fields(s)
	for len(fields) > 1 {
		last := fields[len(fields)-1]
		if !isLegalSuffix(last) {
			break
		}
		fields = fields[:len(fields)-1]
	}

	return strings.Join(fields, " ")
}

func isLegalSuffix(token string) bool {
	for _, s := range legalSuffixes {
		if token == s {
			return true
		}
	}
	return false
}
