// Package ingest reads leads and contacts from files and external queues
// into the local store.
package ingest

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sbiradar/outreach-cli/internal/model"
)

var validate = validator.New()

// ReadLeads parses job leads from a file. The format is chosen by
// extension: .csv, or .json/.jsonl as one JSON object per line.
func ReadLeads(ctx context.Context, path string) ([]model.JobLead, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("ingest: open %s", path))
	}
	defer f.Close() //nolint:errcheck

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return readLeadsCSV(ctx, f)
	case ".json", ".jsonl":
		return readLeadsJSON(ctx, f)
	default:
		return nil, eris.Errorf("ingest: unsupported lead format %q", filepath.Ext(path))
	}
}

// ReadContacts parses contacts from a file. Curated contact sheets may be
// .xlsx; .csv and .json/.jsonl are also accepted.
func ReadContacts(ctx context.Context, path string) ([]model.Contact, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return readContactsXLSX(ctx, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("ingest: open %s", path))
	}
	defer f.Close() //nolint:errcheck

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return readContactsCSV(ctx, f)
	case ".json", ".jsonl":
		return readContactsJSON(ctx, f)
	default:
		return nil, eris.Errorf("ingest: unsupported contact format %q", filepath.Ext(path))
	}
}

func readLeadsJSON(ctx context.Context, r io.Reader) ([]model.JobLead, error) {
	var leads []model.JobLead
	dec := json.NewDecoder(r)
	for n := 1; ; n++ {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "ingest: cancelled")
		}
		var lead model.JobLead
		if err := dec.Decode(&lead); err == io.EOF {
			break
		} else if err != nil {
			return nil, eris.Wrap(err, fmt.Sprintf("ingest: decode lead %d", n))
		}
		normalizeLead(&lead)
		if err := validate.Struct(lead); err != nil {
			return nil, eris.Wrap(err, fmt.Sprintf("ingest: invalid lead %d", n))
		}
		leads = append(leads, lead)
	}
	return leads, nil
}

func readLeadsCSV(ctx context.Context, r io.Reader) ([]model.JobLead, error) {
	rows, header, err := readCSVRows(ctx, r)
	if err != nil {
		return nil, err
	}

	var leads []model.JobLead
	for n, row := range rows {
		lead := model.JobLead{
			Company: header.get(row, "company"),
			Title:   header.get(row, "title"),
			Source:  header.get(row, "source"),
		}
		if kw := header.get(row, "keywords"); kw != "" {
			lead.Keywords = splitKeywords(kw)
		}
		if raw := header.get(row, "discovered_at"); raw != "" {
			ts, err := parseTime(raw)
			if err != nil {
				return nil, eris.Wrap(err, fmt.Sprintf("ingest: lead row %d discovered_at", n+1))
			}
			lead.DiscoveredAt = ts
		}
		normalizeLead(&lead)
		if err := validate.Struct(lead); err != nil {
			return nil, eris.Wrap(err, fmt.Sprintf("ingest: invalid lead row %d", n+1))
		}
		leads = append(leads, lead)
	}
	return leads, nil
}

func readContactsJSON(ctx context.Context, r io.Reader) ([]model.Contact, error) {
	var contacts []model.Contact
	dec := json.NewDecoder(r)
	for n := 1; ; n++ {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "ingest: cancelled")
		}
		var contact model.Contact
		if err := dec.Decode(&contact); err == io.EOF {
			break
		} else if err != nil {
			return nil, eris.Wrap(err, fmt.Sprintf("ingest: decode contact %d", n))
		}
		normalizeContact(&contact)
		if err := validate.Struct(contact); err != nil {
			return nil, eris.Wrap(err, fmt.Sprintf("ingest: invalid contact %d", n))
		}
		contacts = append(contacts, contact)
	}
	return contacts, nil
}

func readContactsCSV(ctx context.Context, r io.Reader) ([]model.Contact, error) {
	rows, header, err := readCSVRows(ctx, r)
	if err != nil {
		return nil, err
	}

	var contacts []model.Contact
	for n, row := range rows {
		contact := model.Contact{
			Email:           header.get(row, "email"),
			Company:         header.get(row, "company"),
			DiscoveryMethod: model.DiscoveryMethod(header.get(row, "discovery_method")),
		}
		normalizeContact(&contact)
		if err := validate.Struct(contact); err != nil {
			return nil, eris.Wrap(err, fmt.Sprintf("ingest: invalid contact row %d", n+1))
		}
		contacts = append(contacts, contact)
	}
	return contacts, nil
}

// headerIndex maps lowercased column names to positions in a CSV row.
type headerIndex map[string]int

func (h headerIndex) get(row []string, name string) string {
	i, ok := h[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func readCSVRows(ctx context.Context, r io.Reader) ([][]string, headerIndex, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // allow variable fields

	var rows [][]string
	header := make(headerIndex)
	first := true
	for {
		if ctx.Err() != nil {
			return nil, nil, eris.Wrap(ctx.Err(), "ingest: cancelled")
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, eris.Wrap(err, "ingest: read csv row")
		}
		if first {
			first = false
			for i, col := range record {
				header[strings.ToLower(strings.TrimSpace(col))] = i
			}
			continue
		}
		rows = append(rows, record)
	}
	if first {
		return nil, nil, eris.New("ingest: empty csv")
	}
	return rows, header, nil
}

func normalizeLead(lead *model.JobLead) {
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	if lead.DiscoveredAt.IsZero() {
		lead.DiscoveredAt = time.Now().UTC()
	}
	lead.Company = strings.TrimSpace(lead.Company)
	lead.Title = strings.TrimSpace(lead.Title)
}

func normalizeContact(contact *model.Contact) {
	if contact.ID == "" {
		contact.ID = uuid.NewString()
	}
	if contact.DiscoveryMethod == "" {
		contact.DiscoveryMethod = model.DiscoveryCurated
	}
	if contact.Outcome == "" {
		contact.Outcome = model.OutcomeUnverified
	}
	if contact.DiscoveredAt.IsZero() {
		contact.DiscoveredAt = time.Now().UTC()
	}
	contact.Email = strings.ToLower(strings.TrimSpace(contact.Email))
	contact.Company = strings.TrimSpace(contact.Company)
}

func splitKeywords(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ';' || r == '|' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseTime(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, eris.Errorf("unrecognized timestamp %q", raw)
}
