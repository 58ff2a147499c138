package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sbiradar/outreach-cli/internal/model"
)

// readContactsXLSX parses a curated contact sheet. The first row is the
// header; recognized columns are email, company, and discovery_method.
func readContactsXLSX(ctx context.Context, path string) ([]model.Contact, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("ingest: open xlsx %s", path))
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("ingest: xlsx %s has no sheets", path)
	}
	sheet := f.Sheets[0]

	header := make(headerIndex)
	var contacts []model.Contact
	for i, row := range sheet.Rows {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "ingest: cancelled")
		}
		cells := rowToStrings(row)
		if i == 0 {
			for j, col := range cells {
				header[strings.ToLower(strings.TrimSpace(col))] = j
			}
			continue
		}
		if isEmptyRow(cells) {
			continue
		}

		contact := model.Contact{
			Email:           header.get(cells, "email"),
			Company:         header.get(cells, "company"),
			DiscoveryMethod: model.DiscoveryMethod(header.get(cells, "discovery_method")),
		}
		normalizeContact(&contact)
		if err := validate.Struct(contact); err != nil {
			return nil, eris.Wrap(err, fmt.Sprintf("ingest: invalid contact row %d", i+1))
		}
		contacts = append(contacts, contact)
	}
	return contacts, nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for i, cell := range row.Cells {
		cells[i] = cell.String()
	}
	return cells
}

func isEmptyRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
