package ingest

import (
	"context"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sbiradar/outreach-cli/internal/model"
	"github.com/sbiradar/outreach-cli/pkg/notion"
)

// QueuedLead pairs an ingested lead with its Notion page, so the page can
// be flipped to Synced once the lead lands in the store.
type QueuedLead struct {
	Lead   model.JobLead
	PageID string
}

// LeadSource pulls queued job leads from a Notion database.
type LeadSource struct {
	client notion.Client
	dbID   string
}

// NewLeadSource creates a lead source backed by the given Notion database.
func NewLeadSource(client notion.Client, dbID string) *LeadSource {
	return &LeadSource{client: client, dbID: dbID}
}

// FetchQueued returns all leads with Status = "Queued". Pages that cannot
// be mapped to a valid lead are logged and skipped rather than failing the
// whole sync.
func (s *LeadSource) FetchQueued(ctx context.Context) ([]QueuedLead, error) {
	pages, err := notion.QueryQueuedLeads(ctx, s.client, s.dbID)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: fetch queued leads")
	}

	var queued []QueuedLead
	for _, page := range pages {
		lead, err := pageToLead(page)
		if err != nil {
			zap.L().Warn("skipping malformed lead page",
				zap.String("page_id", string(page.ID)),
				zap.Error(err))
			continue
		}
		queued = append(queued, QueuedLead{Lead: lead, PageID: string(page.ID)})
	}
	return queued, nil
}

// MarkSynced flips a lead page's Status to Synced.
func (s *LeadSource) MarkSynced(ctx context.Context, pageID string) error {
	return notion.MarkLeadStatus(ctx, s.client, pageID, notion.StatusSynced)
}

func pageToLead(page notionapi.Page) (model.JobLead, error) {
	lead := model.JobLead{
		Company:      titleText(page.Properties["Company"]),
		Title:        richText(page.Properties["Title"]),
		Source:       "notion",
		Keywords:     multiSelectNames(page.Properties["Keywords"]),
		DiscoveredAt: page.CreatedTime,
	}
	normalizeLead(&lead)
	if err := validate.Struct(lead); err != nil {
		return model.JobLead{}, eris.Wrap(err, "ingest: lead page")
	}
	return lead, nil
}

func titleText(prop notionapi.Property) string {
	switch p := prop.(type) {
	case *notionapi.TitleProperty:
		return plainText(p.Title)
	case notionapi.TitleProperty:
		return plainText(p.Title)
	}
	return ""
}

func richText(prop notionapi.Property) string {
	switch p := prop.(type) {
	case *notionapi.RichTextProperty:
		return plainText(p.RichText)
	case notionapi.RichTextProperty:
		return plainText(p.RichText)
	}
	return ""
}

func multiSelectNames(prop notionapi.Property) []string {
	var opts []notionapi.Option
	switch p := prop.(type) {
	case *notionapi.MultiSelectProperty:
		opts = p.MultiSelect
	case notionapi.MultiSelectProperty:
		opts = p.MultiSelect
	default:
		return nil
	}
	names := make([]string, 0, len(opts))
	for _, o := range opts {
		if o.Name != "" {
			names = append(names, o.Name)
		}
	}
	return names
}

func plainText(rts []notionapi.RichText) string {
	var sb strings.Builder
	for _, rt := range rts {
		if rt.PlainText != "" {
			sb.WriteString(rt.PlainText)
		} else if rt.Text != nil {
			sb.WriteString(rt.Text.Content)
		}
	}
	return strings.TrimSpace(sb.String())
}
