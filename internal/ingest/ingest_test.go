package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sbiradar/outreach-cli/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadLeads_JSONLines(t *testing.T) {
	path := writeTempFile(t, "leads.jsonl",
		`{"company":"Acme Corp","title":"Backend Engineer","source":"boards","keywords":["go","grpc"],"discovered_at":"2026-08-20T00:00:00Z"}
{"company":"Globex","title":"Platform Engineer"}
`)

	leads, err := ReadLeads(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, leads, 2)

	assert.Equal(t, "Acme Corp", leads[0].Company)
	assert.Equal(t, []string{"go", "grpc"}, leads[0].Keywords)
	assert.Equal(t, time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC), leads[0].DiscoveredAt)

	// Missing fields get defaults.
	assert.NotEmpty(t, leads[1].ID)
	assert.False(t, leads[1].DiscoveredAt.IsZero())
}

func TestReadLeads_CSV(t *testing.T) {
	path := writeTempFile(t, "leads.csv",
		"company,title,source,keywords,discovered_at\n"+
			"Acme Corp,Backend Engineer,boards,go;grpc,2026-08-20\n"+
			"Globex,SRE,referral,,\n")

	leads, err := ReadLeads(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, leads, 2)

	assert.Equal(t, "Backend Engineer", leads[0].Title)
	assert.Equal(t, []string{"go", "grpc"}, leads[0].Keywords)
	assert.Equal(t, 2026, leads[0].DiscoveredAt.Year())
	assert.Empty(t, leads[1].Keywords)
}

func TestReadLeads_MissingCompanyFails(t *testing.T) {
	path := writeTempFile(t, "leads.jsonl", `{"title":"Backend Engineer"}`)

	_, err := ReadLeads(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid lead 1")
}

func TestReadLeads_UnsupportedFormat(t *testing.T) {
	path := writeTempFile(t, "leads.txt", "whatever")

	_, err := ReadLeads(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported lead format")
}

func TestReadContacts_CSV(t *testing.T) {
	path := writeTempFile(t, "contacts.csv",
		"email,company,discovery_method\n"+
			"  Careers@Acme.com ,Acme Corp,pattern\n"+
			"hr@globex.io,Globex,\n")

	contacts, err := ReadContacts(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, contacts, 2)

	// Emails are folded to lowercase on the way in.
	assert.Equal(t, "careers@acme.com", contacts[0].Email)
	assert.Equal(t, model.DiscoveryPattern, contacts[0].DiscoveryMethod)
	assert.Equal(t, model.DiscoveryCurated, contacts[1].DiscoveryMethod)
	assert.Equal(t, model.OutcomeUnverified, contacts[1].Outcome)
}

func TestReadContacts_JSONLines(t *testing.T) {
	path := writeTempFile(t, "contacts.jsonl",
		`{"email":"talent@initech.com","company":"Initech"}
`)

	contacts, err := ReadContacts(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "talent@initech.com", contacts[0].Email)
	assert.NotEmpty(t, contacts[0].ID)
}

func TestReadContacts_BadEmailFails(t *testing.T) {
	path := writeTempFile(t, "contacts.csv",
		"email,company\nnot-an-email,Acme Corp\n")

	_, err := ReadContacts(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid contact row 1")
}

func TestReadCSVRows_EmptyFile(t *testing.T) {
	path := writeTempFile(t, "leads.csv", "")

	_, err := ReadLeads(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty csv")
}

func TestReadLeads_Cancelled(t *testing.T) {
	path := writeTempFile(t, "leads.jsonl", `{"company":"Acme","title":"SRE"}`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ReadLeads(ctx, path)
	require.Error(t, err)
}

func TestSplitKeywords(t *testing.T) {
	assert.Equal(t, []string{"go", "grpc", "k8s"}, splitKeywords("go; grpc |k8s"))
	assert.Empty(t, splitKeywords(" ; "))
}
