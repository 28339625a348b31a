package cli

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/shanehull/prospector/internal/search"
	"github.com/shanehull/prospector/internal/secrets"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

type backend struct {
	srv      *httptest.Server
	searches atomic.Int32
	enriches atomic.Int32
	lastAuth atomic.Value
}

// newBackend serves two Pronto searches (3 and 2 leads), a member directory
// page with 3 members, and the enriched search endpoints.
func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{}
	sizes := map[string]int{"s1": 3, "s2": 2}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /pronto/searches", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"searches": []map[string]any{
			{"id": "s1", "name": "Boulangeries", "leads_count": 3},
			{"id": "s2", "name": "Garages", "leads_count": 2},
		}})
	})
	mux.HandleFunc("GET /pronto/searches/{id}/leads", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		var leads []map[string]any
		for i := 1; i <= sizes[id]; i++ {
			leads = append(leads, map[string]any{
				"id":      fmt.Sprintf("%s-%d", id, i),
				"company": map[string]any{"name": fmt.Sprintf("%s company %d", id, i), "postal_code": "75011"},
			})
		}
		writeJSON(w, map[string]any{
			"leads":      leads,
			"pagination": map[string]any{"page": 1, "limit": 100, "total": sizes[id], "total_pages": 1},
		})
	})
	mux.HandleFunc("GET /members", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body>
<div class="member"><h3>Traiteur Leroy</h3></div>
<div class="member"><h3>Fromagerie Blanc</h3></div>
<div class="member"><h3>Cave Moreau</h3></div>
</body></html>`)
	})
	mux.HandleFunc("GET /api/search-enriched", func(w http.ResponseWriter, r *http.Request) {
		b.searches.Add(1)
		b.lastAuth.Store(r.Header.Get("Authorization"))
		if r.URL.Query().Get("q") == "toomany" {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(w, map[string]any{
			"results": []map[string]any{
				{"siren": "552100554", "nom_complet": "Boulangerie Dupont", "commune": "Paris", "enriched": true},
			},
			"total_results": 1, "page": 1, "per_page": 20, "total_pages": 1,
			"enrichment_stats": map[string]any{"total_companies": 1, "enriched_companies": 1},
			"performance":      map[string]any{"processing_time_ms": 42, "enrichment_enabled": true},
		})
	})
	mux.HandleFunc("POST /api/search-enriched/enrich-single", func(w http.ResponseWriter, r *http.Request) {
		b.enriches.Add(1)
		var body struct {
			Company map[string]any `json:"company"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		body.Company["enriched"] = true
		body.Company["website"] = "https://dupont.example"
		writeJSON(w, body)
	})

	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

// writeConfig writes a config pointing at b. extra is appended verbatim.
func writeConfig(t *testing.T, b *backend, extra ...string) string {
	t.Helper()
	dir := t.TempDir()
	yml := fmt.Sprintf(`api:
  base_url: %[1]s
  requests_per_second: 0
pronto:
  base_url: %[1]s/pronto
cache:
  driver: file
  path: %[2]s
log:
  level: error
`, b.srv.URL, filepath.Join(dir, "cache.json"))
	for _, e := range extra {
		yml += e
	}
	path := filepath.Join(dir, "prospector.yml")
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))
	return path
}

func runCLI(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	keyring.MockInit()
	t.Setenv(secrets.TokenEnv, "")

	searchNAF, searchPostal, searchDept = nil, nil, nil
	searchNoEnrich = false
	searchRetries = 0
	enrichSIREN, enrichName = "", ""
	exportOut = ""
	exportPerPage, pagePerPage = 0, 0

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := Execute(context.Background())
	return out.String(), err
}

func TestCategories(t *testing.T) {
	b := newBackend(t)
	out, err := runCLI(t, writeConfig(t, b), "categories")
	require.NoError(t, err)
	assert.Contains(t, out, "Boulangeries")
	assert.Contains(t, out, "Garages")
}

func TestPage_SpansCategories(t *testing.T) {
	b := newBackend(t)
	out, err := runCLI(t, writeConfig(t, b), "page", "2", "--per-page", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Page 2/3")
	assert.Contains(t, out, "s1 company 3")
	assert.Contains(t, out, "s2 company 1")
	assert.NotContains(t, out, "s1 company 2")
}

func TestExport_WritesEveryLead(t *testing.T) {
	b := newBackend(t)
	cfgPath := writeConfig(t, b)
	target := filepath.Join(t.TempDir(), "leads.csv")

	out, err := runCLI(t, cfgPath, "export", "--out", target)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote 5 leads")

	f, err := os.Open(target)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 6)
	assert.Equal(t, exportHeader, rows[0])
	assert.Equal(t, "s2", rows[5][0])
	assert.Equal(t, "75", rows[5][6])
}

// withMoreSources adds the member directory and a two-row CSV export after
// the Pronto searches. Neither lists a count the pager can trust up front.
func withMoreSources(t *testing.T, b *backend) string {
	t.Helper()
	csvPath := filepath.Join(t.TempDir(), "salon.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("company,postal_code\nImprimerie Roux,69003\nAtelier Petit,13001\n"), 0o644))
	return fmt.Sprintf(`directories:
  - id: members
    name: Members
    url: %s/members
    item_selector: .member
    name_selector: h3
csv_categories:
  - id: salon
    name: Salon 2026
    path: %s
`, b.srv.URL, csvPath)
}

func readExport(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestExport_WalksPastUncountedCategories(t *testing.T) {
	b := newBackend(t)
	cfgPath := writeConfig(t, b, withMoreSources(t, b))
	target := filepath.Join(t.TempDir(), "leads.csv")

	out, err := runCLI(t, cfgPath, "export", "--out", target, "--per-page", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote 10 leads")

	rows := readExport(t, target)
	require.Len(t, rows, 11)
	var cats []string
	for _, r := range rows[1:] {
		cats = append(cats, r[0])
	}
	assert.Equal(t, []string{"s1", "s1", "s1", "s2", "s2", "members", "members", "members", "salon", "salon"}, cats)
	assert.Equal(t, "Atelier Petit", rows[10][3])
	assert.Equal(t, "13", rows[10][6])
}

func TestExport_DirectoryAfterFullPage(t *testing.T) {
	// Page 1 fills exactly with the Pronto leads, so the directory has not
	// been fetched yet and the listing total says one page.
	b := newBackend(t)
	cfgPath := writeConfig(t, b, `directories:
  - id: members
    name: Members
    url: `+b.srv.URL+`/members
    item_selector: .member
    name_selector: h3
`)

	out, err := runCLI(t, cfgPath, "page", "--per-page", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "Page 1/~1 (~5 leads, 5 per page)")

	target := filepath.Join(t.TempDir(), "leads.csv")
	out, err = runCLI(t, cfgPath, "export", "--out", target, "--per-page", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote 8 leads")
	rows := readExport(t, target)
	require.Len(t, rows, 9)
	assert.Equal(t, "Cave Moreau", rows[8][3])
}

func TestSearch_PrintsStatsAndResults(t *testing.T) {
	b := newBackend(t)
	out, err := runCLI(t, writeConfig(t, b), "search", "boulangerie", "--dept", "75")
	require.NoError(t, err)
	assert.Contains(t, out, "Enriched 1/1")
	assert.Contains(t, out, "Boulangerie Dupont")
	assert.EqualValues(t, 1, b.searches.Load())
}

func TestSearch_ShortQueryNeverCallsBackend(t *testing.T) {
	b := newBackend(t)
	out, err := runCLI(t, writeConfig(t, b), "search", "ab")
	require.Error(t, err)
	assert.Contains(t, out, "at least 3")
	assert.Zero(t, b.searches.Load())
}

func TestSearch_RateLimitedMessage(t *testing.T) {
	b := newBackend(t)
	out, err := runCLI(t, writeConfig(t, b), "search", "toomany")
	require.Error(t, err)
	assert.Contains(t, out, search.MsgRateLimited)
}

func TestEnrich_SecondRunComesFromCache(t *testing.T) {
	b := newBackend(t)
	cfgPath := writeConfig(t, b)

	out, err := runCLI(t, cfgPath, "enrich", "--name", "Boulangerie Dupont", "--siren", "552100554")
	require.NoError(t, err)
	assert.Contains(t, out, "yes")
	assert.EqualValues(t, 1, b.enriches.Load())

	out, err = runCLI(t, cfgPath, "enrich", "--name", "boulangerie  DUPONT", "--siren", "552100554")
	require.NoError(t, err)
	assert.Contains(t, out, "cached")
	assert.EqualValues(t, 1, b.enriches.Load(), "served from the local cache")

	out, err = runCLI(t, cfgPath, "cache", "get", "Boulangerie Dupont")
	require.NoError(t, err)
	assert.Contains(t, out, "https://dupont.example")

	_, err = runCLI(t, cfgPath, "cache", "delete", "Boulangerie Dupont")
	require.NoError(t, err)
	out, err = runCLI(t, cfgPath, "cache", "get", "Boulangerie Dupont")
	require.NoError(t, err)
	assert.Contains(t, out, "No fresh cache entry")

	out, err = runCLI(t, cfgPath, "cache", "purge")
	require.NoError(t, err)
	assert.Contains(t, out, "Purged 0 expired entries, 0 left.")
}

func TestEnrich_NeedsAName(t *testing.T) {
	b := newBackend(t)
	_, err := runCLI(t, writeConfig(t, b), "enrich")
	require.Error(t, err)
	assert.Zero(t, b.enriches.Load())
}

func TestToken_IsSentAsBearer(t *testing.T) {
	b := newBackend(t)
	cfgPath := writeConfig(t, b)

	_, err := runCLI(t, cfgPath, "token", "set", "abc123")
	require.NoError(t, err)
	account := secrets.APIKeyringAccount("", b.srv.URL)
	tok, err := secrets.GetAPIToken(account)
	require.NoError(t, err)
	assert.Equal(t, "abc123", tok)

	// runCLI would reset the mock keyring, so drive the root command directly.
	rootCmd.SetArgs([]string{"--config", cfgPath, "search", "boulangerie"})
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	require.NoError(t, Execute(context.Background()))
	assert.Equal(t, "Bearer abc123", b.lastAuth.Load())

	out.Reset()
	rootCmd.SetArgs([]string{"--config", cfgPath, "token", "delete"})
	require.NoError(t, Execute(context.Background()))
	_, err = secrets.GetAPIToken(account)
	assert.ErrorIs(t, err, secrets.ErrNoToken)
}

func TestRetryDelay(t *testing.T) {
	for attempt := 1; attempt <= 3; attempt++ {
		t.Run(strconv.Itoa(attempt), func(t *testing.T) {
			assert.Equal(t, attempt*2, int(retryDelay(assert.AnError, attempt).Seconds()))
		})
	}
}
