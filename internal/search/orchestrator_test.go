package search

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/shanehull/prospector/internal/apiclient"
	"github.com/shanehull/prospector/internal/enrich"
	"github.com/shanehull/prospector/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeBackend records every call and answers with the next scripted reply.
type fakeBackend struct {
	mu      sync.Mutex
	calls   []model.SearchFilters
	resp    *model.SearchResponse
	err     error
	gate    chan struct{}
	started chan struct{}
}

func (b *fakeBackend) SearchEnriched(ctx context.Context, f model.SearchFilters) (*model.SearchResponse, error) {
	b.mu.Lock()
	b.calls = append(b.calls, f)
	resp, err, gate, started := b.resp, b.err, b.gate, b.started
	b.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	return resp, err
}

func (b *fakeBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

type stubEnricher struct {
	out *model.EnrichedCompany
	err error
}

func (e *stubEnricher) Enrich(ctx context.Context, c model.EnrichedCompany) (*model.EnrichedCompany, error) {
	return e.out, e.err
}

func results(sirens ...string) *model.SearchResponse {
	resp := &model.SearchResponse{}
	for _, s := range sirens {
		resp.Results = append(resp.Results, model.EnrichedCompany{SIREN: s, Name: "Company " + s})
	}
	resp.TotalResults = len(sirens)
	return resp
}

// httpOrchestrator wires the orchestrator to the real enrich client in front
// of an httptest server.
func httpOrchestrator(t *testing.T, h http.HandlerFunc) (*Orchestrator, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		h(w, r)
	}))
	t.Cleanup(server.Close)

	api, err := apiclient.New(server.URL)
	require.NoError(t, err)
	client := enrich.NewClient(api, 5*time.Second, nil)
	return New(client, client), &hits
}

func TestSearch_AppliesStats(t *testing.T) {
	o, hits := httpOrchestrator(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "boulangerie", r.URL.Query().Get("q"))
		assert.Equal(t, "true", r.URL.Query().Get("auto_enrich"))
		assert.Equal(t, "20", r.URL.Query().Get("max_enrichments"))
		w.Write([]byte(`{
			"results": [{"siren": "1"}, {"siren": "2"}],
			"total_results": 2, "page": 1, "per_page": 20, "total_pages": 1,
			"enrichment_stats": {"total_companies": 2, "enriched_companies": 5},
			"performance": {"processing_time_ms": 1200, "enrichment_enabled": true, "max_enrichments_limit": 20}
		}`))
	})

	_, err := o.Search(context.Background(), model.SearchFilters{Query: "boulangerie", AutoEnrich: true, MaxEnrichments: 20})
	require.NoError(t, err)

	st := o.State()
	assert.Equal(t, 5, st.Stats.EnrichedCompanies)
	assert.Equal(t, Idle, st.Status)
	assert.Nil(t, st.Err)
	assert.Len(t, st.Companies, 2)
	assert.Equal(t, 20, st.Pagination.PerPage)
	assert.Equal(t, 1200, st.Performance.ProcessingTimeMS)
	assert.Equal(t, int32(1), hits.Load())
}

func TestSearch_RateLimitedKeepsCompanies(t *testing.T) {
	var limited atomic.Bool
	o, _ := httpOrchestrator(t, func(w http.ResponseWriter, r *http.Request) {
		if limited.Load() {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"results": [{"siren": "1"}, {"siren": "2"}], "total_results": 2}`))
	})
	ctx := context.Background()

	_, err := o.Search(ctx, model.SearchFilters{Query: "garage"})
	require.NoError(t, err)
	before := o.State().Companies

	limited.Store(true)
	_, err = o.Search(ctx, model.SearchFilters{Query: "garage lyon"})
	require.Error(t, err)

	st := o.State()
	require.NotNil(t, st.Err)
	assert.Equal(t, KindRateLimited, st.Err.Kind)
	assert.Equal(t, MsgRateLimited, st.Err.Message)
	assert.NotEqual(t, MsgGeneric, st.Err.Message)
	assert.True(t, st.Err.Retryable)
	assert.Equal(t, before, st.Companies)
	assert.Equal(t, Idle, st.Status)
}

func TestSearch_ServerErrorMessage(t *testing.T) {
	o, _ := httpOrchestrator(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := o.Search(context.Background(), model.SearchFilters{Query: "fleuriste"})
	var serr *Error
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, KindServer, serr.Kind)
	assert.Equal(t, MsgServer, serr.Message)
	assert.True(t, serr.Retryable)
}

func TestSearch_NetworkErrorIsGeneric(t *testing.T) {
	b := &fakeBackend{err: &apiclient.Error{Kind: apiclient.KindTimeout}}
	o := New(b, nil)

	_, err := o.Search(context.Background(), model.SearchFilters{Query: "plombier"})
	var serr *Error
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, KindGeneric, serr.Kind)
	assert.Equal(t, MsgGeneric, serr.Message)
	assert.True(t, serr.Retryable)
}

func TestSearch_MinimumQueryLength(t *testing.T) {
	b := &fakeBackend{resp: results("1")}
	o := New(b, nil)
	ctx := context.Background()

	_, err := o.Search(ctx, model.SearchFilters{Query: "ab"})
	var serr *Error
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, KindValidation, serr.Kind)
	assert.False(t, serr.Retryable)
	assert.Equal(t, 0, b.callCount())

	_, err = o.Search(ctx, model.SearchFilters{Query: "abc"})
	require.NoError(t, err)
	assert.Equal(t, 1, b.callCount())
}

func TestSearch_EmptyQueryNeedsAFilter(t *testing.T) {
	b := &fakeBackend{resp: results("1")}
	o := New(b, nil)
	ctx := context.Background()

	_, err := o.Search(ctx, model.SearchFilters{})
	require.Error(t, err)
	assert.Equal(t, 0, b.callCount())

	_, err = o.Search(ctx, model.SearchFilters{Departments: []string{"75"}})
	require.NoError(t, err)
	assert.Equal(t, 1, b.callCount())
}

func TestSearchBasic_DisablesEnrichment(t *testing.T) {
	b := &fakeBackend{resp: results("1")}
	o := New(b, nil)

	_, err := o.SearchBasic(context.Background(), model.SearchFilters{Query: "menuisier", AutoEnrich: true, MaxEnrichments: 10})
	require.NoError(t, err)
	require.Equal(t, 1, b.callCount())
	assert.False(t, b.calls[0].AutoEnrich)
	assert.Equal(t, 10, b.calls[0].MaxEnrichments)
}

func TestRetry_WithoutSearchIsNoop(t *testing.T) {
	b := &fakeBackend{resp: results("1")}
	o := New(b, nil)

	resp, err := o.Retry(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, resp)
	assert.Equal(t, 0, b.callCount())
}

func TestRetry_ReplaysLastFilters(t *testing.T) {
	b := &fakeBackend{err: &apiclient.Error{Kind: apiclient.KindServer, StatusCode: 503}}
	o := New(b, nil)
	ctx := context.Background()

	filters := model.SearchFilters{Query: "boulangerie", NAFCodes: []string{"10.71C"}, AutoEnrich: true, MaxEnrichments: 20}
	_, err := o.Search(ctx, filters)
	require.Error(t, err)

	b.mu.Lock()
	b.err = nil
	b.resp = results("9")
	b.mu.Unlock()

	_, err = o.Retry(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, b.callCount())
	assert.Equal(t, b.calls[0], b.calls[1])
	assert.Nil(t, o.State().Err)
	assert.Len(t, o.State().Companies, 1)
}

func TestEnrichSingle_ReplacesOnlyMatchingCompany(t *testing.T) {
	b := &fakeBackend{resp: results("1", "2", "3")}
	enriched := &model.EnrichedCompany{SIREN: "2", Name: "Company 2", Enriched: true, LogoURL: "https://logo.example/2.png"}
	o := New(b, &stubEnricher{out: enriched})
	ctx := context.Background()

	_, err := o.Search(ctx, model.SearchFilters{Query: "traiteur"})
	require.NoError(t, err)
	before := o.State().Companies

	out, err := o.EnrichSingle(ctx, model.EnrichedCompany{SIREN: "2", Name: "Company 2"})
	require.NoError(t, err)
	assert.True(t, out.Enriched)

	after := o.State().Companies
	require.Len(t, after, 3)
	assert.Equal(t, before[0], after[0])
	assert.Equal(t, *enriched, after[1])
	assert.Equal(t, before[2], after[2])
	assert.False(t, before[1].Enriched, "earlier snapshots are not mutated")
}

func TestEnrichSingle_UnknownSIRENLeavesResults(t *testing.T) {
	b := &fakeBackend{resp: results("1")}
	o := New(b, &stubEnricher{out: &model.EnrichedCompany{SIREN: "77", Enriched: true}})
	ctx := context.Background()

	_, err := o.Search(ctx, model.SearchFilters{Query: "traiteur"})
	require.NoError(t, err)
	before := o.State().Companies

	_, err = o.EnrichSingle(ctx, model.EnrichedCompany{SIREN: "77"})
	require.NoError(t, err)
	assert.Equal(t, before, o.State().Companies)
}

func TestEnrichSingle_Error(t *testing.T) {
	o := New(&fakeBackend{}, &stubEnricher{err: &apiclient.Error{Kind: apiclient.KindRateLimited}})

	_, err := o.EnrichSingle(context.Background(), model.EnrichedCompany{SIREN: "1"})
	var serr *Error
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, KindRateLimited, serr.Kind)
}

func TestSearch_IdenticalConcurrentSearchesShareOneCall(t *testing.T) {
	b := &fakeBackend{resp: results("1"), gate: make(chan struct{}), started: make(chan struct{}, 4)}
	o := New(b, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.Search(context.Background(), model.SearchFilters{Query: "boucherie"})
			assert.NoError(t, err)
		}()
	}

	<-b.started
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, Searching, o.State().Status)
	close(b.gate)
	wg.Wait()

	assert.Equal(t, 1, b.callCount())
	assert.Equal(t, Idle, o.State().Status)
}

// staleBackend answers the first query slowly and the second one at once.
type staleBackend struct {
	release chan struct{}
	started chan struct{}
}

func (b *staleBackend) SearchEnriched(ctx context.Context, f model.SearchFilters) (*model.SearchResponse, error) {
	if f.Query == "slow query" {
		b.started <- struct{}{}
		<-b.release
		return results("old"), nil
	}
	return results("new"), nil
}

func TestSearch_StaleResponseIsDiscarded(t *testing.T) {
	b := &staleBackend{release: make(chan struct{}), started: make(chan struct{}, 1)}
	o := New(b, nil)
	ctx := context.Background()

	done := make(chan *model.SearchResponse, 1)
	go func() {
		resp, err := o.Search(ctx, model.SearchFilters{Query: "slow query"})
		assert.NoError(t, err)
		done <- resp
	}()
	<-b.started

	_, err := o.Search(ctx, model.SearchFilters{Query: "fast query"})
	require.NoError(t, err)
	close(b.release)

	slow := <-done
	assert.Equal(t, "old", slow.Results[0].SIREN, "the caller still gets its own answer")

	st := o.State()
	require.Len(t, st.Companies, 1)
	assert.Equal(t, "new", st.Companies[0].SIREN)
	assert.Equal(t, "fast query", st.LastFilters.Query)
	assert.Equal(t, Idle, st.Status)
}
