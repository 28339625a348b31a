// Package search drives the enriched company search: one backend round trip
// per query, with the backend doing the enrichment, plus on-demand
// enrichment of a single result.
package search

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"

	"github.com/shanehull/prospector/internal/enrich"
	"github.com/shanehull/prospector/internal/model"
)

const DefaultMinQueryLength = 3

type Backend interface {
	SearchEnriched(ctx context.Context, filters model.SearchFilters) (*model.SearchResponse, error)
}

type Status int

const (
	Idle Status = iota
	Searching
)

func (s Status) String() string {
	if s == Searching {
		return "searching"
	}
	return "idle"
}

// State is a snapshot of the orchestrator. Companies is a copy and can be
// kept by the caller.
type State struct {
	Status      Status
	Companies   []model.EnrichedCompany
	Stats       model.EnrichmentStats
	Pagination  model.Pagination
	Performance model.Performance
	Err         *Error
	LastFilters *model.SearchFilters
}

type Orchestrator struct {
	backend  Backend
	enricher enrich.Enricher
	minQuery int
	logger   *slog.Logger

	flight singleflight.Group
	epoch  atomic.Uint64

	mu       sync.Mutex
	inflight int
	state    State
}

type Option func(*Orchestrator)

func WithMinQueryLength(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.minQuery = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func New(backend Backend, enricher enrich.Enricher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend:  backend,
		enricher: enricher,
		minQuery: DefaultMinQueryLength,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) validate(f model.SearchFilters) *Error {
	q := strings.TrimSpace(f.Query)
	if q == "" {
		if f.HasStructuredFilter() {
			return nil
		}
		return &Error{Kind: KindValidation, Message: MsgNoCriteria}
	}
	if utf8.RuneCountInString(q) < o.minQuery {
		return queryTooShort(o.minQuery)
	}
	return nil
}

// Search runs one enriched search. Validation failures never reach the
// network. On failure the previous results stay in place and State().Err
// carries the user-facing error.
func (o *Orchestrator) Search(ctx context.Context, filters model.SearchFilters) (*model.SearchResponse, error) {
	if verr := o.validate(filters); verr != nil {
		o.mu.Lock()
		o.state.Err = verr
		o.mu.Unlock()
		return nil, verr
	}

	f := filters.Clone()
	token := o.epoch.Add(1)

	o.mu.Lock()
	o.inflight++
	o.state.Status = Searching
	o.state.LastFilters = &f
	o.mu.Unlock()

	v, err, shared := o.flight.Do(f.Key(), func() (any, error) {
		return o.backend.SearchEnriched(ctx, f)
	})

	o.mu.Lock()
	defer o.mu.Unlock()
	o.inflight--
	if o.inflight == 0 {
		o.state.Status = Idle
	}

	var resp *model.SearchResponse
	if err == nil {
		resp = v.(*model.SearchResponse)
	}
	stale := token != o.epoch.Load()

	if err != nil {
		serr := classify(err)
		o.logger.Warn("Search failed", "query", f.Query, "kind", serr.Kind, "stale", stale, "err", err)
		if !stale {
			o.state.Err = serr
		}
		return nil, serr
	}

	if stale {
		o.logger.Debug("Discarding stale search result", "query", f.Query, "epoch", token)
		return resp, nil
	}
	o.state.Companies = append([]model.EnrichedCompany(nil), resp.Results...)
	o.state.Stats = resp.EnrichmentStats
	o.state.Pagination = resp.Pagination
	o.state.Performance = resp.Performance
	o.state.Err = nil
	o.logger.Info("Search applied", "query", f.Query, "results", len(resp.Results), "shared", shared)
	return resp, nil
}

// SearchBasic is Search without server-side enrichment.
func (o *Orchestrator) SearchBasic(ctx context.Context, filters model.SearchFilters) (*model.SearchResponse, error) {
	f := filters.Clone()
	f.AutoEnrich = false
	return o.Search(ctx, f)
}

// Retry replays the last submitted filters. Without a previous search it does nothing.
func (o *Orchestrator) Retry(ctx context.Context) (*model.SearchResponse, error) {
	o.mu.Lock()
	last := o.state.LastFilters
	o.mu.Unlock()
	if last == nil {
		return nil, nil
	}
	return o.Search(ctx, last.Clone())
}

// EnrichSingle enriches one company and swaps it into the current results,
// matched by SIREN. Other results are left untouched.
func (o *Orchestrator) EnrichSingle(ctx context.Context, partial model.EnrichedCompany) (*model.EnrichedCompany, error) {
	out, err := o.enricher.Enrich(ctx, partial)
	if err != nil {
		serr := classify(err)
		o.logger.Warn("Single enrichment failed", "siren", partial.SIREN, "name", partial.Name, "err", err)
		return nil, serr
	}

	siren := out.SIREN
	if siren == "" {
		siren = partial.SIREN
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if siren == "" {
		return out, nil
	}
	for i, c := range o.state.Companies {
		if c.SIREN != siren {
			continue
		}
		merged := append([]model.EnrichedCompany(nil), o.state.Companies...)
		merged[i] = *out
		o.state.Companies = merged
		break
	}
	return out, nil
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.state
	s.Companies = append([]model.EnrichedCompany(nil), o.state.Companies...)
	if o.state.LastFilters != nil {
		lf := o.state.LastFilters.Clone()
		s.LastFilters = &lf
	}
	return s
}
