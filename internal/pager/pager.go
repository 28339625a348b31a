// Package pager assembles fixed-size pages of leads out of many independently
// fetched categories.
//
// Categories are walked in listing order and fetched lazily: a page only
// pulls the categories it needs to be filled. Every fetch outcome is memoized
// in the lead cache, failures included (as an empty list), so the flattened
// index of a lead depends only on the category order and the cached list
// lengths, never on fetch timing.
package pager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/shanehull/prospector/internal/leadcache"
	"github.com/shanehull/prospector/internal/model"
	"github.com/shanehull/prospector/internal/source"
)

const DefaultItemsPerPage = 20

var (
	ErrInvalidPage     = errors.New("page number must be >= 1")
	ErrInvalidPageSize = errors.New("items per page must be >= 1")
)

type Cursor struct {
	Page       int
	PerPage    int
	TotalLeads int
	TotalPages int
	// Complete reports that every category has been fetched, so the totals
	// are exact rather than estimated from listing counts.
	Complete bool
}

type Page struct {
	Leads            []model.Lead
	Cursor           Cursor
	FailedCategories int
	// Stale is set when a newer LoadPage started before this one finished;
	// a stale page is returned to its caller but not applied.
	Stale bool
}

type Assembler struct {
	src    source.LeadSource
	cache  leadcache.Cache
	logger *slog.Logger

	flight singleflight.Group
	epoch  atomic.Uint64

	mu         sync.Mutex
	categories []model.Category
	listed     bool
	failed     map[string]bool
	perPage    int
	current    Page
}

type Option func(*Assembler)

func WithItemsPerPage(n int) Option {
	return func(a *Assembler) {
		if n > 0 {
			a.perPage = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *Assembler) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func New(src source.LeadSource, cache leadcache.Cache, opts ...Option) *Assembler {
	a := &Assembler{
		src:     src,
		cache:   cache,
		logger:  slog.New(slog.DiscardHandler),
		failed:  make(map[string]bool),
		perPage: DefaultItemsPerPage,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.current.Cursor = Cursor{Page: 1, PerPage: a.perPage}
	return a
}

// Categories lists categories once per assembler and reports each one's
// fetch status.
func (a *Assembler) Categories(ctx context.Context) ([]model.Category, error) {
	cats, err := a.ensureCategories(ctx)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]model.Category, len(cats))
	for i, c := range cats {
		c.Status = a.statusLocked(c.ID)
		out[i] = c
	}
	return out, nil
}

func (a *Assembler) statusLocked(id string) model.CategoryStatus {
	switch {
	case a.failed[id]:
		return model.CategoryFailedEmpty
	case a.cache.Has(id):
		return model.CategoryLoaded
	}
	return model.CategoryNotStarted
}

func (a *Assembler) ensureCategories(ctx context.Context) ([]model.Category, error) {
	a.mu.Lock()
	if a.listed {
		cats := a.categories
		a.mu.Unlock()
		return cats, nil
	}
	a.mu.Unlock()

	v, err, _ := a.flight.Do("categories", func() (any, error) {
		cats, err := a.src.ListCategories(ctx)
		if err != nil {
			return nil, fmt.Errorf("list categories: %w", err)
		}
		a.mu.Lock()
		a.categories = cats
		a.listed = true
		a.mu.Unlock()
		a.logger.Info("Categories discovered", "source", a.src.Name(), "count", len(cats))
		return cats, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.Category), nil
}

// categoryLeads returns the memoized lead list of a category, fetching it on
// first use. Concurrent callers for the same category share one fetch.
func (a *Assembler) categoryLeads(ctx context.Context, cat model.Category) ([]model.Lead, error) {
	if leads, ok := a.cache.Get(cat.ID); ok {
		return leads, nil
	}

	v, err, _ := a.flight.Do("category:"+cat.ID, func() (any, error) {
		if leads, ok := a.cache.Get(cat.ID); ok {
			return leads, nil
		}

		leads, err := a.src.FetchLeads(ctx, cat.ID)
		if err != nil {
			// A cancelled caller says nothing about the category; leave it
			// unfetched so the next page load tries again.
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			a.logger.Error("Category fetch failed, treating as empty", "category", cat.ID, "name", cat.Name, "err", err)
			a.mu.Lock()
			a.failed[cat.ID] = true
			a.mu.Unlock()
			a.cache.Put(cat.ID, []model.Lead{})
			return []model.Lead{}, nil
		}

		a.cache.Put(cat.ID, leads)
		a.logger.Debug("Category cached", "category", cat.ID, "leads", len(leads))
		return leads, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.Lead), nil
}

// LoadPage assembles page n at the current page size. Identical concurrent
// requests share one assembly.
func (a *Assembler) LoadPage(ctx context.Context, n int) (Page, error) {
	if n < 1 {
		return Page{}, ErrInvalidPage
	}
	a.mu.Lock()
	perPage := a.perPage
	a.mu.Unlock()

	v, err, _ := a.flight.Do(fmt.Sprintf("page:%d:%d", n, perPage), func() (any, error) {
		return a.assemble(ctx, n, perPage)
	})
	if err != nil {
		return Page{}, err
	}
	return v.(Page), nil
}

func (a *Assembler) assemble(ctx context.Context, n, perPage int) (Page, error) {
	token := a.epoch.Add(1)

	cats, err := a.ensureCategories(ctx)
	if err != nil {
		return Page{}, err
	}

	start := (n - 1) * perPage
	end := start + perPage

	out := make([]model.Lead, 0, perPage)
	offset := 0
	for _, cat := range cats {
		leads, err := a.categoryLeads(ctx, cat)
		if err != nil {
			return Page{}, err
		}

		if size := len(leads); offset+size > start && offset < end {
			lo := max(start-offset, 0)
			hi := min(end-offset, size)
			out = append(out, leads[lo:hi]...)
		}
		offset += len(leads)

		if len(out) >= perPage {
			break
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	total, complete := a.totalLeadsLocked(cats)
	page := Page{
		Leads: out,
		Cursor: Cursor{
			Page:       n,
			PerPage:    perPage,
			TotalLeads: total,
			TotalPages: (total + perPage - 1) / perPage,
			Complete:   complete,
		},
		FailedCategories: len(a.failed),
	}

	if token != a.epoch.Load() {
		page.Stale = true
		a.logger.Debug("Discarding stale page", "page", n, "epoch", token)
		return page, nil
	}
	a.current = page
	return page, nil
}

// totalLeadsLocked counts cached categories exactly and falls back to the
// listing's expected count for categories not fetched yet. complete is false
// while any category is still uncached.
func (a *Assembler) totalLeadsLocked(cats []model.Category) (total int, complete bool) {
	complete = true
	for _, c := range cats {
		if leads, ok := a.cache.Get(c.ID); ok {
			total += len(leads)
			continue
		}
		total += c.LeadCount
		complete = false
	}
	return total, complete
}

// SetItemsPerPage changes the page size and reassembles page 1 from cache.
func (a *Assembler) SetItemsPerPage(ctx context.Context, perPage int) (Page, error) {
	if perPage < 1 {
		return Page{}, ErrInvalidPageSize
	}
	a.mu.Lock()
	a.perPage = perPage
	a.mu.Unlock()
	return a.LoadPage(ctx, 1)
}

// Current returns the last applied page.
func (a *Assembler) Current() Page {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

func (a *Assembler) Cursor() Cursor {
	return a.Current().Cursor
}

func (a *Assembler) FailedCategories() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.failed)
}
