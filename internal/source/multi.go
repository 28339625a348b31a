package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/shanehull/prospector/internal/model"
)

// Multi presents several sources as one. Categories keep source order, then
// each source's own listing order.
type Multi struct {
	logger  *slog.Logger
	sources []LeadSource

	mu    sync.RWMutex
	owner map[string]LeadSource
}

func NewMulti(logger *slog.Logger, sources ...LeadSource) *Multi {
	return &Multi{logger: logger, sources: sources, owner: make(map[string]LeadSource)}
}

func (m *Multi) Name() string {
	names := make([]string, 0, len(m.sources))
	for _, s := range m.sources {
		names = append(names, s.Name())
	}
	return strings.Join(names, "+")
}

// ListCategories lists every source concurrently. A source that fails to list
// is logged and skipped; only a total failure is returned.
func (m *Multi) ListCategories(ctx context.Context) ([]model.Category, error) {
	perSource := make([][]model.Category, len(m.sources))
	errs := make([]error, len(m.sources))

	var g errgroup.Group
	for i, src := range m.sources {
		g.Go(func() error {
			cats, err := src.ListCategories(ctx)
			if err != nil {
				m.logger.Error("Category listing failed", "source", src.Name(), "err", err)
				errs[i] = fmt.Errorf("%s: %w", src.Name(), err)
				return nil
			}
			perSource[i] = cats
			return nil
		})
	}
	_ = g.Wait()

	if len(m.sources) > 0 {
		failed := 0
		for _, err := range errs {
			if err != nil {
				failed++
			}
		}
		if failed == len(m.sources) {
			return nil, errors.Join(errs...)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var all []model.Category
	for i, cats := range perSource {
		for _, c := range cats {
			if _, dup := m.owner[c.ID]; dup && m.owner[c.ID] != m.sources[i] {
				m.logger.Warn("Duplicate category id across sources, keeping first", "category", c.ID, "source", m.sources[i].Name())
				continue
			}
			m.owner[c.ID] = m.sources[i]
			all = append(all, c)
		}
	}
	return all, nil
}

func (m *Multi) FetchLeads(ctx context.Context, categoryID string) ([]model.Lead, error) {
	m.mu.RLock()
	src, ok := m.owner[categoryID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCategory, categoryID)
	}
	return src.FetchLeads(ctx, categoryID)
}
