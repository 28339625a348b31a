package enrich

import (
	"context"
	"log/slog"

	"github.com/shanehull/prospector/internal/enrichcache"
	"github.com/shanehull/prospector/internal/model"
)

// Cached consults the enrichment cache before calling next. Successful
// answers are cached, including "nothing found" ones; errors are not.
type Cached struct {
	next   Enricher
	cache  *enrichcache.Cache
	logger *slog.Logger
}

func NewCached(next Enricher, cache *enrichcache.Cache, logger *slog.Logger) *Cached {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cached{next: next, cache: cache, logger: logger}
}

func (c *Cached) Enrich(ctx context.Context, company model.EnrichedCompany) (*model.EnrichedCompany, error) {
	name := company.Name
	if name != "" {
		if hit, ok := c.cache.Read(ctx, name); ok {
			c.logger.Debug("Enrichment cache hit", "name", name)
			hit.FromCache = true
			return &hit, nil
		}
	}

	out, err := c.next.Enrich(ctx, company)
	if err != nil {
		return nil, err
	}
	if name != "" {
		stored := *out
		stored.FromCache = false
		c.cache.Write(ctx, name, stored)
	}
	return out, nil
}
