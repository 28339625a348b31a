package enrich

import (
	"context"

	"github.com/shanehull/prospector/internal/model"
)

// Enricher augments a partial company record with third-party data.
type Enricher interface {
	Enrich(ctx context.Context, company model.EnrichedCompany) (*model.EnrichedCompany, error)
}
