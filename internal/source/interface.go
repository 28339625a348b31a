package source

import (
	"context"
	"errors"

	"github.com/shanehull/prospector/internal/model"
)

var ErrUnknownCategory = errors.New("unknown category")

// LeadSource lists categories and fetches the complete lead list of one of them.
type LeadSource interface {
	Name() string
	ListCategories(ctx context.Context) ([]model.Category, error)
	FetchLeads(ctx context.Context, categoryID string) ([]model.Lead, error)
}
