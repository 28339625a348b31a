package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/shanehull/prospector/internal/apiclient"
	"github.com/shanehull/prospector/internal/model"
)

const (
	searchPath       = "/api/search-enriched"
	enrichSinglePath = "/api/search-enriched/enrich-single"

	// Enrichment happens server side during the search, so it can take a while.
	DefaultSearchTimeout = 60 * time.Second
)

// Client talks to the enriched-search backend.
type Client struct {
	api           *apiclient.Client
	searchTimeout time.Duration
	logger        *slog.Logger
}

func NewClient(api *apiclient.Client, searchTimeout time.Duration, logger *slog.Logger) *Client {
	if searchTimeout <= 0 {
		searchTimeout = DefaultSearchTimeout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{api: api, searchTimeout: searchTimeout, logger: logger}
}

func (c *Client) SearchEnriched(ctx context.Context, filters model.SearchFilters) (*model.SearchResponse, error) {
	params := url.Values{}
	for k, v := range filters.Params() {
		params.Set(k, v)
	}

	var resp model.SearchResponse
	if err := c.api.Get(ctx, searchPath, params, &resp, apiclient.CallTimeout(c.searchTimeout)); err != nil {
		return nil, fmt.Errorf("enriched search: %w", err)
	}
	c.logger.Info("Enriched search complete",
		"query", filters.Query,
		"results", len(resp.Results),
		"total", resp.TotalResults,
		"enriched", resp.EnrichmentStats.EnrichedCompanies,
		"processing_ms", resp.Performance.ProcessingTimeMS)
	return &resp, nil
}

type enrichSingleBody struct {
	Company model.EnrichedCompany `json:"company"`
}

func (c *Client) Enrich(ctx context.Context, company model.EnrichedCompany) (*model.EnrichedCompany, error) {
	var resp enrichSingleBody
	if err := c.api.Post(ctx, enrichSinglePath, enrichSingleBody{Company: company}, &resp, apiclient.CallTimeout(c.searchTimeout)); err != nil {
		return nil, fmt.Errorf("enrich %s: %w", company.SIREN, err)
	}
	c.logger.Debug("Company enriched", "siren", resp.Company.SIREN, "enriched", resp.Company.Enriched)
	return &resp.Company, nil
}
