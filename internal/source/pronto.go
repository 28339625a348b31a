package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/shanehull/prospector/internal/apiclient"
	"github.com/shanehull/prospector/internal/model"
)

const DefaultLeadsPageSize = 100

// Pronto reads saved searches and their leads from the lead-source service.
type Pronto struct {
	logger   *slog.Logger
	client   *apiclient.Client
	pageSize int
}

func NewPronto(logger *slog.Logger, client *apiclient.Client, pageSize int) *Pronto {
	if pageSize <= 0 {
		pageSize = DefaultLeadsPageSize
	}
	return &Pronto{logger: logger, client: client, pageSize: pageSize}
}

func (p *Pronto) Name() string { return "Pronto" }

type prontoSearch struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	LeadsCount int    `json:"leads_count"`
}

type prontoLead struct {
	ID          string `json:"id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Title       string `json:"title"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	LinkedInURL string `json:"linkedin_url"`
	Company     struct {
		Name       string `json:"name"`
		SIREN      string `json:"siren"`
		Website    string `json:"website"`
		NAF        string `json:"naf_code"`
		PostalCode string `json:"postal_code"`
		City       string `json:"city"`
	} `json:"company"`
}

type prontoPagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

type prontoSearchesResponse struct {
	Searches []prontoSearch `json:"searches"`
}

type prontoLeadsResponse struct {
	Leads      []prontoLead     `json:"leads"`
	Pagination prontoPagination `json:"pagination"`
}

type prontoSearchWithLeads struct {
	Search prontoSearch `json:"search"`
	Leads  []prontoLead `json:"leads"`
}

type prontoCompleteResponse struct {
	Searches []prontoSearchWithLeads `json:"searches"`
}

// LeadPage is one page of a search's leads as served upstream.
type LeadPage struct {
	Leads      []model.Lead
	Page       int
	TotalPages int
	Total      int
}

// SearchWithLeads pairs a category with the leads that came along with it.
type SearchWithLeads struct {
	Category model.Category
	Leads    []model.Lead
}

func (s prontoSearch) category(source string) model.Category {
	return model.Category{ID: s.ID, Name: s.Name, LeadCount: s.LeadsCount, Source: source}
}

func (l prontoLead) lead(categoryID string) model.Lead {
	contact := strings.TrimSpace(strings.TrimSpace(l.FirstName) + " " + strings.TrimSpace(l.LastName))
	return model.Lead{
		ID:           l.ID,
		CategoryID:   categoryID,
		SIREN:        strings.ReplaceAll(l.Company.SIREN, " ", ""),
		CompanyName:  strings.TrimSpace(l.Company.Name),
		NAFCode:      l.Company.NAF,
		PostalCode:   l.Company.PostalCode,
		City:         l.Company.City,
		Website:      l.Company.Website,
		LinkedInURL:  l.LinkedInURL,
		ContactName:  contact,
		ContactTitle: l.Title,
		Email:        l.Email,
		Phone:        l.Phone,
	}
}

func toLeads(categoryID string, in []prontoLead) []model.Lead {
	leads := make([]model.Lead, 0, len(in))
	for _, l := range in {
		leads = append(leads, l.lead(categoryID))
	}
	return leads
}

func (p *Pronto) GetAllSearches(ctx context.Context) ([]model.Category, error) {
	var resp prontoSearchesResponse
	if err := p.client.Get(ctx, "/searches", nil, &resp); err != nil {
		return nil, fmt.Errorf("list searches: %w", err)
	}
	cats := make([]model.Category, 0, len(resp.Searches))
	for _, s := range resp.Searches {
		cats = append(cats, s.category(p.Name()))
	}
	p.logger.Debug("Listed searches", "count", len(cats))
	return cats, nil
}

func (p *Pronto) GetSearchLeads(ctx context.Context, searchID string, page, limit int) (LeadPage, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("limit", strconv.Itoa(limit))

	var resp prontoLeadsResponse
	if err := p.client.Get(ctx, "/searches/"+url.PathEscape(searchID)+"/leads", params, &resp); err != nil {
		return LeadPage{}, fmt.Errorf("search %s leads page %d: %w", searchID, page, err)
	}
	return LeadPage{
		Leads:      toLeads(searchID, resp.Leads),
		Page:       resp.Pagination.Page,
		TotalPages: resp.Pagination.TotalPages,
		Total:      resp.Pagination.Total,
	}, nil
}

func (p *Pronto) GetSearchWithLeads(ctx context.Context, searchID string) (SearchWithLeads, error) {
	params := url.Values{}
	params.Set("include_leads", "true")

	var resp prontoSearchWithLeads
	if err := p.client.Get(ctx, "/searches/"+url.PathEscape(searchID), params, &resp); err != nil {
		return SearchWithLeads{}, fmt.Errorf("search %s: %w", searchID, err)
	}
	return SearchWithLeads{Category: resp.Search.category(p.Name()), Leads: toLeads(resp.Search.ID, resp.Leads)}, nil
}

func (p *Pronto) GetAllSearchesComplete(ctx context.Context, includeLeads bool, leadsPerSearch int) ([]SearchWithLeads, error) {
	params := url.Values{}
	params.Set("include_leads", strconv.FormatBool(includeLeads))
	if leadsPerSearch > 0 {
		params.Set("leads_per_search", strconv.Itoa(leadsPerSearch))
	}

	var resp prontoCompleteResponse
	if err := p.client.Get(ctx, "/searches/complete", params, &resp); err != nil {
		return nil, fmt.Errorf("list complete searches: %w", err)
	}
	out := make([]SearchWithLeads, 0, len(resp.Searches))
	for _, s := range resp.Searches {
		out = append(out, SearchWithLeads{Category: s.Search.category(p.Name()), Leads: toLeads(s.Search.ID, s.Leads)})
	}
	return out, nil
}

func (p *Pronto) ListCategories(ctx context.Context) ([]model.Category, error) {
	return p.GetAllSearches(ctx)
}

// FetchLeads walks every page of a search. A failure on any page fails the
// whole category so a half-loaded list is never cached.
func (p *Pronto) FetchLeads(ctx context.Context, categoryID string) ([]model.Lead, error) {
	var all []model.Lead
	for page := 1; ; page++ {
		lp, err := p.GetSearchLeads(ctx, categoryID, page, p.pageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, lp.Leads...)

		if len(lp.Leads) == 0 || page >= lp.TotalPages {
			break
		}
	}
	p.logger.Info("Search leads fetched", "search", categoryID, "leads", len(all))
	return all, nil
}
