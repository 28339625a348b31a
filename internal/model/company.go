package model

import (
	"sort"
	"strconv"
	"strings"
)

// EnrichedCompany is a base company record augmented with third-party data.
// SIREN is the stable key; Name is only for display.
type EnrichedCompany struct {
	SIREN       string `json:"siren"`
	Name        string `json:"nom_complet"`
	NAFCode     string `json:"activite_principale,omitempty"`
	PostalCode  string `json:"code_postal,omitempty"`
	City        string `json:"commune,omitempty"`
	Enriched    bool   `json:"enriched"`
	LogoURL     string `json:"logo_url,omitempty"`
	Description string `json:"description,omitempty"`
	LinkedInURL string `json:"linkedin_url,omitempty"`
	Website     string `json:"website,omitempty"`
	FromCache   bool   `json:"from_cache"`
	Error       string `json:"error,omitempty"`
}

type EnrichmentStats struct {
	TotalCompanies           int `json:"total_companies"`
	EnrichedCompanies        int `json:"enriched_companies"`
	CompaniesWithLogo        int `json:"companies_with_logo"`
	CompaniesWithDescription int `json:"companies_with_description"`
	CompaniesWithLinkedIn    int `json:"companies_with_linkedin"`
	FromCache                int `json:"from_cache"`
}

type Performance struct {
	ProcessingTimeMS    int  `json:"processing_time_ms"`
	EnrichmentEnabled   bool `json:"enrichment_enabled"`
	MaxEnrichmentsLimit int  `json:"max_enrichments_limit"`
}

type Pagination struct {
	TotalResults int `json:"total_results"`
	Page         int `json:"page"`
	PerPage      int `json:"per_page"`
	TotalPages   int `json:"total_pages"`
}

type SearchResponse struct {
	Results []EnrichedCompany `json:"results"`
	Pagination
	EnrichmentStats EnrichmentStats `json:"enrichment_stats"`
	Performance     Performance     `json:"performance"`
}

// SearchFilters is what the enriched search endpoint accepts. Extra keys are
// passed through to the backend untouched.
type SearchFilters struct {
	Query          string            `json:"q,omitempty"`
	NAFCodes       []string          `json:"activite_principale,omitempty"`
	PostalCodes    []string          `json:"code_postal,omitempty"`
	Departments    []string          `json:"departement,omitempty"`
	AutoEnrich     bool              `json:"auto_enrich"`
	MaxEnrichments int               `json:"max_enrichments,omitempty"`
	Extra          map[string]string `json:"extra,omitempty"`
}

// HasStructuredFilter reports whether anything beyond the free-text query
// narrows the search.
func (f SearchFilters) HasStructuredFilter() bool {
	return len(f.NAFCodes) > 0 || len(f.PostalCodes) > 0 || len(f.Departments) > 0 || len(f.Extra) > 0
}

// Params flattens the filters into the backend's query parameters.
func (f SearchFilters) Params() map[string]string {
	p := make(map[string]string, 6+len(f.Extra))
	for k, v := range f.Extra {
		p[k] = v
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		p["q"] = q
	}
	if len(f.NAFCodes) > 0 {
		p["activite_principale"] = strings.Join(f.NAFCodes, ",")
	}
	if len(f.PostalCodes) > 0 {
		p["code_postal"] = strings.Join(f.PostalCodes, ",")
	}
	if len(f.Departments) > 0 {
		p["departement"] = strings.Join(f.Departments, ",")
	}
	p["auto_enrich"] = strconv.FormatBool(f.AutoEnrich)
	if f.MaxEnrichments > 0 {
		p["max_enrichments"] = strconv.Itoa(f.MaxEnrichments)
	}
	return p
}

// Key is a canonical encoding of the filters; equal filter sets have equal keys.
func (f SearchFilters) Key() string {
	p := f.Params()
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(p[k])
	}
	return b.String()
}

// Clone returns a deep copy so a stored filter set cannot be mutated by the caller.
func (f SearchFilters) Clone() SearchFilters {
	out := f
	out.NAFCodes = append([]string(nil), f.NAFCodes...)
	out.PostalCodes = append([]string(nil), f.PostalCodes...)
	out.Departments = append([]string(nil), f.Departments...)
	if f.Extra != nil {
		out.Extra = make(map[string]string, len(f.Extra))
		for k, v := range f.Extra {
			out.Extra[k] = v
		}
	}
	return out
}
