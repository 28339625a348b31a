package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shanehull/prospector/internal/model"
)

// CSVSpec maps a CSV export file to a category.
type CSVSpec struct {
	ID   string
	Name string
	Path string
}

type CSVSource struct {
	specs []CSVSpec
}

func NewCSVSource(specs []CSVSpec) *CSVSource {
	return &CSVSource{specs: specs}
}

func (s *CSVSource) Name() string {
	return "CSV"
}

func (s *CSVSource) ListCategories(ctx context.Context) ([]model.Category, error) {
	cats := make([]model.Category, 0, len(s.specs))
	for _, spec := range s.specs {
		cat := model.Category{ID: spec.ID, Name: spec.Name, Source: s.Name()}
		// An unreadable file lists with no count; FetchLeads reports the error.
		if leads, err := readCSVLeads(spec); err == nil {
			cat.LeadCount = len(leads)
		}
		cats = append(cats, cat)
	}
	return cats, nil
}

func (s *CSVSource) FetchLeads(ctx context.Context, categoryID string) ([]model.Lead, error) {
	var spec *CSVSpec
	for i := range s.specs {
		if s.specs[i].ID == categoryID {
			spec = &s.specs[i]
			break
		}
	}
	if spec == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCategory, categoryID)
	}
	return readCSVLeads(*spec)
}

func readCSVLeads(spec CSVSpec) ([]model.Lead, error) {
	f, err := os.Open(spec.Path)
	if err != nil {
		return nil, fmt.Errorf("could not open csv: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	// Read header to find column indexes
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	cols := make(map[string]int)
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}

	var leads []model.Lead
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}

		get := func(keys ...string) string {
			for _, key := range keys {
				if idx, ok := cols[key]; ok && idx < len(record) {
					if v := strings.TrimSpace(record[idx]); v != "" {
						return v
					}
				}
			}
			return ""
		}

		name := get("company", "company_name", "name")
		if name == "" {
			continue
		}
		leads = append(leads, model.Lead{
			ID:           fmt.Sprintf("%s-%d", spec.ID, len(leads)+1),
			CategoryID:   spec.ID,
			SIREN:        strings.ReplaceAll(get("siren"), " ", ""),
			CompanyName:  name,
			NAFCode:      strings.ToUpper(get("naf", "naf_code", "activite_principale")),
			PostalCode:   get("postal_code", "code_postal", "postcode"),
			City:         get("city", "commune"),
			Website:      get("website", "url"),
			LinkedInURL:  get("linkedin", "linkedin_url"),
			ContactName:  get("contact", "contact_name"),
			ContactTitle: get("title", "contact_title"),
			Email:        get("email"),
			Phone:        get("phone"),
		})
	}

	return leads, nil
}
