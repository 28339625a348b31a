package model

import (
	"strings"
)

// Lead is a single prospect surfaced by a category. SIREN is the French
// business identifier and may be empty for scraped or imported leads.
type Lead struct {
	ID           string `json:"id"`
	CategoryID   string `json:"category_id"`
	SIREN        string `json:"siren,omitempty"`
	CompanyName  string `json:"company_name"`
	NAFCode      string `json:"naf_code,omitempty"` // activite principale
	PostalCode   string `json:"postal_code,omitempty"`
	City         string `json:"city,omitempty"`
	Website      string `json:"website,omitempty"`
	LinkedInURL  string `json:"linkedin_url,omitempty"`
	ContactName  string `json:"contact_name,omitempty"`
	ContactTitle string `json:"contact_title,omitempty"`
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone,omitempty"`
	FoundAtURL   string `json:"found_at_url,omitempty"` // page the lead was scraped from
}

// Department returns the French department code derived from the postal
// code: two digits, "2A"/"2B" for Corsica and three digits for overseas.
func (l *Lead) Department() string {
	return DepartmentOf(l.PostalCode)
}

func DepartmentOf(postalCode string) string {
	pc := strings.ReplaceAll(strings.TrimSpace(postalCode), " ", "")
	if len(pc) != 5 {
		return ""
	}
	for _, r := range pc {
		if r < '0' || r > '9' {
			return ""
		}
	}

	switch {
	case strings.HasPrefix(pc, "97"), strings.HasPrefix(pc, "98"):
		return pc[:3]
	case strings.HasPrefix(pc, "20"):
		// 200xx and 201xx are Corse-du-Sud, the rest Haute-Corse.
		if pc[2] == '0' || pc[2] == '1' {
			return "2A"
		}
		return "2B"
	}
	return pc[:2]
}

// DisplayName is what a lead is shown (and enrichment-cached) under.
func (l *Lead) DisplayName() string {
	if name := strings.TrimSpace(l.CompanyName); name != "" {
		return name
	}
	return strings.TrimSpace(l.ContactName)
}
