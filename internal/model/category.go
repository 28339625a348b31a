package model

type CategoryStatus int

const (
	CategoryNotStarted CategoryStatus = iota
	CategoryLoaded
	CategoryFailedEmpty
)

func (s CategoryStatus) String() string {
	switch s {
	case CategoryLoaded:
		return "loaded"
	case CategoryFailedEmpty:
		return "failed-empty"
	default:
		return "not-started"
	}
}

// Category is an upstream search: a named grouping of leads that is listed
// and fetched independently of the others.
type Category struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	LeadCount int            `json:"lead_count"` // expected count reported by the listing
	Source    string         `json:"source,omitempty"`
	Status    CategoryStatus `json:"-"`
}
