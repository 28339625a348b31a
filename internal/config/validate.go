package config

import (
	"fmt"
	"net/url"
	"strings"
)

type Validation struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}
func (v *Validation) addWarn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}
func (v Validation) OK() bool { return len(v.Errors) == 0 }

func (v Validation) Err() error {
	if v.OK() {
		return nil
	}
	return fmt.Errorf("config validation failed:\n- %s", strings.Join(v.Errors, "\n- "))
}

func absoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// NormalizeAndValidate returns a normalized copy of cfg and what is wrong with it.
func NormalizeAndValidate(cfg Config) (Config, Validation) {
	out := cfg
	var res Validation

	out.API.BaseURL = strings.TrimRight(strings.TrimSpace(out.API.BaseURL), "/")
	out.Pronto.BaseURL = strings.TrimRight(strings.TrimSpace(out.Pronto.BaseURL), "/")
	out.Cache.Driver = strings.ToLower(strings.TrimSpace(out.Cache.Driver))
	out.Log.Level = strings.ToLower(strings.TrimSpace(out.Log.Level))

	if !absoluteURL(out.API.BaseURL) {
		res.addErr("api.base_url must be an absolute URL, got %q", out.API.BaseURL)
	}
	if out.API.TimeoutSeconds <= 0 {
		res.addErr("api.timeout_seconds must be > 0")
	}
	if out.API.SearchTimeoutSeconds <= 0 {
		res.addErr("api.search_timeout_seconds must be > 0")
	} else if out.API.SearchTimeoutSeconds < 10 {
		res.addWarn("api.search_timeout_seconds is very low (%d); enriched searches may time out.", out.API.SearchTimeoutSeconds)
	}
	if out.API.RequestsPerSecond < 0 {
		res.addErr("api.requests_per_second must be >= 0")
	}

	if out.Pronto.Enabled {
		if !absoluteURL(out.Pronto.BaseURL) {
			res.addErr("pronto.base_url must be an absolute URL when pronto.enabled=true")
		}
		if out.Pronto.LeadsPageSize <= 0 {
			res.addErr("pronto.leads_page_size must be > 0")
		}
	}

	if out.Pagination.ItemsPerPage <= 0 {
		res.addErr("pagination.items_per_page must be > 0")
	}
	if out.Search.MinQueryLength <= 0 {
		res.addErr("search.min_query_length must be > 0")
	}
	if out.Search.MaxEnrichments < 0 {
		res.addErr("search.max_enrichments must be >= 0")
	}

	switch out.Cache.Driver {
	case "duckdb", "sqlite", "file":
	default:
		res.addErr("cache.driver must be one of duckdb, sqlite, file; got %q", out.Cache.Driver)
	}
	if strings.TrimSpace(out.Cache.Path) == "" {
		res.addErr("cache.path is required")
	}
	if out.Cache.TTLHours <= 0 {
		res.addErr("cache.ttl_hours must be > 0")
	}

	ids := map[string]string{}
	claim := func(section string, i int, id string) {
		if id == "" {
			res.addErr("%s[%d].id is required", section, i)
			return
		}
		if prev, dup := ids[id]; dup {
			res.addErr("%s[%d].id %q already used by %s", section, i, id, prev)
			return
		}
		ids[id] = fmt.Sprintf("%s[%d]", section, i)
	}
	for i, d := range out.Directories {
		claim("directories", i, d.ID)
		if !absoluteURL(d.URL) {
			res.addErr("directories[%d].url must be an absolute URL", i)
		}
		if d.ItemSelector == "" || d.NameSelector == "" {
			res.addErr("directories[%d] needs item_selector and name_selector", i)
		}
	}
	for i, c := range out.CSVCategories {
		claim("csv_categories", i, c.ID)
		if strings.TrimSpace(c.Path) == "" {
			res.addErr("csv_categories[%d].path is required", i)
		}
	}

	if !out.Pronto.Enabled && len(out.Directories) == 0 && len(out.CSVCategories) == 0 {
		res.addWarn("no lead source enabled: enable pronto or add directories / csv_categories")
	}

	switch out.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		res.addWarn("log.level %q is unknown, using info", out.Log.Level)
		out.Log.Level = "info"
	}

	return out, res
}
