package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Directory struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	URL          string `yaml:"url"`
	ItemSelector string `yaml:"item_selector"`
	NameSelector string `yaml:"name_selector"`
	LinkSelector string `yaml:"link_selector"`
}

type CSVCategory struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

type Config struct {
	API struct {
		BaseURL              string  `yaml:"base_url"`
		TimeoutSeconds       int     `yaml:"timeout_seconds"`
		SearchTimeoutSeconds int     `yaml:"search_timeout_seconds"`
		RequestsPerSecond    float64 `yaml:"requests_per_second"`
		Burst                int     `yaml:"burst"`
		KeyringAccount       string  `yaml:"keyring_account"`
	} `yaml:"api"`

	Pronto struct {
		Enabled       bool   `yaml:"enabled"`
		BaseURL       string `yaml:"base_url"`
		LeadsPageSize int    `yaml:"leads_page_size"`
	} `yaml:"pronto"`

	Pagination struct {
		ItemsPerPage int `yaml:"items_per_page"`
	} `yaml:"pagination"`

	Search struct {
		MinQueryLength int  `yaml:"min_query_length"`
		AutoEnrich     bool `yaml:"auto_enrich"`
		MaxEnrichments int  `yaml:"max_enrichments"`
	} `yaml:"search"`

	Cache struct {
		Driver   string `yaml:"driver"` // duckdb, sqlite or file
		Path     string `yaml:"path"`
		Key      string `yaml:"key"`
		TTLHours int    `yaml:"ttl_hours"`
	} `yaml:"cache"`

	Directories   []Directory   `yaml:"directories"`
	CSVCategories []CSVCategory `yaml:"csv_categories"`

	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
}

func Default() Config {
	var cfg Config
	cfg.API.BaseURL = "http://localhost:8000"
	cfg.API.TimeoutSeconds = 15
	cfg.API.SearchTimeoutSeconds = 60
	cfg.API.RequestsPerSecond = 5
	cfg.API.Burst = 10
	cfg.Pronto.Enabled = true
	cfg.Pronto.BaseURL = "http://localhost:8000/api/pronto"
	cfg.Pronto.LeadsPageSize = 100
	cfg.Pagination.ItemsPerPage = 20
	cfg.Search.MinQueryLength = 3
	cfg.Search.AutoEnrich = true
	cfg.Search.MaxEnrichments = 20
	cfg.Cache.Driver = "duckdb"
	cfg.Cache.Path = "out/prospector.duckdb"
	cfg.Cache.Key = "enrichment_cache"
	cfg.Cache.TTLHours = 24
	cfg.Log.Level = "info"
	return cfg
}

// Load reads path over the defaults. A missing file yields the defaults.
// Environment variables win over both.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, err
		}
		if err == nil {
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return cfg, err
			}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("PROSPECTOR_API_URL")); v != "" {
		cfg.API.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("PROSPECTOR_PRONTO_URL")); v != "" {
		cfg.Pronto.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("PROSPECTOR_LOG_LEVEL")); v != "" {
		cfg.Log.Level = v
	}
}

func (c Config) Timeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

func (c Config) SearchTimeout() time.Duration {
	return time.Duration(c.API.SearchTimeoutSeconds) * time.Second
}

func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLHours) * time.Hour
}
