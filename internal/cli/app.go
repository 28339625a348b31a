package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/shanehull/prospector/internal/apiclient"
	"github.com/shanehull/prospector/internal/config"
	"github.com/shanehull/prospector/internal/enrich"
	"github.com/shanehull/prospector/internal/enrichcache"
	"github.com/shanehull/prospector/internal/leadcache"
	"github.com/shanehull/prospector/internal/pager"
	"github.com/shanehull/prospector/internal/search"
	"github.com/shanehull/prospector/internal/secrets"
	"github.com/shanehull/prospector/internal/source"
	"github.com/shanehull/prospector/internal/storage"
)

// app holds everything a command needs, built once from the config.
type app struct {
	cfg    config.Config
	logger *slog.Logger

	store    storage.Store
	cache    *enrichcache.Cache
	enricher enrich.Enricher
	search   *search.Orchestrator
	pager    *pager.Assembler
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage.Store, error) {
	if cfg.Cache.Driver == "file" {
		return storage.OpenFile(cfg.Cache.Path)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Cache.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	st, err := storage.OpenSQL(cfg.Cache.Driver, cfg.Cache.Path, logger.With("store", cfg.Cache.Driver))
	if err != nil {
		return nil, err
	}
	if err := st.Init(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func newAPIClient(cfg config.Config, baseURL, token string, logger *slog.Logger) (*apiclient.Client, error) {
	opts := []apiclient.Option{
		apiclient.WithTimeout(cfg.Timeout()),
		apiclient.WithLogger(logger),
	}
	if cfg.API.RequestsPerSecond > 0 {
		opts = append(opts, apiclient.WithLimiter(cfg.API.RequestsPerSecond, cfg.API.Burst))
	}
	if token != "" {
		opts = append(opts, apiclient.WithToken(token))
	}
	return apiclient.New(baseURL, opts...)
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	account := secrets.APIKeyringAccount(cfg.API.KeyringAccount, cfg.API.BaseURL)
	token, err := secrets.GetAPIToken(account)
	if err != nil {
		if !errors.Is(err, secrets.ErrNoToken) {
			return nil, err
		}
		logger.Debug("No API token configured, calling anonymously", "account", account)
	}

	api, err := newAPIClient(cfg, cfg.API.BaseURL, token, logger.With("client", "api"))
	if err != nil {
		return nil, fmt.Errorf("api client: %w", err)
	}

	var sources []source.LeadSource
	if cfg.Pronto.Enabled {
		prontoAPI, err := newAPIClient(cfg, cfg.Pronto.BaseURL, token, logger.With("client", "pronto"))
		if err != nil {
			return nil, fmt.Errorf("pronto client: %w", err)
		}
		sources = append(sources, source.NewPronto(logger.With("source", "pronto"), prontoAPI, cfg.Pronto.LeadsPageSize))
	}
	if len(cfg.Directories) > 0 {
		specs := make([]source.DirectorySpec, 0, len(cfg.Directories))
		for _, d := range cfg.Directories {
			specs = append(specs, source.DirectorySpec{
				ID:           d.ID,
				Name:         d.Name,
				URL:          d.URL,
				ItemSelector: d.ItemSelector,
				NameSelector: d.NameSelector,
				LinkSelector: d.LinkSelector,
			})
		}
		sources = append(sources, source.NewDirectory(logger.With("source", "directory"), specs))
	}
	if len(cfg.CSVCategories) > 0 {
		specs := make([]source.CSVSpec, 0, len(cfg.CSVCategories))
		for _, c := range cfg.CSVCategories {
			specs = append(specs, source.CSVSpec{ID: c.ID, Name: c.Name, Path: c.Path})
		}
		sources = append(sources, source.NewCSVSource(specs))
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open cache store: %w", err)
	}

	cacheLogger := logger.With("component", "enrichcache")
	ecache := enrichcache.New(store,
		enrichcache.WithKey(cfg.Cache.Key),
		enrichcache.WithTTL(cfg.CacheTTL()),
		enrichcache.WithLogger(cacheLogger))

	backend := enrich.NewClient(api, cfg.SearchTimeout(), logger.With("component", "enrich"))
	enricher := enrich.NewCached(backend, ecache, cacheLogger)

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		cache:    ecache,
		enricher: enricher,
		search: search.New(backend, enricher,
			search.WithMinQueryLength(cfg.Search.MinQueryLength),
			search.WithLogger(logger.With("component", "search"))),
		pager: pager.New(source.NewMulti(logger, sources...), leadcache.NewMemory(),
			pager.WithItemsPerPage(cfg.Pagination.ItemsPerPage),
			pager.WithLogger(logger.With("component", "pager"))),
	}, nil
}

func (a *app) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}
