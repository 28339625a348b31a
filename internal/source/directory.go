package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/shanehull/prospector/internal/model"
)

// DirectorySpec describes one member directory page scraped as a category.
type DirectorySpec struct {
	ID           string
	Name         string
	URL          string
	ItemSelector string // one match per company
	NameSelector string // relative to the item
	LinkSelector string // relative to the item, optional
}

// Directory scrapes public member directories. Each configured page is a
// category; its leads are the company entries found on it.
type Directory struct {
	logger    *slog.Logger
	specs     []DirectorySpec
	userAgent string
	timeout   time.Duration
}

func NewDirectory(logger *slog.Logger, specs []DirectorySpec) *Directory {
	return &Directory{
		logger: logger,
		specs:  specs,
		// User Agent helps avoid basic bot detection on WordPress sites
		userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
		timeout:   30 * time.Second,
	}
}

func (d *Directory) Name() string { return "Directory" }

func (d *Directory) ListCategories(ctx context.Context) ([]model.Category, error) {
	cats := make([]model.Category, 0, len(d.specs))
	for _, s := range d.specs {
		cats = append(cats, model.Category{ID: s.ID, Name: s.Name, Source: d.Name()})
	}
	return cats, nil
}

func (d *Directory) spec(id string) (DirectorySpec, bool) {
	for _, s := range d.specs {
		if s.ID == id {
			return s, true
		}
	}
	return DirectorySpec{}, false
}

func (d *Directory) FetchLeads(ctx context.Context, categoryID string) ([]model.Lead, error) {
	spec, ok := d.spec(categoryID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCategory, categoryID)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	u, err := url.Parse(spec.URL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("directory %s: invalid url %q", spec.ID, spec.URL)
	}

	c := colly.NewCollector(
		colly.AllowedDomains(u.Hostname()),
		colly.UserAgent(d.userAgent),
	)
	c.SetRequestTimeout(d.timeout)

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})

	var leads []model.Lead
	seen := make(map[string]bool)
	c.OnHTML(spec.ItemSelector, func(e *colly.HTMLElement) {
		name := strings.TrimSpace(e.ChildText(spec.NameSelector))
		if len(name) <= 2 || seen[strings.ToLower(name)] {
			return
		}
		seen[strings.ToLower(name)] = true

		lead := model.Lead{
			ID:          fmt.Sprintf("%s-%d", spec.ID, len(leads)+1),
			CategoryID:  spec.ID,
			CompanyName: name,
			FoundAtURL:  e.Request.URL.String(),
		}
		if spec.LinkSelector != "" {
			if href := e.ChildAttr(spec.LinkSelector, "href"); href != "" {
				lead.Website = e.Request.AbsoluteURL(href)
			}
		}
		leads = append(leads, lead)
	})

	var scrapeErr error
	c.OnError(func(r *colly.Response, err error) {
		scrapeErr = fmt.Errorf("directory %s: status %d: %w", spec.ID, r.StatusCode, err)
	})

	d.logger.Info("Starting directory scrape", "category", spec.ID, "url", spec.URL)
	if err := c.Visit(spec.URL); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("directory %s: %w", spec.ID, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if scrapeErr != nil {
		return nil, scrapeErr
	}

	if len(leads) == 0 {
		d.logger.Warn("Directory scrape yielded 0 leads. The page might be lazy-loading or the selectors are stale.", "category", spec.ID)
	}
	return leads, nil
}
