package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/shanehull/prospector/internal/apiclient"
	"github.com/shanehull/prospector/internal/model"
	"github.com/shanehull/prospector/internal/search"
)

var (
	searchNAF            []string
	searchPostal         []string
	searchDept           []string
	searchNoEnrich       bool
	searchMaxEnrichments int
	searchExtra          map[string]string
	searchResultPage     int
	searchRetries        int

	enrichSIREN string
	enrichName  string
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Run an enriched company search",
	Long: `Search companies on the backend. Results are enriched server side
unless --no-enrich is given. The query needs at least three characters; it may
be omitted when a filter narrows the search.

Examples:
  prospector search boulangerie
  prospector search boulangerie --dept 75,92 --max-enrichments 10
  prospector search --naf 10.71C --postal 69001 --no-enrich`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

func searchFilters(cmd *cobra.Command, args []string) model.SearchFilters {
	f := model.SearchFilters{
		NAFCodes:       searchNAF,
		PostalCodes:    searchPostal,
		Departments:    searchDept,
		AutoEnrich:     cfg.Search.AutoEnrich,
		MaxEnrichments: cfg.Search.MaxEnrichments,
	}
	if len(args) == 1 {
		f.Query = args[0]
	}
	if cmd.Flags().Changed("max-enrichments") {
		f.MaxEnrichments = searchMaxEnrichments
	}
	if len(searchExtra) > 0 {
		f.Extra = make(map[string]string, len(searchExtra))
		for k, v := range searchExtra {
			f.Extra[k] = v
		}
	}
	if cmd.Flags().Changed("result-page") {
		if f.Extra == nil {
			f.Extra = map[string]string{}
		}
		f.Extra["page"] = strconv.Itoa(searchResultPage)
	}
	return f
}

// retryDelay honours the server's Retry-After when there is one.
func retryDelay(err error, attempt int) time.Duration {
	var apiErr *apiclient.Error
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return apiErr.RetryAfter
	}
	return time.Duration(attempt) * 2 * time.Second
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := getApp(ctx)
	if err != nil {
		return err
	}

	f := searchFilters(cmd, args)
	if searchNoEnrich {
		_, err = a.search.SearchBasic(ctx, f)
	} else {
		_, err = a.search.Search(ctx, f)
	}

	for attempt := 1; err != nil && attempt <= searchRetries; attempt++ {
		var serr *search.Error
		if !errors.As(err, &serr) || !serr.Retryable {
			break
		}
		delay := retryDelay(err, attempt)
		a.logger.Info("Retrying search", "attempt", attempt, "delay", delay, "kind", serr.Kind)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		_, err = a.search.Retry(ctx)
	}

	st := a.search.State()
	if err != nil {
		var serr *search.Error
		if errors.As(err, &serr) {
			fmt.Fprintln(cmd.ErrOrStderr(), serr.Message)
		}
		return err
	}
	return printSearch(cmd.OutOrStdout(), st)
}

func printSearch(out io.Writer, st search.State) error {
	p := st.Pagination
	fmt.Fprintf(out, "Found %d companies (page %d/%d)\n", p.TotalResults, p.Page, p.TotalPages)
	if st.Performance.EnrichmentEnabled {
		s := st.Stats
		fmt.Fprintf(out, "Enriched %d/%d (logo %d, description %d, linkedin %d, cached %d) in %dms\n",
			s.EnrichedCompanies, s.TotalCompanies, s.CompaniesWithLogo, s.CompaniesWithDescription,
			s.CompaniesWithLinkedIn, s.FromCache, st.Performance.ProcessingTimeMS)
	}
	if len(st.Companies) == 0 {
		fmt.Fprintln(out, "No results found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SIREN\tNAME\tNAF\tPOSTAL\tCITY\tENRICHED\tWEBSITE")
	for _, c := range st.Companies {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			c.SIREN, c.Name, c.NAFCode, c.PostalCode, c.City, enrichedLabel(c), c.Website)
	}
	return w.Flush()
}

func enrichedLabel(c model.EnrichedCompany) string {
	switch {
	case c.Error != "":
		return "error"
	case !c.Enriched:
		return "no"
	case c.FromCache:
		return "cached"
	}
	return "yes"
}

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enrich a single company, using the local cache when possible",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(enrichName) == "" && strings.TrimSpace(enrichSIREN) == "" {
			return errors.New("--name or --siren is required")
		}
		a, err := getApp(cmd.Context())
		if err != nil {
			return err
		}
		out, err := a.search.EnrichSingle(cmd.Context(), model.EnrichedCompany{SIREN: enrichSIREN, Name: enrichName})
		if err != nil {
			return err
		}
		st := search.State{Companies: []model.EnrichedCompany{*out}}
		st.Pagination = model.Pagination{TotalResults: 1, Page: 1, TotalPages: 1}
		return printSearch(cmd.OutOrStdout(), st)
	},
}

func init() {
	searchCmd.Flags().StringSliceVar(&searchNAF, "naf", nil, "NAF activity codes")
	searchCmd.Flags().StringSliceVar(&searchPostal, "postal", nil, "postal codes")
	searchCmd.Flags().StringSliceVar(&searchDept, "dept", nil, "department codes")
	searchCmd.Flags().BoolVar(&searchNoEnrich, "no-enrich", false, "skip server-side enrichment")
	searchCmd.Flags().IntVar(&searchMaxEnrichments, "max-enrichments", 0, "cap on enriched results (default from config)")
	searchCmd.Flags().StringToStringVar(&searchExtra, "filter", nil, "extra backend filter, key=value")
	searchCmd.Flags().IntVar(&searchResultPage, "result-page", 1, "result page to fetch")
	searchCmd.Flags().IntVar(&searchRetries, "retries", 0, "retry retryable failures this many times")

	enrichCmd.Flags().StringVar(&enrichSIREN, "siren", "", "company SIREN")
	enrichCmd.Flags().StringVar(&enrichName, "name", "", "company name (cache key)")
}
