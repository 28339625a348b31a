package cli

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/shanehull/prospector/internal/model"
	"github.com/shanehull/prospector/internal/pager"
)

var (
	pagePerPage int

	exportOut     string
	exportPerPage int
)

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List lead categories from every configured source",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd.Context())
		if err != nil {
			return err
		}
		cats, err := a.pager.Categories(cmd.Context())
		if err != nil {
			return fmt.Errorf("list categories: %w", err)
		}
		if len(cats) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No categories found.")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tLEADS\tSOURCE\tSTATUS")
		for _, c := range cats {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", c.ID, c.Name, c.LeadCount, c.Source, c.Status)
		}
		return w.Flush()
	},
}

var pageCmd = &cobra.Command{
	Use:   "page [n]",
	Short: "Show one page of leads across all categories",
	Long: `Show page n (default 1) of the flattened lead list. Categories are
fetched in listing order and only as far as the page needs.

Examples:
  prospector page
  prospector page 3 --per-page 50`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n := 1
		if len(args) == 1 {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("page number %q: %w", args[0], err)
			}
			n = v
		}

		a, err := getApp(cmd.Context())
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("per-page") {
			if _, err := a.pager.SetItemsPerPage(cmd.Context(), pagePerPage); err != nil {
				return err
			}
		}
		p, err := a.pager.LoadPage(cmd.Context(), n)
		if err != nil {
			return fmt.Errorf("load page %d: %w", n, err)
		}
		return printPage(cmd.OutOrStdout(), p)
	},
}

func printPage(out io.Writer, p pager.Page) error {
	c := p.Cursor
	approx := ""
	if !c.Complete {
		approx = "~"
	}
	fmt.Fprintf(out, "Page %d/%s%d (%s%d leads, %d per page)\n",
		c.Page, approx, c.TotalPages, approx, c.TotalLeads, c.PerPage)
	if p.FailedCategories > 0 {
		fmt.Fprintf(out, "Warning: %d categories failed to load and are shown as empty.\n", p.FailedCategories)
	}
	if len(p.Leads) == 0 {
		fmt.Fprintln(out, "No leads on this page.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CATEGORY\tCOMPANY\tCONTACT\tPOSTAL\tDEPT\tWEBSITE")
	for _, l := range p.Leads {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			l.CategoryID, l.DisplayName(), l.ContactName, l.PostalCode, l.Department(), l.Website)
	}
	return w.Flush()
}

var exportHeader = []string{
	"category_id", "id", "siren", "company_name", "naf_code", "postal_code", "department",
	"city", "website", "linkedin_url", "contact_name", "contact_title", "email", "phone", "found_at_url",
}

func leadRecord(l model.Lead) []string {
	return []string{
		l.CategoryID, l.ID, l.SIREN, l.DisplayName(), l.NAFCode, l.PostalCode, l.Department(),
		l.City, l.Website, l.LinkedInURL, l.ContactName, l.ContactTitle, l.Email, l.Phone, l.FoundAtURL,
	}
}

func generateCSVPath(outDir string) string {
	return filepath.Join(outDir, "leads-"+time.Now().Format("20060102")+".csv")
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Walk every page and write all leads to a CSV file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := getApp(ctx)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("per-page") {
			if _, err := a.pager.SetItemsPerPage(ctx, exportPerPage); err != nil {
				return err
			}
		}

		path := exportOut
		if path == "" {
			path = generateCSVPath("out")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()

		w := csv.NewWriter(f)
		if err := w.Write(exportHeader); err != nil {
			return err
		}

		written, failed := 0, 0
		for n := 1; ; n++ {
			p, err := a.pager.LoadPage(ctx, n)
			if err != nil {
				return fmt.Errorf("load page %d: %w", n, err)
			}
			for _, l := range p.Leads {
				if err := w.Write(leadRecord(l)); err != nil {
					return err
				}
				written++
			}
			failed = p.FailedCategories
			// Listing counts are estimates (directory and stale Pronto
			// categories report 0), so only a short page or an exact
			// total ends the walk.
			if len(p.Leads) < p.Cursor.PerPage || (p.Cursor.Complete && n >= p.Cursor.TotalPages) {
				break
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return err
		}

		a.logger.Info("Export successful", "path", path, "leads", written, "failed_categories", failed)
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d leads to %s\n", written, path)
		return nil
	},
}

func init() {
	pageCmd.Flags().IntVarP(&pagePerPage, "per-page", "p", 0, "items per page (default from config)")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output CSV path (default out/leads-YYYYMMDD.csv)")
	exportCmd.Flags().IntVarP(&exportPerPage, "per-page", "p", 0, "page size used while walking")
}
