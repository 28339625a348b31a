package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shanehull/prospector/internal/model"
	"github.com/shanehull/prospector/internal/search"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the local enrichment cache",
}

var cacheGetCmd = &cobra.Command{
	Use:   "get <company name>",
	Short: "Show the cached enrichment for a company, if still fresh",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd.Context())
		if err != nil {
			return err
		}
		c, ok := a.cache.Read(cmd.Context(), args[0])
		if !ok {
			fmt.Fprintf(cmd.OutOrStdout(), "No fresh cache entry for %q.\n", args[0])
			return nil
		}
		c.FromCache = true
		st := search.State{Companies: []model.EnrichedCompany{c}}
		st.Pagination = model.Pagination{TotalResults: 1, Page: 1, TotalPages: 1}
		return printSearch(cmd.OutOrStdout(), st)
	},
}

var cacheDeleteCmd = &cobra.Command{
	Use:   "delete <company name>",
	Short: "Drop one company from the cache",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd.Context())
		if err != nil {
			return err
		}
		a.cache.Delete(cmd.Context(), args[0])
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %q from the enrichment cache.\n", args[0])
		return nil
	},
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove every expired entry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := getApp(cmd.Context())
		if err != nil {
			return err
		}
		removed := a.cache.Purge(cmd.Context())
		fmt.Fprintf(cmd.OutOrStdout(), "Purged %d expired entries, %d left.\n", removed, a.cache.Len(cmd.Context()))
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheGetCmd, cacheDeleteCmd, cachePurgeCmd)
}
