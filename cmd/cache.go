package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var cacheJSON bool

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the upload cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached image uploads",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cache, err := openCache(ctx, cfg, nil)
		if err != nil {
			return err
		}
		defer cache.Close() //nolint:errcheck

		entries := cache.Entries()
		out := cmd.OutOrStdout()
		if cacheJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return eris.Wrap(enc.Encode(entries), "encode cache entries")
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tURL") //nolint:errcheck
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\n", e.Key, e.URL) //nolint:errcheck
		}
		return tw.Flush()
	},
}

func init() {
	cacheListCmd.Flags().BoolVar(&cacheJSON, "json", false, "print entries as JSON")
	cacheCmd.AddCommand(cacheListCmd)
	rootCmd.AddCommand(cacheCmd)
}
