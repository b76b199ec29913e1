package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/billrecon/internal/pipeline"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Run extraction attempts for every invoice with uploaded pages",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("extract"); err != nil {
			return err
		}

		cache, err := openCache(ctx, cfg, nil)
		if err != nil {
			return err
		}
		defer cache.Close() //nolint:errcheck

		stage := &pipeline.ExtractStage{
			Source: &pipeline.CachedInvoices{
				InvoicesDir: cfg.Paths.InvoicesDir,
				ImagesDir:   cfg.Paths.ImagesDir,
				Cache:       cache,
			},
			Extractor: newExtractor(cfg),
		}
		return stage.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)
}
