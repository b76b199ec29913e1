package main

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/billrecon/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run upload, extract, and reconcile in order, stopping at the first failure",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("run"); err != nil {
			return err
		}

		cache, err := openCache(ctx, cfg, newImageHost(cfg))
		if err != nil {
			return err
		}
		defer cache.Close() //nolint:errcheck

		upload := &pipeline.UploadStage{
			InvoicesDir: cfg.Paths.InvoicesDir,
			Rasterizer:  newRasterizer(cfg),
			Uploader:    cache,
		}
		runner := pipeline.NewRunner(
			upload,
			&pipeline.ExtractStage{Source: upload, Extractor: newExtractor(cfg)},
			reconcileStage(""),
		)

		result, runErr := runner.Run(ctx)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return eris.Wrap(err, "encode run result")
		}
		return runErr
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
