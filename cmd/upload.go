package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/billrecon/internal/pipeline"
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Rasterize invoice PDFs and upload their pages to the image host",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("upload"); err != nil {
			return err
		}

		cache, err := openCache(ctx, cfg, newImageHost(cfg))
		if err != nil {
			return err
		}
		defer cache.Close() //nolint:errcheck

		stage := &pipeline.UploadStage{
			InvoicesDir: cfg.Paths.InvoicesDir,
			Rasterizer:  newRasterizer(cfg),
			Uploader:    cache,
		}
		return stage.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(uploadCmd)
}
