package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/billrecon/internal/pipeline"
)

var (
	reconcileManifest string
	reconcileDir      string
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Merge attempt documents into the comparison and merged reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		if reconcileDir != "" {
			cfg.Paths.AttemptsDir = reconcileDir
		}
		if err := cfg.Validate("reconcile"); err != nil {
			return err
		}
		return reconcileStage(reconcileManifest).Run(cmd.Context())
	},
}

func reconcileStage(manifest string) *pipeline.ReconcileStage {
	return &pipeline.ReconcileStage{
		AttemptsDir:   cfg.Paths.AttemptsDir,
		Manifest:      manifest,
		ComparisonCSV: cfg.Paths.ComparisonCSV,
		MergedXLSX:    cfg.Paths.MergedXLSX,
	}
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileManifest, "manifest", "", "YAML manifest listing attempt documents (overrides the attempts dir)")
	reconcileCmd.Flags().StringVar(&reconcileDir, "dir", "", "attempts directory (default from config)")
	rootCmd.AddCommand(reconcileCmd)
}
