package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/billrecon/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "billrecon",
	Short: "Energy bill extraction and reconciliation pipeline",
	Long:  "Rasterizes invoice PDFs, uploads page images once, runs repeated vision extractions, and reconciles the attempts into flagged reports.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
