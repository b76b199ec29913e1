package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/billrecon/internal/extract"
	"github.com/sells-group/billrecon/internal/reconcile"
	"github.com/sells-group/billrecon/internal/report"
)

// Extractor runs extraction attempts for one invoice.
type Extractor interface {
	Extract(ctx context.Context, inv extract.Invoice) ([]string, error)
}

// ExtractStage writes attempt documents for every available invoice.
type ExtractStage struct {
	Source    InvoiceSource
	Extractor Extractor
}

// Name implements Stage.
func (s *ExtractStage) Name() string { return "extract" }

// Run implements Stage. A failed invoice is logged and skipped.
func (s *ExtractStage) Run(ctx context.Context) error {
	invoices, err := s.Source.Invoices(ctx)
	if err != nil {
		return eris.Wrap(err, "pipeline: list invoices")
	}
	if len(invoices) == 0 {
		zap.L().Warn("pipeline: no invoices to extract")
		return nil
	}

	var failed int
	for _, inv := range invoices {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "pipeline: extract cancelled")
		}
		paths, err := s.Extractor.Extract(ctx, inv)
		if err != nil {
			failed++
			zap.L().Error("pipeline: extraction failed", zap.String("invoice", inv.ID), zap.Error(err))
			continue
		}
		zap.L().Info("pipeline: extracted invoice", zap.String("invoice", inv.ID), zap.Int("attempts", len(paths)))
	}

	if failed == len(invoices) {
		return eris.Errorf("pipeline: extraction failed for all %d invoices", failed)
	}
	return nil
}

// ReconcileStage merges attempt documents and writes both reports.
type ReconcileStage struct {
	AttemptsDir   string
	Manifest      string // optional; overrides AttemptsDir
	ComparisonCSV string
	MergedXLSX    string

	stats reconcile.IngestStats
	rows  int
}

// Name implements Stage.
func (s *ReconcileStage) Name() string { return "reconcile" }

// Run implements Stage.
func (s *ReconcileStage) Run(ctx context.Context) error {
	engine := reconcile.NewEngine()

	var err error
	if s.Manifest != "" {
		s.stats, err = engine.IngestManifest(ctx, s.Manifest)
	} else {
		s.stats, err = engine.IngestDir(ctx, s.AttemptsDir)
	}
	if err != nil {
		return err
	}

	if err := report.WriteComparisonCSV(s.ComparisonCSV, engine.Comparison()); err != nil {
		return err
	}
	merged := engine.Merge()
	if err := report.WriteMergedXLSX(s.MergedXLSX, merged); err != nil {
		return err
	}
	s.rows = len(merged)

	zap.L().Info("pipeline: reports written",
		zap.Int("documents", s.stats.Documents),
		zap.Int("records", s.stats.Records),
		zap.Int("skipped_documents", s.stats.SkippedDocuments),
		zap.Int("skipped_records", s.stats.SkippedRecords),
		zap.Int("rows", s.rows),
		zap.String("comparison_csv", s.ComparisonCSV),
		zap.String("merged_xlsx", s.MergedXLSX),
	)
	return nil
}

// Stats returns the ingestion summary of the last Run.
func (s *ReconcileStage) Stats() reconcile.IngestStats { return s.stats }

// Rows returns the merged row count of the last Run.
func (s *ReconcileStage) Rows() int { return s.rows }
