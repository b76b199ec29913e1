package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/billrecon/internal/extract"
	"github.com/sells-group/billrecon/internal/raster"
)

// PageUploader uploads one page image, returning its remote URL.
type PageUploader interface {
	Upload(ctx context.Context, key string) (string, error)
}

// PageCache looks up previously uploaded pages.
type PageCache interface {
	Get(key string) (string, bool)
}

// InvoiceSource supplies invoices ready for extraction.
type InvoiceSource interface {
	Invoices(ctx context.Context) ([]extract.Invoice, error)
}

// InvoiceID derives the invoice id from a PDF path: its lowercased base name
// without extension.
func InvoiceID(pdfPath string) string {
	base := filepath.Base(pdfPath)
	return strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
}

// ListPDFs returns the PDFs in dir in name order.
func ListPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read invoices dir %s", dir)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".pdf") {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	return out, nil
}

// UploadStage rasterizes every invoice PDF and uploads its pages.
type UploadStage struct {
	InvoicesDir string
	Rasterizer  raster.Rasterizer
	Uploader    PageUploader

	invoices []extract.Invoice
}

// Name implements Stage.
func (s *UploadStage) Name() string { return "upload" }

// Run implements Stage. Pages that fail to upload are skipped, and a document
// with no uploaded pages is left out of the results.
func (s *UploadStage) Run(ctx context.Context) error {
	pdfs, err := ListPDFs(s.InvoicesDir)
	if err != nil {
		return err
	}

	s.invoices = nil
	for _, pdf := range pdfs {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "pipeline: upload cancelled")
		}
		log := zap.L().With(zap.String("file", pdf))

		pages, err := s.Rasterizer.Rasterize(ctx, pdf)
		if err != nil {
			log.Error("pipeline: rasterize failed, skipping document", zap.Error(err))
			continue
		}

		var urls []string
		for _, page := range pages {
			url, err := s.Uploader.Upload(ctx, page)
			if err != nil {
				log.Warn("pipeline: page upload failed", zap.String("key", page), zap.Error(err))
				continue
			}
			urls = append(urls, url)
		}

		if len(urls) == 0 {
			log.Warn("pipeline: no images uploaded, skipping document")
			continue
		}
		log.Info("pipeline: uploaded document", zap.Int("pages", len(urls)))
		s.invoices = append(s.invoices, extract.Invoice{ID: InvoiceID(pdf), ImageURLs: urls})
	}
	return nil
}

// Invoices implements InvoiceSource with the documents uploaded by Run.
func (s *UploadStage) Invoices(context.Context) ([]extract.Invoice, error) {
	return s.invoices, nil
}

// CachedInvoices rebuilds the invoice list from the upload cache, so
// extraction can run without re-rasterizing. Pages are looked up as
// "<images dir>/<pdf name>_page_<n>.png" until the first gap.
type CachedInvoices struct {
	InvoicesDir string
	ImagesDir   string
	Cache       PageCache
}

// Invoices implements InvoiceSource.
func (c *CachedInvoices) Invoices(ctx context.Context) ([]extract.Invoice, error) {
	pdfs, err := ListPDFs(c.InvoicesDir)
	if err != nil {
		return nil, err
	}
	var out []extract.Invoice
	for _, pdf := range pdfs {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "pipeline: cancelled")
		}
		var urls []string
		for n := 1; ; n++ {
			url, ok := c.Cache.Get(filepath.Join(c.ImagesDir, raster.PageName(pdf, n)))
			if !ok {
				break
			}
			urls = append(urls, url)
		}
		if len(urls) == 0 {
			zap.L().Warn("pipeline: no cached pages for document", zap.String("file", pdf))
			continue
		}
		out = append(out, extract.Invoice{ID: InvoiceID(pdf), ImageURLs: urls})
	}
	return out, nil
}
