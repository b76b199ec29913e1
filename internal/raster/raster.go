// Package raster converts PDF pages into PNG images with the pdftoppm CLI.
package raster

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	defaultBin = "pdftoppm"
	defaultDPI = 200
	tmpPrefix  = "page"
)

// Rasterizer renders each page of a PDF into the output directory.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdfPath string) ([]string, error)
}

// PdfToPPM rasterizes PDFs using poppler's pdftoppm.
type PdfToPPM struct {
	binPath string
	dpi     int
	outDir  string
}

// NewPdfToPPM creates a PdfToPPM rasterizer writing into outDir. If binPath
// is empty, "pdftoppm" is used; a non-positive dpi falls back to 200.
func NewPdfToPPM(binPath string, dpi int, outDir string) *PdfToPPM {
	if binPath == "" {
		binPath = defaultBin
	}
	if dpi <= 0 {
		dpi = defaultDPI
	}
	return &PdfToPPM{binPath: binPath, dpi: dpi, outDir: outDir}
}

// PageName is the image file name for page n (1-based) of pdfPath.
func PageName(pdfPath string, n int) string {
	return fmt.Sprintf("%s_page_%d.png", filepath.Base(pdfPath), n)
}

// Rasterize renders every page of pdfPath and returns the image paths in
// page order.
func (p *PdfToPPM) Rasterize(ctx context.Context, pdfPath string) ([]string, error) {
	if err := os.MkdirAll(p.outDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "raster: create output dir %s", p.outDir)
	}

	work, err := os.MkdirTemp(p.outDir, ".raster-*")
	if err != nil {
		return nil, eris.Wrap(err, "raster: create work dir")
	}
	defer os.RemoveAll(work) //nolint:errcheck

	cmd := exec.CommandContext(ctx, p.binPath,
		"-png", "-r", strconv.Itoa(p.dpi),
		pdfPath, filepath.Join(work, tmpPrefix))

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, eris.Wrapf(err, "raster: pdftoppm failed for %s: %s", pdfPath, stderr.String())
	}

	pages, err := collectPages(work, tmpPrefix)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, eris.Errorf("raster: pdftoppm produced no pages for %s", pdfPath)
	}

	out := make([]string, 0, len(pages))
	for i, src := range pages {
		dst := filepath.Join(p.outDir, PageName(pdfPath, i+1))
		if err := os.Rename(src, dst); err != nil {
			return nil, eris.Wrapf(err, "raster: move page %d of %s", i+1, pdfPath)
		}
		out = append(out, dst)
	}

	zap.L().Debug("raster: rendered pdf",
		zap.String("file", pdfPath),
		zap.Int("pages", len(out)),
	)
	return out, nil
}

// collectPages finds pdftoppm outputs named "<prefix>-<n>.png" (n may be zero
// padded) and returns them ordered by page number.
func collectPages(dir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: read work dir %s", dir)
	}

	type page struct {
		n    int
		path string
	}
	var pages []page
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix+"-") || !strings.HasSuffix(name, ".png") {
			continue
		}
		num := strings.TrimSuffix(strings.TrimPrefix(name, prefix+"-"), ".png")
		n, err := strconv.Atoi(num)
		if err != nil {
			continue
		}
		pages = append(pages, page{n: n, path: filepath.Join(dir, name)})
	}

	sort.Slice(pages, func(i, j int) bool { return pages[i].n < pages[j].n })

	out := make([]string, len(pages))
	for i, pg := range pages {
		out[i] = pg.path
	}
	return out, nil
}
