package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/billrecon/internal/config"
	"github.com/sells-group/billrecon/internal/extract"
	"github.com/sells-group/billrecon/internal/imghost"
	"github.com/sells-group/billrecon/internal/raster"
	"github.com/sells-group/billrecon/internal/resilience"
	"github.com/sells-group/billrecon/internal/uploadcache"
	anthropicpkg "github.com/sells-group/billrecon/pkg/anthropic"
)

// openStore opens the upload cache backend selected by cache.driver.
func openStore(ctx context.Context, c config.CacheConfig) (uploadcache.Store, error) {
	switch c.Driver {
	case "json", "":
		return uploadcache.NewJSONStore(c.Path), nil
	case "sqlite":
		dsn := c.DatabaseURL
		if dsn == "" {
			dsn = "billrecon.db"
		}
		return uploadcache.NewSQLite(ctx, dsn)
	case "postgres":
		return uploadcache.NewPostgres(ctx, c.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported cache driver: %s", c.Driver)
	}
}

func uploadPolicy(u config.UploadConfig) resilience.Policy {
	return resilience.FromConfig(u.MaxAttempts, u.DelayMs, u.MaxDelayMs, u.BackoffMultiplier)
}

func newImageHost(c *config.Config) *imghost.Client {
	return imghost.NewClient(c.ImgHost.ClientID,
		imghost.WithEndpoint(c.ImgHost.Endpoint),
		imghost.WithTimeout(time.Duration(c.Upload.TimeoutSecs)*time.Second),
		imghost.WithRateLimit(c.Upload.RatePerSec),
	)
}

// openCache opens the upload cache. uploader may be nil for read-only use.
// Callers should defer cache.Close().
func openCache(ctx context.Context, c *config.Config, uploader uploadcache.Uploader) (*uploadcache.Cache, error) {
	st, err := openStore(ctx, c.Cache)
	if err != nil {
		return nil, err
	}
	cache, err := uploadcache.Open(ctx, st, uploader, uploadPolicy(c.Upload))
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return cache, nil
}

func newRasterizer(c *config.Config) *raster.PdfToPPM {
	return raster.NewPdfToPPM(c.Raster.PdfToPPMPath, c.Raster.DPI, c.Paths.ImagesDir)
}

func newExtractor(c *config.Config) *extract.Extractor {
	temperature := c.Extract.Temperature
	return extract.New(anthropicpkg.NewClient(c.Extract.Key), extract.Config{
		Model:       c.Extract.Model,
		Temperature: &temperature,
		MaxTokens:   c.Extract.MaxTokens,
		Attempts:    c.Extract.Attempts,
		Concurrency: c.Extract.Concurrency,
		OutDir:      c.Paths.AttemptsDir,
	})
}
