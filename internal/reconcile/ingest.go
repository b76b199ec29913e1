package reconcile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/billrecon/internal/model"
)

// IngestStats summarizes a batch ingestion.
type IngestStats struct {
	Documents        int `json:"documents"`
	Records          int `json:"records"`
	SkippedDocuments int `json:"skipped_documents"`
	SkippedRecords   int `json:"skipped_records"`
}

func (s *IngestStats) addResult(r Result) {
	s.Documents++
	s.Records += r.Records
	s.SkippedRecords += r.Skipped
}

// Manifest lists attempt documents with explicit identities.
type Manifest struct {
	Attempts []ManifestEntry `yaml:"attempts"`
}

// ManifestEntry is one document in a Manifest.
type ManifestEntry struct {
	Path      string `yaml:"path"`
	InvoiceID string `yaml:"invoice_id"`
	Attempt   int    `yaml:"attempt"`
}

// IngestDir ingests every *.json file in dir in name order, deriving each
// identity from the file name. Unreadable, misnamed, or malformed documents
// are logged and skipped; only an unreadable directory is an error.
func (e *Engine) IngestDir(ctx context.Context, dir string) (IngestStats, error) {
	var stats IngestStats

	entries, err := os.ReadDir(dir)
	if err != nil {
		return stats, eris.Wrapf(err, "reconcile: read dir %s", dir)
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return stats, eris.Wrap(ctx.Err(), "reconcile: ingest cancelled")
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		id, err := ParseIdentity(entry.Name())
		if errors.Is(err, ErrNoAttemptMarker) {
			zap.L().Warn("no attempt marker in file name, treating as attempt 1",
				zap.String("file", path),
				zap.String("invoice", id.InvoiceID),
			)
		} else if err != nil {
			zap.L().Error("skipping attempt document", zap.String("file", path), zap.Error(err))
			stats.SkippedDocuments++
			continue
		}

		e.ingestFile(path, id, &stats)
	}

	zap.L().Info("attempt documents ingested",
		zap.String("dir", dir),
		zap.Int("documents", stats.Documents),
		zap.Int("records", stats.Records),
		zap.Int("skipped_documents", stats.SkippedDocuments),
		zap.Int("skipped_records", stats.SkippedRecords),
		zap.Int("invoice_keys", e.Keys()),
	)
	return stats, nil
}

// IngestManifest ingests the documents listed in a YAML manifest. Relative
// paths resolve against the manifest's directory. Entries with an invalid
// identity or a malformed document are logged and skipped.
func (e *Engine) IngestManifest(ctx context.Context, path string) (IngestStats, error) {
	var stats IngestStats

	data, err := os.ReadFile(path)
	if err != nil {
		return stats, eris.Wrapf(err, "reconcile: read manifest %s", path)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return stats, eris.Wrapf(err, "reconcile: parse manifest %s", path)
	}

	base := filepath.Dir(path)
	for i, entry := range m.Attempts {
		if ctx.Err() != nil {
			return stats, eris.Wrap(ctx.Err(), "reconcile: ingest cancelled")
		}
		docPath := entry.Path
		if !filepath.IsAbs(docPath) {
			docPath = filepath.Join(base, docPath)
		}
		id := model.Identity{InvoiceID: entry.InvoiceID, Attempt: entry.Attempt}
		if err := id.Validate(); err != nil {
			zap.L().Error("skipping manifest entry",
				zap.String("manifest", path),
				zap.Int("entry", i),
				zap.String("file", docPath),
				zap.Error(err),
			)
			stats.SkippedDocuments++
			continue
		}
		e.ingestFile(docPath, id, &stats)
	}
	return stats, nil
}

func (e *Engine) ingestFile(path string, id model.Identity, stats *IngestStats) {
	payload, err := os.ReadFile(path)
	if err != nil {
		zap.L().Error("skipping unreadable attempt document", zap.String("file", path), zap.Error(err))
		stats.SkippedDocuments++
		return
	}

	res, err := e.Ingest(Document{Identity: id, Source: path, Payload: payload})
	if err != nil {
		zap.L().Error("error decoding attempt document",
			zap.String("file", path),
			zap.Int("attempt", id.Attempt),
			zap.Error(err),
		)
		stats.SkippedDocuments++
		return
	}
	stats.addResult(res)
}
