// Package extract asks a vision model to read energy bill line items from
// uploaded page images and writes one attempt document per run.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/billrecon/internal/model"
	"github.com/sells-group/billrecon/internal/reconcile"
	"github.com/sells-group/billrecon/pkg/anthropic"
)

const (
	defaultMaxTokens   = 4096
	defaultAttempts    = 3
	defaultConcurrency = 2
)

// SystemPrompt instructs the model which fields to return.
var SystemPrompt = buildSystemPrompt()

func buildSystemPrompt() string {
	names := make([]string, 0, len(model.Fields()))
	for _, f := range model.Fields() {
		names = append(names, f.String())
	}
	return "You read utility invoices. Return a JSON array with one object per " +
		"energy type billed on the invoice (electricity, natural gas, water, ...). " +
		"Each object has the key \"" + model.EnergyTypeKey + "\" plus these keys: " +
		strings.Join(names, ", ") + ". Use numbers for " +
		model.FieldEnergyVolume.String() + " and " + model.FieldCostAmount.String() +
		", ISO dates (YYYY-MM-DD) for usage dates, and null when a value is not " +
		"printed on the invoice. Respond with the JSON array only."
}

// Config tunes an Extractor.
type Config struct {
	Model       string
	MaxTokens   int
	Attempts    int
	Concurrency int
	OutDir      string
	// Temperature overrides the model's default sampling temperature.
	Temperature *float64
}

// Extractor runs repeated extraction attempts for invoices.
type Extractor struct {
	client anthropic.Client
	cfg    Config
}

// New creates an Extractor. Zero values in cfg fall back to defaults.
func New(client anthropic.Client, cfg Config) *Extractor {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = defaultAttempts
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &Extractor{client: client, cfg: cfg}
}

// AttemptFileName is the document name for one attempt of an invoice.
func AttemptFileName(invoiceID string, attempt int) string {
	return fmt.Sprintf("%s%s%d.json", invoiceID, reconcile.AttemptMarker, attempt)
}

// Invoice is one document ready for extraction.
type Invoice struct {
	ID        string
	ImageURLs []string
}

// Extract runs every attempt for inv and writes the successful ones to the
// output directory. Failed attempts are logged and skipped; the returned
// paths are in attempt order. It errors only when no attempt succeeded.
func (x *Extractor) Extract(ctx context.Context, inv Invoice) ([]string, error) {
	if len(inv.ImageURLs) == 0 {
		return nil, eris.Errorf("extract: invoice %s has no page images", inv.ID)
	}
	if err := os.MkdirAll(x.cfg.OutDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "extract: create output dir %s", x.cfg.OutDir)
	}

	log := zap.L().With(zap.String("invoice", inv.ID), zap.Int("pages", len(inv.ImageURLs)))

	var (
		mu      sync.Mutex
		written []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.cfg.Concurrency)

	for attempt := 1; attempt <= x.cfg.Attempts; attempt++ {
		g.Go(func() error {
			path, err := x.runAttempt(gctx, inv, attempt)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Warn("extraction attempt failed", zap.Int("attempt", attempt), zap.Error(err))
				return nil // other attempts still count
			}
			mu.Lock()
			written = append(written, path)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return written, eris.Wrapf(err, "extract: invoice %s", inv.ID)
	}
	if err := x.pruneStale(inv.ID, written); err != nil {
		return nil, err
	}
	if len(written) == 0 {
		return nil, eris.Errorf("extract: all %d attempts failed for %s", x.cfg.Attempts, inv.ID)
	}

	sort.Strings(written)
	return written, nil
}

// pruneStale removes attempt documents for invoiceID left by earlier runs
// that this run did not rewrite, so reconciliation only sees current output.
func (x *Extractor) pruneStale(invoiceID string, written []string) error {
	keep := make(map[string]struct{}, len(written))
	for _, p := range written {
		keep[filepath.Base(p)] = struct{}{}
	}

	entries, err := os.ReadDir(x.cfg.OutDir)
	if err != nil {
		return eris.Wrapf(err, "extract: read output dir %s", x.cfg.OutDir)
	}
	want := strings.ToLower(invoiceID)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".json" || !strings.Contains(name, reconcile.AttemptMarker) {
			continue
		}
		if _, ok := keep[name]; ok {
			continue
		}
		id, err := reconcile.ParseIdentity(name)
		if err != nil || id.InvoiceID != want {
			continue
		}
		path := filepath.Join(x.cfg.OutDir, name)
		if err := os.Remove(path); err != nil {
			return eris.Wrapf(err, "extract: remove stale %s", path)
		}
		zap.L().Info("removed stale attempt document",
			zap.String("invoice", invoiceID),
			zap.Int("attempt", id.Attempt),
			zap.String("file", path),
		)
	}
	return nil
}

func (x *Extractor) runAttempt(ctx context.Context, inv Invoice, attempt int) (string, error) {
	resp, err := x.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     x.cfg.Model,
		MaxTokens:   int64(x.cfg.MaxTokens),
		Temperature: x.cfg.Temperature,
		System:      anthropic.BuildCachedSystemBlocks(SystemPrompt, "5m"),
		Messages: []anthropic.Message{{
			Role:      "user",
			Content:   "Extract the energy line items from this invoice.",
			ImageURLs: inv.ImageURLs,
		}},
	})
	if err != nil {
		return "", err
	}
	resp.Usage.LogCost(x.cfg.Model, inv.ID, attempt)

	records, err := ParseRecords(resp.Text())
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return "", eris.Wrap(err, "extract: marshal records")
	}
	path := filepath.Join(x.cfg.OutDir, AttemptFileName(inv.ID, attempt))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", eris.Wrapf(err, "extract: write %s", path)
	}
	return path, nil
}

// ParseRecords pulls the JSON array out of a model reply. A bare object is
// treated as a one-element array. Elements that fail the attempt record
// schema are dropped.
func ParseRecords(text string) ([]map[string]any, error) {
	cleaned := cleanJSON(text)

	dec := json.NewDecoder(strings.NewReader(cleaned))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, eris.Wrap(err, "extract: parse model reply")
	}

	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case map[string]any:
		items = []any{v}
	default:
		return nil, eris.Errorf("extract: expected JSON array, got %T", raw)
	}

	out := make([]map[string]any, 0, len(items))
	for i, item := range items {
		if err := reconcile.ValidateRecord(item); err != nil {
			zap.L().Debug("dropping invalid extracted record", zap.Int("index", i), zap.Error(err))
			continue
		}
		out = append(out, item.(map[string]any))
	}
	if len(out) == 0 {
		return nil, eris.New("extract: reply holds no valid records")
	}
	return out, nil
}

// cleanJSON strips markdown fences and trims to the outermost array or object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	open, closer := "[", "]"
	if a, o := strings.Index(text, "["), strings.Index(text, "{"); a < 0 || (o >= 0 && o < a) {
		open, closer = "{", "}"
	}
	start := strings.Index(text, open)
	end := strings.LastIndex(text, closer)
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
