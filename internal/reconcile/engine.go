// Package reconcile merges repeated extraction attempts of energy bill line
// items into one record per invoice and energy type, flagging fields whose
// attempts disagree.
package reconcile

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/billrecon/internal/model"
)

// Document is one attempt document: raw JSON holding a single record or an
// array of records, plus the identity it was produced under.
type Document struct {
	Identity model.Identity
	// Source names the document in diagnostics, usually its file path.
	Source  string
	Payload []byte
}

// ParseError reports a document whose payload is not a JSON object or array.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return "reconcile: parse " + e.Source + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }

// Result summarizes a single Ingest call.
type Result struct {
	Records int
	Skipped int
}

// Engine accumulates attempt records and builds the comparison and merged
// views. It is not safe for concurrent use; ingest everything before calling
// Comparison or Merge.
type Engine struct {
	keys       map[model.InvoiceKey]struct{}
	comparison map[model.InvoiceKey]map[string]model.Value
	values     map[model.InvoiceKey]map[model.Field][]model.Value
	lower      cases.Caser
}

// NewEngine returns an empty engine.
func NewEngine() *Engine {
	return &Engine{
		keys:       make(map[model.InvoiceKey]struct{}),
		comparison: make(map[model.InvoiceKey]map[string]model.Value),
		values:     make(map[model.InvoiceKey]map[model.Field][]model.Value),
		lower:      cases.Lower(language.Und),
	}
}

// Ingest decodes doc and adds each of its records. A payload that is not
// valid JSON, or is neither an object nor an array, returns a *ParseError and
// adds nothing. Array elements that fail RecordSchema are skipped and counted.
func (e *Engine) Ingest(doc Document) (Result, error) {
	var res Result
	if err := doc.Identity.Validate(); err != nil {
		return res, eris.Wrapf(err, "reconcile: %s", doc.Source)
	}

	raw, err := decodePayload(doc.Payload)
	if err != nil {
		return res, &ParseError{Source: doc.Source, Err: err}
	}

	var entries []any
	switch v := raw.(type) {
	case []any:
		entries = v
	case map[string]any:
		entries = []any{v}
	default:
		return res, &ParseError{Source: doc.Source, Err: eris.Errorf("expected object or array, got %T", raw)}
	}

	invoice := e.lower.String(doc.Identity.InvoiceID)
	for i, entry := range entries {
		if err := ValidateRecord(entry); err != nil {
			zap.L().Warn("skipping invalid attempt record",
				zap.String("file", doc.Source),
				zap.Int("index", i),
				zap.Error(err),
			)
			res.Skipped++
			continue
		}
		rec := e.normalize(invoice, doc.Identity.Attempt, entry.(map[string]any))
		e.add(rec)
		res.Records++
	}
	return res, nil
}

// Add ingests an already-built record. Tracked fields missing from
// rec.Fields are recorded as missing.
func (e *Engine) Add(rec model.AttemptRecord) {
	full := make(map[model.Field]model.Value, len(model.Fields()))
	for _, f := range model.Fields() {
		v, ok := rec.Fields[f]
		if !ok {
			v = model.Missing()
		}
		full[f] = v
	}
	rec.Fields = full
	e.add(rec)
}

func (e *Engine) normalize(invoice string, attempt int, entry map[string]any) model.AttemptRecord {
	energy := model.UnknownEnergyType
	if s, ok := entry[model.EnergyTypeKey].(string); ok {
		energy = s
	}

	rec := model.AttemptRecord{
		InvoiceID:  invoice,
		EnergyType: e.lower.String(energy),
		Attempt:    attempt,
		Fields:     make(map[model.Field]model.Value, len(model.Fields())),
	}
	for _, f := range model.Fields() {
		rec.Fields[f] = e.normalizeValue(entry[string(f)])
	}
	return rec
}

func (e *Engine) normalizeValue(v any) model.Value {
	switch x := v.(type) {
	case string:
		s := e.lower.String(x)
		if s == "n/a" {
			return model.Missing()
		}
		return model.String(s)
	case json.Number:
		n, ok := model.ParseNumber(x.String())
		if !ok {
			return model.Missing()
		}
		return n
	case float64:
		return model.Number(x)
	case bool:
		return model.String(strconv.FormatBool(x))
	default:
		return model.Missing()
	}
}

// decodePayload decodes a single JSON value, keeping numbers as json.Number
// so large integers survive intact.
func decodePayload(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, eris.New("unexpected data after JSON value")
	}
	return raw, nil
}

func (e *Engine) add(rec model.AttemptRecord) {
	key := rec.Key()
	if _, ok := e.keys[key]; !ok {
		e.keys[key] = struct{}{}
		e.comparison[key] = make(map[string]model.Value)
		e.values[key] = make(map[model.Field][]model.Value)
	}
	for _, f := range model.Fields() {
		v := rec.Fields[f]
		e.comparison[key][model.ColumnName(f, rec.Attempt)] = v
		e.values[key][f] = append(e.values[key][f], v)
	}
}

// Keys returns the number of distinct invoice keys seen.
func (e *Engine) Keys() int {
	return len(e.keys)
}

func (e *Engine) sortedKeys() []model.InvoiceKey {
	keys := make([]model.InvoiceKey, 0, len(e.keys))
	for k := range e.keys {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].InvoiceID != keys[j].InvoiceID {
			return keys[i].InvoiceID < keys[j].InvoiceID
		}
		return keys[i].EnergyType < keys[j].EnergyType
	})
	return keys
}

// Comparison returns one row per invoice key holding every attempt's value
// for every field, ordered by invoice then energy type.
func (e *Engine) Comparison() []model.ComparisonRow {
	keys := e.sortedKeys()
	rows := make([]model.ComparisonRow, 0, len(keys))
	for _, k := range keys {
		values := make(map[string]model.Value, len(e.comparison[k]))
		for col, v := range e.comparison[k] {
			values[col] = v
		}
		rows = append(rows, model.ComparisonRow{Key: k, Values: values})
	}
	return rows
}

// Merge returns one reconciled row per invoice key, ordered like
// Comparison. Multi-value cells list distinct values in sorted order.
func (e *Engine) Merge() []model.MergedRow {
	keys := e.sortedKeys()
	rows := make([]model.MergedRow, 0, len(keys))
	for _, k := range keys {
		cells := make(map[model.Field]model.MergedCell, len(model.Fields()))
		for _, f := range model.Fields() {
			cells[f] = model.MergedCell{Values: distinct(e.values[k][f])}
		}
		rows = append(rows, model.NewMergedRow(k, cells))
	}
	return rows
}

func distinct(values []model.Value) []model.Value {
	seen := make(map[model.Value]struct{}, len(values))
	out := make([]model.Value, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		si, sj := out[i].String(), out[j].String()
		if si != sj {
			return si < sj
		}
		return out[i].Kind() < out[j].Kind()
	})
	return out
}
