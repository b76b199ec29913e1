// Package report renders reconciliation results as CSV, XLSX, and JSON.
package report

import (
	"encoding/csv"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/billrecon/internal/model"
)

// Key columns lead every report.
const (
	ColInvoice    = "invoice"
	ColEnergyType = "energy_type"
)

type column struct {
	name    string
	field   model.Field
	attempt int
}

// ComparisonColumns returns the union of attempt columns across rows, ordered
// by attempt number and then by field order.
func ComparisonColumns(rows []model.ComparisonRow) []string {
	seen := make(map[string]column)
	for _, r := range rows {
		for name := range r.Values {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = parseColumn(name)
		}
	}

	cols := make([]column, 0, len(seen))
	for _, c := range seen {
		cols = append(cols, c)
	}
	sort.Slice(cols, func(i, j int) bool {
		if cols[i].attempt != cols[j].attempt {
			return cols[i].attempt < cols[j].attempt
		}
		if fi, fj := cols[i].field.Index(), cols[j].field.Index(); fi != fj {
			return fi < fj
		}
		return cols[i].name < cols[j].name
	})

	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.name
	}
	return out
}

func parseColumn(name string) column {
	c := column{name: name}
	idx := strings.LastIndex(name, "_")
	if idx < 0 {
		return c
	}
	c.field = model.Field(name[:idx])
	if n, err := strconv.Atoi(name[idx+1:]); err == nil {
		c.attempt = n
	}
	return c
}

// WriteComparisonCSV writes one row per invoice key with every attempt's
// value side by side. Columns an invoice never produced are left empty.
func WriteComparisonCSV(path string, rows []model.ComparisonRow) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "report: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	cols := ComparisonColumns(rows)
	w := csv.NewWriter(f)

	header := append([]string{ColInvoice, ColEnergyType}, cols...)
	if err := w.Write(header); err != nil {
		return eris.Wrap(err, "report: write comparison header")
	}

	for _, r := range rows {
		record := make([]string, 0, len(header))
		record = append(record, r.Key.InvoiceID, r.Key.EnergyType)
		for _, c := range cols {
			v, ok := r.Values[c]
			if !ok {
				record = append(record, "")
				continue
			}
			record = append(record, v.String())
		}
		if err := w.Write(record); err != nil {
			return eris.Wrapf(err, "report: write comparison row %s", r.Key)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "report: flush comparison csv")
	}
	return f.Close()
}
