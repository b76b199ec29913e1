package report

import (
	"encoding/json"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/billrecon/internal/model"
)

const (
	// MergedSheet is the worksheet name of the merged workbook.
	MergedSheet = "Merged Invoices"
	// ColInconsistencies is the trailing summary column.
	ColInconsistencies = "Inconsistencies"
	// FlagColor is the ARGB fill of cells whose attempts disagreed.
	FlagColor = "FFFF9999"
)

// MergedHeaders returns the merged report header row.
func MergedHeaders() []string {
	h := []string{ColInvoice, ColEnergyType}
	for _, f := range model.Fields() {
		h = append(h, f.String())
	}
	return append(h, ColInconsistencies)
}

func flagStyle() *xlsx.Style {
	style := xlsx.NewStyle()
	style.Fill = *xlsx.NewFill("solid", FlagColor, FlagColor)
	style.ApplyFill = true
	return style
}

// WriteMergedXLSX writes the merged rows to a workbook, highlighting every
// flagged field cell.
func WriteMergedXLSX(path string, rows []model.MergedRow) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(MergedSheet)
	if err != nil {
		return eris.Wrap(err, "report: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range MergedHeaders() {
		header.AddCell().SetString(h)
	}

	flagged := flagStyle()
	for _, r := range rows {
		row := sheet.AddRow()
		row.AddCell().SetString(r.Key.InvoiceID)
		row.AddCell().SetString(r.Key.EnergyType)

		for _, field := range model.Fields() {
			cell := row.AddCell()
			setMergedCell(cell, r.Cells[field])
			if r.IsFlagged(field) {
				cell.SetStyle(flagged)
			}
		}

		row.AddCell().SetString(r.Inconsistencies())
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save %s", path)
	}
	return nil
}

func setMergedCell(cell *xlsx.Cell, mc model.MergedCell) {
	if len(mc.Values) == 1 {
		// Integers past float64 precision stay text so no digits are lost.
		if n, ok := mc.Values[0].Num(); ok && strconv.FormatFloat(n, 'f', -1, 64) == mc.String() {
			cell.SetFloat(n)
			return
		}
	}
	cell.SetString(mc.String())
}

// SheetRow is one data row read back from a merged workbook.
type SheetRow struct {
	Invoice         string
	EnergyType      string
	Fields          map[model.Field]string
	Inconsistencies string
	// Highlighted lists field cells carrying the flag fill, in column order.
	Highlighted []model.Field
}

// ReadMergedXLSX reads a workbook written by WriteMergedXLSX.
func ReadMergedXLSX(path string) ([]SheetRow, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "report: open workbook")
	}

	sheet, ok := f.Sheet[MergedSheet]
	if !ok {
		return nil, eris.Errorf("report: sheet %q not found", MergedSheet)
	}

	headers := MergedHeaders()
	fields := model.Fields()
	var out []SheetRow
	for i, row := range sheet.Rows {
		if i == 0 {
			continue
		}
		if len(row.Cells) < len(headers) {
			return nil, eris.Errorf("report: row %d has %d cells, want %d", i+1, len(row.Cells), len(headers))
		}

		sr := SheetRow{
			Invoice:         row.Cells[0].String(),
			EnergyType:      row.Cells[1].String(),
			Fields:          make(map[model.Field]string, len(fields)),
			Inconsistencies: row.Cells[len(headers)-1].String(),
		}
		for j, field := range fields {
			cell := row.Cells[j+2]
			sr.Fields[field] = cell.String()
			if isFlagFill(cell) {
				sr.Highlighted = append(sr.Highlighted, field)
			}
		}
		out = append(out, sr)
	}
	return out, nil
}

func isFlagFill(cell *xlsx.Cell) bool {
	style := cell.GetStyle()
	return style != nil && style.Fill.PatternType == "solid" && style.Fill.FgColor == FlagColor
}

type mergedJSON struct {
	Invoice         string         `json:"invoice"`
	EnergyType      string         `json:"energy_type"`
	Fields          map[string]any `json:"fields"`
	Flagged         []string       `json:"flagged"`
	Inconsistencies string         `json:"inconsistencies"`
}

// MergedJSON converts rows to their JSON document form. Consistent fields
// keep their native type; flagged fields carry the joined string.
func MergedJSON(rows []model.MergedRow) []any {
	out := make([]any, 0, len(rows))
	for _, r := range rows {
		doc := mergedJSON{
			Invoice:         r.Key.InvoiceID,
			EnergyType:      r.Key.EnergyType,
			Fields:          make(map[string]any, len(model.Fields())),
			Flagged:         []string{},
			Inconsistencies: r.Inconsistencies(),
		}
		for _, f := range model.Fields() {
			cell := r.Cells[f]
			if len(cell.Values) == 1 {
				doc.Fields[f.String()] = cell.Values[0]
			} else {
				doc.Fields[f.String()] = cell.String()
			}
		}
		for _, f := range r.Flagged() {
			doc.Flagged = append(doc.Flagged, f.String())
		}
		out = append(out, doc)
	}
	return out
}

// WriteMergedJSON encodes rows as an indented JSON array.
func WriteMergedJSON(w io.Writer, rows []model.MergedRow) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(MergedJSON(rows)); err != nil {
		return eris.Wrap(err, "report: encode merged json")
	}
	return nil
}
