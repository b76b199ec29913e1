package model

import "strings"

// ConsistentLabel is the inconsistency summary for a row with no flagged fields.
const ConsistentLabel = "Consistent"

// ComparisonRow is the audit view of every attempt's raw value per field.
// Columns are sparse: only observed (field, attempt) pairs are present.
type ComparisonRow struct {
	Key    InvoiceKey
	Values map[string]Value
}

// MergedCell is the reconciled value of one field.
type MergedCell struct {
	// Values holds the distinct observed values in deterministic order.
	Values []Value
}

// Consistent reports whether the field had at most one distinct value.
func (c MergedCell) Consistent() bool {
	return len(c.Values) <= 1
}

// String renders the cell: the single value, the distinct values joined by
// ", ", or the missing marker when nothing was observed.
func (c MergedCell) String() string {
	if len(c.Values) == 0 {
		return MissingMarker
	}
	parts := make([]string, len(c.Values))
	for i, v := range c.Values {
		parts[i] = v.String()
	}
	return strings.Join(parts, ", ")
}

// MergedRow is the reconciled record for one invoice key.
type MergedRow struct {
	Key     InvoiceKey
	Cells   map[Field]MergedCell
	flagged map[Field]struct{}
	order   []Field
}

// NewMergedRow builds a row and derives its flagged set from the cells.
func NewMergedRow(key InvoiceKey, cells map[Field]MergedCell) MergedRow {
	row := MergedRow{Key: key, Cells: cells, flagged: make(map[Field]struct{})}
	for _, f := range fields {
		c, ok := cells[f]
		if ok && !c.Consistent() {
			row.flagged[f] = struct{}{}
			row.order = append(row.order, f)
		}
	}
	return row
}

// IsFlagged reports whether f disagreed across attempts for this row.
func (r MergedRow) IsFlagged(f Field) bool {
	_, ok := r.flagged[f]
	return ok
}

// Flagged returns the flagged fields in column order.
func (r MergedRow) Flagged() []Field {
	out := make([]Field, len(r.order))
	copy(out, r.order)
	return out
}

// Inconsistencies renders the flagged field list, or "Consistent".
func (r MergedRow) Inconsistencies() string {
	if len(r.order) == 0 {
		return ConsistentLabel
	}
	names := make([]string, len(r.order))
	for i, f := range r.order {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}
