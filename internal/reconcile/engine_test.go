package reconcile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/billrecon/internal/model"
)

func init() {
	// Replace global logger with a no-op to avoid noisy output in tests.
	zap.ReplaceGlobals(zap.NewNop())
}

func ingest(t *testing.T, e *Engine, invoice string, attempt int, payload string) Result {
	t.Helper()
	res, err := e.Ingest(Document{
		Identity: model.Identity{InvoiceID: invoice, Attempt: attempt},
		Source:   invoice + "_attempt_" + string(rune('0'+attempt)) + ".json",
		Payload:  []byte(payload),
	})
	require.NoError(t, err)
	return res
}

func mergedRow(t *testing.T, rows []model.MergedRow, invoice, energy string) model.MergedRow {
	t.Helper()
	for _, r := range rows {
		if r.Key.InvoiceID == invoice && r.Key.EnergyType == energy {
			return r
		}
	}
	t.Fatalf("no merged row for %s/%s", invoice, energy)
	return model.MergedRow{}
}

func TestMerge_ConsistentNumber(t *testing.T) {
	e := NewEngine()
	for i := 1; i <= 3; i++ {
		ingest(t, e, "acme", i, `{"energy_type": "Gas", "cost_amount": 10}`)
	}

	rows := e.Merge()
	require.Len(t, rows, 1)
	row := rows[0]

	assert.Equal(t, "10", row.Cells[model.FieldCostAmount].String())
	assert.False(t, row.IsFlagged(model.FieldCostAmount))
	assert.NotContains(t, row.Inconsistencies(), "cost_amount")
	assert.Equal(t, model.ConsistentLabel, row.Inconsistencies())
}

func TestMerge_LargeIntegersCompareExactly(t *testing.T) {
	e := NewEngine()
	ingest(t, e, "acme", 1, `{"energy_type": "gas", "energy_volume": 9007199254740993}`)
	ingest(t, e, "acme", 2, `{"energy_type": "gas", "energy_volume": 9007199254740992}`)

	row := mergedRow(t, e.Merge(), "acme", "gas")
	assert.True(t, row.IsFlagged(model.FieldEnergyVolume))
	assert.Equal(t, "9007199254740992, 9007199254740993", row.Cells[model.FieldEnergyVolume].String())
}

func TestMerge_IntegerAndDecimalFormAgree(t *testing.T) {
	e := NewEngine()
	ingest(t, e, "acme", 1, `{"energy_type": "gas", "cost_amount": 10}`)
	ingest(t, e, "acme", 2, `{"energy_type": "gas", "cost_amount": 10.0}`)

	row := mergedRow(t, e.Merge(), "acme", "gas")
	assert.False(t, row.IsFlagged(model.FieldCostAmount))
	assert.Equal(t, "10", row.Cells[model.FieldCostAmount].String())
}

func TestIngest_TrailingDataIsParseError(t *testing.T) {
	e := NewEngine()
	_, err := e.Ingest(Document{
		Identity: model.Identity{InvoiceID: "acme", Attempt: 1},
		Payload:  []byte(`{"cost_amount": 1} {"cost_amount": 2}`),
	})
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 0, e.Keys())
}

func TestMerge_FlagsDisagreement(t *testing.T) {
	e := NewEngine()
	ingest(t, e, "acme", 1, `{"energy_type": "electricity", "currency": "USD"}`)
	ingest(t, e, "acme", 2, `{"energy_type": "electricity", "currency": "EUR"}`)

	row := mergedRow(t, e.Merge(), "acme", "electricity")
	parts := strings.Split(row.Cells[model.FieldCurrency].String(), ", ")
	assert.ElementsMatch(t, []string{"usd", "eur"}, parts)
	assert.True(t, row.IsFlagged(model.FieldCurrency))
	assert.Contains(t, row.Inconsistencies(), "currency")
}

func TestMerge_CaseInsensitive(t *testing.T) {
	e := NewEngine()
	ingest(t, e, "acme", 1, `{"location": "Berlin"}`)
	ingest(t, e, "acme", 2, `{"location": "berlin"}`)

	row := mergedRow(t, e.Merge(), "acme", "unknown")
	assert.Equal(t, "berlin", row.Cells[model.FieldLocation].String())
	assert.False(t, row.IsFlagged(model.FieldLocation))
}

func TestMerge_MissingFieldDefault(t *testing.T) {
	e := NewEngine()
	ingest(t, e, "acme", 1, `{"energy_type": "gas", "energy_volume": 120}`)
	ingest(t, e, "acme", 2, `{"energy_type": "gas", "energy_volume": 120, "energy_units": "N/A"}`)
	ingest(t, e, "acme", 3, `{"energy_type": "gas", "energy_volume": 120, "energy_units": null}`)

	row := mergedRow(t, e.Merge(), "acme", "gas")
	cell := row.Cells[model.FieldEnergyUnits]
	require.Len(t, cell.Values, 1)
	assert.True(t, cell.Values[0].IsMissing())
	assert.Equal(t, model.MissingMarker, cell.String())
	assert.False(t, row.IsFlagged(model.FieldEnergyUnits))
}

func TestMerge_MissingVersusPresentFlags(t *testing.T) {
	e := NewEngine()
	ingest(t, e, "acme", 1, `{"energy_units": "kWh"}`)
	ingest(t, e, "acme", 2, `{}`)

	row := mergedRow(t, e.Merge(), "acme", "unknown")
	assert.True(t, row.IsFlagged(model.FieldEnergyUnits))
	assert.Equal(t, "N/A, kwh", row.Cells[model.FieldEnergyUnits].String())
}

func TestMerge_NumberAndStringAreDistinct(t *testing.T) {
	e := NewEngine()
	ingest(t, e, "acme", 1, `{"cost_amount": 10}`)
	ingest(t, e, "acme", 2, `{"cost_amount": "10"}`)
	ingest(t, e, "acme", 3, `{"cost_amount": 10.0}`)

	row := mergedRow(t, e.Merge(), "acme", "unknown")
	cell := row.Cells[model.FieldCostAmount]
	assert.Len(t, cell.Values, 2)
	assert.True(t, row.IsFlagged(model.FieldCostAmount))
}

func TestMerge_DeterministicOrder(t *testing.T) {
	e := NewEngine()
	ingest(t, e, "acme", 1, `{"location": "zurich"}`)
	ingest(t, e, "acme", 2, `{"location": "berlin"}`)
	ingest(t, e, "acme", 3, `{"location": "madrid"}`)

	for i := 0; i < 5; i++ {
		row := mergedRow(t, e.Merge(), "acme", "unknown")
		assert.Equal(t, "berlin, madrid, zurich", row.Cells[model.FieldLocation].String())
	}
}

func TestMerge_InconsistencyListInFieldOrder(t *testing.T) {
	e := NewEngine()
	ingest(t, e, "acme", 1, `{"currency": "usd", "location": "a", "usage_end_date": "2024-01-31"}`)
	ingest(t, e, "acme", 2, `{"currency": "eur", "location": "b", "usage_end_date": "2024-01-31"}`)

	row := mergedRow(t, e.Merge(), "acme", "unknown")
	assert.Equal(t, "location, currency", row.Inconsistencies())
	assert.False(t, row.IsFlagged(model.FieldUsageEndDate))
}

func TestIngest_ListDocumentSplitsByEnergyType(t *testing.T) {
	e := NewEngine()
	res := ingest(t, e, "acme", 1, `[
		{"energy_type": "Electricity", "cost_amount": 100.5},
		{"energy_type": "Gas", "cost_amount": 40}
	]`)
	assert.Equal(t, 2, res.Records)
	ingest(t, e, "acme", 2, `[{"energy_type": "electricity", "cost_amount": 100.5}]`)

	assert.Equal(t, 2, e.Keys())
	rows := e.Merge()
	require.Len(t, rows, 2)
	assert.Equal(t, "electricity", rows[0].Key.EnergyType)
	assert.Equal(t, "gas", rows[1].Key.EnergyType)
}

func TestIngest_ParseErrorAddsNothing(t *testing.T) {
	e := NewEngine()
	_, err := e.Ingest(Document{
		Identity: model.Identity{InvoiceID: "acme", Attempt: 1},
		Source:   "acme_attempt_1.json",
		Payload:  []byte(`{"energy_type": `),
	})
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "acme_attempt_1.json", pe.Source)
	assert.Equal(t, 0, e.Keys())
}

func TestIngest_ScalarPayloadIsParseError(t *testing.T) {
	e := NewEngine()
	_, err := e.Ingest(Document{
		Identity: model.Identity{InvoiceID: "acme", Attempt: 1},
		Payload:  []byte(`"just a string"`),
	})
	var pe *ParseError
	assert.ErrorAs(t, err, &pe)
}

func TestIngest_InvalidRecordSkipped(t *testing.T) {
	e := NewEngine()
	res := ingest(t, e, "acme", 1, `[
		{"energy_type": "gas", "location": {"city": "berlin"}},
		"not an object",
		{"energy_type": "gas", "location": "berlin"}
	]`)
	assert.Equal(t, 1, res.Records)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 1, e.Keys())
}

func TestIngest_InvalidIdentity(t *testing.T) {
	e := NewEngine()
	_, err := e.Ingest(Document{Identity: model.Identity{InvoiceID: "acme"}, Payload: []byte(`{}`)})
	assert.Error(t, err)
}

func TestIngest_BooleanBecomesString(t *testing.T) {
	e := NewEngine()
	ingest(t, e, "acme", 1, `{"currency": true}`)
	row := mergedRow(t, e.Merge(), "acme", "unknown")
	assert.Equal(t, "true", row.Cells[model.FieldCurrency].String())
}

func TestIngest_InvoiceIDLowercased(t *testing.T) {
	e := NewEngine()
	ingest(t, e, "ACME-March", 1, `{}`)
	rows := e.Comparison()
	require.Len(t, rows, 1)
	assert.Equal(t, "acme-march", rows[0].Key.InvoiceID)
}

func TestComparison_FullAuditTrail(t *testing.T) {
	e := NewEngine()
	ingest(t, e, "acme", 1, `{"energy_type": "gas", "cost_amount": 10, "currency": "USD"}`)
	ingest(t, e, "acme", 2, `{"energy_type": "gas", "cost_amount": 10, "currency": "usd"}`)
	ingest(t, e, "acme", 3, `{"energy_type": "gas", "cost_amount": 12}`)

	rows := e.Comparison()
	require.Len(t, rows, 1)
	vals := rows[0].Values

	assert.Len(t, vals, 3*len(model.Fields()))
	assert.Equal(t, model.Number(10), vals["cost_amount_1"])
	assert.Equal(t, model.Number(10), vals["cost_amount_2"])
	assert.Equal(t, model.Number(12), vals["cost_amount_3"])
	assert.Equal(t, model.String("usd"), vals["currency_1"])
	assert.True(t, vals["currency_3"].IsMissing())
}

func TestComparison_SparseColumns(t *testing.T) {
	e := NewEngine()
	ingest(t, e, "acme", 1, `{"energy_type": "gas"}`)
	ingest(t, e, "acme", 2, `{"energy_type": "gas"}`)
	ingest(t, e, "globex", 1, `{"energy_type": "gas"}`)

	rows := e.Comparison()
	require.Len(t, rows, 2)
	assert.Len(t, rows[0].Values, 2*len(model.Fields()))
	assert.Len(t, rows[1].Values, len(model.Fields()))
	_, ok := rows[1].Values["location_2"]
	assert.False(t, ok)
}

func TestComparison_DuplicateAttemptOverwrites(t *testing.T) {
	e := NewEngine()
	ingest(t, e, "acme", 1, `[{"location": "berlin"}, {"location": "paris"}]`)

	rows := e.Comparison()
	require.Len(t, rows, 1)
	assert.Equal(t, model.String("paris"), rows[0].Values["location_1"])

	// The merge view still saw both values.
	row := mergedRow(t, e.Merge(), "acme", "unknown")
	assert.True(t, row.IsFlagged(model.FieldLocation))
}

func TestRoundTrip_RowCountEqualsKeys(t *testing.T) {
	e := NewEngine()
	ingest(t, e, "acme", 1, `[{"energy_type": "gas"}, {"energy_type": "electricity"}]`)
	ingest(t, e, "acme", 2, `[{"energy_type": "gas"}, {"energy_type": "electricity"}]`)
	ingest(t, e, "acme", 3, `{"energy_type": "gas"}`)
	ingest(t, e, "globex", 1, `{"energy_type": "water"}`)

	assert.Equal(t, 3, e.Keys())
	assert.Len(t, e.Comparison(), 3)
	assert.Len(t, e.Merge(), 3)
}

func TestAdd_FillsMissingFields(t *testing.T) {
	e := NewEngine()
	e.Add(model.AttemptRecord{
		InvoiceID:  "acme",
		EnergyType: "gas",
		Attempt:    1,
		Fields:     map[model.Field]model.Value{model.FieldCostAmount: model.Number(5)},
	})

	rows := e.Comparison()
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Values["location_1"].IsMissing())
	assert.Equal(t, model.Number(5), rows[0].Values["cost_amount_1"])
}

func TestMerge_EmptyEngine(t *testing.T) {
	e := NewEngine()
	assert.Empty(t, e.Merge())
	assert.Empty(t, e.Comparison())
}
