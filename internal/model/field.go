package model

// Field is one of the tracked bill line item fields.
type Field string

// Tracked fields, in report column order.
const (
	FieldLocation       Field = "location"
	FieldUsageStartDate Field = "usage_start_date"
	FieldUsageEndDate   Field = "usage_end_date"
	FieldEnergyVolume   Field = "energy_volume"
	FieldEnergyUnits    Field = "energy_units"
	FieldCostAmount     Field = "cost_amount"
	FieldCurrency       Field = "currency"
)

// EnergyTypeKey is the record attribute that carries the energy type.
const EnergyTypeKey = "energy_type"

// UnknownEnergyType is used when a record has no energy type.
const UnknownEnergyType = "unknown"

var fields = []Field{
	FieldLocation,
	FieldUsageStartDate,
	FieldUsageEndDate,
	FieldEnergyVolume,
	FieldEnergyUnits,
	FieldCostAmount,
	FieldCurrency,
}

var fieldIndex = func() map[Field]int {
	m := make(map[Field]int, len(fields))
	for i, f := range fields {
		m[f] = i
	}
	return m
}()

// Fields returns the tracked fields in report column order.
func Fields() []Field {
	out := make([]Field, len(fields))
	copy(out, fields)
	return out
}

// Index returns the column position of f, or -1 if f is not tracked.
func (f Field) Index() int {
	if i, ok := fieldIndex[f]; ok {
		return i
	}
	return -1
}

// Valid reports whether f belongs to the tracked set.
func (f Field) Valid() bool {
	return f.Index() >= 0
}

func (f Field) String() string {
	return string(f)
}
