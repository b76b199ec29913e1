package reconcile

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/sells-group/billrecon/internal/model"
)

// RecordSchema returns the JSON schema an attempt record must satisfy.
// Tracked fields may be absent; present ones must be scalars.
func RecordSchema() map[string]any {
	scalar := map[string]any{"type": []string{"string", "number", "boolean", "null"}}
	props := map[string]any{
		model.EnergyTypeKey: map[string]any{"type": []string{"string", "null"}},
	}
	for _, f := range model.Fields() {
		props[string(f)] = scalar
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
	}
}

// CompileSchema compiles a schema held as a generic map.
func CompileSchema(name string, schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: marshal schema")
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
		return nil, eris.Wrap(err, "reconcile: add schema")
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: compile schema")
	}
	return schema, nil
}

var recordSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return CompileSchema("attempt_record.json", RecordSchema())
})

// ValidateRecord checks one decoded attempt record against RecordSchema.
func ValidateRecord(v any) error {
	schema, err := recordSchema()
	if err != nil {
		return err
	}
	if err := schema.Validate(v); err != nil {
		return eris.Wrap(err, "reconcile: record does not match schema")
	}
	return nil
}
