package model

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// Identity names one attempt document: which invoice it covers and which
// extraction attempt produced it.
type Identity struct {
	InvoiceID string `json:"invoice_id" yaml:"invoice_id"`
	Attempt   int    `json:"attempt" yaml:"attempt"`
}

// Validate checks that the identity is usable as a reconciliation key.
func (id Identity) Validate() error {
	if id.InvoiceID == "" {
		return eris.New("identity: empty invoice id")
	}
	if id.Attempt < 1 {
		return eris.Errorf("identity: attempt must be >= 1, got %d", id.Attempt)
	}
	return nil
}

// InvoiceKey groups attempts for reconciliation.
type InvoiceKey struct {
	InvoiceID  string `json:"invoice"`
	EnergyType string `json:"energy_type"`
}

func (k InvoiceKey) String() string {
	return k.InvoiceID + "__" + k.EnergyType
}

// AttemptRecord is one extracted energy line item from one attempt. Fields
// always holds every tracked field.
type AttemptRecord struct {
	InvoiceID  string
	EnergyType string
	Attempt    int
	Fields     map[Field]Value
}

// Key returns the record's invoice key.
func (r AttemptRecord) Key() InvoiceKey {
	return InvoiceKey{InvoiceID: r.InvoiceID, EnergyType: r.EnergyType}
}

// ColumnName returns the comparison-view column for a field on an attempt.
func ColumnName(f Field, attempt int) string {
	return fmt.Sprintf("%s_%d", f, attempt)
}
