package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/billrecon/internal/model"
)

func TestParseIdentity(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want model.Identity
	}{
		{"simple", "acme_attempt_1.json", model.Identity{InvoiceID: "acme", Attempt: 1}},
		{"uppercase", "ACME_March_attempt_3.json", model.Identity{InvoiceID: "acme_march", Attempt: 3}},
		{"with dir", "/tmp/out/Bill.pdf_attempt_2.json", model.Identity{InvoiceID: "bill.pdf", Attempt: 2}},
		{"last marker wins", "a_attempt_b_attempt_4.json", model.Identity{InvoiceID: "a_attempt_b", Attempt: 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIdentity(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseIdentity_NoMarkerFallback(t *testing.T) {
	got, err := ParseIdentity("Acme_Invoice.json")
	assert.ErrorIs(t, err, ErrNoAttemptMarker)
	assert.Equal(t, model.Identity{InvoiceID: "acme_invoice", Attempt: 1}, got)
}

func TestParseIdentity_BadAttempt(t *testing.T) {
	for _, name := range []string{"acme_attempt_x.json", "acme_attempt_0.json", "acme_attempt_-2.json", "acme_attempt_.json"} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseIdentity(name)
			require.Error(t, err)
			assert.NotErrorIs(t, err, ErrNoAttemptMarker)
		})
	}
}

func TestValidateRecord(t *testing.T) {
	assert.NoError(t, ValidateRecord(map[string]any{"location": "berlin", "cost_amount": 1.5, "currency": nil}))
	assert.NoError(t, ValidateRecord(map[string]any{"extra": map[string]any{"nested": true}}))
	assert.Error(t, ValidateRecord(map[string]any{"energy_type": 3.0}))
	assert.Error(t, ValidateRecord([]any{"x"}))
}
