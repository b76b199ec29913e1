package reconcile

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/billrecon/internal/model"
)

// AttemptMarker separates the invoice name from the attempt number in an
// attempt document file name, e.g. "acme_march_attempt_2.json".
const AttemptMarker = "_attempt_"

// ErrNoAttemptMarker is returned by ParseIdentity when the name carries no
// attempt marker. The returned identity is still usable: the whole stem is
// the invoice id and the attempt is 1.
var ErrNoAttemptMarker = eris.New("reconcile: no attempt marker in name")

// ParseIdentity derives an attempt identity from a document file name. The
// invoice id is lowercased. A marker followed by anything other than a
// positive integer is an error.
func ParseIdentity(name string) (model.Identity, error) {
	base := filepath.Base(name)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	lower := cases.Lower(language.Und)

	i := strings.LastIndex(stem, AttemptMarker)
	if i < 0 {
		return model.Identity{InvoiceID: lower.String(stem), Attempt: 1}, ErrNoAttemptMarker
	}

	invoice := lower.String(stem[:i])
	raw := stem[i+len(AttemptMarker):]
	n, err := strconv.Atoi(raw)
	if err != nil {
		return model.Identity{}, eris.Wrapf(err, "reconcile: attempt number %q in %s", raw, base)
	}

	id := model.Identity{InvoiceID: invoice, Attempt: n}
	if err := id.Validate(); err != nil {
		return model.Identity{}, eris.Wrapf(err, "reconcile: %s", base)
	}
	return id, nil
}
