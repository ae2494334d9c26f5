package record

import (
	"encoding/json"
	"strings"

	hrerrors "github.com/hrload/hrload/internal/errors"
	"github.com/hrload/hrload/internal/schema"
)

// Record maps column names to values. No schema is enforced until the record
// is validated against a table descriptor.
type Record map[string]Value

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	cp := make(Record, len(r))
	for k, v := range r {
		cp[k] = v
	}
	return cp
}

// AllocatedRow is a valid record with its assigned surrogate identifier.
type AllocatedRow struct {
	ID     int64
	Record Record
}

// MarshalJSON flattens the row into one object with an "id" key.
func (a AllocatedRow) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(a.Record)+1)
	for k, v := range a.Record {
		out[k] = v
	}
	out[schema.IDColumn] = a.ID
	return json.Marshal(out)
}

// MissingColumnsKey annotates invalid records in API responses.
const MissingColumnsKey = "missing_columns"

// InvalidRecord is a record that failed validation, kept as received by the
// validator together with the required columns that were missing or null.
type InvalidRecord struct {
	Record  Record
	Missing []string
}

// Err returns the validation failure for this record.
func (ir InvalidRecord) Err() error {
	return hrerrors.NewValidationError("missing required columns: " + strings.Join(ir.Missing, ", ")).
		WithDetails(map[string]interface{}{"missing": ir.Missing})
}

// MarshalJSON flattens the record and adds the missing_columns annotation.
func (ir InvalidRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(ir.Record)+1)
	for k, v := range ir.Record {
		out[k] = v
	}
	missing := ir.Missing
	if missing == nil {
		missing = []string{}
	}
	out[MissingColumnsKey] = missing
	return json.Marshal(out)
}
