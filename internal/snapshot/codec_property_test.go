package snapshot

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/hrload/hrload/internal/record"
	"github.com/hrload/hrload/internal/schema"
)

// TestProperty_RoundTrip checks that decode(encode(rows)) returns the same
// field list and the same rows in the same order.
func TestProperty_RoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	fields := schema.HiredEmployees().Fields

	properties.Property("decode inverts encode", prop.ForAll(
		func(ids []int64, names []string, depts []int64, nulls []bool) bool {
			rows := make([]record.AllocatedRow, len(ids))
			for i, id := range ids {
				rec := record.Record{
					"name":          record.Null(),
					"datetime":      record.String("2021-07-14T01:51:31Z"),
					"department_id": record.Null(),
					"job_id":        record.Int(id / 2),
				}
				if i < len(names) {
					rec["name"] = record.String(names[i])
				}
				if i < len(depts) && (i >= len(nulls) || !nulls[i]) {
					rec["department_id"] = record.Int(depts[i])
				}
				rows[i] = record.AllocatedRow{ID: id, Record: rec}
			}

			data, err := Encode(fields, rows)
			if err != nil {
				return false
			}
			snap, err := Decode(data)
			if err != nil {
				return false
			}
			if !schema.EqualFields(snap.Fields, fields) || len(snap.Rows) != len(rows) {
				return false
			}
			for i := range rows {
				if snap.Rows[i].ID != rows[i].ID {
					return false
				}
				for k, v := range rows[i].Record {
					if snap.Rows[i].Record[k] != v {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOf(gen.Int64()),
		gen.SliceOf(gen.AnyString()),
		gen.SliceOf(gen.Int64()),
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}
