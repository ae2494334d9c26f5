package record

import (
	"strings"
	"testing"
	"unicode"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestProperty_PartitionConservesRecords checks that partitioning never drops
// or duplicates a record, and that an empty required value is classified
// exactly like an absent one.
func TestProperty_PartitionConservesRecords(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("|invalid| + |valid| = |input|", prop.ForAll(
		func(values []string, absent []bool) bool {
			records := buildRecords(values, absent)
			result := Partition(records, []string{"job"})
			return len(result.Invalid)+len(result.Valid) == len(records)
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.Bool()),
	))

	properties.Property("empty and absent required values are both invalid", prop.ForAll(
		func(values []string, absent []bool) bool {
			records := buildRecords(values, absent)
			result := Partition(records, []string{"job"})

			expectedInvalid := 0
			for _, r := range records {
				v, ok := r["job"]
				if !ok {
					expectedInvalid++
					continue
				}
				if s, _ := v.Str(); s == "" {
					expectedInvalid++
				}
			}
			return len(result.Invalid) == expectedInvalid
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.Bool()),
	))

	properties.Property("valid partition preserves input order", prop.ForAll(
		func(values []string) bool {
			records := buildRecords(values, nil)
			result := Partition(records, []string{"job"})

			var expected []string
			for _, v := range values {
				if v != "" {
					expected = append(expected, v)
				}
			}
			if len(expected) != len(result.Valid) {
				return false
			}
			for i, r := range result.Valid {
				if s, _ := r["job"].Str(); s != expected[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}

// TestProperty_SanitizeIsIdempotent checks that sanitized text only contains
// allowed characters and that sanitizing twice changes nothing.
func TestProperty_SanitizeIsIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("sanitize(sanitize(s)) == sanitize(s)", prop.ForAll(
		func(s string) bool {
			once := SanitizeString(s)
			return SanitizeString(once) == once
		},
		gen.AnyString(),
	))

	properties.Property("sanitized text contains only word characters and whitespace", prop.ForAll(
		func(s string) bool {
			return strings.IndexFunc(SanitizeString(s), func(r rune) bool {
				return !(r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsSpace(r))
			}) < 0
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

func buildRecords(values []string, absent []bool) []Record {
	records := make([]Record, len(values))
	for i, v := range values {
		if i < len(absent) && absent[i] {
			records[i] = Record{"other": String(v)}
			continue
		}
		records[i] = Record{"job": String(v)}
	}
	return records
}
