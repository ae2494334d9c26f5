package record

// ValidationResult holds both partitions of a validated batch. Input order is
// preserved within each partition.
type ValidationResult struct {
	Invalid []InvalidRecord
	Valid   []Record
}

// Partition splits records into invalid and valid subsets. Empty strings are
// first normalized to null; a record is invalid when any required column is
// null or absent. Every record lands in exactly one partition, and invalid
// records never stop the valid ones from being returned.
func Partition(records []Record, required []string) ValidationResult {
	var result ValidationResult

	for _, r := range records {
		normalized := Normalize(r)
		if missing := missingColumns(normalized, required); len(missing) > 0 {
			result.Invalid = append(result.Invalid, InvalidRecord{Record: r, Missing: missing})
			continue
		}
		result.Valid = append(result.Valid, normalized)
	}

	return result
}

// Normalize returns a copy of r with empty strings replaced by null.
func Normalize(r Record) Record {
	out := make(Record, len(r))
	for k, v := range r {
		if s, ok := v.Str(); ok && s == "" {
			out[k] = Null()
			continue
		}
		out[k] = v
	}
	return out
}

func missingColumns(r Record, required []string) []string {
	var missing []string
	for _, col := range required {
		v, ok := r[col]
		if !ok || v.IsNull() {
			missing = append(missing, col)
		}
	}
	return missing
}
