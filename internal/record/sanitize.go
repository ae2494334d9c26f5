package record

import (
	"strings"
	"unicode"
)

// Sanitize returns a copy of r in which every textual value has had all
// characters removed that are neither word characters (letter, digit,
// underscore) nor whitespace. Other values are copied unchanged.
func Sanitize(r Record) Record {
	out := make(Record, len(r))
	for k, v := range r {
		if s, ok := v.Str(); ok {
			out[k] = String(SanitizeString(s))
			continue
		}
		out[k] = v
	}
	return out
}

// SanitizeAll applies Sanitize to every record of a batch.
func SanitizeAll(records []Record) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = Sanitize(r)
	}
	return out
}

// SanitizeString strips disallowed characters from s.
func SanitizeString(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, s)
}
