package store

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hrload/hrload/internal/record"
	"github.com/hrload/hrload/internal/schema"
)

// TimestampFormat is the canonical textual form of timestamp columns. It is
// fixed and locale independent so snapshots do not depend on the engine.
const TimestampFormat = time.RFC3339Nano

// timestampLayouts are the accepted extended input forms for timestamp
// columns. The compact form left by the record sanitizer is handled by
// parseCompact.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"20060102 150405",
	"2006-01-02",
}

const compactLayout = "20060102T150405"

var errNotCompact = errors.New("not a compact timestamp")

// ParseTimestamp parses any accepted timestamp form. Inputs without a zone
// are taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	t, err := parseCompact(s)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, errNotCompact) {
		return time.Time{}, err
	}
	return time.Time{}, fmt.Errorf("store: unrecognized timestamp %q", s)
}

// parseCompact parses the basic ISO 8601 form that remains after
// sanitization strips '-', ':', '.' and '+': 20060102T150405, then up to nine
// fractional-second digits, then an optional Z.
//
// Extra digits are read as a fraction only when a Z closes the value.
// Without it they could equally be a numeric offset whose sign was stripped,
// so the value is rejected.
func parseCompact(s string) (time.Time, error) {
	if len(s) < len(compactLayout) {
		return time.Time{}, errNotCompact
	}
	t, err := time.Parse(compactLayout, s[:len(compactLayout)])
	if err != nil {
		return time.Time{}, errNotCompact
	}

	rest := s[len(compactLayout):]
	zulu := strings.HasSuffix(rest, "Z")
	rest = strings.TrimSuffix(rest, "Z")
	if rest == "" {
		return t, nil
	}
	if len(rest) > 9 || strings.TrimLeft(rest, "0123456789") != "" {
		return time.Time{}, errNotCompact
	}
	if !zulu {
		return time.Time{}, fmt.Errorf("store: ambiguous timestamp %q: digits after the seconds without a Z designator", s)
	}

	nanos, err := strconv.Atoi(rest + strings.Repeat("0", 9-len(rest)))
	if err != nil {
		return time.Time{}, errNotCompact
	}
	return t.Add(time.Duration(nanos)), nil
}

// FormatTimestamp renders t in the canonical form.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

// toDriverValue converts a record value for a column of type typ into a
// database/sql argument.
func toDriverValue(column string, typ schema.FieldType, v record.Value) (interface{}, error) {
	if v.IsNull() {
		return nil, nil
	}

	switch typ {
	case schema.TypeInt:
		if n, ok := v.Int64(); ok {
			return n, nil
		}
		s, _ := v.Str()
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("store: column %s: %q is not an integer", column, s)
		}
		return n, nil

	case schema.TypeString:
		s, ok := v.Str()
		if !ok {
			return nil, fmt.Errorf("store: column %s: expected string, got %s", column, v.Kind())
		}
		return s, nil

	case schema.TypeTimestamp:
		s, ok := v.Str()
		if !ok {
			return nil, fmt.Errorf("store: column %s: expected timestamp string, got %s", column, v.Kind())
		}
		t, err := ParseTimestamp(s)
		if err != nil {
			return nil, fmt.Errorf("store: column %s: %w", column, err)
		}
		return t, nil
	}

	return nil, fmt.Errorf("store: column %s: unknown type %q", column, typ)
}

// fromDriverValue converts a scanned column into a record value. Timestamps
// come back in canonical string form.
func fromDriverValue(column string, typ schema.FieldType, x interface{}) (record.Value, error) {
	if x == nil {
		return record.Null(), nil
	}

	switch typ {
	case schema.TypeTimestamp:
		switch t := x.(type) {
		case time.Time:
			return record.String(FormatTimestamp(t)), nil
		case string:
			parsed, err := ParseTimestamp(t)
			if err != nil {
				return record.Value{}, fmt.Errorf("store: column %s: %w", column, err)
			}
			return record.String(FormatTimestamp(parsed)), nil
		case []byte:
			parsed, err := ParseTimestamp(string(t))
			if err != nil {
				return record.Value{}, fmt.Errorf("store: column %s: %w", column, err)
			}
			return record.String(FormatTimestamp(parsed)), nil
		}
		return record.Value{}, fmt.Errorf("store: column %s: unexpected timestamp type %T", column, x)

	case schema.TypeInt:
		if _, ok := x.(int64); !ok {
			return record.Value{}, fmt.Errorf("store: column %s: unexpected integer type %T", column, x)
		}
	case schema.TypeString:
		switch x.(type) {
		case string, []byte:
		default:
			return record.Value{}, fmt.Errorf("store: column %s: unexpected text type %T", column, x)
		}
	}

	v, err := record.FromInterface(x)
	if err != nil {
		return record.Value{}, fmt.Errorf("store: column %s: %w", column, err)
	}
	return v, nil
}
