// Package schema provides the registry of loadable tables.
// A single registry is shared by the insert, backup, and restore paths so the
// column sets they use cannot drift apart.
package schema

import (
	"fmt"
	"sort"
	"strings"

	hrerrors "github.com/hrload/hrload/internal/errors"
	"github.com/spaolacci/murmur3"
)

// IDColumn is the surrogate identifier column present on every table.
const IDColumn = "id"

// FieldType is the primitive type of a serialized field.
type FieldType string

const (
	TypeInt       FieldType = "int"
	TypeString    FieldType = "string"
	TypeTimestamp FieldType = "timestamp"
)

// Valid reports whether t is a known primitive type.
func (t FieldType) Valid() bool {
	switch t {
	case TypeInt, TypeString, TypeTimestamp:
		return true
	}
	return false
}

// Field is a (name, primitive type) pair used for snapshot serialization.
type Field struct {
	Name string    `msgpack:"name" json:"name"`
	Type FieldType `msgpack:"type" json:"type"`
}

// TableDescriptor describes one loadable table.
type TableDescriptor struct {
	// Name is the store table name
	Name string

	// Columns lists the data columns in storage order, excluding IDColumn
	Columns []string

	// Required lists the columns whose absence or nullity invalidates a record
	Required []string

	// Fields is the serialization layout: IDColumn first, then Columns
	Fields []Field
}

// NewTableDescriptor builds a descriptor from typed fields. The id field is
// prepended automatically.
func NewTableDescriptor(name string, fields []Field, required ...string) (*TableDescriptor, error) {
	d := &TableDescriptor{
		Name:     name,
		Required: append([]string(nil), required...),
		Fields:   make([]Field, 0, len(fields)+1),
	}
	d.Fields = append(d.Fields, Field{Name: IDColumn, Type: TypeInt})
	for _, f := range fields {
		d.Columns = append(d.Columns, f.Name)
		d.Fields = append(d.Fields, f)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Validate checks the descriptor invariants: required columns are a subset of
// the columns and the serialization fields are exactly id plus the columns.
func (d *TableDescriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("schema: table name is required")
	}

	seen := make(map[string]bool, len(d.Columns))
	for _, c := range d.Columns {
		if c == "" || c == IDColumn {
			return fmt.Errorf("schema: %s: invalid column name %q", d.Name, c)
		}
		if seen[c] {
			return fmt.Errorf("schema: %s: duplicate column %q", d.Name, c)
		}
		seen[c] = true
	}

	for _, r := range d.Required {
		if !seen[r] {
			return fmt.Errorf("schema: %s: required column %q is not a column", d.Name, r)
		}
	}

	if len(d.Fields) != len(d.Columns)+1 {
		return fmt.Errorf("schema: %s: %d fields for %d columns", d.Name, len(d.Fields), len(d.Columns))
	}
	if d.Fields[0].Name != IDColumn || d.Fields[0].Type != TypeInt {
		return fmt.Errorf("schema: %s: first field must be %s:%s", d.Name, IDColumn, TypeInt)
	}
	for _, f := range d.Fields[1:] {
		if !seen[f.Name] {
			return fmt.Errorf("schema: %s: field %q is not a column", d.Name, f.Name)
		}
		if !f.Type.Valid() {
			return fmt.Errorf("schema: %s: field %q has unknown type %q", d.Name, f.Name, f.Type)
		}
	}
	return nil
}

// FieldType returns the primitive type of a column (or of IDColumn).
func (d *TableDescriptor) FieldType(column string) (FieldType, bool) {
	for _, f := range d.Fields {
		if f.Name == column {
			return f.Type, true
		}
	}
	return "", false
}

// HasColumn reports whether column is a data column of the table.
func (d *TableDescriptor) HasColumn(column string) bool {
	for _, c := range d.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// Fingerprint returns the fingerprint of the descriptor's serialization fields.
func (d *TableDescriptor) Fingerprint() uint64 {
	return Fingerprint(d.Fields)
}

// Fingerprint hashes an ordered field list with murmur3. Two field lists
// have the same fingerprint only if names, types and order all agree.
func Fingerprint(fields []Field) uint64 {
	var sb strings.Builder
	for _, f := range fields {
		sb.WriteString(f.Name)
		sb.WriteByte(':')
		sb.WriteString(string(f.Type))
		sb.WriteByte(';')
	}
	return murmur3.Sum64([]byte(sb.String()))
}

// EqualFields reports whether two field lists are identical, order included.
func EqualFields(a, b []Field) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Registry is a closed set of table descriptors keyed by name.
type Registry struct {
	tables map[string]*TableDescriptor
}

// NewRegistry creates a registry from descriptors.
func NewRegistry(descs ...*TableDescriptor) (*Registry, error) {
	r := &Registry{tables: make(map[string]*TableDescriptor, len(descs))}
	for _, d := range descs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.tables[d.Name]; dup {
			return nil, fmt.Errorf("schema: duplicate table %q", d.Name)
		}
		r.tables[d.Name] = d
	}
	return r, nil
}

// Lookup returns the descriptor for name or an InvalidTableName error.
func (r *Registry) Lookup(name string) (*TableDescriptor, error) {
	d, ok := r.tables[name]
	if !ok {
		return nil, hrerrors.NewInvalidTableError(name)
	}
	return d, nil
}

// Names returns the registered table names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tables))
	for name := range r.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
