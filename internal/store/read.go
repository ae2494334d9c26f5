package store

import (
	"context"
	"fmt"
	"strings"

	hrerrors "github.com/hrload/hrload/internal/errors"
	"github.com/hrload/hrload/internal/record"
	"github.com/hrload/hrload/internal/schema"
)

// ReadAll returns the entire current contents of the descriptor's table,
// ordered by identifier. Timestamp columns come back in canonical form.
func (s *Store) ReadAll(ctx context.Context, desc *schema.TableDescriptor) ([]record.AllocatedRow, error) {
	columns := make([]string, len(desc.Fields))
	for i, f := range desc.Fields {
		columns[i] = quoteIdent(f.Name)
	}
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		strings.Join(columns, ", "), quoteIdent(desc.Name), quoteIdent(schema.IDColumn))

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, hrerrors.NewStoreError(fmt.Sprintf("failed to read %s", desc.Name), err)
	}
	defer rows.Close()

	var out []record.AllocatedRow
	for rows.Next() {
		raw := make([]interface{}, len(desc.Fields))
		ptrs := make([]interface{}, len(desc.Fields))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, hrerrors.NewStoreError(fmt.Sprintf("failed to scan %s row", desc.Name), err)
		}

		id, ok := raw[0].(int64)
		if !ok {
			return nil, fmt.Errorf("store: %s: unexpected id type %T", desc.Name, raw[0])
		}

		rec := make(record.Record, len(desc.Columns))
		for i, f := range desc.Fields[1:] {
			v, err := fromDriverValue(f.Name, f.Type, raw[i+1])
			if err != nil {
				return nil, fmt.Errorf("store: %s id %d: %w", desc.Name, id, err)
			}
			rec[f.Name] = v
		}
		out = append(out, record.AllocatedRow{ID: id, Record: rec})
	}

	if err := rows.Err(); err != nil {
		return nil, hrerrors.NewStoreError(fmt.Sprintf("error iterating %s", desc.Name), err)
	}

	return out, nil
}

// Count returns the number of rows in the descriptor's table.
func (s *Store) Count(ctx context.Context, desc *schema.TableDescriptor) (int64, error) {
	var n int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(desc.Name))
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, hrerrors.NewStoreError(fmt.Sprintf("failed to count %s", desc.Name), err)
	}
	return n, nil
}
