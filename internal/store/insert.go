package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	hrerrors "github.com/hrload/hrload/internal/errors"
	"github.com/hrload/hrload/internal/record"
	"github.com/hrload/hrload/internal/schema"
)

// InsertRows writes rows into the descriptor's table inside one transaction.
// Either every row is committed or, on the first failing row, the whole batch
// is rolled back and the error returned.
func (s *Store) InsertRows(ctx context.Context, desc *schema.TableDescriptor, rows []record.AllocatedRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return hrerrors.NewStoreError(fmt.Sprintf("failed to begin insert into %s", desc.Name), err)
	}
	defer tx.Rollback()

	for i, row := range rows {
		query, args, err := buildInsert(desc, row)
		if err != nil {
			return fmt.Errorf("store: insert into %s row %d: %w", desc.Name, i, err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("store: insert into %s row %d (id %d): %w", desc.Name, i, row.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return hrerrors.NewStoreError(fmt.Sprintf("failed to commit insert into %s", desc.Name), err)
	}
	return nil
}

// buildInsert renders an INSERT for the columns present in the row. Keys that
// are not columns of the table are rejected rather than dropped.
func buildInsert(desc *schema.TableDescriptor, row record.AllocatedRow) (string, []interface{}, error) {
	if err := checkColumns(desc, row.Record); err != nil {
		return "", nil, err
	}

	columns := []string{quoteIdent(schema.IDColumn)}
	args := []interface{}{row.ID}

	for _, f := range desc.Fields[1:] {
		v, ok := row.Record[f.Name]
		if !ok {
			continue
		}
		arg, err := toDriverValue(f.Name, f.Type, v)
		if err != nil {
			return "", nil, err
		}
		columns = append(columns, quoteIdent(f.Name))
		args = append(args, arg)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(desc.Name),
		strings.Join(columns, ", "),
		placeholders(len(columns)),
	)
	return query, args, nil
}

// checkColumns rejects record keys that are not data columns of the table.
func checkColumns(desc *schema.TableDescriptor, r record.Record) error {
	var unknown []string
	for k := range r {
		if !desc.HasColumn(k) {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unknown columns for %s: %s", desc.Name, strings.Join(unknown, ", "))
	}
	return nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
