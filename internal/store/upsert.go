package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	hrerrors "github.com/hrload/hrload/internal/errors"
	"github.com/hrload/hrload/internal/record"
	"github.com/hrload/hrload/internal/schema"
)

// UpsertRows replays rows into the descriptor's table in order, inside one
// transaction. A row whose identifier exists has every non-identifier column
// overwritten; otherwise it is inserted with its identifier preserved. The
// table's sequence is then advanced past the highest restored identifier.
// Any failing row rolls back the whole call.
func (s *Store) UpsertRows(ctx context.Context, desc *schema.TableDescriptor, rows []record.AllocatedRow) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, hrerrors.NewStoreError(fmt.Sprintf("failed to begin restore of %s", desc.Name), err)
	}
	defer tx.Rollback()

	if err := requireIDPrimaryKey(ctx, tx, desc); err != nil {
		return 0, err
	}

	query := buildUpsert(desc)
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, hrerrors.NewStoreError(fmt.Sprintf("failed to prepare restore of %s", desc.Name), err)
	}
	defer stmt.Close()

	var maxID int64
	for i, row := range rows {
		if err := checkColumns(desc, row.Record); err != nil {
			return 0, fmt.Errorf("store: restore %s row %d: %w", desc.Name, i, err)
		}

		args := make([]interface{}, 0, len(desc.Fields))
		args = append(args, row.ID)
		for _, f := range desc.Fields[1:] {
			arg, err := toDriverValue(f.Name, f.Type, row.Record[f.Name])
			if err != nil {
				return 0, fmt.Errorf("store: restore %s row %d: %w", desc.Name, i, err)
			}
			args = append(args, arg)
		}

		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("store: restore %s row %d (id %d): %w", desc.Name, i, row.ID, err)
		}
		if row.ID > maxID {
			maxID = row.ID
		}
	}

	if err := advanceSequenceTx(ctx, tx, desc.Name, maxID); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, hrerrors.NewStoreError(fmt.Sprintf("failed to commit restore of %s", desc.Name), err)
	}
	return len(rows), nil
}

// buildUpsert renders the insert-or-overwrite statement for a table. Every
// column is always bound so an overwrite is a full replacement.
func buildUpsert(desc *schema.TableDescriptor) string {
	columns := make([]string, len(desc.Fields))
	for i, f := range desc.Fields {
		columns[i] = quoteIdent(f.Name)
	}

	sets := make([]string, 0, len(desc.Columns))
	for _, c := range desc.Columns {
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", quoteIdent(c), quoteIdent(c)))
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) ",
		quoteIdent(desc.Name),
		strings.Join(columns, ", "),
		placeholders(len(columns)),
		quoteIdent(schema.IDColumn),
	)
	if len(sets) == 0 {
		return query + "DO NOTHING"
	}
	return query + "DO UPDATE SET " + strings.Join(sets, ", ")
}

// requireIDPrimaryKey verifies the upsert precondition: the table exists, has
// every registry column, and its sole primary key is the id column.
func requireIDPrimaryKey(ctx context.Context, tx *sql.Tx, desc *schema.TableDescriptor) error {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(desc.Name)))
	if err != nil {
		return hrerrors.NewStoreError(fmt.Sprintf("failed to inspect %s", desc.Name), err)
	}
	defer rows.Close()

	present := make(map[string]bool)
	idIsKey := false
	otherKeys := 0
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    interface{}
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return hrerrors.NewStoreError(fmt.Sprintf("failed to inspect %s", desc.Name), err)
		}
		present[name] = true
		switch {
		case name == schema.IDColumn && pk > 0:
			idIsKey = true
		case pk > 0:
			otherKeys++
		}
	}
	if err := rows.Err(); err != nil {
		return hrerrors.NewStoreError(fmt.Sprintf("failed to inspect %s", desc.Name), err)
	}

	if len(present) == 0 {
		return fmt.Errorf("store: table %s does not exist", desc.Name)
	}
	if !idIsKey || otherKeys > 0 {
		return fmt.Errorf("store: table %s must have %s as its only primary key column", desc.Name, schema.IDColumn)
	}
	for _, c := range desc.Columns {
		if !present[c] {
			return fmt.Errorf("store: table %s is missing column %s", desc.Name, c)
		}
	}
	return nil
}
