package store

import (
	"context"
	"database/sql"
	"fmt"

	hrerrors "github.com/hrload/hrload/internal/errors"
)

// allocateIDSQL bumps and returns a table's sequence in one statement, so
// the store's write lock is the only coordination between callers.
const allocateIDSQL = `
INSERT INTO id_sequences (table_name, last_value) VALUES (?, 1)
ON CONFLICT(table_name) DO UPDATE SET last_value = last_value + 1
RETURNING last_value`

// advanceSequenceSQL raises a table's sequence to at least the given value.
const advanceSequenceSQL = `
INSERT INTO id_sequences (table_name, last_value) VALUES (?, ?)
ON CONFLICT(table_name) DO UPDATE SET last_value = MAX(last_value, excluded.last_value)`

// AllocateID returns the next identifier for table. Each call returns a value
// no other call for the same table can return, strictly greater than every
// value previously returned or restored. Gaps are allowed.
func (s *Store) AllocateID(ctx context.Context, table string) (int64, error) {
	var id int64
	if err := s.db.QueryRowContext(ctx, allocateIDSQL, table).Scan(&id); err != nil {
		return 0, hrerrors.NewStoreError(fmt.Sprintf("failed to allocate id for %s", table), err)
	}
	return id, nil
}

// seedSequence makes sure a table's sequence is not behind rows that already
// exist in the table.
func (s *Store) seedSequence(ctx context.Context, table string) error {
	var maxID sql.NullInt64
	query := fmt.Sprintf("SELECT MAX(id) FROM %s", quoteIdent(table))
	if err := s.db.QueryRowContext(ctx, query).Scan(&maxID); err != nil {
		return hrerrors.NewStoreError(fmt.Sprintf("failed to read max id of %s", table), err)
	}
	if _, err := s.db.ExecContext(ctx, advanceSequenceSQL, table, maxID.Int64); err != nil {
		return hrerrors.NewStoreError(fmt.Sprintf("failed to seed sequence for %s", table), err)
	}
	return nil
}

// advanceSequenceTx raises a table's sequence inside a transaction.
func advanceSequenceTx(ctx context.Context, tx *sql.Tx, table string, value int64) error {
	if _, err := tx.ExecContext(ctx, advanceSequenceSQL, table, value); err != nil {
		return fmt.Errorf("store: failed to advance sequence for %s: %w", table, err)
	}
	return nil
}
