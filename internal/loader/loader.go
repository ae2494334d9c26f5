// Package loader runs the insert pipeline: sanitize, validate and partition,
// allocate identifiers, and write each table-group in one transaction.
package loader

import (
	"context"
	"log"

	"github.com/hrload/hrload/internal/record"
	"github.com/hrload/hrload/internal/schema"
)

// IDAllocator hands out store-side surrogate identifiers.
type IDAllocator interface {
	AllocateID(ctx context.Context, table string) (int64, error)
}

// RowWriter writes a batch of rows in one transaction.
type RowWriter interface {
	InsertRows(ctx context.Context, desc *schema.TableDescriptor, rows []record.AllocatedRow) error
}

// TableBatch is one table-group of an insert request.
type TableBatch struct {
	Table string          `json:"table"`
	Data  []record.Record `json:"data"`
}

// Result is the outcome of one insert request: every invalid record across
// all table-groups and every row that was committed.
type Result struct {
	Invalid  []record.InvalidRecord `json:"invalid_data"`
	Inserted []record.AllocatedRow  `json:"inserted_data"`
}

// Inserter wraps a RowWriter with the all-or-nothing boolean contract.
type Inserter struct {
	writer RowWriter
}

// NewInserter creates an Inserter.
func NewInserter(writer RowWriter) *Inserter {
	return &Inserter{writer: writer}
}

// Insert writes rows into the descriptor's table in one transaction. It
// reports false and logs the cause if anything failed; nothing is committed
// in that case.
func (i *Inserter) Insert(ctx context.Context, desc *schema.TableDescriptor, rows []record.AllocatedRow) bool {
	if err := i.writer.InsertRows(ctx, desc, rows); err != nil {
		log.Printf("loader: insert of %d rows into %s rolled back: %v", len(rows), desc.Name, err)
		return false
	}
	return true
}

// Loader validates and loads insert requests.
type Loader struct {
	registry *schema.Registry
	ids      IDAllocator
	inserter *Inserter
}

// New creates a Loader.
func New(registry *schema.Registry, ids IDAllocator, writer RowWriter) *Loader {
	return &Loader{
		registry: registry,
		ids:      ids,
		inserter: NewInserter(writer),
	}
}

// Load processes the table-groups of one request in order. Every table name
// is resolved before any store access. Invalid records are collected and
// never abort the request; a group whose insert fails is rolled back and
// left out of the inserted rows. An identifier allocation failure aborts the
// request with the store error.
func (l *Loader) Load(ctx context.Context, batches []TableBatch) (*Result, error) {
	descs := make([]*schema.TableDescriptor, len(batches))
	for i, b := range batches {
		desc, err := l.registry.Lookup(b.Table)
		if err != nil {
			return nil, err
		}
		descs[i] = desc
	}

	result := &Result{
		Invalid:  []record.InvalidRecord{},
		Inserted: []record.AllocatedRow{},
	}

	for i, b := range batches {
		desc := descs[i]

		partition := record.Partition(record.SanitizeAll(b.Data), desc.Required)
		result.Invalid = append(result.Invalid, partition.Invalid...)
		if len(partition.Valid) == 0 {
			continue
		}

		rows := make([]record.AllocatedRow, 0, len(partition.Valid))
		for _, r := range partition.Valid {
			id, err := l.ids.AllocateID(ctx, desc.Name)
			if err != nil {
				log.Printf("loader: failed to allocate id for %s: %v", desc.Name, err)
				return nil, err
			}
			rows = append(rows, record.AllocatedRow{ID: id, Record: r})
		}

		if l.inserter.Insert(ctx, desc, rows) {
			result.Inserted = append(result.Inserted, rows...)
		}
	}

	log.Printf("loader: %d groups, %d invalid, %d inserted",
		len(batches), len(result.Invalid), len(result.Inserted))
	return result, nil
}
