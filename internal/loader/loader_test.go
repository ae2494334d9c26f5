package loader

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	hrerrors "github.com/hrload/hrload/internal/errors"
	"github.com/hrload/hrload/internal/record"
	"github.com/hrload/hrload/internal/schema"
	"github.com/hrload/hrload/internal/store"
)

type fakeAllocator struct {
	next  int64
	calls int
	err   error
}

func (f *fakeAllocator) AllocateID(ctx context.Context, table string) (int64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	f.next++
	return f.next, nil
}

type fakeWriter struct {
	failTables map[string]bool
	written    map[string][]record.AllocatedRow
}

func (f *fakeWriter) InsertRows(ctx context.Context, desc *schema.TableDescriptor, rows []record.AllocatedRow) error {
	if f.failTables[desc.Name] {
		return errors.New("constraint violation")
	}
	if f.written == nil {
		f.written = make(map[string][]record.AllocatedRow)
	}
	f.written[desc.Name] = append(f.written[desc.Name], rows...)
	return nil
}

func TestLoader_PartitionsAndInserts(t *testing.T) {
	ids := &fakeAllocator{}
	writer := &fakeWriter{}
	l := New(schema.DefaultRegistry(), ids, writer)

	result, err := l.Load(context.Background(), []TableBatch{{
		Table: schema.TableDepartments,
		Data: []record.Record{
			{"department": record.String("Sales")},
			{"department": record.String("")},
		},
	}})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if len(result.Invalid) != 1 {
		t.Fatalf("invalid count mismatch: got %d, want 1", len(result.Invalid))
	}
	if got := result.Invalid[0].Missing; len(got) != 1 || got[0] != "department" {
		t.Errorf("missing columns mismatch: got %v, want [department]", got)
	}
	if len(result.Inserted) != 1 {
		t.Fatalf("inserted count mismatch: got %d, want 1", len(result.Inserted))
	}
	if result.Inserted[0].ID != 1 {
		t.Errorf("id mismatch: got %d, want 1", result.Inserted[0].ID)
	}
	if ids.calls != 1 {
		t.Errorf("allocations mismatch: got %d, want 1", ids.calls)
	}
}

func TestLoader_SanitizesBeforeValidation(t *testing.T) {
	writer := &fakeWriter{}
	l := New(schema.DefaultRegistry(), &fakeAllocator{}, writer)

	result, err := l.Load(context.Background(), []TableBatch{{
		Table: schema.TableJobs,
		Data: []record.Record{
			{"job": record.String("!!!")},
			{"job": record.String("Dev-Ops Lead")},
		},
	}})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(result.Invalid) != 1 {
		t.Errorf("invalid count mismatch: got %d, want 1", len(result.Invalid))
	}
	if len(result.Inserted) != 1 {
		t.Fatalf("inserted count mismatch: got %d, want 1", len(result.Inserted))
	}
	if v, _ := result.Inserted[0].Record["job"].Str(); v != "DevOps Lead" {
		t.Errorf("sanitized job mismatch: got %q, want %q", v, "DevOps Lead")
	}
}

func TestLoader_UnknownTableBeforeStoreAccess(t *testing.T) {
	ids := &fakeAllocator{}
	writer := &fakeWriter{}
	l := New(schema.DefaultRegistry(), ids, writer)

	_, err := l.Load(context.Background(), []TableBatch{
		{Table: schema.TableJobs, Data: []record.Record{{"job": record.String("Engineer")}}},
		{Table: "unknown_table", Data: []record.Record{{"x": record.String("y")}}},
	})
	if !errors.Is(err, hrerrors.ErrInvalidTableName) {
		t.Fatalf("expected invalid table name, got %v", err)
	}
	if ids.calls != 0 || len(writer.written) != 0 {
		t.Errorf("store touched before table check: %d allocations, %d tables written", ids.calls, len(writer.written))
	}
}

func TestLoader_FailedGroupIsIsolated(t *testing.T) {
	writer := &fakeWriter{failTables: map[string]bool{schema.TableJobs: true}}
	l := New(schema.DefaultRegistry(), &fakeAllocator{}, writer)

	result, err := l.Load(context.Background(), []TableBatch{
		{Table: schema.TableJobs, Data: []record.Record{{"job": record.String("Engineer")}}},
		{Table: schema.TableDepartments, Data: []record.Record{{"department": record.String("Sales")}}},
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(result.Inserted) != 1 {
		t.Fatalf("inserted count mismatch: got %d, want 1", len(result.Inserted))
	}
	if _, ok := result.Inserted[0].Record["department"]; !ok {
		t.Errorf("expected the departments row to be inserted, got %+v", result.Inserted[0])
	}
}

func TestLoader_AllocationFailureAborts(t *testing.T) {
	ids := &fakeAllocator{err: hrerrors.NewStoreError("database is locked", nil)}
	writer := &fakeWriter{}
	l := New(schema.DefaultRegistry(), ids, writer)

	_, err := l.Load(context.Background(), []TableBatch{
		{Table: schema.TableJobs, Data: []record.Record{{"job": record.String("Engineer")}}},
	})
	if !errors.Is(err, hrerrors.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
	if len(writer.written) != 0 {
		t.Errorf("rows written after allocation failure: %v", writer.written)
	}
}

func TestLoader_EmptyRequest(t *testing.T) {
	l := New(schema.DefaultRegistry(), &fakeAllocator{}, &fakeWriter{})

	result, err := l.Load(context.Background(), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(result.Invalid) != 0 || len(result.Inserted) != 0 {
		t.Errorf("expected empty result, got %+v", result)
	}
}

func TestLoader_AgainstStore(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "hr.db"), schema.DefaultRegistry(), store.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	l := New(st.Registry(), st, st)
	ctx := context.Background()

	result, err := l.Load(ctx, []TableBatch{
		{Table: schema.TableDepartments, Data: []record.Record{{"department": record.String("Sales")}}},
		{Table: schema.TableJobs, Data: []record.Record{{"job": record.String("Engineer")}}},
		{Table: schema.TableHiredEmployees, Data: []record.Record{
			{
				"name":          record.String("Harold Vogt"),
				"datetime":      record.String("2021-07-14T01:51:31Z"),
				"department_id": record.Int(1),
				"job_id":        record.Int(1),
			},
			{
				"name":          record.String("Fractional Seconds"),
				"datetime":      record.String("2021-07-14T01:51:31.250Z"),
				"department_id": record.Int(1),
				"job_id":        record.Int(1),
			},
			{
				"name":          record.String("No Department"),
				"datetime":      record.String("2021-07-14T01:51:31Z"),
				"department_id": record.Null(),
				"job_id":        record.Int(1),
			},
		}},
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(result.Inserted) != 4 {
		t.Errorf("inserted count mismatch: got %d, want 4", len(result.Inserted))
	}
	if len(result.Invalid) != 1 {
		t.Errorf("invalid count mismatch: got %d, want 1", len(result.Invalid))
	}

	desc, _ := st.Registry().Lookup(schema.TableHiredEmployees)
	n, err := st.Count(ctx, desc)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("hired_employees count mismatch: got %d, want 2", n)
	}

	// A foreign key violation rolls back only its own group.
	result, err = l.Load(ctx, []TableBatch{
		{Table: schema.TableHiredEmployees, Data: []record.Record{{
			"name":          record.String("Ghost"),
			"datetime":      record.String("2021-07-14T01:51:31Z"),
			"department_id": record.Int(404),
			"job_id":        record.Int(1),
		}}},
		{Table: schema.TableJobs, Data: []record.Record{{"job": record.String("Analyst")}}},
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(result.Inserted) != 1 {
		t.Errorf("inserted count mismatch after fk violation: got %d, want 1", len(result.Inserted))
	}
	if n, _ := st.Count(ctx, desc); n != 2 {
		t.Errorf("hired_employees count after rollback: got %d, want 2", n)
	}
}
