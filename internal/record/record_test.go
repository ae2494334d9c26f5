package record

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	hrerrors "github.com/hrload/hrload/internal/errors"
)

func TestValue_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		input   string
		want    Value
		wantErr bool
	}{
		{`null`, Null(), false},
		{`"Sales"`, String("Sales"), false},
		{`""`, String(""), false},
		{`42`, Int(42), false},
		{`-7`, Int(-7), false},
		{`9007199254740993`, Int(9007199254740993), false},
		{`1.5`, Value{}, true},
		{`true`, Value{}, true},
		{`{"a":1}`, Value{}, true},
		{`[1]`, Value{}, true},
	}

	for _, tt := range tests {
		var got Value
		err := json.Unmarshal([]byte(tt.input), &got)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s: expected error, got %#v", tt.input, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: got %#v, want %#v", tt.input, got, tt.want)
		}
	}
}

func TestRecord_UnmarshalJSON(t *testing.T) {
	var r Record
	if err := json.Unmarshal([]byte(`{"name":"Ana","department_id":3,"job_id":null}`), &r); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	want := Record{"name": String("Ana"), "department_id": Int(3), "job_id": Null()}
	if !reflect.DeepEqual(r, want) {
		t.Errorf("record mismatch: got %#v, want %#v", r, want)
	}
}

func TestFromInterface_MsgpackIntegers(t *testing.T) {
	for _, x := range []interface{}{int8(5), int16(5), int32(5), int64(5), uint8(5), uint16(5), uint32(5), uint64(5), 5} {
		v, err := FromInterface(x)
		if err != nil {
			t.Fatalf("%T: unexpected error: %v", x, err)
		}
		if n, ok := v.Int64(); !ok || n != 5 {
			t.Errorf("%T: got %#v, want 5", x, v)
		}
	}

	if _, err := FromInterface(uint64(1) << 63); err == nil {
		t.Error("expected overflow error for uint64 above MaxInt64")
	}
}

func TestAllocatedRow_MarshalJSON(t *testing.T) {
	row := AllocatedRow{ID: 7, Record: Record{"department": String("Sales")}}
	data, err := json.Marshal(row)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `{"department":"Sales","id":7}` {
		t.Errorf("got %s", data)
	}
}

func TestInvalidRecord_MarshalJSON(t *testing.T) {
	ir := InvalidRecord{Record: Record{"department": String("")}, Missing: []string{"department"}}
	data, err := json.Marshal(ir)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `{"department":"","missing_columns":["department"]}` {
		t.Errorf("got %s", data)
	}
	if !errors.Is(ir.Err(), hrerrors.ErrValidationFailure) {
		t.Errorf("expected ValidationFailure, got %v", ir.Err())
	}
}

func TestSanitize(t *testing.T) {
	in := Record{
		"name":          String("O'Brien, Ana-María!"),
		"datetime":      String("2021-07-14T01:51:31Z"),
		"department_id": Int(4),
		"job_id":        Null(),
		"note":          String("<script>"),
	}
	got := Sanitize(in)

	want := Record{
		"name":          String("OBrien AnaMaría"),
		"datetime":      String("20210714T015131Z"),
		"department_id": Int(4),
		"job_id":        Null(),
		"note":          String("script"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("sanitize mismatch:\ngot  %#v\nwant %#v", got, want)
	}

	if s, _ := in["name"].Str(); s != "O'Brien, Ana-María!" {
		t.Error("Sanitize must not mutate its input")
	}
}

func TestSanitize_EmptyAfterSanitizationIsPresent(t *testing.T) {
	got := Sanitize(Record{"job": String("!!!")})
	v, ok := got["job"]
	if !ok {
		t.Fatal("expected job to remain present")
	}
	if s, isStr := v.Str(); !isStr || s != "" {
		t.Errorf("got %#v, want empty string", v)
	}
}

func TestPartition(t *testing.T) {
	records := []Record{
		{"department": String("Sales")},
		{"department": String("")},
		{},
		{"department": Null()},
		{"department": String("Legal"), "floor": String("")},
	}

	result := Partition(records, []string{"department"})

	if len(result.Valid) != 2 {
		t.Fatalf("valid count mismatch: got %d, want 2", len(result.Valid))
	}
	if len(result.Invalid) != 3 {
		t.Fatalf("invalid count mismatch: got %d, want 3", len(result.Invalid))
	}

	if s, _ := result.Valid[0]["department"].Str(); s != "Sales" {
		t.Errorf("valid[0] mismatch: got %q, want Sales", s)
	}
	if !result.Valid[1]["floor"].IsNull() {
		t.Error("empty optional column should be normalized to null")
	}

	// The invalid record keeps the field as received.
	if s, ok := result.Invalid[0].Record["department"].Str(); !ok || s != "" {
		t.Errorf("invalid[0] should keep the empty string, got %#v", result.Invalid[0].Record["department"])
	}
	for i, ir := range result.Invalid {
		if !reflect.DeepEqual(ir.Missing, []string{"department"}) {
			t.Errorf("invalid[%d] missing mismatch: got %v", i, ir.Missing)
		}
	}
}

func TestPartition_EmptyBatch(t *testing.T) {
	result := Partition(nil, []string{"job"})
	if len(result.Valid) != 0 || len(result.Invalid) != 0 {
		t.Errorf("expected empty partitions, got %+v", result)
	}
}

func TestPartition_ReportsEveryMissingColumn(t *testing.T) {
	records := []Record{{"name": String("Ana"), "datetime": String("")}}
	result := Partition(records, []string{"name", "datetime", "department_id", "job_id"})

	if len(result.Invalid) != 1 {
		t.Fatalf("invalid count mismatch: got %d, want 1", len(result.Invalid))
	}
	want := []string{"datetime", "department_id", "job_id"}
	if !reflect.DeepEqual(result.Invalid[0].Missing, want) {
		t.Errorf("missing mismatch: got %v, want %v", result.Invalid[0].Missing, want)
	}
}
