// Package snapshot implements the self-describing binary format used for
// table backups.
//
// Layout (all integers little-endian):
//   - 4 bytes: magic "HRSN"
//   - 2 bytes: format version (uint16)
//   - 8 bytes: schema fingerprint (uint64, murmur3 of the field list)
//   - 4 bytes: header length (uint32)
//   - header: msgpack array of {name, type} fields, id first
//   - 8 bytes: row count (uint64)
//   - 4 bytes: body length (uint32)
//   - 4 bytes: CRC-32 (IEEE) of the body
//   - body: snappy-compressed msgpack stream, one array per row in field order
package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"

	"github.com/golang/snappy"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"

	hrerrors "github.com/hrload/hrload/internal/errors"
	"github.com/hrload/hrload/internal/record"
	"github.com/hrload/hrload/internal/schema"
)

// Magic identifies a snapshot blob.
const Magic = "HRSN"

// Version is the current format version.
const Version uint16 = 1

const (
	preambleSize = 4 + 2 + 8 + 4
	bodyMetaSize = 8 + 4 + 4
)

// Snapshot is a decoded backup: the field list it was written with and the
// rows in their serialized order.
type Snapshot struct {
	Fingerprint uint64
	Fields      []schema.Field
	Rows        []record.AllocatedRow
}

// Encode serializes rows under the given field list. The first field must be
// the integer id column. Columns absent from a row are written as null.
func Encode(fields []schema.Field, rows []record.AllocatedRow) ([]byte, error) {
	if len(fields) == 0 || fields[0].Name != schema.IDColumn || fields[0].Type != schema.TypeInt {
		return nil, fmt.Errorf("snapshot: first field must be %s:%s", schema.IDColumn, schema.TypeInt)
	}

	header, err := msgpack.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("snapshot: failed to encode header: %w", err)
	}

	var raw bytes.Buffer
	enc := msgpack.NewEncoder(&raw)
	for i, row := range rows {
		if err := encodeRow(enc, fields, row); err != nil {
			return nil, fmt.Errorf("snapshot: row %d: %w", i, err)
		}
	}
	body := snappy.Encode(nil, raw.Bytes())

	buf := make([]byte, 0, preambleSize+len(header)+bodyMetaSize+len(body))
	buf = append(buf, Magic...)
	buf = binary.LittleEndian.AppendUint16(buf, Version)
	buf = binary.LittleEndian.AppendUint64(buf, schema.Fingerprint(fields))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(header)))
	buf = append(buf, header...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(rows)))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(body)))
	buf = binary.LittleEndian.AppendUint32(buf, crc32.ChecksumIEEE(body))
	buf = append(buf, body...)

	return buf, nil
}

func encodeRow(enc *msgpack.Encoder, fields []schema.Field, row record.AllocatedRow) error {
	if err := enc.EncodeArrayLen(len(fields)); err != nil {
		return err
	}
	if err := enc.EncodeInt(row.ID); err != nil {
		return err
	}
	for _, f := range fields[1:] {
		v, ok := row.Record[f.Name]
		if !ok || v.IsNull() {
			if err := enc.EncodeNil(); err != nil {
				return err
			}
			continue
		}

		switch f.Type {
		case schema.TypeInt:
			n, ok := v.Int64()
			if !ok {
				return fmt.Errorf("column %s: expected int, got %s", f.Name, v.Kind())
			}
			if err := enc.EncodeInt(n); err != nil {
				return err
			}
		case schema.TypeString, schema.TypeTimestamp:
			s, ok := v.Str()
			if !ok {
				return fmt.Errorf("column %s: expected string, got %s", f.Name, v.Kind())
			}
			if err := enc.EncodeString(s); err != nil {
				return err
			}
		default:
			return fmt.Errorf("column %s: unknown type %q", f.Name, f.Type)
		}
	}
	return nil
}

// Decode parses a snapshot blob. Any structural problem (bad magic, unknown
// version, truncation, checksum or fingerprint mismatch, malformed rows,
// trailing bytes) is reported as a corrupt snapshot.
func Decode(data []byte) (*Snapshot, error) {
	if len(data) < preambleSize {
		return nil, corrupt("truncated preamble", nil)
	}
	if string(data[0:4]) != Magic {
		return nil, corrupt("bad magic", nil)
	}
	if v := binary.LittleEndian.Uint16(data[4:6]); v != Version {
		return nil, corrupt(fmt.Sprintf("unsupported version %d", v), nil)
	}
	fingerprint := binary.LittleEndian.Uint64(data[6:14])
	headerLen := uint64(binary.LittleEndian.Uint32(data[14:18]))

	off := uint64(preambleSize)
	if uint64(len(data)) < off+headerLen+bodyMetaSize {
		return nil, corrupt("truncated header", nil)
	}

	var fields []schema.Field
	if err := msgpack.Unmarshal(data[off:off+headerLen], &fields); err != nil {
		return nil, corrupt("malformed header", err)
	}
	if err := checkFields(fields); err != nil {
		return nil, corrupt("invalid header", err)
	}
	if schema.Fingerprint(fields) != fingerprint {
		return nil, corrupt("fingerprint does not match header", nil)
	}
	off += headerLen

	rowCount := binary.LittleEndian.Uint64(data[off : off+8])
	bodyLen := uint64(binary.LittleEndian.Uint32(data[off+8 : off+12]))
	checksum := binary.LittleEndian.Uint32(data[off+12 : off+16])
	off += bodyMetaSize

	if uint64(len(data))-off != bodyLen {
		return nil, corrupt(fmt.Sprintf("body length %d, have %d bytes", bodyLen, uint64(len(data))-off), nil)
	}
	body := data[off:]
	if crc32.ChecksumIEEE(body) != checksum {
		return nil, corrupt("checksum mismatch", nil)
	}

	raw, err := snappy.Decode(nil, body)
	if err != nil {
		return nil, corrupt("failed to decompress body", err)
	}

	// Each row takes at least one byte, which bounds the allocation below.
	if rowCount > uint64(len(raw)) {
		return nil, corrupt(fmt.Sprintf("row count %d exceeds body size", rowCount), nil)
	}

	rows := make([]record.AllocatedRow, 0, rowCount)
	r := bytes.NewReader(raw)
	dec := msgpack.NewDecoder(r)
	for i := uint64(0); i < rowCount; i++ {
		row, err := decodeRow(dec, fields)
		if err != nil {
			return nil, corrupt(fmt.Sprintf("row %d", i), err)
		}
		rows = append(rows, row)
	}
	if r.Len() != 0 {
		return nil, corrupt(fmt.Sprintf("%d trailing bytes after %d rows", r.Len(), rowCount), nil)
	}

	return &Snapshot{
		Fingerprint: fingerprint,
		Fields:      fields,
		Rows:        rows,
	}, nil
}

func decodeRow(dec *msgpack.Decoder, fields []schema.Field) (record.AllocatedRow, error) {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return record.AllocatedRow{}, err
	}
	if n != len(fields) {
		return record.AllocatedRow{}, fmt.Errorf("got %d values for %d fields", n, len(fields))
	}

	code, err := dec.PeekCode()
	if err != nil {
		return record.AllocatedRow{}, fmt.Errorf("id: %w", err)
	}
	if code == msgpcode.Nil {
		return record.AllocatedRow{}, fmt.Errorf("id is null")
	}
	id, err := decodeInt(dec, code)
	if err != nil {
		return record.AllocatedRow{}, fmt.Errorf("id: %w", err)
	}

	rec := make(record.Record, len(fields)-1)
	for _, f := range fields[1:] {
		code, err := dec.PeekCode()
		if err != nil {
			return record.AllocatedRow{}, fmt.Errorf("column %s: %w", f.Name, err)
		}
		if code == msgpcode.Nil {
			if err := dec.DecodeNil(); err != nil {
				return record.AllocatedRow{}, fmt.Errorf("column %s: %w", f.Name, err)
			}
			rec[f.Name] = record.Null()
			continue
		}

		switch f.Type {
		case schema.TypeInt:
			v, err := decodeInt(dec, code)
			if err != nil {
				return record.AllocatedRow{}, fmt.Errorf("column %s: %w", f.Name, err)
			}
			rec[f.Name] = record.Int(v)
		default:
			if !msgpcode.IsString(code) {
				return record.AllocatedRow{}, fmt.Errorf("column %s: expected string, got code %#x", f.Name, code)
			}
			s, err := dec.DecodeString()
			if err != nil {
				return record.AllocatedRow{}, fmt.Errorf("column %s: %w", f.Name, err)
			}
			rec[f.Name] = record.String(s)
		}
	}

	return record.AllocatedRow{ID: id, Record: rec}, nil
}

// decodeInt decodes a signed 64-bit integer. A uint64 above MaxInt64 is an
// error rather than a wrapped negative value.
func decodeInt(dec *msgpack.Decoder, code byte) (int64, error) {
	if code != msgpcode.Uint64 {
		return dec.DecodeInt64()
	}
	u, err := dec.DecodeUint64()
	if err != nil {
		return 0, err
	}
	if u > math.MaxInt64 {
		return 0, fmt.Errorf("integer %d overflows int64", u)
	}
	return int64(u), nil
}

func checkFields(fields []schema.Field) error {
	if len(fields) == 0 {
		return fmt.Errorf("no fields")
	}
	if fields[0].Name != schema.IDColumn || fields[0].Type != schema.TypeInt {
		return fmt.Errorf("first field must be %s:%s", schema.IDColumn, schema.TypeInt)
	}
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f.Name == "" || seen[f.Name] {
			return fmt.Errorf("invalid or duplicate field %q", f.Name)
		}
		if !f.Type.Valid() {
			return fmt.Errorf("field %q has unknown type %q", f.Name, f.Type)
		}
		seen[f.Name] = true
	}
	return nil
}

func corrupt(msg string, cause error) error {
	return hrerrors.NewCorruptSnapshotError("snapshot: "+msg, cause)
}
