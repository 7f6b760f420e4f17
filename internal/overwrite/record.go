// Package overwrite persists per-cell value replacements applied on
// top of a CSV/TSV stream without rewriting the source file, the way
// entreya-csvquery's internal/updatemgr.UpdateManager and
// internal/indexer.Sorter persist, respectively, a small interactive
// edit set and a large externally-sorted index next to the data file.
//
// Two backends share the same on-disk record shape: a fixed binary
// key (row, col) plus a length-prefixed value, adapted from
// common/common.go's IndexRecord (Key[64]byte/Offset/Line) with the
// 64-byte fixed key replaced by an explicit (row, col) pair since
// overwrite keys are never free-form strings.
package overwrite

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Record is one persisted cell replacement: column col of row row is
// replaced with Value. Rows and columns are both 0-based, matching
// parser.Cell/parser.OverwriteIterator.
type Record struct {
	Row   uint64
	Col   uint32
	Value []byte
}

// keyHeaderSize is the fixed portion of a sorted-backend record: Row
// (8 bytes) + Col (4 bytes) + len(Value) (4 bytes), all big-endian,
// followed by the value bytes themselves.
const keyHeaderSize = 8 + 4 + 4

// Less reports whether r sorts before other by (row, col), the order
// the parser.OverwriteIterator contract requires.
func (r Record) Less(other Record) bool {
	if r.Row != other.Row {
		return r.Row < other.Row
	}
	return r.Col < other.Col
}

// WriteRecord writes one variable-length record: an 16-byte header
// (row, col, value length) followed by the value bytes.
func WriteRecord(w io.Writer, rec Record) error {
	var header [keyHeaderSize]byte
	binary.BigEndian.PutUint64(header[0:8], rec.Row)
	binary.BigEndian.PutUint32(header[8:12], rec.Col)
	binary.BigEndian.PutUint32(header[12:16], uint32(len(rec.Value)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if len(rec.Value) == 0 {
		return nil
	}
	_, err := w.Write(rec.Value)
	return err
}

// ReadRecord reads one record written by WriteRecord. Returns io.EOF
// (unwrapped) when the stream is exhausted at a record boundary.
func ReadRecord(r io.Reader) (Record, error) {
	var header [keyHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Record{}, err
	}
	rec := Record{
		Row: binary.BigEndian.Uint64(header[0:8]),
		Col: binary.BigEndian.Uint32(header[8:12]),
	}
	valueLen := binary.BigEndian.Uint32(header[12:16])
	if valueLen == 0 {
		return rec, nil
	}
	rec.Value = make([]byte, valueLen)
	if _, err := io.ReadFull(r, rec.Value); err != nil {
		return Record{}, fmt.Errorf("overwrite: truncated record value: %w", err)
	}
	return rec, nil
}
