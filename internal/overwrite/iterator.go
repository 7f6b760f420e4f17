package overwrite

import (
	"io"

	"github.com/csvtoolkit/zsv/internal/parser"
)

// sliceIterator walks an already-sorted in-memory slice of records.
// Backs MapStore.Iterator.
type sliceIterator struct {
	records []Record
	pos     int
}

func (it *sliceIterator) Next() (row int64, col int, value []byte, ok bool) {
	if it.pos >= len(it.records) {
		return 0, 0, nil, false
	}
	rec := it.records[it.pos]
	it.pos++
	return int64(rec.Row), int(rec.Col), rec.Value, true
}

// streamIterator walks a sequential reader of binary records (the
// sorted backend's merged output file, already in (row, col) order by
// construction). Backs SortedStore.Iterator.
type streamIterator struct {
	r      io.Reader
	closer io.Closer
	done   bool
}

func (it *streamIterator) Next() (row int64, col int, value []byte, ok bool) {
	if it.done {
		return 0, 0, nil, false
	}
	rec, err := ReadRecord(it.r)
	if err != nil {
		it.done = true
		if it.closer != nil {
			it.closer.Close()
		}
		return 0, 0, nil, false
	}
	return int64(rec.Row), int(rec.Col), rec.Value, true
}

var _ parser.OverwriteIterator = (*sliceIterator)(nil)
var _ parser.OverwriteIterator = (*streamIterator)(nil)
