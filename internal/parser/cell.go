package parser

// Cell is a borrowed view over one field's bytes: a pointer/length pair
// (here, a Go byte slice aliasing the parser's internal buffer or, for
// overwritten cells, the overwrite iterator's value) plus two flags.
//
// Cells are valid only until the next ParseMore/NextRow call; callers
// that need to retain a cell past that point must copy its bytes.
type Cell struct {
	// Data is the cell's raw bytes. For an unquoted cell this is the
	// literal field text. For a quoted cell, Data still contains any
	// doubled quotes ("") exactly as scanned; call Unescape to collapse
	// them. Borrowed: do not retain past the next parse call.
	Data []byte
	// Quoted is set when the source form used quotes (so a writer must
	// re-quote/re-escape on output), or when escaped-quote unescaping
	// produced this cell's bytes.
	Quoted bool
	// Overwritten is set when Data comes from the overwrite store
	// rather than the live input buffer.
	Overwritten bool
}

// emptyCell is returned by (*Parser).GetCell for out-of-range indices.
var emptyCell = Cell{}

// Status is the outcome of a parser operation, modeled on the original
// zsv library's zsv_status enum (confirmed by original_source's
// count-pull.c usage of zsv_status_row / zsv_status_ok): a small value
// enum used as parser control flow, not a wrapped-error hierarchy.
type Status int

const (
	// StatusOK indicates the call completed with no row pending and no
	// error (used internally; ParseMore / NextRow callers mostly see
	// StatusRow, StatusNoMoreInput, StatusCancelled, or StatusError).
	StatusOK Status = iota
	// StatusRow indicates a row was assembled and delivered.
	StatusRow
	// StatusNoMoreInput indicates clean end of input. From NextRow, any
	// trailing unterminated row has already been delivered; ParseMore
	// callers call Finish to flush it.
	StatusNoMoreInput
	// StatusCancelled indicates Abort was called, or the caller's
	// cancellation hook fired; any in-progress row was not delivered.
	StatusCancelled
	// StatusMemory indicates an allocation failure; the parser is
	// unusable thereafter.
	StatusMemory
	// StatusError indicates any other fatal condition (I/O, bad
	// options).
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusRow:
		return "row"
	case StatusNoMoreInput:
		return "no_more_input"
	case StatusCancelled:
		return "cancelled"
	case StatusMemory:
		return "memory"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Counters tracks the recoverable, non-fatal conditions spec.md's error
// table requires the parser to count rather than abort on.
type Counters struct {
	RowTooLarge   int64
	CellOverflow  int64
	MalformedUTF8 int64
	QuoteMisuse   int64
}
