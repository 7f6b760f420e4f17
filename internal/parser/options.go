// Package parser implements the streaming CSV/TSV/fixed-width scanner:
// a zero-copy, block-oriented tokenizer that tolerates quoted fields,
// embedded newlines, configurable delimiters, malformed UTF-8, BOMs,
// multi-row headers and in-place cell overwrites.
//
// The design is grounded on oleg578-swiftcsv's Reader (block refill,
// quote-continuity across fills, CR/CRLF peeking) generalized from a
// string-building reader into the zero-copy cell-view model the
// specification requires, plus the header-span/skip-head and
// cell-overwrite machinery neither teacher implements.
package parser

import (
	"fmt"
	"io"
)

const (
	// DefaultMaxColumns is the default cap on cells per row.
	DefaultMaxColumns = 1024
	// MinMaxColumns is the smallest permitted MaxColumns.
	MinMaxColumns = 8
	// DefaultMaxRowSize is the default cap on a single row's byte length.
	DefaultMaxRowSize = 64 * 1024
	// MinMaxRowSize is the smallest permitted MaxRowSize.
	MinMaxRowSize = 32 * 1024
	// DefaultHeaderSpan is the default number of rows folded into the header.
	DefaultHeaderSpan = 1
	// HeaderSpanDisabled is a HeaderSpan sentinel meaning "header folding
	// explicitly turned off" (every row is a data row), as distinct from
	// the zero value, which Validate treats as "unset" and replaces with
	// DefaultHeaderSpan. Non-first parallel chunks use this sentinel (see
	// internal/cliopts.ForWorkerChunk) so their first row is delivered as
	// plain data instead of being re-folded into a one-row header.
	HeaderSpanDisabled = -1
	// DefaultFixedAutoDetectBytes is the default prefix sampled to infer
	// fixed-width column offsets. The original zsv source samples 256 KiB;
	// spec.md documents this as a knob, not an invariant.
	DefaultFixedAutoDetectBytes = 256 * 1024
	// headerJoin separates per-row values when folding a multi-row header
	// into one logical header row.
	headerJoin = ";"
)

// RowHandler is invoked once per assembled row in push mode. It may call
// (*Parser).Abort to stop parsing after the current row.
type RowHandler func(p *Parser)

// CellHandler is an optional per-cell push callback, invoked as each cell
// is appended to the row in progress.
type CellHandler func(p *Parser, cellIndex int)

// ProgressFunc is invoked periodically (every N bytes, see Options.ProgressEvery)
// with the cumulative number of bytes scanned so far.
type ProgressFunc func(cumulativeBytes int64)

// OverwriteIterator is consumed by the parser during parsing: Next
// returns the next overwrite record in (row, col) order, or ok=false
// once exhausted. The parser substitutes cell.Overwritten=true whenever
// the current cell's (row, col) matches the iterator's most recent
// un-consumed record. Implementations must advance monotonically;
// records for a (row, col) the parser has already passed are simply
// skipped by the parser (see (*Parser) applyOverwrites).
type OverwriteIterator interface {
	Next() (row int64, col int, value []byte, ok bool)
}

// PropertyHandler is an embedder hook analogous to the original zsv
// library's custom_prop_handler: a place to plug in out-of-core
// consumers (e.g. a SQLite virtual table module) that need to be told
// about the active Options for a given file path without relying on
// process-global state. The core parser never calls this itself; it is
// surfaced for command implementations (see internal/commands) to pass
// through to collaborators per spec.md's design note on avoiding
// globals.
type PropertyHandler interface {
	// OnOptionsResolved is called once per file, after the three-layer
	// option merge (defaults -> sidecar -> CLI flags) completes.
	OnOptionsResolved(filePath string, opts Options)
}

// Options configures a Parser. Call DefaultOptions to obtain a value
// with every field at its documented default, then override as needed.
type Options struct {
	// Delimiter is the single-byte field separator. Default ','.
	Delimiter byte
	// QuotesEnabled turns RFC-4180-style quoting on or off. Default true.
	QuotesEnabled bool
	// StrictQuotes controls behavior when a quote inside a quoted field
	// is followed by neither a quote, the delimiter, nor a row
	// terminator. Tolerant (false, the default) keeps the stray quote
	// literally and increments the QuoteMisuse counter; strict (true)
	// also increments QuoteMisuse, then discards the row and resumes
	// parsing after the next row terminator. See spec.md's open
	// question: tolerant is the default.
	StrictQuotes bool
	// MaxColumns caps cells per row; extra cells are dropped (not
	// counted) and CellOverflow is incremented. Must be >= MinMaxColumns.
	MaxColumns int
	// MaxRowSize caps a single row's byte length. A longer row raises
	// RowTooLarge, is discarded, and parsing resynchronizes at the next
	// terminator. Must be >= MinMaxRowSize.
	MaxRowSize int
	// BufferSize is the input ring-buffer size; must be >= MaxRowSize.
	// Zero selects MaxRowSize.
	BufferSize int
	// HeaderSpan is the number of top rows (after SkipHead and optional
	// blank-row skipping) folded into one logical header row. Must be
	// >= 1, or exactly HeaderSpanDisabled to turn header folding off
	// entirely (every row, including the first, is a data row). Zero
	// means "unset" and is replaced by DefaultHeaderSpan in Validate.
	HeaderSpan int32
	// SkipHead is the number of rows discarded before any other
	// processing, including before header-span folding.
	SkipHead uint32
	// KeepBlankHeaderRows disables skipping of leading all-blank rows
	// once SkipHead rows have been discarded.
	KeepBlankHeaderRows bool
	// InsertHeaderRow, if non-nil, is a synthetic CSV-encoded row
	// delivered as the header in place of any header rows parsed from
	// the stream; HeaderSpan is then ignored for the real stream (only
	// SkipHead still applies before data rows begin).
	InsertHeaderRow []byte
	// RowHandler is the push-mode row callback.
	RowHandler RowHandler
	// CellHandler is an optional push-mode per-cell callback.
	CellHandler CellHandler
	// Context is caller-defined state threaded through to RowHandler /
	// CellHandler via (*Parser).Context().
	Context any
	// Stream is the input source. Required: ParseMore and NextRow
	// return StatusError without one.
	Stream io.Reader
	// MalformedUTF8Replace, if non-nil, is the byte written in place of
	// each byte that starts an invalid UTF-8 sequence, each such byte
	// counted in MalformedUTF8. Nil disables the pass: malformed
	// sequences pass through unmodified and are not counted.
	MalformedUTF8Replace *byte
	// Verbose is set by internal/cliopts' -v flag and carried in the
	// options. The parser itself writes no warnings; recoverable
	// conditions are reported only through Counters.
	Verbose bool
	// Progress, if non-nil, is invoked after every ProgressEvery bytes
	// of cumulative input.
	Progress ProgressFunc
	// ProgressEvery is the byte interval for Progress callbacks. Zero
	// disables progress callbacks even if Progress is set.
	ProgressEvery int64
	// Overwrites, if non-nil, is consumed to substitute cell values as
	// rows are assembled (see OverwriteIterator).
	Overwrites OverwriteIterator
	// FixedAutoDetectBytes is the prefix size sampled by fixed-width
	// auto-detection. Zero selects DefaultFixedAutoDetectBytes.
	FixedAutoDetectBytes int
}

// DefaultOptions returns an Options value with every field set to its
// documented default.
func DefaultOptions() Options {
	return Options{
		Delimiter:            ',',
		QuotesEnabled:        true,
		StrictQuotes:         false,
		MaxColumns:           DefaultMaxColumns,
		MaxRowSize:           DefaultMaxRowSize,
		HeaderSpan:           DefaultHeaderSpan,
		FixedAutoDetectBytes: DefaultFixedAutoDetectBytes,
	}
}

// Validate checks the option bounds documented on each field and fills
// in zero-valued fields that have a non-zero effective default (delimiter,
// max columns, max row size, buffer size, header span).
func (o *Options) Validate() error {
	if o.Delimiter == 0 {
		o.Delimiter = ','
	}
	if o.MaxColumns == 0 {
		o.MaxColumns = DefaultMaxColumns
	}
	if o.MaxColumns < MinMaxColumns {
		return fmt.Errorf("parser: max_columns must be >= %d, got %d", MinMaxColumns, o.MaxColumns)
	}
	if o.MaxRowSize == 0 {
		o.MaxRowSize = DefaultMaxRowSize
	}
	if o.MaxRowSize < MinMaxRowSize {
		return fmt.Errorf("parser: max_row_size must be >= %d, got %d", MinMaxRowSize, o.MaxRowSize)
	}
	if o.BufferSize == 0 {
		o.BufferSize = o.MaxRowSize
	}
	if o.BufferSize < o.MaxRowSize {
		return fmt.Errorf("parser: buffer_size (%d) must be >= max_row_size (%d)", o.BufferSize, o.MaxRowSize)
	}
	if o.HeaderSpan == 0 {
		o.HeaderSpan = DefaultHeaderSpan
	}
	if o.HeaderSpan < 0 && o.HeaderSpan != HeaderSpanDisabled {
		return fmt.Errorf("parser: header_span must be >= 1 or exactly %d (disabled), got %d", HeaderSpanDisabled, o.HeaderSpan)
	}
	if o.FixedAutoDetectBytes == 0 {
		o.FixedAutoDetectBytes = DefaultFixedAutoDetectBytes
	}
	return nil
}
