package parser

import (
	"bytes"
	"fmt"
	"io"
	"sync/atomic"
)

// header-fold stage. Modeled as an explicit small state machine so the
// skip-head -> skip-blank -> header-span -> data pipeline (spec.md
// §4.2) reads as a single switch rather than scattered booleans.
type headerStage int

const (
	stageSkipHead headerStage = iota
	stageSkipBlank
	stageHeaderSpan
	stageData
)

// Parser is the streaming CSV/TSV/fixed-width handle: a single owned
// ring buffer plus the byte state machine, exposed through both a push
// API (ParseMore driving RowHandler) and a pull API (NextRow), as
// spec.md §4.2 and the design note in spec.md §9 describe ("the pull
// API is just a caller-driven loop over the push API").
type Parser struct {
	opts Options

	// input buffer: ring-shaped, re-fillable. buf[0:bufLen] holds valid
	// bytes; pos is the scan cursor; rowStart is where the row currently
	// being assembled began, so refill can memmove the unterminated
	// prefix to the head of the buffer.
	buf      []byte
	bufLen   int
	pos      int
	rowStart int

	// scan state machine
	state         scanState
	cellFieldBeg  int  // InUnquoted: start offset of the field in progress
	quoteContentB int  // InQuoted: start offset of the quoted payload
	quoteSeenAt   int  // QuoteSeen: offset of the quote byte under test
	pendingCR     bool // a CR was the last byte of the previous block
	discarding    bool // resynchronizing after RowTooLarge
	rowOverflowed bool // cell-overflow already flagged for this row

	cells      []Cell
	cellIndex  int
	bomChecked bool

	headerStage            headerStage
	headRowsSkipped        uint32
	headerRowsCollected    uint32
	headerParts            [][]string
	syntheticHeaderPending bool
	dataRowIndex           int64
	rawRowIndex            int64

	overwriteHasPeek bool
	overwriteExh     bool
	peekRow          int64
	peekCol          int
	peekVal          []byte

	cumulativeScannedBytes int64
	lastProgressAt         int64

	streamEOF bool
	finished  bool
	// cancelled is set by Abort, which spec.md §5's cooperative-
	// cancellation model expects to be callable from a signal handler
	// running on a different goroutine than the one driving ParseMore/
	// NextRow; atomic.Bool gives that a defined cross-goroutine meaning
	// instead of a racy plain bool.
	cancelled atomic.Bool

	counters Counters

	scanFilter   func(chunk []byte)
	fixedOffsets []int // non-nil switches to fixed-width mode
}

// New allocates a Parser, validating opts and wiring the configured
// Stream (if any). Matches spec.md §4.2's `new(options)` operation.
func New(opts Options) (*Parser, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	p := &Parser{
		opts:  opts,
		buf:   make([]byte, opts.BufferSize),
		cells: make([]Cell, 0, opts.MaxColumns),
	}
	if opts.InsertHeaderRow != nil {
		cells, err := parseLiteralRow(opts, opts.InsertHeaderRow)
		if err != nil {
			return nil, fmt.Errorf("parser: insert_header_row: %w", err)
		}
		p.cells = cells
		p.cellIndex = len(cells)
		p.syntheticHeaderPending = true
	}
	return p, nil
}

// parseLiteralRow runs one row of data (e.g. Options.InsertHeaderRow)
// through a throwaway Parser configured with the same delimiter/quote
// rules, returning independently-owned cells (not aliasing the
// throwaway parser's buffer).
func parseLiteralRow(opts Options, data []byte) ([]Cell, error) {
	sub := Options{
		Delimiter:     opts.Delimiter,
		QuotesEnabled: opts.QuotesEnabled,
		StrictQuotes:  opts.StrictQuotes,
		MaxColumns:    opts.MaxColumns,
		MaxRowSize:    opts.MaxRowSize,
		BufferSize:    opts.BufferSize,
		Stream:        bytes.NewReader(data),
	}
	parser, err := New(sub)
	if err != nil {
		return nil, err
	}
	status, err := parser.NextRow()
	if err != nil {
		return nil, err
	}
	if status != StatusRow {
		return nil, nil
	}
	out := make([]Cell, parser.CellCount())
	for i := range out {
		c := parser.GetCell(i)
		buf := make([]byte, len(c.Data))
		copy(buf, c.Data)
		out[i] = Cell{Data: buf, Quoted: c.Quoted}
	}
	return out, nil
}

// Options returns a copy of the parser's effective options.
func (p *Parser) Options() Options { return p.opts }

// Context returns the caller-supplied Options.Context value.
func (p *Parser) Context() any { return p.opts.Context }

// Counters returns a snapshot of the recoverable-condition counters.
func (p *Parser) Counters() Counters { return p.counters }

// CellCount returns the number of cells in the row currently assembled.
func (p *Parser) CellCount() int { return p.cellIndex }

// GetCell returns cell i of the current row, or the empty cell if i is
// out of range.
func (p *Parser) GetCell(i int) Cell {
	if i < 0 || i >= p.cellIndex {
		return emptyCell
	}
	return p.cells[i]
}

// RowIndex returns the number of raw rows consumed from the stream so
// far (including skipped and header rows). Before the first data row
// is delivered this equals SkipHead + HeaderSpan plus the number of
// leading blank rows skipped.
func (p *Parser) RowIndex() int64 { return p.rawRowIndex }

// CumulativeScannedBytes returns the monotonically increasing count of
// input bytes scanned so far, used by the chunker to know when a
// worker has covered its assigned byte range.
func (p *Parser) CumulativeScannedBytes() int64 { return p.cumulativeScannedBytes }

// Abort marks the parser cancelled; the next ParseMore call returns
// StatusCancelled after finishing any row already in progress.
func (p *Parser) Abort() { p.cancelled.Store(true) }

// SetFixedOffsets switches the parser to fixed-width mode: each row is
// split into cells of the given widths in order, with any remaining
// bytes past the last configured width forming one final cell. Quote
// handling is disabled in this mode. Matches spec.md §4.2.
func (p *Parser) SetFixedOffsets(offsets []int) {
	p.fixedOffsets = offsets
	p.opts.QuotesEnabled = false
}

// SetScanFilter installs a hook invoked with a copy-free view of every
// freshly read block, e.g. to tee an input copy during a first pass.
func (p *Parser) SetScanFilter(fn func(chunk []byte)) {
	p.scanFilter = fn
}

// ParseMore reads one block from the stream and runs the scanner,
// invoking RowHandler/CellHandler for each completed row. Re-entrant
// only via Abort.
func (p *Parser) ParseMore() (Status, error) {
	if p.finished {
		return StatusNoMoreInput, nil
	}
	if p.cancelled.Load() {
		return StatusCancelled, nil
	}
	if p.opts.Stream == nil {
		return StatusError, fmt.Errorf("parser: no input stream configured")
	}

	if p.syntheticHeaderPending {
		p.syntheticHeaderPending = false
		p.applyOverwrites(0)
		p.dispatch(false)
	}

	if p.pos >= p.bufLen {
		n, err := p.refillBlock()
		if err != nil {
			return StatusError, err
		}
		if n == 0 {
			p.streamEOF = true
			return StatusNoMoreInput, nil
		}
	}

	if p.fixedOffsets != nil {
		p.advanceFixed(false)
	} else {
		p.advance(false)
	}
	if p.cancelled.Load() {
		return StatusCancelled, nil
	}
	return StatusOK, nil
}

// NextRow runs the same refill-and-scan loop as ParseMore until one row
// has been assembled, then returns. It never invokes RowHandler; the
// caller reads the row via CellCount/GetCell.
func (p *Parser) NextRow() (Status, error) {
	if p.finished {
		return StatusNoMoreInput, nil
	}
	if p.cancelled.Load() {
		return StatusCancelled, nil
	}
	if p.opts.Stream == nil {
		return StatusError, fmt.Errorf("parser: no input stream configured")
	}

	if p.syntheticHeaderPending {
		p.syntheticHeaderPending = false
		p.applyOverwrites(0)
		return StatusRow, nil
	}
	// The row returned by the previous call is no longer needed.
	p.resetRow()

	for {
		if p.pos >= p.bufLen {
			n, err := p.refillBlock()
			if err != nil {
				return StatusError, err
			}
			if n == 0 {
				p.streamEOF = true
				// Pull mode has no separate point at which callers invoke
				// Finish; surface the trailing unterminated row (if any)
				// here, same as Finish does for push-mode callers.
				if p.flushTrailingRow(true) {
					p.finished = true
					return StatusRow, nil
				}
				p.finished = true
				return StatusNoMoreInput, nil
			}
		}

		var delivered bool
		if p.fixedOffsets != nil {
			delivered = p.advanceFixed(true)
		} else {
			delivered = p.advance(true)
		}
		if p.cancelled.Load() {
			return StatusCancelled, nil
		}
		if delivered {
			return StatusRow, nil
		}
		// buffer exhausted without completing a row; loop back to refill
	}
}

// Finish flushes a final unterminated row, if the stream ended without
// a trailing row terminator. In push mode this invokes RowHandler one
// last time; it is a no-op if there is nothing pending.
func (p *Parser) Finish() (Status, error) {
	if p.flushTrailingRow(false) {
		return StatusRow, nil
	}
	return StatusNoMoreInput, nil
}

// flushTrailingRow delivers the row currently in progress (if any bytes
// were scanned since rowStart) as a final, unterminated row. Returns
// true if a row was delivered.
func (p *Parser) flushTrailingRow(pullMode bool) bool {
	if p.pos <= p.rowStart && p.cellIndex == 0 {
		return false
	}
	if p.discarding {
		// the final row exceeded max_row_size and was never valid; do
		// not synthesize a delivery for it.
		return false
	}
	// Close out whatever field is in progress as the last cell.
	switch p.state {
	case stInUnquoted:
		p.emitCell(p.cellFieldBeg, p.pos, false)
	case stInQuoted:
		p.emitCell(p.quoteContentB, p.pos, true)
	case stQuoteSeen:
		p.emitCell(p.quoteContentB, p.quoteSeenAt, true)
	case stFieldStart:
		if p.cellIndex == 0 && p.pos == p.rowStart {
			return false
		}
	}
	p.rowStart = p.pos
	return p.completeRawRow(pullMode) == deliverResultDelivered
}

// refillBlock compacts the buffer (moving the unterminated row, if any,
// to the head) and reads one block from the stream. It returns the
// number of new bytes read (0 means clean EOF).
func (p *Parser) refillBlock() (int, error) {
	if p.discarding {
		// Nothing before the scan cursor is worth keeping while
		// resynchronizing after RowTooLarge.
		p.rowStart = p.pos
	}
	if p.rowStart > 0 {
		n := copy(p.buf, p.buf[p.rowStart:p.bufLen])
		// Re-point the cells already emitted for the moved row; a cell's
		// buffer offset is recovered from its remaining capacity.
		for i := 0; i < p.cellIndex; i++ {
			start := cap(p.buf) - cap(p.cells[i].Data) - p.rowStart
			p.cells[i].Data = p.buf[start : start+len(p.cells[i].Data)]
		}
		p.pos -= p.rowStart
		p.cellFieldBeg -= p.rowStart
		p.quoteContentB -= p.rowStart
		p.quoteSeenAt -= p.rowStart
		p.bufLen = n
		p.rowStart = 0
	}
	if p.bufLen >= len(p.buf) {
		// Buffer is full and the row in progress still hasn't
		// terminated: it exceeds max_row_size.
		p.handleRowTooLarge()
		if p.rowStart > 0 {
			// handleRowTooLarge reset rowStart = pos; compact again so
			// there is room to read into.
			n := copy(p.buf, p.buf[p.rowStart:p.bufLen])
			p.pos -= p.rowStart
			p.bufLen = n
			p.rowStart = 0
		}
	}

	n, err := p.opts.Stream.Read(p.buf[p.bufLen:])
	if n > 0 {
		if !p.bomChecked {
			p.bomChecked = true
			if n >= 3 && p.buf[p.bufLen] == 0xEF && p.buf[p.bufLen+1] == 0xBB && p.buf[p.bufLen+2] == 0xBF {
				copy(p.buf[p.bufLen:], p.buf[p.bufLen+3:p.bufLen+n])
				n -= 3
			}
		}
		if p.scanFilter != nil {
			p.scanFilter(p.buf[p.bufLen : p.bufLen+n])
		}
		p.bufLen += n
	}
	if err == io.EOF {
		return n, nil
	}
	return n, err
}

// handleRowTooLarge discards the row currently being assembled and
// switches into discard mode: spec.md §4.1 requires the scanner to
// advance past the next terminator to resynchronize, without ever
// delivering the oversized row.
func (p *Parser) handleRowTooLarge() {
	p.counters.RowTooLarge++
	p.discardRow()
}

// discardRow drops whatever has been scanned of the row in progress
// and enters discard mode, without touching any counter itself; the
// caller increments whichever counter matches the condition that
// triggered the discard.
func (p *Parser) discardRow() {
	p.discarding = true
	p.rowOverflowed = false
	p.cellIndex = 0
	p.state = stFieldStart
	p.rowStart = p.pos
}

// emitCell appends a cell spanning buf[start:end) to the row in
// progress, applying the malformed-UTF-8 replacement pass if
// configured, honoring the MaxColumns cap.
func (p *Parser) emitCell(start, end int, quoted bool) {
	if p.cellIndex >= p.opts.MaxColumns {
		if !p.rowOverflowed {
			p.rowOverflowed = true
			p.counters.CellOverflow++
		}
		return
	}
	data := p.buf[start:end]
	if p.opts.MalformedUTF8Replace != nil {
		p.replaceMalformedUTF8(data)
	}
	if p.cellIndex < len(p.cells) {
		p.cells[p.cellIndex] = Cell{Data: data, Quoted: quoted}
	} else {
		p.cells = append(p.cells, Cell{Data: data, Quoted: quoted})
	}
	idx := p.cellIndex
	p.cellIndex++
	if p.opts.CellHandler != nil {
		p.opts.CellHandler(p, idx)
	}
}

type deliverResult int

const (
	deliverResultSwallowed deliverResult = iota
	deliverResultDelivered
)

// completeRawRow runs the header-fold pipeline (spec.md §4.2) for the
// row the scanner just finished assembling, then dispatches it to the
// caller (push: RowHandler; pull: leave it in p.cells for the return
// from NextRow). Returns whether the row was actually surfaced to the
// caller (as opposed to silently consumed by skip-head/blank/header
// folding).
func (p *Parser) completeRawRow(pullMode bool) deliverResult {
	p.rawRowIndex++
	p.reportProgress()

	switch p.headerStage {
	case stageSkipHead:
		if p.headRowsSkipped < p.opts.SkipHead {
			p.headRowsSkipped++
			p.resetRow()
			return deliverResultSwallowed
		}
		p.headerStage = stageSkipBlank
		fallthrough
	case stageSkipBlank:
		if !p.opts.KeepBlankHeaderRows && p.rowIsBlank() {
			p.resetRow()
			return deliverResultSwallowed
		}
		p.headerStage = stageHeaderSpan
		fallthrough
	case stageHeaderSpan:
		if p.opts.InsertHeaderRow != nil {
			p.headerStage = stageData
			return p.deliverDataRow(pullMode)
		}
		if p.opts.HeaderSpan == HeaderSpanDisabled {
			// Header folding is explicitly off (a non-first parallel
			// chunk, see cliopts.ForWorkerChunk): this row is real data,
			// delivered as-is with Quoted preserved, not re-emitted
			// through emitMergedHeader's Cell{Data: ...} rebuild.
			p.headerStage = stageData
			return p.deliverDataRow(pullMode)
		}
		p.accumulateHeaderRow()
		p.headerRowsCollected++
		if int32(p.headerRowsCollected) < p.opts.HeaderSpan {
			p.resetRow()
			return deliverResultSwallowed
		}
		p.headerStage = stageData
		p.emitMergedHeader()
		p.applyOverwrites(0)
		p.dispatch(pullMode)
		return deliverResultDelivered
	default:
		return p.deliverDataRow(pullMode)
	}
}

func (p *Parser) deliverDataRow(pullMode bool) deliverResult {
	rowNum := p.dataRowIndex + 1 // row 0 is reserved for the header, per spec.md §6
	p.dataRowIndex++
	p.applyOverwrites(rowNum)
	p.dispatch(pullMode)
	return deliverResultDelivered
}

func (p *Parser) dispatch(pullMode bool) {
	if pullMode {
		// NextRow clears the row on its next call, after the caller read it.
		return
	}
	if p.opts.RowHandler != nil {
		p.opts.RowHandler(p)
	}
	p.resetRow()
}

// resetRow clears the assembled cells so the next raw row can be
// scanned into the same backing array.
func (p *Parser) resetRow() {
	p.cellIndex = 0
	p.rowOverflowed = false
}

func (p *Parser) rowIsBlank() bool {
	for i := 0; i < p.cellIndex; i++ {
		if len(p.cells[i].Data) > 0 {
			return false
		}
	}
	return true
}

func (p *Parser) accumulateHeaderRow() {
	for len(p.headerParts) < p.cellIndex {
		p.headerParts = append(p.headerParts, nil)
	}
	for i := 0; i < p.cellIndex; i++ {
		p.headerParts[i] = append(p.headerParts[i], string(p.cells[i].Data))
	}
	for i := p.cellIndex; i < len(p.headerParts); i++ {
		p.headerParts[i] = append(p.headerParts[i], "")
	}
	p.resetRow()
}

func (p *Parser) emitMergedHeader() {
	n := len(p.headerParts)
	if cap(p.cells) < n {
		p.cells = make([]Cell, n)
	} else {
		p.cells = p.cells[:n]
	}
	for i, parts := range p.headerParts {
		p.cells[i] = Cell{Data: []byte(joinHeaderParts(parts))}
	}
	p.cellIndex = n
}

func joinHeaderParts(parts []string) string {
	out := ""
	for i, s := range parts {
		if i > 0 {
			out += headerJoin
		}
		out += s
	}
	return out
}

// applyOverwrites substitutes cell values from the configured
// OverwriteIterator for the given (1-based data, or 0 for header) row
// number, consuming records up through rowNum and silently dropping any
// whose row has already passed, per spec.md §5's ordering guarantee.
func (p *Parser) applyOverwrites(rowNum int64) {
	it := p.opts.Overwrites
	if it == nil || p.overwriteExh {
		return
	}
	for {
		if !p.overwriteHasPeek {
			row, col, val, ok := it.Next()
			if !ok {
				p.overwriteExh = true
				return
			}
			p.peekRow, p.peekCol, p.peekVal = row, col, val
			p.overwriteHasPeek = true
		}
		if p.peekRow < rowNum {
			p.overwriteHasPeek = false
			continue
		}
		if p.peekRow > rowNum {
			return
		}
		if p.peekCol >= 0 && p.peekCol < p.cellIndex {
			p.cells[p.peekCol] = Cell{Data: p.peekVal, Overwritten: true}
		}
		p.overwriteHasPeek = false
	}
}

func (p *Parser) reportProgress() {
	if p.opts.Progress == nil || p.opts.ProgressEvery <= 0 {
		return
	}
	if p.cumulativeScannedBytes-p.lastProgressAt >= p.opts.ProgressEvery {
		p.lastProgressAt = p.cumulativeScannedBytes
		p.opts.Progress(p.cumulativeScannedBytes)
	}
}

func (p *Parser) replaceMalformedUTF8(data []byte) {
	replace := *p.opts.MalformedUTF8Replace
	for i := 0; i < len(data); {
		r, size := decodeRune(data[i:])
		if r == replacementRune && size == 1 {
			data[i] = replace
			p.counters.MalformedUTF8++
			i++
			continue
		}
		i += size
	}
}
