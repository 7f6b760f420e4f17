package parser

import "unicode/utf8"

// scanState is the byte-level state machine driving delimiter-mode
// scanning (spec.md §4.1): FieldStart / InUnquoted / InQuoted /
// QuoteSeen. Grounded on oleg578-swiftcsv's Reader, adapted from its
// string-accumulating model to the zero-copy span model Cell uses:
// instead of copying bytes into a growing buffer, each state only
// remembers the offset a field's payload began at, and a cell is
// materialized by slicing buf[start:end] once the field's true extent
// is known.
type scanState int

const (
	stFieldStart scanState = iota
	stInUnquoted
	stInQuoted
	stQuoteSeen
)

const replacementRune = utf8.RuneError

// advance scans buf[pos:bufLen] one byte at a time, delivering
// complete rows as it finds them. In pull mode it returns true as soon
// as one row has been delivered to the caller (header/skip rows don't
// count). In push mode it keeps going, delivering every row it finds,
// and returns false once the buffer is exhausted, or true if the
// parser was cancelled mid-row-handler.
func (p *Parser) advance(pullMode bool) bool {
	quotesOn := p.opts.QuotesEnabled
	sep := p.opts.Delimiter

	p.consumePendingCRLF()

	for p.pos < p.bufLen {
		b := p.buf[p.pos]

		if p.discarding {
			if b == '\r' || b == '\n' {
				p.consumeTerminator(b)
				p.discarding = false
				p.state = stFieldStart
				p.rowStart = p.pos
				continue
			}
			p.pos++
			continue
		}

		switch p.state {
		case stFieldStart:
			switch {
			case b == sep:
				p.emitCell(p.pos, p.pos, false)
				p.pos++
			case b == '\r' || b == '\n':
				p.emitCell(p.pos, p.pos, false)
				p.consumeTerminator(b)
				if p.finishRow(pullMode) {
					return true
				}
			case quotesOn && b == '"':
				p.quoteContentB = p.pos + 1
				p.state = stInQuoted
				p.pos++
			default:
				p.cellFieldBeg = p.pos
				p.state = stInUnquoted
				p.pos++
			}

		case stInUnquoted:
			switch {
			case b == sep:
				p.emitCell(p.cellFieldBeg, p.pos, false)
				p.state = stFieldStart
				p.pos++
			case b == '\r' || b == '\n':
				p.emitCell(p.cellFieldBeg, p.pos, false)
				p.consumeTerminator(b)
				p.state = stFieldStart
				if p.finishRow(pullMode) {
					return true
				}
			default:
				p.pos++
			}

		case stInQuoted:
			if b == '"' {
				p.quoteSeenAt = p.pos
				p.state = stQuoteSeen
			}
			p.pos++

		case stQuoteSeen:
			switch {
			case b == '"':
				// escaped quote pair: the payload already contains both
				// quote bytes since nothing has been cut; resume scanning
				// the quoted field.
				p.state = stInQuoted
				p.pos++
			case b == sep:
				p.emitCell(p.quoteContentB, p.quoteSeenAt, true)
				p.state = stFieldStart
				p.pos++
			case b == '\r' || b == '\n':
				p.emitCell(p.quoteContentB, p.quoteSeenAt, true)
				p.consumeTerminator(b)
				p.state = stFieldStart
				if p.finishRow(pullMode) {
					return true
				}
			default:
				// Stray quote not followed by quote/sep/terminator. Per
				// spec.md's open question, tolerant (non-strict) mode
				// keeps it as literal content and keeps scanning the
				// quoted field; strict mode discards the whole row and
				// resumes after the next terminator.
				p.counters.QuoteMisuse++
				if p.opts.StrictQuotes {
					p.discardRow() // resynchronize the same way: discard and seek the next terminator
					continue
				}
				p.state = stInQuoted
				p.pos++
			}
		}

		if p.rowTooLargeCheck() {
			continue
		}
	}
	return false
}

// consumePendingCRLF skips a lone '\n' at the very start of a freshly
// refilled buffer when the previous block ended in a bare '\r' whose
// CRLF partner hadn't been read yet (the pendingCR flag, set by
// consumeTerminator). Must run before any other scanning on a buffer
// that was just refilled.
func (p *Parser) consumePendingCRLF() {
	if !p.pendingCR {
		return
	}
	p.pendingCR = false
	if p.pos < p.bufLen && p.buf[p.pos] == '\n' {
		p.pos++
		p.rowStart = p.pos
	}
}

// consumeTerminator advances past a CR, LF, or CRLF pair starting at
// the current byte b (already at p.pos), handling the case where a CR
// lands at the very end of a block and its partner LF hasn't been read
// yet via the pendingCR flag, which survives refill.
func (p *Parser) consumeTerminator(b byte) {
	if b == '\r' {
		if p.pos+1 < p.bufLen {
			if p.buf[p.pos+1] == '\n' {
				p.pos += 2
				return
			}
			p.pos++
			return
		}
		p.pendingCR = true
		p.pos++
		return
	}
	if p.pendingCR {
		p.pendingCR = false
	}
	p.pos++
}

// rowTooLargeCheck returns true (and triggers handleRowTooLarge) when
// the row being assembled already exceeds MaxRowSize; the caller
// should `continue` its scan loop immediately after.
func (p *Parser) rowTooLargeCheck() bool {
	if p.pos-p.rowStart <= p.opts.MaxRowSize {
		return false
	}
	p.handleRowTooLarge()
	return true
}

// finishRow completes the raw row that just terminated at p.pos,
// running it through the header/skip/overwrite pipeline, and reports
// whether it was delivered to a pull-mode caller (signaling advance to
// stop and return).
func (p *Parser) finishRow(pullMode bool) bool {
	p.cumulativeScannedBytes += int64(p.pos - p.rowStart)
	p.rowStart = p.pos
	result := p.completeRawRow(pullMode)
	if p.cancelled.Load() {
		return true
	}
	return pullMode && result == deliverResultDelivered
}

// decodeRune wraps utf8.DecodeRune, exposed as a package-level function
// so parser.go's replaceMalformedUTF8 doesn't need a second import of
// unicode/utf8 duplicated across files.
func decodeRune(b []byte) (rune, int) {
	return utf8.DecodeRune(b)
}
