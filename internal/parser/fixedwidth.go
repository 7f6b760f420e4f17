package parser

import "bytes"

// advanceFixed splits buf[pos:bufLen] into lines at CR/LF boundaries
// and carves each line into cells at the configured fixed offsets.
// Fixed-width mode never looks at quote bytes; the line terminator is
// the only structural byte that matters.
func (p *Parser) advanceFixed(pullMode bool) bool {
	p.consumePendingCRLF()

	for p.pos < p.bufLen {
		rel := bytes.IndexAny(p.buf[p.pos:p.bufLen], "\r\n")
		if rel < 0 {
			p.pos = p.bufLen
			if p.rowTooLargeCheck() {
				continue
			}
			return false
		}
		lineEnd := p.pos + rel
		p.splitFixedLine(p.rowStart, lineEnd)
		p.pos = lineEnd
		p.consumeTerminator(p.buf[p.pos])
		if p.finishRow(pullMode) {
			return true
		}
	}
	return false
}

// splitFixedLine carves buf[lineStart:lineEnd] into cells at the
// configured offsets; the final cell runs to lineEnd regardless of the
// last configured offset. Per spec.md §4.1, trailing whitespace within
// each fixed-width cell is trimmed before the cell is emitted (the
// column still occupies its full configured width in the source line;
// only the delivered cell value drops the padding).
func (p *Parser) splitFixedLine(lineStart, lineEnd int) {
	start := lineStart
	for _, width := range p.fixedOffsets {
		end := start + width
		if end > lineEnd {
			end = lineEnd
		}
		p.emitCell(start, trimTrailingSpace(p.buf, start, end), false)
		start = end
	}
	if start < lineEnd {
		p.emitCell(start, trimTrailingSpace(p.buf, start, lineEnd), false)
	}
}

// trimTrailingSpace returns the largest end' <= end such that
// buf[start:end'] has no trailing space or tab byte.
func trimTrailingSpace(buf []byte, start, end int) int {
	for end > start && (buf[end-1] == ' ' || buf[end-1] == '\t') {
		end--
	}
	return end
}

// DetectFixedOffsets infers column boundaries from sample (typically
// Options.FixedAutoDetectBytes worth, read ahead of time by the
// caller): a column boundary is any byte offset that holds a space
// in every non-empty sampled line, a single such column being enough.
// It returns the widths of the runs between boundaries; the boundary
// columns themselves are not counted in any width.
func DetectFixedOffsets(sample []byte) []int {
	lines := bytes.Split(sample, []byte("\n"))
	width := 0
	for _, line := range lines {
		line = bytes.TrimRight(line, "\r")
		if len(line) > width {
			width = len(line)
		}
	}
	if width == 0 {
		return nil
	}
	isSpaceCol := make([]bool, width)
	for i := range isSpaceCol {
		isSpaceCol[i] = true
	}
	sampled := 0
	for _, line := range lines {
		line = bytes.TrimRight(line, "\r")
		if len(line) == 0 {
			continue
		}
		sampled++
		for i := 0; i < width; i++ {
			if i >= len(line) || line[i] != ' ' {
				isSpaceCol[i] = false
			}
		}
	}
	if sampled == 0 {
		return nil
	}

	var offsets []int
	colStart := 0
	for i := 0; i < width; i++ {
		if isSpaceCol[i] {
			if i > colStart {
				offsets = append(offsets, i-colStart)
			}
			colStart = i + 1
		}
	}
	if colStart < width {
		offsets = append(offsets, width-colStart)
	}
	return offsets
}
