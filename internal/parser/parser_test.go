package parser

import (
	"strings"
	"testing"
)

func cellStrings(p *Parser) []string {
	out := make([]string, p.CellCount())
	for i := range out {
		out[i] = string(p.GetCell(i).Data)
	}
	return out
}

func collectRows(t *testing.T, input string, configure func(*Options)) [][]string {
	t.Helper()
	opts := DefaultOptions()
	opts.Stream = strings.NewReader(input)
	if configure != nil {
		configure(&opts)
	}
	p, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var rows [][]string
	for {
		status, err := p.NextRow()
		if err != nil {
			t.Fatalf("NextRow: %v", err)
		}
		if status == StatusNoMoreInput {
			break
		}
		if status != StatusRow {
			t.Fatalf("unexpected status %s", status)
		}
		rows = append(rows, cellStrings(p))
	}
	return rows
}

func TestBasicRows(t *testing.T) {
	rows := collectRows(t, "a,b,c\n1,2,3\n", nil)
	want := [][]string{{"a", "b", "c"}, {"1", "2", "3"}}
	assertRows(t, rows, want)
}

func TestQuotedFieldWithEmbeddedNewline(t *testing.T) {
	rows := collectRows(t, "a,\"line1\nline2\",c\n", nil)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0][1] != "line1\nline2" {
		t.Fatalf("cell 1 = %q", rows[0][1])
	}
}

func TestEscapedQuotesLeftDoubled(t *testing.T) {
	rows := collectRows(t, `4,"he said ""hi""",5`+"\n", nil)
	if rows[0][1] != `he said ""hi""` {
		t.Fatalf("expected doubled quotes preserved, got %q", rows[0][1])
	}
	if got := string(Unescape([]byte(rows[0][1]))); got != `he said "hi"` {
		t.Fatalf("Unescape: got %q", got)
	}
}

func TestNoTrailingNewlineFlushesFinalRow(t *testing.T) {
	rows := collectRows(t, "a,b\nc,d", nil)
	want := [][]string{{"a", "b"}, {"c", "d"}}
	assertRows(t, rows, want)
}

func TestCRLFTerminators(t *testing.T) {
	rows := collectRows(t, "a,b\r\nc,d\r\n", nil)
	want := [][]string{{"a", "b"}, {"c", "d"}}
	assertRows(t, rows, want)
}

func TestCRLFSplitAcrossRefillBoundary(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxRowSize = MinMaxRowSize
	opts.BufferSize = MinMaxRowSize
	input := strings.Repeat("x", MinMaxRowSize-1) + "\r\nnext\n"
	opts.Stream = strings.NewReader(input)
	p, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	status, err := p.NextRow()
	if err != nil || status != StatusRow {
		t.Fatalf("first row: status=%v err=%v", status, err)
	}
	status, err = p.NextRow()
	if err != nil || status != StatusRow {
		t.Fatalf("second row: status=%v err=%v", status, err)
	}
	if got := cellStrings(p); len(got) != 1 || got[0] != "next" {
		t.Fatalf("second row cells = %v", got)
	}
}

func TestHeaderSpanFolding(t *testing.T) {
	rows := collectRows(t, "id,name\n#,x\n1,alice\n", func(o *Options) {
		o.HeaderSpan = 2
	})
	if len(rows) != 2 {
		t.Fatalf("expected header + 1 data row, got %d", len(rows))
	}
	if rows[0][0] != "id;#" || rows[0][1] != "name;x" {
		t.Fatalf("folded header = %v", rows[0])
	}
	if rows[1][0] != "1" || rows[1][1] != "alice" {
		t.Fatalf("data row = %v", rows[1])
	}
}

func TestHeaderSpanDisabledDeliversFirstRowAsDataWithQuotedPreserved(t *testing.T) {
	// Regression test for a non-first parallel chunk: its first row must
	// be delivered as ordinary data, not re-folded through
	// emitMergedHeader (which rebuilds Cell{Data: ...} and drops Quoted).
	opts := DefaultOptions()
	opts.HeaderSpan = HeaderSpanDisabled
	opts.Stream = strings.NewReader(`"plain",2` + "\n")
	p, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	status, err := p.NextRow()
	if err != nil || status != StatusRow {
		t.Fatalf("NextRow: status=%v err=%v", status, err)
	}
	if got := cellStrings(p); len(got) != 2 || got[0] != "plain" || got[1] != "2" {
		t.Fatalf("row = %v", got)
	}
	if !p.GetCell(0).Quoted {
		t.Fatal("expected cell 0's Quoted flag preserved, not rebuilt by emitMergedHeader")
	}
}

func TestSkipHeadAndBlankRows(t *testing.T) {
	rows := collectRows(t, "preamble\n\nid,name\n1,alice\n", func(o *Options) {
		o.SkipHead = 1
	})
	want := [][]string{{"id", "name"}, {"1", "alice"}}
	assertRows(t, rows, want)
}

func TestInsertHeaderRow(t *testing.T) {
	rows := collectRows(t, "1,alice\n2,bob\n", func(o *Options) {
		o.InsertHeaderRow = []byte("id,name")
	})
	want := [][]string{{"id", "name"}, {"1", "alice"}, {"2", "bob"}}
	assertRows(t, rows, want)
}

func TestMaxColumnsOverflowDropsExtraCells(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxColumns = MinMaxColumns
	opts.Stream = strings.NewReader("1,2,3,4,5,6,7,8,9,10\n")
	p, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	status, err := p.NextRow()
	if err != nil || status != StatusRow {
		t.Fatalf("NextRow: status=%v err=%v", status, err)
	}
	if p.CellCount() != MinMaxColumns {
		t.Fatalf("CellCount = %d, want %d", p.CellCount(), MinMaxColumns)
	}
	if p.Counters().CellOverflow != 1 {
		t.Fatalf("CellOverflow = %d, want 1", p.Counters().CellOverflow)
	}
}

func TestRowTooLargeDiscardsAndResyncs(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxRowSize = MinMaxRowSize
	opts.BufferSize = MinMaxRowSize
	huge := strings.Repeat("x", MinMaxRowSize+100)
	opts.Stream = strings.NewReader(huge + "\ngood,row\n")
	p, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	status, err := p.NextRow()
	if err != nil {
		t.Fatalf("NextRow: %v", err)
	}
	if status != StatusRow {
		t.Fatalf("expected the oversized row to be skipped and the good row delivered, got %s", status)
	}
	if got := cellStrings(p); len(got) != 2 || got[0] != "good" || got[1] != "row" {
		t.Fatalf("recovered row = %v", got)
	}
	if p.Counters().RowTooLarge == 0 {
		t.Fatal("expected RowTooLarge counter to be incremented")
	}
}

func TestToleranceForStrayQuote(t *testing.T) {
	// The closing quote of the first field is immediately followed by
	// 'c' (neither a quote, the delimiter, nor a terminator); tolerant
	// mode keeps scanning the same quoted field instead of failing.
	opts := DefaultOptions()
	opts.Stream = strings.NewReader(`"ab"cd,e` + "\n")
	p, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	status, err := p.NextRow()
	if err != nil {
		t.Fatalf("NextRow: %v", err)
	}
	if status != StatusRow {
		t.Fatalf("expected a row to be delivered, got %s", status)
	}
	if p.Counters().QuoteMisuse == 0 {
		t.Fatal("expected QuoteMisuse to be counted")
	}
}

func TestStrictQuotesDiscardsRow(t *testing.T) {
	opts := DefaultOptions()
	opts.StrictQuotes = true
	opts.Stream = strings.NewReader(`"ab"cd,e` + "\n" + "good,row\n")
	p, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	status, err := p.NextRow()
	if err != nil || status != StatusRow {
		t.Fatalf("NextRow: status=%v err=%v", status, err)
	}
	if got := cellStrings(p); len(got) != 2 || got[0] != "good" || got[1] != "row" {
		t.Fatalf("expected the malformed row discarded and the next row delivered, got %v", got)
	}
}

func TestFixedWidthParsing(t *testing.T) {
	opts := DefaultOptions()
	opts.Stream = strings.NewReader("ab cde\nfg hij\n")
	p, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p.SetFixedOffsets([]int{3, 3})
	status, err := p.NextRow()
	if err != nil || status != StatusRow {
		t.Fatalf("NextRow: status=%v err=%v", status, err)
	}
	if got := cellStrings(p); got[0] != "ab" || got[1] != "cde" {
		t.Fatalf("fixed row = %v, want trailing whitespace trimmed per cell", got)
	}
}

func assertRows(t *testing.T, got, want [][]string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("row count = %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if len(got[i]) != len(want[i]) {
			t.Fatalf("row %d cell count = %d, want %d", i, len(got[i]), len(want[i]))
		}
		for j := range want[i] {
			if got[i][j] != want[i][j] {
				t.Fatalf("row %d cell %d = %q, want %q", i, j, got[i][j], want[i][j])
			}
		}
	}
}
