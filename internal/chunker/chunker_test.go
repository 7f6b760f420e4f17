package chunker

import (
	"bytes"
	"fmt"
	"math/rand"
	"strings"
	"testing"
)

func buildCSV(rows int) []byte {
	var buf bytes.Buffer
	for i := 0; i < rows; i++ {
		if i%7 == 0 {
			fmt.Fprintf(&buf, "%d,\"multi\nline,%d\",x\n", i, i)
		} else {
			fmt.Fprintf(&buf, "%d,plain%d,y\n", i, i)
		}
	}
	return buf.Bytes()
}

func TestComputeChunksCoverWholeFileWithoutGaps(t *testing.T) {
	data := buildCSV(500)
	chunks := ComputeChunks(data, 6)
	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}
	if err := ValidateChunks(chunks, len(data)); err != nil {
		t.Fatalf("ValidateChunks: %v", err)
	}
}

func TestComputeChunksNeverSplitInsideQuotedField(t *testing.T) {
	data := buildCSV(500)
	chunks := ComputeChunks(data, 8)
	for _, c := range chunks {
		if c.Start == 0 {
			continue
		}
		// The byte immediately before a chunk boundary must be '\n',
		// and the boundary itself must not fall strictly inside an
		// odd-quote-count line (i.e. the line beginning at Start must
		// be independently parseable).
		if data[c.Start-1] != '\n' {
			t.Fatalf("chunk at %d does not start right after a newline", c.Start)
		}
		if !isRealRowStart(data, c.Start) {
			t.Fatalf("chunk at %d starts inside a quoted field", c.Start)
		}
	}
}

func TestComputeChunksSingleRowSmallerThanChunkCount(t *testing.T) {
	data := []byte("a,b,c\n")
	chunks := ComputeChunks(data, 8)
	if err := ValidateChunks(chunks, len(data)); err != nil {
		t.Fatalf("ValidateChunks: %v", err)
	}
}

func TestComputeChunksEmptyData(t *testing.T) {
	chunks := ComputeChunks(nil, 4)
	if chunks != nil {
		t.Fatalf("expected no chunks for empty data, got %v", chunks)
	}
}

func TestFindSafeBoundaryFuzzQuoteParity(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for trial := 0; trial < 200; trial++ {
		rows := 5 + r.Intn(50)
		var b strings.Builder
		for i := 0; i < rows; i++ {
			switch r.Intn(3) {
			case 0:
				fmt.Fprintf(&b, "%d,plain,z\n", i)
			case 1:
				fmt.Fprintf(&b, "%d,\"quoted value\",z\n", i)
			case 2:
				fmt.Fprintf(&b, "%d,\"multi\nline value\",z\n", i)
			}
		}
		data := []byte(b.String())
		if len(data) == 0 {
			continue
		}
		hint := r.Intn(len(data))
		boundary := findSafeBoundary(data, 0, hint)
		if boundary > len(data) {
			t.Fatalf("boundary %d exceeds data length %d", boundary, len(data))
		}
		if boundary == len(data) {
			continue
		}
		if boundary > 0 && data[boundary-1] != '\n' {
			t.Fatalf("boundary %d not right after a newline (hint=%d)", boundary, hint)
		}
		if !isRealRowStart(data, boundary) {
			t.Fatalf("boundary %d (hint=%d) falls inside a quoted field", boundary, hint)
		}
	}
}

// isRealRowStart reports whether offset is not inside a quoted field,
// by counting quote parity from the start of data up to offset —
// an independent ground truth the fuzz test checks findSafeBoundary
// against.
func isRealRowStart(data []byte, offset int) bool {
	quotes := 0
	for _, b := range data[:offset] {
		if b == '"' {
			quotes++
		}
	}
	return quotes%2 == 0
}

// TestFindSafeBoundaryMultiLineQuotedField is a regression test for a
// boundary search that only checked the single line right after a
// candidate newline: with a field spanning two embedded newlines, the
// line immediately following the first embedded newline ("second")
// has an even (zero) quote count on its own, but is still inside the
// still-open quoted field started on the row before it.
func TestFindSafeBoundaryMultiLineQuotedField(t *testing.T) {
	data := []byte("0,\"first\nsecond\nthird\",x\n1,plain1,y\n")
	hint := bytes.IndexByte(data, '\n') + 1 // lands at the start of "second"
	boundary := findSafeBoundary(data, 0, hint)
	want := bytes.Index(data, []byte("1,plain1,y"))
	if boundary != want {
		t.Fatalf("boundary = %d, want %d (start of the real next row)", boundary, want)
	}
}

func TestIsAmbiguousPrefix(t *testing.T) {
	unambiguous := []byte(`1,"ok",2` + "\n")
	if IsAmbiguousPrefix(unambiguous) {
		t.Fatal("expected unambiguous prefix")
	}
	noQuotes := []byte("1,2,3\n")
	if IsAmbiguousPrefix(noQuotes) {
		t.Fatal("prefix with no quotes is never ambiguous")
	}
}

func BenchmarkComputeChunks(b *testing.B) {
	data := buildCSV(20000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ComputeChunks(data, 8)
	}
}
