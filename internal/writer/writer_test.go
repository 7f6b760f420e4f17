package writer

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteCellQuotesWhenNeeded(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf, Config{})
	w.WriteCell(true, []byte("a,b"), false)
	w.WriteCell(false, []byte("plain"), false)
	w.WriteCell(true, []byte("next"), false)
	w.EndRow()
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	want := "\"a,b\",plain\nnext\n"
	if buf.String() != want {
		t.Fatalf("got %q, want %q", buf.String(), want)
	}
}

func TestWriteCellEscapesEmbeddedQuotes(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf, Config{})
	w.WriteCell(true, []byte(`he said "hi"`), false)
	w.EndRow()
	w.Flush()
	want := `"he said ""hi"""` + "\n"
	if buf.String() != want {
		t.Fatalf("got %q, want %q", buf.String(), want)
	}
}

func TestWriteCellForcedQuoted(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf, Config{})
	w.WriteCell(true, []byte("plain"), true)
	w.EndRow()
	w.Flush()
	if buf.String() != "\"plain\"\n" {
		t.Fatalf("got %q", buf.String())
	}
}

func TestWriteCellAlwaysQuote(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf, Config{AlwaysQuote: true})
	w.WriteCell(true, []byte("x"), false)
	w.WriteCellNumeric(false, 42)
	w.EndRow()
	w.Flush()
	if buf.String() != "\"x\",42\n" {
		t.Fatalf("got %q", buf.String())
	}
}

func TestCellPrependAffectsOnlyNextCell(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf, Config{})
	w.CellPrepend("pre-")
	w.WriteCell(true, []byte("a"), false)
	w.WriteCell(false, []byte("b"), false)
	w.EndRow()
	w.Flush()
	if buf.String() != "pre-a,b\n" {
		t.Fatalf("got %q", buf.String())
	}
}

func TestWriteBOM(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf, Config{WriteBOM: true})
	w.WriteCell(true, []byte("a"), false)
	w.EndRow()
	w.Flush()
	if !bytes.HasPrefix(buf.Bytes(), []byte{0xEF, 0xBB, 0xBF}) {
		t.Fatalf("expected BOM prefix, got %v", buf.Bytes()[:3])
	}
}

func TestAppendFileCreatesWithHeaderThenAppends(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")

	if err := AppendFile(AppendConfig{Path: path}, []string{"id", "name"}, [][]byte{[]byte("1,alice\n")}); err != nil {
		t.Fatalf("AppendFile (create): %v", err)
	}
	if err := AppendFile(AppendConfig{Path: path}, []string{"id", "name"}, [][]byte{[]byte("2,bob\n")}); err != nil {
		t.Fatalf("AppendFile (append): %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading result: %v", err)
	}
	want := "id,name\n1,alice\n2,bob\n"
	if string(data) != want {
		t.Fatalf("got %q, want %q", data, want)
	}
}

func TestAppendFileRejectsHeaderMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")
	if err := AppendFile(AppendConfig{Path: path}, []string{"id", "name"}, nil); err != nil {
		t.Fatalf("AppendFile (create): %v", err)
	}
	err := AppendFile(AppendConfig{Path: path}, []string{"id", "other"}, [][]byte{[]byte("1,x\n")})
	if err == nil {
		t.Fatal("expected header mismatch error")
	}
}
