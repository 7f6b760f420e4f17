package cliopts

import (
	"flag"
	"path/filepath"
	"testing"

	"github.com/csvtoolkit/zsv/internal/overwrite"
	"github.com/csvtoolkit/zsv/internal/parser"
	"github.com/csvtoolkit/zsv/internal/propstore"
)

func TestBuildDefaultsWhenNothingSet(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	flags := Register(fs)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	opts, err := Build(fs, flags, filepath.Join(t.TempDir(), "data.csv"))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if opts.Delimiter != ',' {
		t.Fatalf("Delimiter = %q, want ','", opts.Delimiter)
	}
	if opts.HeaderSpan != 1 {
		t.Fatalf("HeaderSpan = %d, want 1 (default)", opts.HeaderSpan)
	}
}

func TestBuildCLIFlagsOverridePersisted(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "data.csv")

	store, err := propstore.Load(csvPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	store.SetHeaderSpan(3)
	if err := store.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	flags := Register(fs)
	if err := fs.Parse([]string{"-d", "5", "-t"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	opts, err := Build(fs, flags, csvPath)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if opts.HeaderSpan != 5 {
		t.Fatalf("HeaderSpan = %d, want CLI override 5", opts.HeaderSpan)
	}
	if opts.Delimiter != '\t' {
		t.Fatalf("Delimiter = %q, want tab", opts.Delimiter)
	}
}

func TestBuildPersistedWinsOverDefaultWhenCLINotSet(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "data.csv")

	store, err := propstore.Load(csvPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	store.SetSkipHead(2)
	if err := store.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	flags := Register(fs)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	opts, err := Build(fs, flags, csvPath)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if opts.SkipHead != 2 {
		t.Fatalf("SkipHead = %d, want persisted 2", opts.SkipHead)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	flags := Register(fs)
	if err := fs.Parse([]string{"-O", ";", "-c", "16"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	opts, err := Build(fs, flags, filepath.Join(t.TempDir(), "data.csv"))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	encoded := Encode(opts)
	decoded := Decode(encoded)
	if decoded.Delimiter != opts.Delimiter {
		t.Fatalf("decoded delimiter = %q, want %q", decoded.Delimiter, opts.Delimiter)
	}
	if decoded.MaxColumns != opts.MaxColumns {
		t.Fatalf("decoded MaxColumns = %d, want %d", decoded.MaxColumns, opts.MaxColumns)
	}
}

func TestBuildAttachesOverwriteSidecarWhenPresent(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "data.csv")

	store, err := overwrite.LoadMapStore(csvPath)
	if err != nil {
		t.Fatalf("LoadMapStore: %v", err)
	}
	store.Set(1, 0, []byte("Alice"))
	if err := store.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	flags := Register(fs)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	opts, err := Build(fs, flags, csvPath)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if opts.Overwrites == nil {
		t.Fatal("expected Build to attach the existing overwrite sidecar")
	}
	row, col, value, ok := opts.Overwrites.Next()
	if !ok || row != 1 || col != 0 || string(value) != "Alice" {
		t.Fatalf("Overwrites.Next() = (%d, %d, %q, %v), want (1, 0, \"Alice\", true)", row, col, value, ok)
	}
}

func TestBuildLeavesOverwritesNilWhenNoSidecar(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	flags := Register(fs)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	opts, err := Build(fs, flags, filepath.Join(t.TempDir(), "data.csv"))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if opts.Overwrites != nil {
		t.Fatal("expected no Overwrites when no sidecar exists")
	}
}

func TestForWorkerChunkDisablesHeaderFoldingExceptFirst(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	flags := Register(fs)
	if err := fs.Parse([]string{"-d", "2", "-R", "1"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	opts, err := Build(fs, flags, filepath.Join(t.TempDir(), "data.csv"))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	first := ForWorkerChunk(opts, 0)
	if first.HeaderSpan != 2 || first.SkipHead != 1 {
		t.Fatalf("chunk 0 should keep header folding, got %+v", first)
	}

	other := ForWorkerChunk(opts, 3)
	if other.HeaderSpan != parser.HeaderSpanDisabled || other.SkipHead != 0 {
		t.Fatalf("chunk 3 should disable header folding, got %+v", other)
	}
}
