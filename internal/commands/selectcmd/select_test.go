package selectcmd

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/csvtoolkit/zsv/internal/overwrite"
)

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "select-*.csv")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	f.WriteString(content)
	return f.Name()
}

// TestSelectColumnsByName exercises spec.md §8 scenario 1: `select --
// a c` on a three-column, one-data-row file outputs just those two
// columns.
func TestSelectColumnsByName(t *testing.T) {
	path := writeTempCSV(t, "a,b,c\n1,2,3\n")
	var stdout, stderr bytes.Buffer
	code := Run([]string{path, "--", "a", "c"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit %d, stderr: %s", code, stderr.String())
	}
	want := "a,c\n1,3\n"
	if got := stdout.String(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSelectColumnsByIndexRange(t *testing.T) {
	path := writeTempCSV(t, "a,b,c,d\n1,2,3,4\n")
	var stdout, stderr bytes.Buffer
	code := Run([]string{path, "--", "2-3"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit %d, stderr: %s", code, stderr.String())
	}
	want := "b,c\n2,3\n"
	if got := stdout.String(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSelectExclude(t *testing.T) {
	path := writeTempCSV(t, "a,b,c\n1,2,3\n")
	var stdout, stderr bytes.Buffer
	code := Run([]string{"-x", "b", path}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit %d, stderr: %s", code, stderr.String())
	}
	want := "a,c\n1,3\n"
	if got := stdout.String(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSelectHeadLimit(t *testing.T) {
	path := writeTempCSV(t, "a,b\n1,2\n3,4\n5,6\n")
	var stdout, stderr bytes.Buffer
	code := Run([]string{"-head", "1", path}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit %d, stderr: %s", code, stderr.String())
	}
	if got := stdout.String(); got != "a,b\n1,2\n" {
		t.Fatalf("got %q", got)
	}
}

func TestSelectSubstringFilter(t *testing.T) {
	path := writeTempCSV(t, "a,b\nfoo,1\nbar,2\nfoobar,3\n")
	var stdout, stderr bytes.Buffer
	code := Run([]string{"-search", "foo", path}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit %d, stderr: %s", code, stderr.String())
	}
	got := stdout.String()
	if !strings.Contains(got, "foo,1") || !strings.Contains(got, "foobar,3") || strings.Contains(got, "bar,2\n") {
		t.Fatalf("got %q", got)
	}
}

// TestSelectAppliesOverwriteSidecar is a regression test for the
// overwrite sidecar being built and tested in isolation but never
// reachable from any command: with a MapStore sidecar present next to
// the input file, `select` must substitute the overwritten cell value.
func TestSelectAppliesOverwriteSidecar(t *testing.T) {
	path := writeTempCSV(t, "a,b\n1,2\n3,4\n")

	store, err := overwrite.LoadMapStore(path)
	if err != nil {
		t.Fatalf("LoadMapStore: %v", err)
	}
	store.Set(2, 1, []byte("replaced"))
	if err := store.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var stdout, stderr bytes.Buffer
	if code := Run([]string{path}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit %d: %s", code, stderr.String())
	}
	want := "a,b\n1,2\n3,replaced\n"
	if got := stdout.String(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSelectParallelMatchesSerial(t *testing.T) {
	var b strings.Builder
	b.WriteString("a,b\n")
	for i := 0; i < 500; i++ {
		b.WriteString("x,y\n")
	}
	path := writeTempCSV(t, b.String())

	var serialOut, parallelOut, stderr bytes.Buffer
	if code := Run([]string{path}, &serialOut, &stderr); code != 0 {
		t.Fatalf("serial exit %d: %s", code, stderr.String())
	}
	stderr.Reset()
	if code := Run([]string{"-jobs", "4", path}, &parallelOut, &stderr); code != 0 {
		t.Fatalf("parallel exit %d: %s", code, stderr.String())
	}
	if serialOut.String() != parallelOut.String() {
		t.Fatalf("serial %q != parallel %q", serialOut.String(), parallelOut.String())
	}
}
