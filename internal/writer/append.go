package writer

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
)

// AppendConfig mirrors entreya-csvquery's WriterConfig: the output
// path and the single-byte field delimiter to write with.
type AppendConfig struct {
	Path      string
	Delimiter byte
}

// AppendFile appends rows to Path, creating the file (with header, if
// provided) when it doesn't already exist, and validating the
// existing header otherwise. Grounded on
// entreya-csvquery/go/internal/writer.CsvWriter.Write: open
// O_APPEND|O_CREATE|O_RDWR, take an exclusive file lock for the
// duration, seek-and-read to validate headers on a non-empty file
// (O_APPEND still forces writes to land at EOF), then append.
func AppendFile(cfg AppendConfig, header []string, rows [][]byte) error {
	if cfg.Delimiter == 0 {
		cfg.Delimiter = ','
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return fmt.Errorf("writer: creating directory: %w", err)
	}

	f, err := os.OpenFile(cfg.Path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("writer: opening %s: %w", cfg.Path, err)
	}
	defer f.Close()

	if err := lockFile(f); err != nil {
		return fmt.Errorf("writer: locking %s: %w", cfg.Path, err)
	}
	defer unlockFile(f)

	stat, err := f.Stat()
	if err != nil {
		return err
	}

	if stat.Size() == 0 {
		if len(header) == 0 {
			return fmt.Errorf("writer: cannot create %s without a header", cfg.Path)
		}
		if err := writeHeaderLine(f, header, cfg.Delimiter); err != nil {
			return err
		}
	} else if len(header) > 0 {
		if _, err := f.Seek(0, 0); err != nil {
			return fmt.Errorf("writer: seeking: %w", err)
		}
		existing, err := readFirstLine(f)
		if err != nil {
			return fmt.Errorf("writer: reading existing header: %w", err)
		}
		want := bytes.Join(mapToBytes(header), []byte{cfg.Delimiter})
		if !bytes.Equal(existing, want) {
			return fmt.Errorf("writer: header mismatch: file has %q, new data has %q", existing, want)
		}
	}

	for _, row := range rows {
		if _, err := f.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func writeHeaderLine(f *os.File, header []string, delimiter byte) error {
	w := New(f, Config{Delimiter: delimiter})
	for i, h := range header {
		if err := w.WriteCell(i == 0, []byte(h), false); err != nil {
			return err
		}
	}
	if err := w.EndRow(); err != nil {
		return err
	}
	return w.Flush()
}

func readFirstLine(f *os.File) ([]byte, error) {
	r := bufio.NewReader(f)
	line, err := r.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return nil, err
	}
	return bytes.TrimRight(line, "\r\n"), nil
}

func mapToBytes(ss []string) [][]byte {
	out := make([][]byte, len(ss))
	for i, s := range ss {
		out[i] = []byte(s)
	}
	return out
}
