package overwrite

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/csvtoolkit/zsv/internal/parser"
)

// Store is satisfied by both overwrite backends (the small in-memory
// map store and the external sorted store): Iterator produces records
// in ascending (row, col) order, as parser.OverwriteIterator requires.
type Store interface {
	Iterator() parser.OverwriteIterator
	Set(row uint64, col uint32, value []byte)
	Save() error
}

// MapStore holds overwrites entirely in memory, backed by a JSON
// sidecar file. Grounded on updatemgr.UpdateManager, adapted from its
// string-keyed LineNumber->Column->Value map to the (row, col) key
// pair spec.md's OverwriteRecord model uses; this is the backend the
// interactive `overwrite` command uses, where the edit set is small
// enough to hold comfortably in memory.
type MapStore struct {
	path string
	mu   sync.RWMutex
	// rows maps row -> col -> value, mirroring UpdateManager's
	// two-level map shape.
	rows map[uint64]map[uint32][]byte
}

// jsonDoc is the on-disk shape of the sidecar, with string keys since JSON
// object keys must be strings and []byte wants an explicit encoding
// rather than relying on json's default base64 (kept here so the
// sidecar stays human-editable, matching updatemgr's plain-string
// values).
type jsonDoc struct {
	// Rows maps the decimal row number to a map of decimal column
	// number to the replacement value, e.g. {"3": {"1": "Alice"}}.
	Rows map[string]map[string]string `json:"rows"`
}

// sidecarPath mirrors updatemgr's <csvPath>_updates.json naming.
func sidecarPath(csvPath string) string {
	abs, err := filepath.Abs(csvPath)
	if err != nil {
		abs = csvPath
	}
	return abs + "_updates.json"
}

// LoadMapStore loads the sidecar for csvPath, if any. A missing
// sidecar is not an error; it yields an empty store.
func LoadMapStore(csvPath string) (*MapStore, error) {
	s := &MapStore{
		path: sidecarPath(csvPath),
		rows: make(map[uint64]map[uint32][]byte),
	}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("overwrite: reading %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return s, nil
	}

	var doc jsonDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("overwrite: parsing %s: %w", s.path, err)
	}
	for rowKey, cols := range doc.Rows {
		var row uint64
		if _, err := fmt.Sscanf(rowKey, "%d", &row); err != nil {
			continue
		}
		m := make(map[uint32][]byte, len(cols))
		for colKey, value := range cols {
			var col uint32
			if _, err := fmt.Sscanf(colKey, "%d", &col); err != nil {
				continue
			}
			m[col] = []byte(value)
		}
		s.rows[row] = m
	}
	return s, nil
}

// Set records (or replaces) the overwrite for (row, col).
func (s *MapStore) Set(row uint64, col uint32, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[row]
	if !ok {
		m = make(map[uint32][]byte)
		s.rows[row] = m
	}
	m[col] = value
}

// Get returns the overwrite value for (row, col), if any.
func (s *MapStore) Get(row uint64, col uint32) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.rows[row]
	if !ok {
		return nil, false
	}
	v, ok := m[col]
	return v, ok
}

// Save persists the store to its sidecar JSON file.
func (s *MapStore) Save() error {
	s.mu.RLock()
	doc := jsonDoc{Rows: make(map[string]map[string]string, len(s.rows))}
	for row, cols := range s.rows {
		colMap := make(map[string]string, len(cols))
		for col, value := range cols {
			colMap[fmt.Sprintf("%d", col)] = string(value)
		}
		doc.Rows[fmt.Sprintf("%d", row)] = colMap
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("overwrite: creating sidecar dir: %w", err)
	}
	return os.WriteFile(s.path, data, 0o644)
}

// Open resolves whichever overwrite sidecar exists for csvPath into a
// ready parser.OverwriteIterator, per spec.md §6: "when present, the
// parser opens it, iterates records ordered by (row, col)...". A
// finalized SortedStore sidecar is preferred when present, since that
// format is only ever produced for edit sets too large for MapStore's
// in-memory JSON representation; otherwise the MapStore sidecar is
// used if it exists. Neither sidecar existing is not an error: it
// yields (nil, nil), leaving Options.Overwrites unset.
func Open(csvPath string) (parser.OverwriteIterator, error) {
	if sorted, ok, err := OpenSortedStore(csvPath); err != nil {
		return nil, err
	} else if ok {
		return sorted.Iterator(), nil
	}

	if _, err := os.Stat(sidecarPath(csvPath)); os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("overwrite: stat %s: %w", sidecarPath(csvPath), err)
	}

	store, err := LoadMapStore(csvPath)
	if err != nil {
		return nil, err
	}
	return store.Iterator(), nil
}

// Iterator returns the store's overwrites as a sorted, one-shot
// parser.OverwriteIterator. Records are snapshotted at call time so a
// concurrent Set doesn't perturb an in-flight parse.
func (s *MapStore) Iterator() parser.OverwriteIterator {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]Record, 0, len(s.rows))
	for row, cols := range s.rows {
		for col, value := range cols {
			records = append(records, Record{Row: row, Col: col, Value: value})
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Less(records[j]) })
	return &sliceIterator{records: records}
}
