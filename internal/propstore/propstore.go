// Package propstore persists per-file parsing options in a JSON
// sidecar, the way entreya-csvquery's internal/schema.Manager persists
// virtual-column metadata next to a CSV file. Here the sidecar holds
// header_row_span/skip_head instead of virtual columns, at the path
// layout spec.md §6 and original_source's app/prop.c both document:
// <dir>/.zsv/data/<basename>/props.json.
package propstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileProperties is the persisted subset of parse options for one
// input file. HasHeaderSpan/HasSkipHead distinguish "explicitly set to
// zero" from "never set" — JSON's zero value and absence are otherwise
// indistinguishable, and the three-layer merge (defaults -> sidecar ->
// CLI flags) needs that distinction to let a CLI flag reset a
// persisted value back to zero.
type FileProperties struct {
	HeaderRowSpan uint32 `json:"header-row-span,omitempty"`
	SkipHead      uint32 `json:"skip-head,omitempty"`
	HasHeaderSpan bool   `json:"-"`
	HasSkipHead   bool   `json:"-"`
}

// rawDoc mirrors FileProperties' JSON shape with pointer fields so
// presence can be detected on unmarshal.
type rawDoc struct {
	HeaderRowSpan *uint32 `json:"header-row-span,omitempty"`
	SkipHead      *uint32 `json:"skip-head,omitempty"`
}

// Store guards one sidecar file's load/save cycle, mirroring
// entreya-csvquery's schema.Schema: a small sync.Mutex-protected
// struct, not a general-purpose cache.
type Store struct {
	mu    sync.Mutex
	path  string
	props FileProperties
}

// SidecarDir returns the directory holding path's property sidecar:
// <dir-of-path>/.zsv/data/<basename-of-path>/. The overwrite sidecars
// of internal/overwrite are not kept here; they sit beside the input
// file.
func SidecarDir(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	dir := filepath.Dir(abs)
	base := filepath.Base(abs)
	return filepath.Join(dir, ".zsv", "data", base)
}

func propsPath(csvPath string) string {
	return filepath.Join(SidecarDir(csvPath), "props.json")
}

// Load reads the sidecar for csvPath, if any. A missing sidecar is not
// an error; it yields an empty FileProperties (both Has* flags false).
func Load(csvPath string) (*Store, error) {
	s := &Store{path: propsPath(csvPath)}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("propstore: reading %s: %w", s.path, err)
	}

	var doc rawDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("propstore: parsing %s: %w", s.path, err)
	}
	if doc.HeaderRowSpan != nil {
		s.props.HeaderRowSpan = *doc.HeaderRowSpan
		s.props.HasHeaderSpan = true
	}
	if doc.SkipHead != nil {
		s.props.SkipHead = *doc.SkipHead
		s.props.HasSkipHead = true
	}
	return s, nil
}

// Properties returns the properties currently held by the store.
func (s *Store) Properties() FileProperties {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.props
}

// SetHeaderSpan records an explicit header-row-span value to persist.
func (s *Store) SetHeaderSpan(v uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.props.HeaderRowSpan = v
	s.props.HasHeaderSpan = true
}

// SetSkipHead records an explicit skip-head value to persist.
func (s *Store) SetSkipHead(v uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.props.SkipHead = v
	s.props.HasSkipHead = true
}

// Save writes the sidecar to disk, creating the .zsv/data/<basename>
// directory tree if needed.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("propstore: creating sidecar dir: %w", err)
	}

	doc := rawDoc{}
	if s.props.HasHeaderSpan {
		v := s.props.HeaderRowSpan
		doc.HeaderRowSpan = &v
	}
	if s.props.HasSkipHead {
		v := s.props.SkipHead
		doc.SkipHead = &v
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("propstore: encoding: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("propstore: writing %s: %w", s.path, err)
	}
	return nil
}

// Remove deletes the whole sidecar directory for csvPath, matching
// spec.md §6's "removal deletes the whole sidecar directory". The
// overwrite sidecars beside the input file are not removed.
func Remove(csvPath string) error {
	dir := SidecarDir(csvPath)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("propstore: removing %s: %w", dir, err)
	}
	return nil
}

// Merge applies the three-layer rule (spec.md §4.3): built-in
// defaults, already present in base, are overridden by the sidecar's
// explicitly-set fields, which are in turn overridden by any
// explicitly-set CLI values in override.
func Merge(base FileProperties, sidecar FileProperties, override FileProperties) FileProperties {
	out := base
	if sidecar.HasHeaderSpan {
		out.HeaderRowSpan = sidecar.HeaderRowSpan
		out.HasHeaderSpan = true
	}
	if sidecar.HasSkipHead {
		out.SkipHead = sidecar.SkipHead
		out.HasSkipHead = true
	}
	if override.HasHeaderSpan {
		out.HeaderRowSpan = override.HeaderRowSpan
		out.HasHeaderSpan = true
	}
	if override.HasSkipHead {
		out.SkipHead = override.SkipHead
		out.HasSkipHead = true
	}
	return out
}
