// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package state persists, per destination, the fingerprint last published for
// each document. Each destination owns one human-editable JSON file,
// processed_notebooks_<destination>.json, mapping document ID to fingerprint.
// Deleting a file means "republish everything to that destination".
package state

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/pdiddy/inkbridge/pkg/types"
)

const filePrefix = "processed_notebooks_"

// Store reads and writes the per-destination state files. Reads are cached
// per destination; every Set writes the file before returning.
type Store struct {
	dir   string
	w     io.Writer
	cache map[string]map[string]types.Fingerprint
}

// NewStore returns a store rooted at dir, creating it if necessary. Warnings
// about unreadable files go to w.
func NewStore(dir string, w io.Writer) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory %s: %w", dir, err)
	}
	if w == nil {
		w = io.Discard
	}
	return &Store{dir: dir, w: w, cache: make(map[string]map[string]types.Fingerprint)}, nil
}

// Path returns the state file for a destination.
func (s *Store) Path(destination string) string {
	return filepath.Join(s.dir, filePrefix+destination+".json")
}

// Get returns the fingerprint last published to destination for documentID.
// ok is false when the document was never published there.
func (s *Store) Get(destination, documentID string) (fp types.Fingerprint, ok bool) {
	fp, ok = s.load(destination)[documentID]
	return fp, ok
}

// Snapshot returns a copy of the destination's mapping.
func (s *Store) Snapshot(destination string) map[string]types.Fingerprint {
	m := s.load(destination)
	out := make(map[string]types.Fingerprint, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Set records fp for documentID at destination and writes the file
// immediately.
func (s *Store) Set(destination, documentID string, fp types.Fingerprint) error {
	m := s.Snapshot(destination)
	m[documentID] = fp
	if err := writeJSON(s.Path(destination), m); err != nil {
		return fmt.Errorf("writing state for %s: %w", destination, err)
	}
	s.cache[destination] = m
	return nil
}

// Reset deletes the destination's state file.
func (s *Store) Reset(destination string) error {
	delete(s.cache, destination)
	if err := os.Remove(s.Path(destination)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing state for %s: %w", destination, err)
	}
	return nil
}

// Destinations lists the destination names that have a state file.
func (s *Store) Destinations() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, filePrefix+"*.json"))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		base := filepath.Base(m)
		names = append(names, base[len(filePrefix):len(base)-len(".json")])
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) load(destination string) map[string]types.Fingerprint {
	if m, ok := s.cache[destination]; ok {
		return m
	}
	m, err := readFile(s.Path(destination))
	if err != nil {
		fmt.Fprintf(s.w, "warning: state for %s unreadable, treating as empty: %v\n", destination, err)
		m = map[string]types.Fingerprint{}
	}
	s.cache[destination] = m
	return m
}

// readFile decodes a state file. A missing file is empty. A bare list of IDs
// (the legacy shape) maps every ID to revision 0.
func readFile(path string) (map[string]types.Fingerprint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]types.Fingerprint{}, nil
		}
		return nil, err
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err == nil {
		m := make(map[string]types.Fingerprint, len(ids))
		for _, id := range ids {
			m[id] = types.RevisionFingerprint(0)
		}
		return m, nil
	}

	var m map[string]types.Fingerprint
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if m == nil {
		m = map[string]types.Fingerprint{}
	}
	for id, fp := range m {
		if !fp.IsSet() {
			delete(m, id)
		}
	}
	return m, nil
}

// writeJSON writes v to path through a temporary file and rename. Map keys
// are sorted by encoding/json.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	_, writeErr := tmp.Write(append(data, '\n'))
	syncErr := tmp.Sync()
	closeErr := tmp.Close()
	for _, e := range []error{writeErr, syncErr, closeErr} {
		if e != nil {
			os.Remove(tmpPath)
			return e
		}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
