// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package state

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/inkbridge/pkg/types"
)

func newTestStore(t *testing.T) (*Store, string, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	var buf bytes.Buffer
	s, err := NewStore(dir, &buf)
	require.NoError(t, err)
	return s, dir, &buf
}

func TestGetMissingFileIsUnset(t *testing.T) {
	s, _, buf := newTestStore(t)
	_, ok := s.Get("obsidian", "doc-1")
	assert.False(t, ok)
	assert.Empty(t, buf.String(), "a missing file is not a warning")
}

func TestSetPersistsImmediately(t *testing.T) {
	s, dir, _ := newTestStore(t)
	require.NoError(t, s.Set("obsidian", "doc-1", types.HashFingerprint("abc")))
	require.NoError(t, s.Set("obsidian", "doc-2", types.RevisionFingerprint(7)))

	data, err := os.ReadFile(filepath.Join(dir, "processed_notebooks_obsidian.json"))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "abc", raw["doc-1"])
	assert.Equal(t, float64(7), raw["doc-2"])

	// A fresh store sees the same values.
	fresh, err := NewStore(dir, nil)
	require.NoError(t, err)
	fp, ok := fresh.Get("obsidian", "doc-1")
	require.True(t, ok)
	assert.Equal(t, "abc", fp.String())
	fp, ok = fresh.Get("obsidian", "doc-2")
	require.True(t, ok)
	assert.Equal(t, "7", fp.String())
}

func TestDestinationsAreIsolated(t *testing.T) {
	s, _, _ := newTestStore(t)
	require.NoError(t, s.Set("notes", "doc-1", types.HashFingerprint("abc")))

	_, ok := s.Get("vault", "doc-1")
	assert.False(t, ok)

	names, err := s.Destinations()
	require.NoError(t, err)
	assert.Equal(t, []string{"notes"}, names)
}

func TestLegacyListReadsAsRevisionZero(t *testing.T) {
	s, dir, _ := newTestStore(t)
	writeFile(t, filepath.Join(dir, "processed_notebooks_notes.json"), `["id1", "id2"]`)

	for _, id := range []string{"id1", "id2"} {
		fp, ok := s.Get("notes", id)
		require.True(t, ok, id)
		assert.Equal(t, "0", fp.String())
	}
	_, ok := s.Get("notes", "id3")
	assert.False(t, ok)
}

func TestLegacyListMatchesExplicitMapping(t *testing.T) {
	legacy, dirA, _ := newTestStore(t)
	explicit, dirB, _ := newTestStore(t)
	writeFile(t, filepath.Join(dirA, "processed_notebooks_notes.json"), `["id1","id2"]`)
	writeFile(t, filepath.Join(dirB, "processed_notebooks_notes.json"), `{"id1":0,"id2":0}`)

	assert.Equal(t, explicit.Snapshot("notes"), legacy.Snapshot("notes"))
}

func TestCorruptFileIsEmpty(t *testing.T) {
	s, dir, buf := newTestStore(t)
	path := filepath.Join(dir, "processed_notebooks_notes.json")
	writeFile(t, path, `{not json`)

	_, ok := s.Get("notes", "doc-1")
	assert.False(t, ok)
	assert.Contains(t, buf.String(), "unreadable")

	// Writing recovers the file.
	require.NoError(t, s.Set("notes", "doc-1", types.HashFingerprint("x")))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"doc-1":"x"}`, string(data))
}

func TestMixedValueTypes(t *testing.T) {
	s, dir, _ := newTestStore(t)
	writeFile(t, filepath.Join(dir, "processed_notebooks_notes.json"), `{"a": "h1", "b": 12, "c": null}`)

	m := s.Snapshot("notes")
	assert.Len(t, m, 2)
	assert.Equal(t, "h1", m["a"].String())
	assert.Equal(t, "12", m["b"].String())
}

func TestReset(t *testing.T) {
	s, dir, _ := newTestStore(t)
	require.NoError(t, s.Set("notes", "doc-1", types.HashFingerprint("abc")))
	require.NoError(t, s.Reset("notes"))

	_, err := os.Stat(filepath.Join(dir, "processed_notebooks_notes.json"))
	assert.True(t, os.IsNotExist(err))
	_, ok := s.Get("notes", "doc-1")
	assert.False(t, ok)

	// Resetting twice is fine.
	assert.NoError(t, s.Reset("notes"))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
