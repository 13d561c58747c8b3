// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package changeset

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/inkbridge/pkg/types"
)

// mapStates is an in-memory StateReader keyed by destination then document.
type mapStates map[string]map[string]types.Fingerprint

func (m mapStates) Get(dest, id string) (types.Fingerprint, bool) {
	fp, ok := m[dest][id]
	return fp, ok
}

func version(n int64) *int64 { return &n }

func nb(id, name, hash string) types.Notebook {
	return types.Notebook{Item: types.MetadataItem{ID: id, VisibleName: name, Type: types.ItemDocument, Hash: hash}}
}

func TestNeedsUpdate(t *testing.T) {
	states := mapStates{
		"notes": {
			"hash-same":  types.HashFingerprint("abc"),
			"hash-diff":  types.HashFingerprint("old"),
			"rev-same":   types.RevisionFingerprint(4),
			"rev-legacy": types.RevisionFingerprint(0),
			"rev-string": types.HashFingerprint("4"),
			"default":    types.RevisionFingerprint(1),
		},
	}
	tests := []struct {
		name string
		item types.MetadataItem
		want bool
	}{
		{"never stored", types.MetadataItem{ID: "new", Hash: "abc"}, true},
		{"same hash", types.MetadataItem{ID: "hash-same", Hash: "abc"}, false},
		{"changed hash", types.MetadataItem{ID: "hash-diff", Hash: "abc"}, true},
		{"same revision", types.MetadataItem{ID: "rev-same", Version: version(4)}, false},
		{"legacy zero vs revision", types.MetadataItem{ID: "rev-legacy", Version: version(3)}, true},
		{"legacy zero vs revision zero", types.MetadataItem{ID: "rev-legacy", Version: version(0)}, false},
		{"string and number compare equal", types.MetadataItem{ID: "rev-string", Version: version(4)}, false},
		{"missing fingerprint defaults to 1", types.MetadataItem{ID: "default"}, false},
		{"hash wins over version", types.MetadataItem{ID: "rev-same", Hash: "h", Version: version(4)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NeedsUpdate(states, "notes", tt.item))
		})
	}
}

func TestResolvePerDestination(t *testing.T) {
	states := mapStates{
		"notes": {"a": types.HashFingerprint("h-a")},
		"vault": {"a": types.HashFingerprint("h-a"), "b": types.HashFingerprint("h-b")},
	}
	notebooks := []types.Notebook{nb("a", "A", "h-a"), nb("b", "B", "h-b"), nb("c", "C", "h-c")}

	work, err := Resolve(notebooks, []string{"notes", "vault"}, states, Options{})
	require.NoError(t, err)

	require.Len(t, work, 2, "a is current everywhere and is dropped")
	assert.Equal(t, "b", work[0].Item.ID)
	assert.Equal(t, []string{"notes"}, work[0].Destinations)
	assert.Equal(t, "c", work[1].Item.ID)
	assert.Equal(t, []string{"notes", "vault"}, work[1].Destinations)
	assert.False(t, work[0].Forced)
}

func TestResolveLimitKeepsListingOrder(t *testing.T) {
	notebooks := []types.Notebook{nb("a", "A", "1"), nb("b", "B", "2"), nb("c", "C", "3")}

	tests := []struct {
		limit int
		want  []string
	}{
		{0, []string{"a", "b", "c"}},
		{1, []string{"a"}},
		{2, []string{"a", "b"}},
		{10, []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		work, err := Resolve(notebooks, []string{"notes"}, mapStates{}, Options{Limit: tt.limit})
		require.NoError(t, err)
		var ids []string
		for _, w := range work {
			ids = append(ids, w.Item.ID)
		}
		assert.Equal(t, tt.want, ids, "limit %d", tt.limit)
	}
}

func TestResolveLimitCountsOnlyPendingNotebooks(t *testing.T) {
	states := mapStates{"notes": {"a": types.HashFingerprint("1")}}
	notebooks := []types.Notebook{nb("a", "A", "1"), nb("b", "B", "2")}

	work, err := Resolve(notebooks, []string{"notes"}, states, Options{Limit: 1})
	require.NoError(t, err)
	require.Len(t, work, 1)
	assert.Equal(t, "b", work[0].Item.ID)
}

func TestResolveNamedNotebookForcesAllDestinations(t *testing.T) {
	states := mapStates{
		"notes": {"a": types.HashFingerprint("h")},
		"vault": {"a": types.HashFingerprint("h")},
	}
	notebooks := []types.Notebook{nb("a", "Journal", "h"), nb("b", "Other", "x")}

	work, err := Resolve(notebooks, []string{"notes", "vault"}, states, Options{Notebook: "Journal", Limit: 1})
	require.NoError(t, err)
	require.Len(t, work, 1)
	assert.Equal(t, "a", work[0].Item.ID)
	assert.Equal(t, []string{"notes", "vault"}, work[0].Destinations)
	assert.True(t, work[0].Forced)
}

func TestResolveNamedNotebookKeepsPendingSubset(t *testing.T) {
	states := mapStates{"notes": {"a": types.HashFingerprint("h")}}
	notebooks := []types.Notebook{nb("a", "Journal", "h")}

	work, err := Resolve(notebooks, []string{"notes", "vault"}, states, Options{Notebook: "Journal"})
	require.NoError(t, err)
	require.Len(t, work, 1)
	assert.Equal(t, []string{"vault"}, work[0].Destinations)
	assert.False(t, work[0].Forced)
}

func TestResolveNamedNotebookMissing(t *testing.T) {
	_, err := Resolve([]types.Notebook{nb("a", "A", "h")}, []string{"notes"}, mapStates{}, Options{Notebook: "Nope"})
	assert.True(t, errors.Is(err, ErrNotebookNotFound))
}
