// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package changeset decides which notebooks each destination still needs.
package changeset

import (
	"errors"
	"fmt"

	"github.com/pdiddy/inkbridge/pkg/types"
)

// neverPublished is compared against when a destination has no entry. No
// real fingerprint is the string "-1", so first-run notebooks always differ.
const neverPublished = "-1"

// ErrNotebookNotFound is returned when Options.Notebook names a notebook that
// is not among the candidates.
var ErrNotebookNotFound = errors.New("notebook not found in library")

// StateReader is the read side of the version state store.
type StateReader interface {
	Get(destination, documentID string) (types.Fingerprint, bool)
}

// Options controls truncation and the single-notebook override.
type Options struct {
	// Limit truncates the work list. Zero or negative means no limit.
	Limit int

	// Notebook selects a single notebook by visible name. If every
	// destination is already current for it, it is forced to all of them.
	Notebook string
}

// NeedsUpdate reports whether destination's stored fingerprint differs from
// the notebook's current one.
func NeedsUpdate(states StateReader, destination string, item types.MetadataItem) bool {
	stored := neverPublished
	if fp, ok := states.Get(destination, item.ID); ok {
		stored = fp.String()
	}
	return stored != item.Fingerprint().String()
}

// Resolve builds the ordered work list. Notebooks no destination needs are
// dropped; the remaining list keeps listing order and is truncated to
// opts.Limit. With opts.Notebook set, only that notebook is considered and
// the limit does not apply.
func Resolve(notebooks []types.Notebook, destinations []string, states StateReader, opts Options) ([]types.WorkItem, error) {
	if opts.Notebook != "" {
		return resolveOne(notebooks, destinations, states, opts.Notebook)
	}

	var work []types.WorkItem
	for _, nb := range notebooks {
		if opts.Limit > 0 && len(work) >= opts.Limit {
			break
		}
		if dests := pending(nb, destinations, states); len(dests) > 0 {
			work = append(work, types.WorkItem{Notebook: nb, Destinations: dests})
		}
	}
	return work, nil
}

func resolveOne(notebooks []types.Notebook, destinations []string, states StateReader, name string) ([]types.WorkItem, error) {
	for _, nb := range notebooks {
		if nb.Item.Name() != name {
			continue
		}
		dests := pending(nb, destinations, states)
		forced := false
		if len(dests) == 0 {
			dests = append([]string(nil), destinations...)
			forced = true
		}
		return []types.WorkItem{{Notebook: nb, Destinations: dests, Forced: forced}}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNotebookNotFound, name)
}

func pending(nb types.Notebook, destinations []string, states StateReader) []string {
	var dests []string
	for _, d := range destinations {
		if NeedsUpdate(states, d, nb.Item) {
			dests = append(dests, d)
		}
	}
	return dests
}
