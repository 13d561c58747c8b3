// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metadata resolves the flat remote item listing into notebooks with
// folder paths.
package metadata

import (
	"strings"

	"github.com/pdiddy/inkbridge/pkg/types"
)

// maxDepth bounds ancestor traversal in case the listing contains a cycle.
const maxDepth = 64

// Graph is an ID-indexed view of one listing.
type Graph struct {
	items []types.MetadataItem
	byID  map[string]types.MetadataItem
}

// NewGraph indexes items by ID. Later duplicates replace earlier ones in the
// index; listing order is preserved for Notebooks.
func NewGraph(items []types.MetadataItem) *Graph {
	g := &Graph{
		items: items,
		byID:  make(map[string]types.MetadataItem, len(items)),
	}
	for _, it := range items {
		g.byID[it.ID] = it
	}
	return g
}

// Lookup returns the item with the given ID.
func (g *Graph) Lookup(id string) (types.MetadataItem, bool) {
	it, ok := g.byID[id]
	return it, ok
}

// Path returns the ancestor folder names from the root down and whether the
// chain ends in the trash. A dangling parent reference truncates the path
// there rather than failing.
func (g *Graph) Path(item types.MetadataItem) (path []string, trashed bool) {
	current := item
	visited := map[string]bool{item.ID: true}
	for depth := 0; current.ParentID != types.ParentRoot && depth < maxDepth; depth++ {
		if current.ParentID == types.ParentTrash {
			return path, true
		}
		parent, ok := g.byID[current.ParentID]
		if !ok || visited[parent.ID] {
			break
		}
		visited[parent.ID] = true
		path = append([]string{parent.Name()}, path...)
		current = parent
	}
	return path, false
}

// Result holds the classified notebooks of one listing.
type Result struct {
	// Notebooks are native notebooks in listing order.
	Notebooks []types.Notebook

	// SkippedNonNative counts documents skipped because they carry a PDF or
	// EPUB file.
	SkippedNonNative int
}

// Notebooks classifies the listing. A candidate is a named document whose
// path does not lead to the trash; candidates that carry a PDF or EPUB file
// are counted and skipped.
func (g *Graph) Notebooks() Result {
	var res Result
	for _, it := range g.items {
		if it.Type != types.ItemDocument || it.Name() == "" {
			continue
		}
		path, trashed := g.Path(it)
		if trashed {
			continue
		}
		if !IsNative(it) {
			res.SkippedNonNative++
			continue
		}
		res.Notebooks = append(res.Notebooks, types.Notebook{Item: it, Path: path})
	}
	return res
}

// IsNative reports whether none of the item's files is a PDF or EPUB.
func IsNative(item types.MetadataItem) bool {
	for _, ext := range item.FileExtensions {
		e := strings.ToLower(ext)
		if strings.HasSuffix(e, ".pdf") || strings.HasSuffix(e, ".epub") {
			return false
		}
	}
	return true
}
