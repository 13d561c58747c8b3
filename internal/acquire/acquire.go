// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package acquire turns a notebook into an ordered list of page images,
// rendering from the remote source only when the local cache has none.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pdiddy/inkbridge/internal/imaging"
	"github.com/pdiddy/inkbridge/internal/remarkable"
	"github.com/pdiddy/inkbridge/pkg/types"
)

// ErrNoPages is returned when neither the cache nor the source produced any
// page image.
var ErrNoPages = errors.New("no page images")

// ErrDocumentNotFound is returned when the notebook cannot be located in the
// source library.
var ErrDocumentNotFound = errors.New("document not found in source library")

// Source is the download side of the remote document library.
type Source interface {
	Download(ctx context.Context, item types.MetadataItem) ([]byte, error)
}

// PageRenderer renders one page of an opened bundle to PNG bytes.
type PageRenderer interface {
	RenderPage(ctx context.Context, b *remarkable.Bundle, n int) ([]byte, error)
}

// Pages is the acquisition result. Prepared[i] is the flattened copy of
// Originals[i] used for OCR; Originals are what destinations attach.
type Pages struct {
	Originals []string
	Prepared  []string
}

// Names returns the base filenames of the original page images.
func (p Pages) Names() []string {
	names := make([]string, len(p.Originals))
	for i, o := range p.Originals {
		names[i] = filepath.Base(o)
	}
	return names
}

// Stage fetches and prepares page images.
type Stage struct {
	Source   Source
	Renderer PageRenderer

	// Library is the full item listing used to locate a notebook whose ID is
	// unknown to the source.
	Library []types.MetadataItem

	CacheDir string
	WorkDir  string

	// TempDir holds downloaded bundles while rendering. Empty means CacheDir.
	TempDir string

	Log io.Writer
}

// SetLibrary replaces the listing used by locate.
func (s *Stage) SetLibrary(items []types.MetadataItem) {
	s.Library = items
}

// Acquire returns the notebook's page images, rendering them into the cache
// on a miss, then flattens each one into WorkDir/<safeName>/.
func (s *Stage) Acquire(ctx context.Context, nb types.Notebook) (Pages, error) {
	safe := nb.SafeName()
	imgs, err := CachedPages(s.CacheDir, safe)
	if err != nil {
		return Pages{}, err
	}

	if len(imgs) == 0 {
		fmt.Fprintf(s.Log, "No cached page images for %s; rendering from source\n", nb.Item.Name())
		if err := s.render(ctx, nb, safe); err != nil {
			return Pages{}, err
		}
		if imgs, err = CachedPages(s.CacheDir, safe); err != nil {
			return Pages{}, err
		}
		if len(imgs) == 0 {
			return Pages{}, fmt.Errorf("%s: %w", nb.Item.Name(), ErrNoPages)
		}
	}
	fmt.Fprintf(s.Log, "Found %d page images for %s\n", len(imgs), nb.Item.Name())

	return Pages{Originals: imgs, Prepared: s.prepare(imgs, safe)}, nil
}

// locate finds the source record for nb: by ID when the library has it,
// else by exact trimmed visible name.
func (s *Stage) locate(nb types.Notebook) (types.MetadataItem, bool) {
	if len(s.Library) == 0 {
		return nb.Item, nb.Item.ID != ""
	}
	for _, it := range s.Library {
		if it.ID == nb.Item.ID && it.ID != "" {
			return it, true
		}
	}
	for _, it := range s.Library {
		if it.Type == types.ItemDocument && it.Name() == nb.Item.Name() {
			return it, true
		}
	}
	return types.MetadataItem{}, false
}

func (s *Stage) render(ctx context.Context, nb types.Notebook, safe string) error {
	doc, ok := s.locate(nb)
	if !ok {
		return fmt.Errorf("%s: %w", nb.Item.Name(), ErrDocumentNotFound)
	}

	data, err := s.Source.Download(ctx, doc)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", nb.Item.Name(), err)
	}
	if len(data) == 0 {
		return fmt.Errorf("downloading %s: empty bundle", nb.Item.Name())
	}

	if err := os.MkdirAll(s.CacheDir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	tmpDir := s.TempDir
	if tmpDir == "" {
		tmpDir = s.CacheDir
	}
	tmp, err := os.CreateTemp(tmpDir, "."+safe+"-*.zip")
	if err != nil {
		return fmt.Errorf("creating temp bundle: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil {
		return fmt.Errorf("writing temp bundle: %w", writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("closing temp bundle: %w", closeErr)
	}

	bundle, err := remarkable.OpenBundle(tmpPath)
	if err != nil {
		return err
	}
	defer bundle.Close()

	count := bundle.PageCount()
	fmt.Fprintf(s.Log, "Rendering %d pages for %s...\n", count, nb.Item.Name())
	for n := 1; n <= count; n++ {
		png, err := s.Renderer.RenderPage(ctx, bundle, n)
		if err != nil {
			fmt.Fprintf(s.Log, "Failed to render page %d of %s: %v\n", n, nb.Item.Name(), err)
			continue
		}
		dst := filepath.Join(s.CacheDir, fmt.Sprintf("%s.page-%d.png", safe, n))
		if err := writeFileAtomic(dst, png); err != nil {
			fmt.Fprintf(s.Log, "Failed to save page %d of %s: %v\n", n, nb.Item.Name(), err)
			continue
		}
		fmt.Fprintf(s.Log, "Saved: %s\n", dst)
	}
	return nil
}

// prepare writes an OCR-ready copy of each page into the work directory. A
// page that cannot be preprocessed is used as is.
func (s *Stage) prepare(imgs []string, safe string) []string {
	dir := filepath.Join(s.WorkDir, safe)
	prepared := make([]string, len(imgs))
	for i, src := range imgs {
		dst := filepath.Join(dir, filepath.Base(src))
		if err := imaging.PreprocessFile(src, dst); err != nil {
			fmt.Fprintf(s.Log, "  warning: preprocessing %s failed: %v\n", filepath.Base(src), err)
			prepared[i] = src
			continue
		}
		prepared[i] = dst
	}
	return prepared
}

// CachedPages lists dir entries named "<safe>.<...>.png", ordered by page
// number. The trailing dot keeps "Notebook_1" from matching "Notebook_10"
// files. A missing directory yields no pages.
func CachedPages(dir, safe string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading cache directory %s: %w", dir, err)
	}

	prefix := safe + "."
	type page struct {
		name string
		num  int
	}
	var pages []page
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || strings.ToLower(filepath.Ext(name)) != ".png" {
			continue
		}
		pages = append(pages, page{name: name, num: pageNumber(name[len(prefix):])})
	}
	sort.SliceStable(pages, func(i, j int) bool {
		if pages[i].num != pages[j].num {
			return pages[i].num < pages[j].num
		}
		return pages[i].name < pages[j].name
	})

	paths := make([]string, len(pages))
	for i, p := range pages {
		paths[i] = filepath.Join(dir, p.name)
	}
	return paths, nil
}

// pageNumber parses "page-<n>.png". Unparseable names sort last.
func pageNumber(rest string) int {
	rest = strings.TrimSuffix(strings.TrimSuffix(rest, ".png"), ".PNG")
	if n, err := strconv.Atoi(strings.TrimPrefix(rest, "page-")); err == nil {
		return n
	}
	return int(^uint(0) >> 1)
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".page-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return writeErr
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return closeErr
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
