// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package remarkable reads a synced reMarkable document tree (the xochitl
// layout: <id>.metadata, <id>.content, <id>/<pageId>.rm) and renders its
// pages through an external renderer.
package remarkable

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdiddy/inkbridge/pkg/types"
)

const (
	metadataExt = ".metadata"
	contentExt  = ".content"
	pageExt     = ".rm"
)

// rawMetadata is the on-disk .metadata record. Old firmware spelled the name
// field "VissibleName".
type rawMetadata struct {
	VisibleName       string `json:"visibleName"`
	LegacyName        string `json:"VissibleName"`
	Type              string `json:"type"`
	Parent            string `json:"parent"`
	Version           *int64 `json:"version"`
	Deleted           bool   `json:"deleted"`
	LegacyVisibleName string `json:"VisibleName"`
}

func (r rawMetadata) name() string {
	for _, n := range []string{r.VisibleName, r.LegacyName, r.LegacyVisibleName} {
		if n != "" {
			return n
		}
	}
	return ""
}

// rawContent is the on-disk .content record. Format version 1 lists page IDs
// in "pages"; version 2 nests them under "cPages".
type rawContent struct {
	FileType string   `json:"fileType"`
	Pages    []string `json:"pages"`
	CPages   struct {
		Pages []struct {
			ID      string `json:"id"`
			Deleted *struct {
				Value int `json:"value"`
			} `json:"deleted,omitempty"`
		} `json:"pages"`
	} `json:"cPages"`
}

// pageIDs returns the ordered page IDs, preferring the v2 layout.
func (c rawContent) pageIDs() []string {
	if len(c.CPages.Pages) > 0 {
		ids := make([]string, 0, len(c.CPages.Pages))
		for _, p := range c.CPages.Pages {
			if p.Deleted != nil && p.Deleted.Value != 0 {
				continue
			}
			ids = append(ids, p.ID)
		}
		return ids
	}
	return c.Pages
}

// DirSource lists and bundles documents from a local document tree.
type DirSource struct {
	Root string
}

// NewDirSource checks that root is a directory.
func NewDirSource(root string) (*DirSource, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("opening document tree: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("document tree %s is not a directory", root)
	}
	return &DirSource{Root: root}, nil
}

// ListAllItems reads every .metadata record and normalizes it. Deleted
// records are left out; unreadable ones are returned as an error only when
// nothing could be read.
func (s *DirSource) ListAllItems(ctx context.Context) ([]types.MetadataItem, error) {
	matches, err := filepath.Glob(filepath.Join(s.Root, "*"+metadataExt))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	var items []types.MetadataItem
	var firstErr error
	for _, path := range matches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := strings.TrimSuffix(filepath.Base(path), metadataExt)
		item, ok, err := s.readItem(id)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			items = append(items, item)
		}
	}
	if len(items) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return items, nil
}

func (s *DirSource) readItem(id string) (types.MetadataItem, bool, error) {
	data, err := os.ReadFile(filepath.Join(s.Root, id+metadataExt))
	if err != nil {
		return types.MetadataItem{}, false, err
	}
	var meta rawMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return types.MetadataItem{}, false, fmt.Errorf("parsing metadata %s: %w", id, err)
	}
	if meta.Deleted {
		return types.MetadataItem{}, false, nil
	}

	item := types.MetadataItem{
		ID:          id,
		VisibleName: meta.name(),
		Type:        types.ItemType(meta.Type),
		ParentID:    meta.Parent,
		Version:     meta.Version,
	}
	if item.Type != types.ItemDocument {
		return item, true, nil
	}

	content, _ := s.readContent(id)
	switch strings.ToLower(content.FileType) {
	case "pdf":
		item.FileExtensions = append(item.FileExtensions, ".pdf")
	case "epub":
		item.FileExtensions = append(item.FileExtensions, ".epub")
	}
	for _, ext := range []string{".pdf", ".epub"} {
		if _, err := os.Stat(filepath.Join(s.Root, id+ext)); err == nil {
			item.FileExtensions = append(item.FileExtensions, id+ext)
		}
	}
	if hash, err := s.contentHash(id, content); err == nil {
		item.Hash = hash
	}
	return item, true, nil
}

func (s *DirSource) readContent(id string) (rawContent, error) {
	var c rawContent
	data, err := os.ReadFile(filepath.Join(s.Root, id+contentExt))
	if err != nil {
		return c, err
	}
	err = json.Unmarshal(data, &c)
	return c, err
}

// contentHash digests the .content record and every page file in page order.
// Missing pages contribute their ID only.
func (s *DirSource) contentHash(id string, content rawContent) (string, error) {
	h := sha256.New()
	data, err := os.ReadFile(filepath.Join(s.Root, id+contentExt))
	if err != nil {
		return "", err
	}
	h.Write(data)
	for _, pid := range content.pageIDs() {
		h.Write([]byte(pid))
		f, err := os.Open(filepath.Join(s.Root, id, pid+pageExt))
		if err != nil {
			continue
		}
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Download zips the document's records and page directory.
func (s *DirSource) Download(ctx context.Context, item types.MetadataItem) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, ext := range []string{metadataExt, contentExt} {
		if err := addFile(zw, filepath.Join(s.Root, item.ID+ext), item.ID+ext); err != nil {
			return nil, fmt.Errorf("bundling %s: %w", item.ID, err)
		}
	}

	pageDir := filepath.Join(s.Root, item.ID)
	err := filepath.WalkDir(pageDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return fs.SkipDir
			}
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.Root, path)
		if err != nil {
			return err
		}
		return addFile(zw, path, filepath.ToSlash(rel))
	})
	if err != nil {
		return nil, fmt.Errorf("bundling pages of %s: %w", item.ID, err)
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func addFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}
