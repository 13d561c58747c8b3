// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package remarkable

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/pdiddy/inkbridge/internal/hostexec"
)

// pngSignature is the eight-byte header every PNG file starts with.
var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// ErrNotPNG is returned when the renderer produced something other than a PNG.
var ErrNotPNG = errors.New("renderer output is not a PNG")

// Bundle is an opened document archive as produced by DirSource.Download.
type Bundle struct {
	rc    *zip.ReadCloser
	pages []*zip.File
}

// OpenBundle opens the archive at path and orders its pages by the .content
// record, falling back to entry name order when that record is absent.
func OpenBundle(path string) (*Bundle, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening bundle %s: %w", path, err)
	}
	b := &Bundle{rc: rc, pages: orderPages(&rc.Reader)}
	return b, nil
}

// Close releases the archive.
func (b *Bundle) Close() error {
	return b.rc.Close()
}

// PageCount is the number of renderable pages.
func (b *Bundle) PageCount() int {
	return len(b.pages)
}

// Page returns the raw page data for the 1-based page number.
func (b *Bundle) Page(n int) ([]byte, error) {
	if n < 1 || n > len(b.pages) {
		return nil, fmt.Errorf("page %d out of range (1-%d)", n, len(b.pages))
	}
	f, err := b.pages[n-1].Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func orderPages(zr *zip.Reader) []*zip.File {
	byID := make(map[string]*zip.File)
	var names []string
	var content *zip.File
	for _, f := range zr.File {
		switch {
		case strings.HasSuffix(f.Name, contentExt) && !strings.Contains(f.Name, "/"):
			content = f
		case strings.HasSuffix(f.Name, pageExt):
			id := strings.TrimSuffix(path.Base(f.Name), pageExt)
			byID[id] = f
			names = append(names, id)
		}
	}

	if content != nil {
		if c, err := readZipContent(content); err == nil {
			if ids := c.pageIDs(); len(ids) > 0 {
				var pages []*zip.File
				for _, id := range ids {
					if f, ok := byID[id]; ok {
						pages = append(pages, f)
					}
				}
				return pages
			}
		}
	}

	sort.Strings(names)
	pages := make([]*zip.File, 0, len(names))
	for _, id := range names {
		pages = append(pages, byID[id])
	}
	return pages
}

func readZipContent(f *zip.File) (rawContent, error) {
	var c rawContent
	r, err := f.Open()
	if err != nil {
		return c, err
	}
	defer r.Close()
	err = json.NewDecoder(r).Decode(&c)
	return c, err
}

// PageArg in a render command is replaced by the path of a temporary file
// holding the page. Without it the page is written to the command's stdin.
const PageArg = "{page}"

// Renderer turns one page into PNG bytes by running an external command
// (Command[0] with the remaining elements as arguments) that writes the PNG
// to stdout.
type Renderer struct {
	Exec    hostexec.Executor
	Command []string

	// Timeout bounds one page render. Zero means no bound.
	Timeout time.Duration

	// TempDir holds page files for PageArg commands; empty means os.TempDir.
	TempDir string
}

// Available reports whether the render command is on PATH.
func (r Renderer) Available() error {
	if len(r.Command) == 0 {
		return errors.New("no render command configured")
	}
	if _, err := r.Exec.LookPath(r.Command[0]); err != nil {
		return fmt.Errorf("render command %s not found: %w", r.Command[0], err)
	}
	return nil
}

// RenderPage renders the 1-based page n of b.
func (r Renderer) RenderPage(ctx context.Context, b *Bundle, n int) ([]byte, error) {
	if len(r.Command) == 0 {
		return nil, errors.New("no render command configured")
	}
	data, err := b.Page(n)
	if err != nil {
		return nil, err
	}
	args, stdin, cleanup, err := r.commandArgs(data)
	if err != nil {
		return nil, fmt.Errorf("rendering page %d: %w", n, err)
	}
	defer cleanup()

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	var out bytes.Buffer
	if err := r.Exec.Run(ctx, r.Command[0], args, stdin, &out); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("rendering page %d: %w", n, ctxErr)
		}
		return nil, fmt.Errorf("rendering page %d: %w", n, err)
	}
	if !bytes.HasPrefix(out.Bytes(), pngSignature) {
		return nil, fmt.Errorf("rendering page %d: %w", n, ErrNotPNG)
	}
	return out.Bytes(), nil
}

// commandArgs substitutes PageArg, writing data to a temporary file, or
// returns data as stdin when the command has no PageArg.
func (r Renderer) commandArgs(data []byte) ([]string, io.Reader, func(), error) {
	args := append([]string(nil), r.Command[1:]...)
	idx := -1
	for i, a := range args {
		if strings.Contains(a, PageArg) {
			idx = i
		}
	}
	if idx < 0 {
		return args, bytes.NewReader(data), func() {}, nil
	}

	f, err := os.CreateTemp(r.TempDir, "inkbridge-page-*.rm")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating page file: %w", err)
	}
	name := f.Name()
	cleanup := func() { os.Remove(name) }
	_, werr := f.Write(data)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		cleanup()
		return nil, nil, nil, fmt.Errorf("writing page file: %w", werr)
	}
	for i, a := range args {
		args[i] = strings.ReplaceAll(a, PageArg, name)
	}
	return args, nil, cleanup, nil
}
