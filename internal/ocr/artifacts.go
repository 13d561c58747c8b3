// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ocr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Header is the first line of a text artifact.
type Header struct {
	Notebook string   `json:"notebook"`
	Images   []string `json:"images"`
}

// Format renders a text artifact: the JSON header line, a blank line, then
// one "--- Page N ---" section per page with its trimmed text.
func Format(h Header, pages []string) ([]byte, error) {
	if h.Images == nil {
		h.Images = []string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(h); err != nil {
		return nil, fmt.Errorf("encoding artifact header: %w", err)
	}
	buf.WriteString("\n")
	for i, p := range pages {
		fmt.Fprintf(&buf, "--- Page %d ---\n", i+1)
		buf.WriteString(strings.TrimSpace(p))
		buf.WriteString("\n\n")
	}
	return buf.Bytes(), nil
}

// Artifacts are the two text files written per notebook.
type Artifacts struct {
	RawPath   string
	CleanPath string
}

// WriteArtifacts writes <safe>_raw.txt and <safe>_clean.txt into dir.
func WriteArtifacts(dir, safe string, h Header, res Result) (Artifacts, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Artifacts{}, fmt.Errorf("creating output directory: %w", err)
	}
	a := Artifacts{
		RawPath:   filepath.Join(dir, safe+"_raw.txt"),
		CleanPath: filepath.Join(dir, safe+"_clean.txt"),
	}
	for _, f := range []struct {
		path  string
		pages []string
	}{{a.RawPath, res.Raw}, {a.CleanPath, res.Clean}} {
		data, err := Format(h, f.pages)
		if err != nil {
			return Artifacts{}, err
		}
		if err := os.WriteFile(f.path, data, 0o644); err != nil {
			return Artifacts{}, fmt.Errorf("writing %s: %w", f.path, err)
		}
	}
	return a, nil
}

// PublishBody turns an artifact into note text: everything before the first
// line starting with "---" is dropped, and each page marker gets a blank-line
// gap before it. With no marker line the whole artifact is kept.
func PublishBody(artifact string) string {
	lines := strings.Split(artifact, "\n")
	start := 0
	for i, line := range lines {
		if strings.HasPrefix(line, "---") {
			start = i
			break
		}
	}
	body := strings.Join(lines[start:], "\n")
	body = strings.ReplaceAll(body, "--- Page", "\n\n--- Page")
	return strings.TrimLeft(body, " \t\r\n\v\f")
}

// ReadPublishBody reads the artifact at path and returns its PublishBody. A
// missing file yields "".
func ReadPublishBody(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return PublishBody(string(data)), nil
}

var pageMarker = regexp.MustCompile(`(?m)^--- Page \d+ ---\n`)

// ParsePages splits an artifact back into its page bodies, in order, with
// the header discarded.
func ParsePages(artifact string) []string {
	locs := pageMarker.FindAllStringIndex(artifact, -1)
	pages := make([]string, 0, len(locs))
	for i, loc := range locs {
		end := len(artifact)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		pages = append(pages, strings.TrimSpace(artifact[loc[1]:end]))
	}
	return pages
}
