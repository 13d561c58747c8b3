// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package publish

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/inkbridge/pkg/types"
)

// noteTags are attached to every vault note.
var noteTags = []string{"remarkable", "handwritten"}

// frontmatter is the YAML header of a vault note.
type frontmatter struct {
	Created string   `yaml:"created"`
	Source  string   `yaml:"source"`
	Tags    []string `yaml:"tags"`
}

// VaultDestination writes Markdown notes into an Obsidian vault.
type VaultDestination struct {
	name        string
	vault       string
	attachments string
	log         io.Writer

	// Now stamps the created date; tests fix it.
	Now func() time.Time
}

// NewVault fails when vaultPath does not exist or is not a directory.
func NewVault(name, vaultPath, attachments string, w io.Writer) (*VaultDestination, error) {
	if vaultPath == "" {
		return nil, fmt.Errorf("%w: vault_path is required", types.ErrInvalidConfig)
	}
	abs, err := filepath.Abs(types.ExpandHome(vaultPath))
	if err != nil {
		return nil, fmt.Errorf("resolving vault path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: vault path does not exist: %s", types.ErrInvalidConfig, abs)
	}
	if attachments == "" {
		attachments = "attachments"
	}
	if w == nil {
		w = io.Discard
	}
	return &VaultDestination{name: name, vault: abs, attachments: attachments, log: w, Now: time.Now}, nil
}

// Name returns the configured destination name.
func (d *VaultDestination) Name() string { return d.name }

// Vault returns the absolute vault root.
func (d *VaultDestination) Vault() string { return d.vault }

var vaultReplacer = strings.NewReplacer("/", "-", ":", "-", `\`, "-")

// VaultFilename replaces '/', ':' and '\' with '-'.
func VaultFilename(title string) string {
	return vaultReplacer.Replace(title)
}

// NotePath returns where Publish writes note.
func (d *VaultDestination) NotePath(note Note) string {
	return filepath.Join(d.targetDir(note), VaultFilename(note.Title)+".md")
}

// targetDir is the vault root or one sanitized element below it.
func (d *VaultDestination) targetDir(note Note) string {
	sub := types.SafeFilename(note.SubFolder)
	if sub == "" {
		return d.vault
	}
	return filepath.Join(d.vault, sub)
}

// Publish copies the page images into the attachments folder and overwrites
// the note file.
func (d *VaultDestination) Publish(ctx context.Context, note Note) error {
	target := d.targetDir(note)
	attachDir := filepath.Join(target, d.attachments)
	if err := os.MkdirAll(attachDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", attachDir, err)
	}

	prefix := VaultFilename(note.Title)
	var refs []string
	for _, img := range note.Images {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := os.Stat(img); err != nil {
			continue
		}
		name := prefix + "_" + filepath.Base(img)
		if err := copyFile(img, filepath.Join(attachDir, name)); err != nil {
			return fmt.Errorf("copying attachment %s: %w", filepath.Base(img), err)
		}
		refs = append(refs, "![["+name+"]]")
	}

	md, err := d.Markdown(note, refs)
	if err != nil {
		return err
	}
	path := d.NotePath(note)
	if err := writeFileAtomic(path, md); err != nil {
		return fmt.Errorf("writing note %s: %w", path, err)
	}
	fmt.Fprintf(d.log, "Obsidian note created at: %s\n", path)
	return nil
}

// Markdown renders the frontmatter, body, and the embedded page references.
func (d *VaultDestination) Markdown(note Note, refs []string) ([]byte, error) {
	fm, err := yaml.Marshal(frontmatter{
		Created: d.Now().Format("2006-01-02"),
		Source:  "Remarkable/" + strings.ReplaceAll(note.Title, " / ", "/"),
		Tags:    noteTags,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding frontmatter: %w", err)
	}

	lines := []string{"---", strings.TrimSuffix(string(fm), "\n"), "---", "", note.Text, ""}
	if len(refs) > 0 {
		lines = append(lines, "## Original Pages")
		for _, r := range refs {
			lines = append(lines, r, "")
		}
	}
	return []byte(strings.Join(lines, "\n")), nil
}

// copyFile copies src to dst and carries over the modification time.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".attach-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	_, copyErr := io.Copy(tmp, in)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(tmpPath)
		if copyErr != nil {
			return copyErr
		}
		return closeErr
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".note-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(tmpPath)
		if writeErr != nil {
			return writeErr
		}
		return closeErr
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
