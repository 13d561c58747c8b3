// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "strings"

// ItemType distinguishes folders from documents in the remote listing.
type ItemType string

const (
	ItemFolder   ItemType = "CollectionType"
	ItemDocument ItemType = "DocumentType"
)

// Parent sentinels.
const (
	ParentRoot  = ""
	ParentTrash = "trash"
)

// MetadataItem is one remote document or folder, normalized from whatever
// shape the source returned. Items are fetched fresh every run and never
// persisted.
type MetadataItem struct {
	ID          string   `json:"id" yaml:"id"`
	VisibleName string   `json:"visible_name" yaml:"visible_name"`
	Type        ItemType `json:"type" yaml:"type"`

	// ParentID is another item's ID, ParentRoot, or ParentTrash.
	ParentID string `json:"parent_id" yaml:"parent_id"`

	// FileExtensions lists the extensions of files attached to the item
	// (".pdf", ".epub", ".rm"). Used to tell imported documents from notebooks.
	FileExtensions []string `json:"file_extensions,omitempty" yaml:"file_extensions,omitempty"`

	// Hash is the content hash, preferred as fingerprint when non-empty.
	Hash string `json:"hash,omitempty" yaml:"hash,omitempty"`

	// Version is the legacy revision number, nil when the source omits it.
	Version *int64 `json:"version,omitempty" yaml:"version,omitempty"`
}

// Name returns the trimmed visible name.
func (m MetadataItem) Name() string {
	return strings.TrimSpace(m.VisibleName)
}

// Fingerprint returns the content hash if present, else the revision number,
// else revision 1.
func (m MetadataItem) Fingerprint() Fingerprint {
	if m.Hash != "" {
		return HashFingerprint(m.Hash)
	}
	if m.Version != nil {
		return RevisionFingerprint(*m.Version)
	}
	return RevisionFingerprint(1)
}

// Notebook is a candidate native notebook with its resolved folder path.
type Notebook struct {
	Item MetadataItem

	// Path lists ancestor folder names from the root down, excluding the
	// notebook itself.
	Path []string
}

// PathString joins the folder path with " / ".
func (n Notebook) PathString() string {
	return strings.Join(n.Path, " / ")
}

// Title is "<path> / <name>", or just the name for root-level notebooks.
func (n Notebook) Title() string {
	if len(n.Path) == 0 {
		return n.Item.Name()
	}
	return n.PathString() + " / " + n.Item.Name()
}

// SafeName is the notebook name with path separators and spaces replaced, used
// for cache and artifact filenames.
func (n Notebook) SafeName() string {
	return SafeFilename(n.Item.Name())
}

// TopFolder returns the sanitized top-level folder name, or "" at the root.
func (n Notebook) TopFolder() string {
	if len(n.Path) == 0 {
		return ""
	}
	return SafeFilename(n.Path[0])
}

var safeFilenameReplacer = strings.NewReplacer("/", "_", `\`, "_", " ", "_")

// SafeFilename replaces '/', '\' and ' ' with '_'. The result is always a
// single path element: "." and ".." become "_" and "__".
func SafeFilename(name string) string {
	out := safeFilenameReplacer.Replace(name)
	if out == "." || out == ".." {
		return strings.Repeat("_", len(out))
	}
	return out
}

// WorkItem is one notebook scheduled for this run, with the destinations that
// still need it.
type WorkItem struct {
	Notebook

	// Destinations lists destination names in configuration order.
	Destinations []string

	// Forced is set when the notebook was named explicitly and every
	// destination was already up to date.
	Forced bool
}

// NotebookStatus is the per-notebook state machine position.
type NotebookStatus string

const (
	StatusPending         NotebookStatus = "pending"
	StatusAcquiring       NotebookStatus = "acquiring"
	StatusRecognizing     NotebookStatus = "recognizing"
	StatusPublishing      NotebookStatus = "publishing"
	StatusCompleted       NotebookStatus = "completed"
	StatusPartiallyFailed NotebookStatus = "partially_failed"
	StatusFailed          NotebookStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s NotebookStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusPartiallyFailed || s == StatusFailed
}
