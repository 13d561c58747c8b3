// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package publish delivers recognized notebooks to their destinations. Every
// destination replaces an existing note with the same title rather than
// adding a second one.
package publish

import (
	"context"
	"fmt"
	"io"

	"github.com/pdiddy/inkbridge/internal/hostexec"
	"github.com/pdiddy/inkbridge/pkg/types"
)

// Note is one notebook ready to publish.
type Note struct {
	// Title is the display title, "<path> / <name>".
	Title string

	// Text is the body, already stripped of the artifact header.
	Text string

	// Images are the original page image paths, in page order.
	Images []string

	// SubFolder is the sanitized top-level folder, or "" for root notebooks.
	SubFolder string
}

// Destination publishes notes to one target. Publish returning nil means the
// note is visible at the target with exactly this content.
type Destination interface {
	Name() string
	Publish(ctx context.Context, note Note) error
}

// Options carries what destinations need beyond their own config.
type Options struct {
	Exec hostexec.Executor
	Log  io.Writer

	// FolderOverride replaces FolderName for every notes destination.
	FolderOverride string
}

// New builds the destination for cfg. cfg must already be normalized.
func New(cfg types.DestinationConfig, opts Options) (Destination, error) {
	switch cfg.Type {
	case types.DestinationAppleNotes:
		folder := cfg.FolderName
		if opts.FolderOverride != "" {
			folder = opts.FolderOverride
		}
		return NewNotes(cfg.Name, folder, cfg.Timeout, opts.Exec, opts.Log)
	case types.DestinationObsidian:
		return NewVault(cfg.Name, cfg.VaultPath, cfg.AttachmentsFolder, opts.Log)
	default:
		return nil, fmt.Errorf("%w: unknown destination type %q", types.ErrInvalidConfig, cfg.Type)
	}
}

// FromConfig builds every configured destination in order, stopping at the
// first construction error.
func FromConfig(cfgs []types.DestinationConfig, opts Options) ([]Destination, error) {
	dests := make([]Destination, 0, len(cfgs))
	for _, c := range cfgs {
		d, err := New(c, opts)
		if err != nil {
			return nil, fmt.Errorf("destination %s: %w", c.Name, err)
		}
		dests = append(dests, d)
	}
	return dests, nil
}
