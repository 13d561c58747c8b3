// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline runs one sync: list the library, resolve what each
// destination still needs, then acquire, recognize and publish notebook by
// notebook.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pdiddy/inkbridge/internal/acquire"
	"github.com/pdiddy/inkbridge/internal/changeset"
	"github.com/pdiddy/inkbridge/internal/history"
	"github.com/pdiddy/inkbridge/internal/metadata"
	"github.com/pdiddy/inkbridge/internal/ocr"
	"github.com/pdiddy/inkbridge/internal/publish"
	"github.com/pdiddy/inkbridge/pkg/types"
)

// Lister returns the full remote item listing.
type Lister interface {
	ListAllItems(ctx context.Context) ([]types.MetadataItem, error)
}

// Acquirer returns a notebook's page images.
type Acquirer interface {
	Acquire(ctx context.Context, nb types.Notebook) (acquire.Pages, error)
}

// libraryAware acquirers locate documents within the current listing.
type libraryAware interface {
	SetLibrary(items []types.MetadataItem)
}

// Recognizer turns page images into raw and repaired text.
type Recognizer interface {
	Run(ctx context.Context, images []string) ocr.Result
}

// StateStore is the per-destination version state.
type StateStore interface {
	changeset.StateReader
	Set(destination, documentID string, fp types.Fingerprint) error
}

// Recorder receives every publish attempt.
type Recorder interface {
	RecordPublish(ctx context.Context, p history.Publish) error
}

// Config wires an Orchestrator. Destinations are plain data here; nothing is
// registered globally.
type Config struct {
	Source       Lister
	Acquirer     Acquirer
	OCR          Recognizer
	States       StateStore
	Destinations []publish.Destination

	// History is optional.
	History Recorder

	// OutputDir receives the raw and clean text artifacts.
	OutputDir string

	// Limit is the default per-run notebook limit.
	Limit int

	Log io.Writer
}

// Options tune one Run.
type Options struct {
	// Notebook processes only this notebook, forcing it if up to date.
	Notebook string

	// Limit overrides Config.Limit when positive.
	Limit int

	// DryRun resolves the work list without acquiring or publishing.
	DryRun bool

	// RunID tags history records.
	RunID string
}

// Orchestrator drives the per-notebook state machine.
type Orchestrator struct {
	cfg   Config
	dests map[string]publish.Destination
	names []string
}

// New checks cfg and indexes the destinations by name.
func New(cfg Config) (*Orchestrator, error) {
	var missing []string
	if cfg.Source == nil {
		missing = append(missing, "source")
	}
	if cfg.Acquirer == nil {
		missing = append(missing, "acquirer")
	}
	if cfg.OCR == nil {
		missing = append(missing, "ocr")
	}
	if cfg.States == nil {
		missing = append(missing, "state store")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("pipeline: missing %s", strings.Join(missing, ", "))
	}
	if len(cfg.Destinations) == 0 {
		return nil, fmt.Errorf("%w: no destinations configured", types.ErrInvalidConfig)
	}
	if cfg.Log == nil {
		cfg.Log = io.Discard
	}

	o := &Orchestrator{cfg: cfg, dests: make(map[string]publish.Destination, len(cfg.Destinations))}
	for _, d := range cfg.Destinations {
		if _, dup := o.dests[d.Name()]; dup {
			return nil, fmt.Errorf("%w: duplicate destination name %q", types.ErrInvalidConfig, d.Name())
		}
		o.dests[d.Name()] = d
		o.names = append(o.names, d.Name())
	}
	return o, nil
}

// SetHistory attaches the publish ledger after construction, once the run
// has been registered there.
func (o *Orchestrator) SetHistory(r Recorder) {
	o.cfg.History = r
}

// DestinationNames returns the destination names in configuration order.
func (o *Orchestrator) DestinationNames() []string {
	return append([]string(nil), o.names...)
}

// Plan lists the library and resolves the work list without side effects.
func (o *Orchestrator) Plan(ctx context.Context, opts Options) (Report, error) {
	log := o.cfg.Log
	items, err := o.cfg.Source.ListAllItems(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("listing library: %w", err)
	}
	if la, ok := o.cfg.Acquirer.(libraryAware); ok {
		la.SetLibrary(items)
	}

	res := metadata.NewGraph(items).Notebooks()
	if res.SkippedNonNative > 0 {
		fmt.Fprintf(log, "Skipped %d non-native documents (PDFs/EPUBs)\n", res.SkippedNonNative)
	}

	limit := o.cfg.Limit
	if opts.Limit > 0 {
		limit = opts.Limit
	}
	work, err := changeset.Resolve(res.Notebooks, o.names, o.cfg.States, changeset.Options{Limit: limit, Notebook: opts.Notebook})
	if err != nil {
		return Report{}, err
	}
	return Report{
		Candidates:       len(res.Notebooks),
		SkippedNonNative: res.SkippedNonNative,
		Work:             work,
		DryRun:           opts.DryRun,
	}, nil
}

// Run plans and then processes every work item in order. The returned error
// is non-nil only when nothing could be planned; per-notebook and
// per-destination failures are in the Report.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (Report, error) {
	log := o.cfg.Log
	report, err := o.Plan(ctx, opts)
	if err != nil {
		return report, err
	}

	if len(report.Work) == 0 {
		fmt.Fprintf(log, "All notebooks are up to date.\n")
		return report, nil
	}
	fmt.Fprintf(log, "Found %d notebooks needing updates.\n", len(report.Work))

	if opts.DryRun {
		for _, w := range report.Work {
			fmt.Fprintf(log, "Would process %s -> %s\n", w.Title(), strings.Join(w.Destinations, ", "))
		}
		return report, nil
	}

	for _, w := range report.Work {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Outcomes = append(report.Outcomes, o.Process(ctx, w, opts.RunID))
	}
	return report, nil
}

// Process takes one notebook from Pending to a terminal status. Each
// destination's state is written the moment that destination succeeds.
func (o *Orchestrator) Process(ctx context.Context, w types.WorkItem, runID string) Outcome {
	log := o.cfg.Log
	nb := w.Notebook
	out := Outcome{Notebook: nb, Status: types.StatusPending}
	fmt.Fprintf(log, "Processing notebook: %s (ID: %s)\n", nb.Title(), nb.Item.ID)
	if w.Forced {
		fmt.Fprintf(log, "  Forced: every destination is already current\n")
	}

	out.Status = types.StatusAcquiring
	pages, err := o.cfg.Acquirer.Acquire(ctx, nb)
	if err != nil {
		return o.fail(out, fmt.Errorf("acquiring: %w", err))
	}

	out.Status = types.StatusRecognizing
	res := o.cfg.OCR.Run(ctx, pages.Prepared)
	arts, err := ocr.WriteArtifacts(o.cfg.OutputDir, nb.SafeName(), ocr.Header{Notebook: nb.Item.Name(), Images: pages.Names()}, res)
	if err != nil {
		return o.fail(out, fmt.Errorf("writing text artifacts: %w", err))
	}
	fmt.Fprintf(log, "Raw OCR text saved to %s\n", arts.RawPath)
	fmt.Fprintf(log, "Cleaned OCR text saved to %s\n", arts.CleanPath)
	body, err := ocr.ReadPublishBody(arts.CleanPath)
	if err != nil {
		return o.fail(out, fmt.Errorf("reading clean text: %w", err))
	}

	out.Status = types.StatusPublishing
	note := publish.Note{
		Title:     nb.Title(),
		Text:      body,
		Images:    pages.Originals,
		SubFolder: nb.TopFolder(),
	}
	fp := nb.Item.Fingerprint()
	for _, name := range w.Destinations {
		dr := DestinationResult{Name: name}
		dest, ok := o.dests[name]
		if !ok {
			dr.Err = fmt.Errorf("destination %q is not configured", name)
		} else {
			fmt.Fprintf(log, "Publishing to %s...\n", name)
			dr.Err = dest.Publish(ctx, note)
			if dr.Err == nil {
				if serr := o.cfg.States.Set(name, nb.Item.ID, fp); serr != nil {
					dr.Err = fmt.Errorf("published but state not saved: %w", serr)
				}
			}
		}
		if dr.Err != nil {
			fmt.Fprintf(log, "Failed to publish to %s: %v\n", name, dr.Err)
		}
		o.record(ctx, runID, nb, fp, dr)
		out.Destinations = append(out.Destinations, dr)
	}

	switch failed := out.FailedCount(); {
	case failed == 0:
		out.Status = types.StatusCompleted
		fmt.Fprintf(log, "Notebook %s processing complete.\n", nb.Item.Name())
	case failed < len(out.Destinations):
		out.Status = types.StatusPartiallyFailed
		fmt.Fprintf(log, "Notebook %s processing FAILED for %d of %d destinations.\n", nb.Item.Name(), failed, len(out.Destinations))
	default:
		out.Status = types.StatusFailed
		fmt.Fprintf(log, "Notebook %s processing FAILED.\n", nb.Item.Name())
	}
	return out
}

func (o *Orchestrator) fail(out Outcome, err error) Outcome {
	out.Status = types.StatusFailed
	out.Err = err
	fmt.Fprintf(o.cfg.Log, "Notebook %s processing FAILED: %v\n", out.Notebook.Item.Name(), err)
	return out
}

func (o *Orchestrator) record(ctx context.Context, runID string, nb types.Notebook, fp types.Fingerprint, dr DestinationResult) {
	if o.cfg.History == nil {
		return
	}
	p := history.Publish{
		RunID:       runID,
		NotebookID:  nb.Item.ID,
		Title:       nb.Title(),
		Destination: dr.Name,
		Fingerprint: fp.String(),
		Success:     dr.Err == nil,
	}
	if dr.Err != nil {
		p.Error = dr.Err.Error()
	}
	if err := o.cfg.History.RecordPublish(ctx, p); err != nil {
		fmt.Fprintf(o.cfg.Log, "  warning: history not recorded: %v\n", err)
	}
}

// IsNotFound reports whether err means the requested notebook does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, changeset.ErrNotebookNotFound)
}
