// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"fmt"
	"io"

	"github.com/pdiddy/inkbridge/pkg/types"
)

// DestinationResult is one publish attempt. Err nil means success.
type DestinationResult struct {
	Name string
	Err  error
}

// Outcome is the terminal state of one notebook.
type Outcome struct {
	Notebook     types.Notebook
	Status       types.NotebookStatus
	Destinations []DestinationResult

	// Err is set when the notebook failed before publishing.
	Err error
}

// FailedCount returns the number of destinations that failed.
func (o Outcome) FailedCount() int {
	n := 0
	for _, d := range o.Destinations {
		if d.Err != nil {
			n++
		}
	}
	return n
}

// Report summarizes a run.
type Report struct {
	Candidates       int
	SkippedNonNative int
	Work             []types.WorkItem
	Outcomes         []Outcome
	DryRun           bool
}

// Count returns how many outcomes ended in status.
func (r Report) Count(status types.NotebookStatus) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// HasFailures reports whether any notebook did not complete.
func (r Report) HasFailures() bool {
	return r.Count(types.StatusCompleted) < len(r.Outcomes)
}

// PrintSummary writes the one-line batch summary.
func (r Report) PrintSummary(w io.Writer) {
	if r.DryRun {
		fmt.Fprintf(w, "\nDry run: %d of %d notebooks need updates\n", len(r.Work), r.Candidates)
		return
	}
	fmt.Fprintf(w, "\nSync summary: %d completed, %d partially failed, %d failed (total: %d)\n",
		r.Count(types.StatusCompleted), r.Count(types.StatusPartiallyFailed), r.Count(types.StatusFailed), len(r.Outcomes))
}
