// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package publish

import (
	"context"
	"fmt"
	"html"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdiddy/inkbridge/internal/hostexec"
	"github.com/pdiddy/inkbridge/internal/httputil"
	"github.com/pdiddy/inkbridge/internal/imaging"
	"github.com/pdiddy/inkbridge/pkg/types"
)

// notesScript never embeds a value. Everything user-controlled arrives as a
// run handler argument: root folder, sub-folder ("" for none), note name,
// HTML body, then one POSIX path per attachment.
const notesScript = `on run argv
	set rootFolderName to item 1 of argv
	set subFolderName to item 2 of argv
	set noteName to item 3 of argv
	set noteBody to item 4 of argv
	tell application "Notes"
		if not (exists folder rootFolderName) then
			make new folder with properties {name:rootFolderName}
		end if
		set rootFolder to folder rootFolderName
		set targetFolder to rootFolder
		if subFolderName is not "" then
			if not (exists folder subFolderName of rootFolder) then
				make new folder at rootFolder with properties {name:subFolderName}
			end if
			set targetFolder to folder subFolderName of rootFolder
		end if
		try
			delete (every note in targetFolder whose name is noteName)
		end try
		set newNote to make new note at targetFolder with properties {name:noteName, body:noteBody}
		repeat with i from 5 to count of argv
			make new attachment at end of attachments of newNote with data (POSIX file (item i of argv))
		end repeat
	end tell
end run`

const (
	osascript = "osascript"

	notesAttempts   = 3
	notesRetryDelay = 2 * time.Second

	blankLine = "<div><br></div>"
)

// NotesDestination publishes to the macOS Notes application through osascript.
type NotesDestination struct {
	name    string
	folder  string
	timeout time.Duration
	exec    hostexec.Executor
	log     io.Writer

	// Policy retries the whole create-note call.
	Policy httputil.Policy
}

// NewNotes checks that osascript is available.
func NewNotes(name, folder string, timeout time.Duration, exec hostexec.Executor, w io.Writer) (*NotesDestination, error) {
	if exec == nil {
		exec = hostexec.OS{}
	}
	if _, err := exec.LookPath(osascript); err != nil {
		return nil, fmt.Errorf("%w: %s not found; the %s destination needs macOS", types.ErrInvalidConfig, osascript, types.DestinationAppleNotes)
	}
	if w == nil {
		w = io.Discard
	}
	return &NotesDestination{
		name:    name,
		folder:  folder,
		timeout: timeout,
		exec:    exec,
		log:     w,
		Policy:  httputil.Fixed(notesAttempts, notesRetryDelay),
	}, nil
}

// Name returns the configured destination name.
func (d *NotesDestination) Name() string { return d.name }

// Folder returns the root Notes folder.
func (d *NotesDestination) Folder() string { return d.folder }

// Publish deletes any note titled note.Title in the target folder and creates
// it afresh with the body and attachments.
func (d *NotesDestination) Publish(ctx context.Context, note Note) error {
	args := append([]string{"-e", notesScript}, d.Args(note)...)

	policy := d.Policy
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		fmt.Fprintf(d.log, "  Notes automation error (attempt %d/%d): %v\n", attempt, policy.MaxAttempts, err)
	}
	err := policy.Do(ctx, func(ctx context.Context, _ int) error {
		if d.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d.timeout)
			defer cancel()
		}
		return d.exec.Run(ctx, osascript, args, nil, io.Discard)
	})
	if err != nil {
		return fmt.Errorf("creating note %q: %w", note.Title, err)
	}
	fmt.Fprintf(d.log, "Apple Note created for %s\n", note.Title)
	return nil
}

// Args returns the run handler arguments for note.
func (d *NotesDestination) Args(note Note) []string {
	args := []string{d.folder, note.SubFolder, note.Title, blankLine + NotesHTML(note.Text)}
	for _, img := range note.Images {
		if _, err := os.Stat(img); err != nil {
			continue
		}
		path, err := imaging.Cached(img)
		if err != nil {
			fmt.Fprintf(d.log, "  warning: could not flatten %s: %v; using original\n", filepath.Base(img), err)
			path = img
		}
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		args = append(args, path)
	}
	return args
}

// NotesHTML converts plain text to the Notes body format: one <div> per line,
// with blank lines kept as explicit breaks.
func NotesHTML(text string) string {
	text = strings.TrimLeft(text, " \t\r\n\v\f")
	var b strings.Builder
	for _, line := range splitLines(text) {
		if line == "" {
			b.WriteString(blankLine)
			continue
		}
		b.WriteString("<div>")
		b.WriteString(html.EscapeString(line))
		b.WriteString("</div>")
	}
	return b.String()
}

// splitLines splits on \n, \r\n or \r without yielding a trailing empty line.
func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}
