// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package runlog writes the per-run event log. Every line goes to the console
// as-is and to the log file with a timestamp prefix. The file is truncated
// when the log is opened, so each run's log stands alone.
package runlog

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Log is an io.Writer that fans out complete lines to a console writer and a
// timestamped file.
type Log struct {
	mu      sync.Mutex
	console io.Writer
	file    io.WriteCloser
	now     func() time.Time
	pending []byte

	// held collects file lines written before Attach on a deferred Log.
	held     [][]byte
	deferred bool
}

// Open truncates (or creates) the log at path and returns a Log that also
// echoes to console. A nil console discards console output.
func Open(path string, console io.Writer) (*Log, error) {
	f, err := openFile(path)
	if err != nil {
		return nil, err
	}
	return New(console, f, time.Now), nil
}

// Deferred returns a Log that echoes to console immediately but holds its
// file lines until Attach. Nothing touches the previous run's log until then.
func Deferred(console io.Writer) *Log {
	l := New(console, nil, time.Now)
	l.deferred = true
	return l
}

// Attach truncates the log at path and writes the held lines to it. Later
// lines go straight to the file.
func (l *Log) Attach(path string) error {
	f, err := openFile(path)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.held {
		if _, err := f.Write(line); err != nil {
			f.Close()
			return fmt.Errorf("writing run log %s: %w", path, err)
		}
	}
	l.held = nil
	l.deferred = false
	l.file = f
	return nil
}

func openFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening run log %s: %w", path, err)
	}
	return f, nil
}

// New builds a Log over arbitrary writers.
func New(console io.Writer, file io.WriteCloser, now func() time.Time) *Log {
	if console == nil {
		console = io.Discard
	}
	return &Log{console: console, file: file, now: now}
}

// Write buffers partial lines and emits each complete line.
func (l *Log) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pending = append(l.pending, p...)
	for {
		i := bytes.IndexByte(l.pending, '\n')
		if i < 0 {
			break
		}
		if err := l.emit(l.pending[:i]); err != nil {
			return 0, err
		}
		l.pending = l.pending[i+1:]
	}
	return len(p), nil
}

// Printf formats one event. A trailing newline is added when missing.
func (l *Log) Printf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if len(msg) == 0 || msg[len(msg)-1] != '\n' {
		msg += "\n"
	}
	l.Write([]byte(msg))
}

func (l *Log) emit(line []byte) error {
	if _, err := fmt.Fprintf(l.console, "%s\n", line); err != nil {
		return err
	}
	stamped := fmt.Sprintf("%s %s\n", l.now().Format(time.RFC3339), line)
	if l.file == nil {
		if l.deferred {
			l.held = append(l.held, []byte(stamped))
		}
		return nil
	}
	_, err := io.WriteString(l.file, stamped)
	return err
}

// Close flushes a trailing partial line and closes the file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.pending) > 0 {
		l.emit(l.pending)
		l.pending = nil
	}
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
