// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package hostexec runs host programs (the page renderer, osascript) behind
// an interface so callers can be tested without them.
package hostexec

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Executor runs one external command.
type Executor interface {
	// LookPath reports where file is on PATH.
	LookPath(file string) (string, error)

	// Run executes name with args, piping stdin and stdout. A non-zero exit
	// is an *ExitError carrying the trimmed stderr.
	Run(ctx context.Context, name string, args []string, stdin io.Reader, stdout io.Writer) error
}

// ExitError is a command that ran and failed.
type ExitError struct {
	Name   string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Name, e.Code)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// OS is the production Executor backed by os/exec.
type OS struct{}

func (OS) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (OS) Run(ctx context.Context, name string, args []string, stdin io.Reader, stdout io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("running %s: %w", name, ctx.Err())
	}
	if ee, ok := err.(*exec.ExitError); ok {
		return &ExitError{Name: name, Code: ee.ExitCode(), Stderr: strings.TrimSpace(stderr.String())}
	}
	return fmt.Errorf("running %s: %w", name, err)
}
