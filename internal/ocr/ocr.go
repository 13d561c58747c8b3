// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ocr recognizes page images, runs the optional repair pass, and
// writes the per-notebook text artifacts.
package ocr

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pdiddy/inkbridge/internal/httputil"
)

// Recognizer extracts text from one image.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// Repairer cleans recognized text. It never fails; on any problem it returns
// its input.
type Repairer interface {
	Repair(ctx context.Context, text string) string
}

// Result holds per-page text, Raw[i] and Clean[i] for page i+1. Entries are
// never missing; a failed page has "".
type Result struct {
	Raw   []string
	Clean []string
}

// Stage runs recognition and repair page by page.
type Stage struct {
	OCR Recognizer

	// Repair is optional. Nil copies raw text to Clean.
	Repair Repairer

	// Policy governs OCR retries per page.
	Policy httputil.Policy

	// Timeout bounds each OCR attempt. Zero means no per-attempt bound.
	Timeout time.Duration

	Log io.Writer
}

// Run recognizes and repairs every image in order.
func (s *Stage) Run(ctx context.Context, images []string) Result {
	res := Result{Raw: make([]string, len(images)), Clean: make([]string, len(images))}
	for i, path := range images {
		name := filepath.Base(path)
		fmt.Fprintf(s.Log, "Vision OCR: %s\n", name)
		raw, err := s.RecognizeFile(ctx, path)
		if err != nil {
			fmt.Fprintf(s.Log, "Vision failed for %s: %v\n", name, err)
		}
		res.Raw[i] = raw

		if s.Repair == nil {
			res.Clean[i] = raw
			continue
		}
		fmt.Fprintf(s.Log, "  Cleaning text for %s...\n", name)
		res.Clean[i] = s.Repair.Repair(ctx, raw)
	}
	return res
}

// RecognizeFile reads path and recognizes it under the retry policy. The
// returned text is "" whenever err is non-nil.
func (s *Stage) RecognizeFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}

	policy := s.Policy
	if policy.OnRetry == nil {
		policy.OnRetry = func(attempt int, delay time.Duration, err error) {
			fmt.Fprintf(s.Log, "  Vision attempt %d failed (%v); retrying in %s\n", attempt, err, delay)
		}
	}

	var text string
	err = policy.Do(ctx, func(ctx context.Context, _ int) error {
		if s.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.Timeout)
			defer cancel()
		}
		t, err := s.OCR.Recognize(ctx, data)
		if err != nil {
			return err
		}
		text = t
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}
