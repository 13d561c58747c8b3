// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package repair runs the best-effort language-model cleanup of OCR text.
// Every failure path returns the input unchanged.
package repair

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/pdiddy/inkbridge/pkg/types"
)

// DefaultInstructions is used when no prompt file is configured or readable.
const DefaultInstructions = "Clean this OCR text."

// Completer sends one prompt and returns the model's reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Repairer implements ocr.Repairer.
type Repairer struct {
	// Chat is nil when repair is disabled or no key is configured.
	Chat         Completer
	Instructions string
	Log          io.Writer
}

// New builds a Repairer from config. Disabled repair or a missing key yields
// a pass-through Repairer and a log line, never an error.
func New(cfg types.RepairConfig, client *http.Client, w io.Writer) *Repairer {
	r := &Repairer{Instructions: LoadInstructions(cfg.PromptFile), Log: w}
	switch {
	case !cfg.Enabled:
		fmt.Fprintf(w, "Text repair disabled\n")
	case cfg.APIKey == "":
		fmt.Fprintf(w, "warning: no repair API key set; skipping text cleanup\n")
	default:
		r.Chat = &ChatClient{Client: client, APIKey: cfg.APIKey, Model: cfg.Model, Endpoint: cfg.Endpoint}
	}
	return r
}

// LoadInstructions reads and trims path, falling back to DefaultInstructions.
func LoadInstructions(path string) string {
	if path == "" {
		return DefaultInstructions
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultInstructions
	}
	if s := strings.TrimSpace(string(data)); s != "" {
		return s
	}
	return DefaultInstructions
}

// Repair returns the cleaned text, or text itself when repair is off, the
// input is blank, the call fails, or the reply is empty.
func (r *Repairer) Repair(ctx context.Context, text string) string {
	if r.Chat == nil || strings.TrimSpace(text) == "" {
		return text
	}
	prompt := r.Instructions + "\n\nTEXT:\n" + text
	out, err := r.Chat.Complete(ctx, prompt)
	if err != nil {
		if r.Log != nil {
			fmt.Fprintf(r.Log, "  warning: text repair failed: %v\n", err)
		}
		return text
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return text
	}
	return out
}
