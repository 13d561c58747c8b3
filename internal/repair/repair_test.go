// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package repair

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/inkbridge/pkg/types"
)

func TestChatClientComplete(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  fixed text  "}}]}`))
	}))
	defer srv.Close()

	c := &ChatClient{Client: srv.Client(), APIKey: "sk-test", Model: "gpt-4o-mini", Endpoint: srv.URL}
	out, err := c.Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "  fixed text  ", out)

	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.InDelta(t, 0.2, got.Temperature, 1e-9)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, systemPrompt, got.Messages[0].Content)
	assert.Equal(t, "prompt", got.Messages[1].Content)
}

func TestChatClientHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := &ChatClient{Client: srv.Client(), Endpoint: srv.URL}
	_, err := c.Complete(context.Background(), "p")
	assert.ErrorContains(t, err, "HTTP 401")
}

type stubChat struct {
	out    string
	err    error
	prompt string
}

func (s *stubChat) Complete(_ context.Context, prompt string) (string, error) {
	s.prompt = prompt
	return s.out, s.err
}

func TestRepair(t *testing.T) {
	tests := []struct {
		name string
		chat *stubChat
		in   string
		want string
	}{
		{"cleaned and trimmed", &stubChat{out: " Hello world.\n"}, "helo wrld", "Hello world."},
		{"call failure falls back", &stubChat{err: errors.New("timeout")}, "raw", "raw"},
		{"empty reply falls back", &stubChat{out: ""}, "raw", "raw"},
		{"blank input untouched", &stubChat{out: "never"}, "  \n", "  \n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Repairer{Chat: tt.chat, Instructions: DefaultInstructions, Log: &bytes.Buffer{}}
			if got := r.Repair(context.Background(), tt.in); got != tt.want {
				t.Errorf("Repair(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRepairPromptIncludesInstructions(t *testing.T) {
	chat := &stubChat{out: "ok"}
	r := &Repairer{Chat: chat, Instructions: "Fix spelling."}
	r.Repair(context.Background(), "teh text")
	assert.Equal(t, "Fix spelling.\n\nTEXT:\nteh text", chat.prompt)
}

func TestNewPassThrough(t *testing.T) {
	var log bytes.Buffer
	r := New(types.RepairConfig{Enabled: true}, nil, &log)
	assert.Nil(t, r.Chat)
	assert.Equal(t, "raw", r.Repair(context.Background(), "raw"))
	assert.Contains(t, log.String(), "no repair API key")

	log.Reset()
	r = New(types.RepairConfig{Enabled: false, APIKey: "sk"}, nil, &log)
	assert.Nil(t, r.Chat)
	assert.Contains(t, log.String(), "disabled")

	r = New(types.RepairConfig{Enabled: true, APIKey: "sk", Model: "m"}, nil, &log)
	assert.NotNil(t, r.Chat)
}

func TestLoadInstructions(t *testing.T) {
	assert.Equal(t, DefaultInstructions, LoadInstructions(""))
	assert.Equal(t, DefaultInstructions, LoadInstructions(filepath.Join(t.TempDir(), "missing.txt")))

	path := filepath.Join(t.TempDir(), "prompt.txt")
	require.NoError(t, os.WriteFile(path, []byte("  Keep bullet points.\n"), 0o644))
	assert.Equal(t, "Keep bullet points.", LoadInstructions(path))
}
