// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httputil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordSleep collects requested delays without waiting.
type recordSleep struct {
	delays []time.Duration
}

func (r *recordSleep) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func TestPolicy_ImmediateSuccess(t *testing.T) {
	rec := &recordSleep{}
	p := Exponential(3)
	p.Sleep = rec.sleep

	calls := 0
	err := p.Do(context.Background(), func(context.Context, int) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.delays)
}

func TestPolicy_ExponentialBackoffThenSuccess(t *testing.T) {
	rec := &recordSleep{}
	p := Exponential(3)
	p.Sleep = rec.sleep

	var attempts []int
	err := p.Do(context.Background(), func(_ context.Context, attempt int) error {
		attempts = append(attempts, attempt)
		if attempt < 3 {
			return &StatusError{Service: "vision", StatusCode: http.StatusServiceUnavailable}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.delays)
}

func TestPolicy_ExhaustsAttempts(t *testing.T) {
	rec := &recordSleep{}
	p := Exponential(3)
	p.Sleep = rec.sleep

	var retried []int
	p.OnRetry = func(attempt int, _ time.Duration, _ error) { retried = append(retried, attempt) }

	calls := 0
	err := p.Do(context.Background(), func(context.Context, int) error {
		calls++
		return &StatusError{Service: "vision", StatusCode: http.StatusTooManyRequests}
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
	assert.Len(t, rec.delays, 2, "no wait after the final attempt")

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
}

func TestPolicy_PermanentErrorStopsImmediately(t *testing.T) {
	rec := &recordSleep{}
	p := Exponential(3)
	p.Sleep = rec.sleep

	calls := 0
	err := p.Do(context.Background(), func(context.Context, int) error {
		calls++
		return &StatusError{Service: "vision", StatusCode: http.StatusForbidden}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.delays)
}

func TestPolicy_FixedRetriesEveryError(t *testing.T) {
	rec := &recordSleep{}
	p := Fixed(3, 2*time.Second)
	p.Sleep = rec.sleep

	calls := 0
	err := p.Do(context.Background(), func(context.Context, int) error {
		calls++
		return fmt.Errorf("osascript exit 1")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, rec.delays)
}

func TestPolicy_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Fixed(5, time.Hour)
	p.Sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return SleepContext(ctx, d)
	}

	err := p.Do(ctx, func(context.Context, int) error { return errors.New("boom") })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPolicy_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	err := Policy{}.Do(context.Background(), func(context.Context, int) error {
		calls++
		return errors.New("x")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"429", &StatusError{StatusCode: 429}, true},
		{"500", &StatusError{StatusCode: 500}, true},
		{"503 wrapped", fmt.Errorf("vision: %w", &StatusError{StatusCode: 503}), true},
		{"401", &StatusError{StatusCode: 401}, false},
		{"400", &StatusError{StatusCode: 400}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"cancelled", context.Canceled, false},
		{"plain", errors.New("decode failure"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransient_TransportError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := ts.URL
	ts.Close()

	_, err := http.Get(url)
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestCheckResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ok" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, "  bad key \n")
	}))
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/ok")
	require.NoError(t, err)
	resp.Body.Close()
	assert.NoError(t, CheckResponse(resp, "svc"))

	resp, err = ts.Client().Get(ts.URL + "/denied")
	require.NoError(t, err)
	defer resp.Body.Close()
	err = CheckResponse(resp, "svc")

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Equal(t, "bad key", se.Body)
	assert.Equal(t, "svc returned HTTP 401: bad key", err.Error())
}
