package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"distributed-bnb/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testResult() *domain.SolveResult {
	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &domain.SolveResult{
		SolveID:     "s1",
		Objective:   math.Inf(-1),
		Bound:       math.Inf(-1),
		Termination: domain.TerminationNoNodes,
		Explored:    7,
		StartedAt:   started,
		FinishedAt:  started.Add(time.Second),
	}
}

func TestWebhookNotifierPostsResult(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, RetryPolicy{}, discardLogger())
	require.NoError(t, n.Notify(context.Background(), testResult()))

	assert.Equal(t, "s1", got["solve_id"])
	assert.Equal(t, "-Inf", got["objective"])
	assert.Equal(t, "no_nodes", got["termination"])
	assert.Equal(t, float64(7), got["explored_nodes"])
	assert.Equal(t, "2024-05-01T12:00:01Z", got["finished_at"])
}

func TestWebhookNotifierRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, RetryPolicy{MaxRetries: 3, Backoff: time.Millisecond}, discardLogger())
	require.NoError(t, n.Notify(context.Background(), testResult()))
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhookNotifierGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, RetryPolicy{MaxRetries: 2, Backoff: time.Millisecond}, discardLogger())
	err := n.Notify(context.Background(), testResult())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 retries")
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhookNotifierDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, RetryPolicy{MaxRetries: 5, Backoff: time.Millisecond}, discardLogger())
	err := n.Notify(context.Background(), testResult())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-retriable")
	assert.Equal(t, int32(1), calls.Load())
}
