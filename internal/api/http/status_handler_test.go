package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"distributed-bnb/internal/dispatcher"
	"distributed-bnb/internal/domain"
	"distributed-bnb/internal/domain/mocks"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStatus struct {
	stats dispatcher.Stats
	err   error
}

func (f *fakeStatus) Stats(context.Context) (dispatcher.Stats, error) { return f.stats, f.err }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func do(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	h := NewStatusHandler("s1", &fakeStatus{}, nil, nil, discardLogger()).Routes()
	rec := do(t, h, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"solve_id":"s1"`)
}

func TestStatusEncodesInfinity(t *testing.T) {
	started := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	status := &fakeStatus{stats: dispatcher.Stats{
		Initialized:   true,
		Sense:         "minimize",
		Strategy:      domain.StrategyBound,
		BestObjective: math.Inf(1),
		Bound:         3,
		AbsoluteGap:   math.Inf(1),
		RelativeGap:   math.Inf(1),
		QueueSize:     4,
		Busy:          2,
		Workers:       2,
		Explored:      9,
		Termination:   domain.TerminationNoNodes,
		StartedAt:     started,
		Elapsed:       1500 * time.Millisecond,
	}}
	h := NewStatusHandler("s1", status, nil, nil, discardLogger()).Routes()

	rec := do(t, h, "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"best_objective":"+Inf"`)

	var got StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, math.IsInf(float64(got.BestObjective), 1))
	assert.Equal(t, Float(3), got.Bound)
	assert.Equal(t, 4, got.QueueSize)
	assert.Equal(t, 2, got.BusyWorkers)
	assert.Equal(t, int64(9), got.ExploredNodes)
	assert.Equal(t, 1.5, got.ElapsedSeconds)
	require.NotNil(t, got.StartedAt)
	assert.True(t, started.Equal(*got.StartedAt))
}

func TestStatusUnavailable(t *testing.T) {
	h := NewStatusHandler("s1", &fakeStatus{err: domain.ErrUnavailable}, nil, nil, discardLogger()).Routes()
	rec := do(t, h, "/status")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCheckpointRoutes(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockCheckpointRepository(ctrl)
	h := NewStatusHandler("s1", &fakeStatus{}, repo, nil, discardLogger()).Routes()

	created := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	repo.EXPECT().List(gomock.Any(), "s1", defaultListLimit).Return([]*domain.Checkpoint{
		{SolveID: "s1", Sequence: 2, CreatedAt: created, NodeCount: 5, Digest: "bb"},
		{SolveID: "s1", Sequence: 1, CreatedAt: created, NodeCount: 3, Digest: "aa"},
	}, nil)
	rec := do(t, h, "/checkpoints")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []CheckpointResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, int64(2), list[0].Sequence)

	repo.EXPECT().List(gomock.Any(), "s1", 5).Return(nil, nil)
	rec = do(t, h, "/checkpoints?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))

	rec = do(t, h, "/checkpoints?limit=zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	repo.EXPECT().Latest(gomock.Any(), "s1").Return(&domain.Checkpoint{
		SolveID: "s1", Sequence: 2, NodeCount: 5, Digest: "bb", Data: []byte{1, 2, 3},
	}, nil)
	rec = do(t, h, "/checkpoints/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []byte{1, 2, 3}, rec.Body.Bytes())
	assert.Equal(t, "2", rec.Header().Get("X-Checkpoint-Sequence"))
	assert.Equal(t, "bb", rec.Header().Get("X-Checkpoint-Digest"))

	repo.EXPECT().Latest(gomock.Any(), "s1").Return(nil, domain.ErrCheckpointNotFound)
	rec = do(t, h, "/checkpoints/latest")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDisabledBackends(t *testing.T) {
	h := NewStatusHandler("s1", &fakeStatus{}, nil, nil, discardLogger()).Routes()
	for _, path := range []string{"/checkpoints", "/checkpoints/latest", "/result", "/workers"} {
		assert.Equal(t, http.StatusNotFound, do(t, h, path).Code, path)
	}
}

type staticWorkers []string

func (s staticWorkers) GetWorkers() []string { return s }

func TestWorkers(t *testing.T) {
	h := NewStatusHandler("s1", &fakeStatus{}, nil, nil, discardLogger()).
		WithWorkers(staticWorkers{"w-a", "w-b"}).Routes()
	rec := do(t, h, "/workers")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"workers":["w-a","w-b"]}`, rec.Body.String())
}

func TestResult(t *testing.T) {
	ctrl := gomock.NewController(t)
	results := mocks.NewMockResultRepository(ctrl)
	h := NewStatusHandler("s1", &fakeStatus{}, nil, results, discardLogger()).Routes()

	results.EXPECT().Get(gomock.Any(), "s1").Return(&domain.SolveResult{
		SolveID: "s1", Objective: math.Inf(-1), Bound: math.Inf(-1), Termination: domain.TerminationOptimality,
	}, nil)
	rec := do(t, h, "/result")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"objective":"-Inf"`)

	results.EXPECT().Get(gomock.Any(), "s1").Return(nil, domain.ErrResultNotFound)
	assert.Equal(t, http.StatusNotFound, do(t, h, "/result").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := NewStatusHandler("s1", &fakeStatus{}, nil, nil, discardLogger()).Routes()
	do(t, h, "/healthz")
	rec := do(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestFloatRoundTrip(t *testing.T) {
	for _, v := range []float64{0, -2.5, math.Inf(1), math.Inf(-1)} {
		b, err := json.Marshal(Float(v))
		require.NoError(t, err)
		var f Float
		require.NoError(t, json.Unmarshal(b, &f))
		assert.Equal(t, v, float64(f))
	}
	b, err := json.Marshal(Float(math.NaN()))
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))
}
