// internal/api/http/status_handler.go
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"distributed-bnb/internal/dispatcher"
	"distributed-bnb/internal/domain"
	"distributed-bnb/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultListLimit = 20
	maxListLimit     = 1000
)

// StatusSource reports the state of the served solve.
type StatusSource interface {
	Stats(ctx context.Context) (dispatcher.Stats, error)
}

// CheckpointReader reads stored checkpoints.
type CheckpointReader interface {
	List(ctx context.Context, solveID string, limit int) ([]*domain.Checkpoint, error)
	Latest(ctx context.Context, solveID string) (*domain.Checkpoint, error)
}

// WorkerLister lists the workers currently registered for the solve.
type WorkerLister interface {
	GetWorkers() []string
}

// StatusHandler serves the read-only status API of a dispatcher.
type StatusHandler struct {
	solveID     string
	status      StatusSource
	checkpoints CheckpointReader
	results     domain.ResultRepository
	workers     WorkerLister
	logger      *slog.Logger
	tracer      trace.Tracer
	startedAt   time.Time
}

// NewStatusHandler creates the handler. checkpoints and results may be nil
// when the corresponding backend is disabled.
func NewStatusHandler(solveID string, status StatusSource, checkpoints CheckpointReader, results domain.ResultRepository, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		solveID:     solveID,
		status:      status,
		checkpoints: checkpoints,
		results:     results,
		logger:      logger.With("component", "status-api"),
		tracer:      otel.Tracer("distributed-bnb-api"),
		startedAt:   time.Now(),
	}
}

// WithWorkers enables the /workers route.
func (h *StatusHandler) WithWorkers(l WorkerLister) *StatusHandler {
	h.workers = l
	return h
}

// Routes builds the chi router.
func (h *StatusHandler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.instrument)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.handleHealthz)
	r.Get("/status", h.handleStatus)
	r.Get("/result", h.handleResult)
	r.Get("/workers", h.handleWorkers)
	r.Route("/checkpoints", func(r chi.Router) {
		r.Get("/", h.handleListCheckpoints)
		r.Get("/latest", h.handleLatestCheckpoint)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

// instrument traces and counts each request and logs it.
func (h *StatusHandler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := h.tracer.Start(r.Context(), "HTTP "+r.Method, trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.target", r.URL.Path),
		))
		defer span.End()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		span.SetName("HTTP " + r.Method + " " + path)
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status >= 500 {
			span.SetStatus(codes.Error, "Server Error")
		}
		metrics.HttpRequestsTotal.WithLabelValues(path, r.Method, strconv.Itoa(status)).Inc()

		h.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (h *StatusHandler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"solve_id":       h.solveID,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	})
}

func (h *StatusHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := h.status.Stats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toStatusResponse(h.solveID, stats))
}

func (h *StatusHandler) handleResult(w http.ResponseWriter, r *http.Request) {
	if h.results == nil {
		respondJSON(w, http.StatusNotFound, ErrorResponse{Error: "result storage is disabled"})
		return
	}
	res, err := h.results.Get(r.Context(), h.solveID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toResultResponse(res))
}

func (h *StatusHandler) handleWorkers(w http.ResponseWriter, _ *http.Request) {
	if h.workers == nil {
		respondJSON(w, http.StatusNotFound, ErrorResponse{Error: "worker discovery is disabled"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"workers": h.workers.GetWorkers()})
}

func (h *StatusHandler) handleListCheckpoints(w http.ResponseWriter, r *http.Request) {
	if h.checkpoints == nil {
		respondJSON(w, http.StatusNotFound, ErrorResponse{Error: "checkpoints are disabled"})
		return
	}
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxListLimit {
			respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be an integer between 1 and 1000"})
			return
		}
		limit = n
	}

	cps, err := h.checkpoints.List(r.Context(), h.solveID, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]CheckpointResponse, len(cps))
	for i, cp := range cps {
		out[i] = toCheckpointResponse(cp)
	}
	respondJSON(w, http.StatusOK, out)
}

// handleLatestCheckpoint streams the encoded snapshot; it can be fed back
// to a dispatcher started with resume enabled.
func (h *StatusHandler) handleLatestCheckpoint(w http.ResponseWriter, r *http.Request) {
	if h.checkpoints == nil {
		respondJSON(w, http.StatusNotFound, ErrorResponse{Error: "checkpoints are disabled"})
		return
	}
	cp, err := h.checkpoints.Latest(r.Context(), h.solveID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+cp.SolveID+"-"+strconv.FormatInt(cp.Sequence, 10)+`.ckpt"`)
	w.Header().Set("X-Checkpoint-Sequence", strconv.FormatInt(cp.Sequence, 10))
	w.Header().Set("X-Checkpoint-Digest", cp.Digest)
	w.Header().Set("X-Checkpoint-Nodes", strconv.Itoa(cp.NodeCount))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(cp.Data)
}

func (h *StatusHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrCheckpointNotFound), errors.Is(err, domain.ErrResultNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status >= 500 {
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	respondJSON(w, status, ErrorResponse{Error: err.Error()})
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
