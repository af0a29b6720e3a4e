package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"distributed-bnb/internal/dispatcher"
	"distributed-bnb/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// errRetriable marks failures worth another attempt.
var errRetriable = errors.New("retriable")

// RetryPolicy bounds the delivery attempts of a webhook.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

type webhookNotifier struct {
	url    string
	retry  RetryPolicy
	client *http.Client
	logger *slog.Logger
	tracer trace.Tracer
}

// NewWebhookNotifier posts every finished solve as JSON to url.
func NewWebhookNotifier(url string, retry RetryPolicy, logger *slog.Logger) domain.ResultNotifier {
	return &webhookNotifier{
		url:    url,
		retry:  retry,
		client: &http.Client{Timeout: 15 * time.Second},
		logger: logger.With("component", "webhook-notifier"),
		tracer: otel.Tracer("distributed-bnb-notifier"),
	}
}

type resultPayload struct {
	SolveID     string `json:"solve_id"`
	Objective   any    `json:"objective"`
	Bound       any    `json:"bound"`
	Termination string `json:"termination"`
	Explored    int64  `json:"explored_nodes"`
	Sent        int64  `json:"sent_nodes"`
	QueueSize   int    `json:"queue_size"`
	StartedAt   string `json:"started_at"`
	FinishedAt  string `json:"finished_at"`
}

func newResultPayload(res *domain.SolveResult) resultPayload {
	return resultPayload{
		SolveID:     res.SolveID,
		Objective:   dispatcher.LogFloat(res.Objective),
		Bound:       dispatcher.LogFloat(res.Bound),
		Termination: string(res.Termination),
		Explored:    res.Explored,
		Sent:        res.Sent,
		QueueSize:   res.QueueSize,
		StartedAt:   res.StartedAt.UTC().Format(time.RFC3339Nano),
		FinishedAt:  res.FinishedAt.UTC().Format(time.RFC3339Nano),
	}
}

// Notify delivers res, retrying timeouts and 5xx answers.
func (n *webhookNotifier) Notify(ctx context.Context, res *domain.SolveResult) (err error) {
	ctx, span := n.tracer.Start(ctx, "notifier.Notify",
		trace.WithAttributes(attribute.String("solve.id", res.SolveID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "result delivery failed")
		}
		span.End()
	}()

	body, err := json.Marshal(newResultPayload(res))
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= n.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(n.retry.Backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		lastErr = n.post(ctx, body)
		if lastErr == nil {
			n.logger.Info("result delivered", "solve_id", res.SolveID, "attempts", attempt+1)
			return nil
		}
		if !errors.Is(lastErr, errRetriable) {
			return fmt.Errorf("non-retriable error on attempt %d: %w", attempt+1, lastErr)
		}
		n.logger.Warn("result delivery failed", "attempt", attempt+1, "error", lastErr)
	}
	return fmt.Errorf("result delivery failed after %d retries: %w", n.retry.MaxRetries, lastErr)
}

// post performs a single delivery.
func (n *webhookNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := n.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("%w: %v", errRetriable, err)
		}
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: server error %s", errRetriable, resp.Status)
	case resp.StatusCode >= 400:
		return fmt.Errorf("client error %s", resp.Status)
	}
	return nil
}
