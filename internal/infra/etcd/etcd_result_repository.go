// internal/infra/etcd/etcd_result_repository.go
package etcd

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"distributed-bnb/internal/domain"

	"github.com/vmihailenco/msgpack/v5"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	ResultDir = "/bnb/results/"
)

// resultRecord keeps floats binary: an infeasible objective is an infinity,
// which JSON cannot carry.
type resultRecord struct {
	SolveID     string  `msgpack:"solve_id"`
	Objective   float64 `msgpack:"objective"`
	Bound       float64 `msgpack:"bound"`
	Termination string  `msgpack:"termination"`
	Explored    int64   `msgpack:"explored"`
	Sent        int64   `msgpack:"sent"`
	QueueSize   int     `msgpack:"queue_size"`
	StartedAt   int64   `msgpack:"started_at"`
	FinishedAt  int64   `msgpack:"finished_at"`
}

type etcdResultRepository struct {
	client *clientv3.Client
	logger *slog.Logger
	tracer trace.Tracer
}

// NewEtcdResultRepository creates a repository for solve results backed by etcd.
func NewEtcdResultRepository(client *clientv3.Client, logger *slog.Logger) domain.ResultRepository {
	return &etcdResultRepository{
		client: client,
		logger: logger,
		tracer: otel.Tracer("distributed-bnb-etcd-result-repo"),
	}
}

// Save persists the result under /bnb/results/{solveID}.
func (r *etcdResultRepository) Save(ctx context.Context, res *domain.SolveResult) error {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.SaveResult")
	defer span.End()

	value, err := msgpack.Marshal(toResultRecord(res))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal solve result")
		return fmt.Errorf("failed to marshal solve result %s: %w", res.SolveID, err)
	}

	key := path.Join(ResultDir, res.SolveID)
	span.SetAttributes(
		attribute.String("solve.id", res.SolveID),
		attribute.String("etcd.key", key),
	)
	if _, err := r.client.Put(ctx, key, string(value)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to put solve result to etcd")
		return fmt.Errorf("failed to save solve result %s to etcd: %w", res.SolveID, err)
	}
	return nil
}

// Get retrieves the result of a finished solve.
func (r *etcdResultRepository) Get(ctx context.Context, solveID string) (*domain.SolveResult, error) {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.GetResult")
	defer span.End()
	span.SetAttributes(attribute.String("solve.id", solveID))

	resp, err := r.client.Get(ctx, path.Join(ResultDir, solveID))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get solve result from etcd")
		return nil, fmt.Errorf("failed to get solve result %s from etcd: %w", solveID, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, domain.ErrResultNotFound
	}
	var rec resultRecord
	if err := msgpack.Unmarshal(resp.Kvs[0].Value, &rec); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to unmarshal solve result")
		return nil, fmt.Errorf("failed to unmarshal solve result %s: %w", solveID, err)
	}
	return rec.toDomain(), nil
}

func toResultRecord(res *domain.SolveResult) *resultRecord {
	return &resultRecord{
		SolveID:     res.SolveID,
		Objective:   res.Objective,
		Bound:       res.Bound,
		Termination: string(res.Termination),
		Explored:    res.Explored,
		Sent:        res.Sent,
		QueueSize:   res.QueueSize,
		StartedAt:   res.StartedAt.UnixNano(),
		FinishedAt:  res.FinishedAt.UnixNano(),
	}
}

func (rec *resultRecord) toDomain() *domain.SolveResult {
	return &domain.SolveResult{
		SolveID:     rec.SolveID,
		Objective:   rec.Objective,
		Bound:       rec.Bound,
		Termination: domain.TerminationCondition(rec.Termination),
		Explored:    rec.Explored,
		Sent:        rec.Sent,
		QueueSize:   rec.QueueSize,
		StartedAt:   unixNanoUTC(rec.StartedAt),
		FinishedAt:  unixNanoUTC(rec.FinishedAt),
	}
}

func unixNanoUTC(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}
