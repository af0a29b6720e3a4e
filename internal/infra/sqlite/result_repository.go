package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"distributed-bnb/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type resultRepository struct {
	db     *sql.DB
	tracer trace.Tracer
}

// NewResultRepository returns a domain.ResultRepository over db. Objective
// and bound are stored as text so infinities survive.
func NewResultRepository(db *sql.DB) domain.ResultRepository {
	return &resultRepository{
		db:     db,
		tracer: otel.Tracer("distributed-bnb-sqlite-result-repo"),
	}
}

func (r *resultRepository) Save(ctx context.Context, res *domain.SolveResult) error {
	ctx, span := r.tracer.Start(ctx, "repo.sqlite.SaveResult")
	defer span.End()
	span.SetAttributes(attribute.String("solve.id", res.SolveID))

	_, err := r.db.ExecContext(ctx, `
INSERT INTO solve_results (solve_id, objective, bound, termination, explored, sent, queue_size, started_at, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(solve_id) DO UPDATE SET
  objective = excluded.objective,
  bound = excluded.bound,
  termination = excluded.termination,
  explored = excluded.explored,
  sent = excluded.sent,
  queue_size = excluded.queue_size,
  started_at = excluded.started_at,
  finished_at = excluded.finished_at;`,
		res.SolveID,
		strconv.FormatFloat(res.Objective, 'g', -1, 64),
		strconv.FormatFloat(res.Bound, 'g', -1, 64),
		string(res.Termination),
		res.Explored, res.Sent, res.QueueSize,
		formatTime(res.StartedAt), formatTime(res.FinishedAt),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upsert solve result")
		return fmt.Errorf("save solve result %s: %w", res.SolveID, err)
	}
	return nil
}

func (r *resultRepository) Get(ctx context.Context, solveID string) (*domain.SolveResult, error) {
	ctx, span := r.tracer.Start(ctx, "repo.sqlite.GetResult")
	defer span.End()
	span.SetAttributes(attribute.String("solve.id", solveID))

	var (
		res               domain.SolveResult
		objective, bound  string
		termination       string
		started, finished string
	)
	err := r.db.QueryRowContext(ctx, `
SELECT solve_id, objective, bound, termination, explored, sent, queue_size, started_at, finished_at
FROM solve_results WHERE solve_id = ?;`, solveID).Scan(
		&res.SolveID, &objective, &bound, &termination,
		&res.Explored, &res.Sent, &res.QueueSize, &started, &finished,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrResultNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to query solve result")
		return nil, fmt.Errorf("get solve result %s: %w", solveID, err)
	}

	if res.Objective, err = strconv.ParseFloat(objective, 64); err != nil {
		return nil, fmt.Errorf("parse objective of %s: %w", solveID, err)
	}
	if res.Bound, err = strconv.ParseFloat(bound, 64); err != nil {
		return nil, fmt.Errorf("parse bound of %s: %w", solveID, err)
	}
	res.Termination = domain.TerminationCondition(termination)
	if res.StartedAt, err = parseTime(started); err != nil {
		return nil, err
	}
	if res.FinishedAt, err = parseTime(finished); err != nil {
		return nil, err
	}
	return &res, nil
}
