package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"distributed-bnb/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type checkpointRepository struct {
	db     *sql.DB
	logger *slog.Logger
	tracer trace.Tracer
}

// NewCheckpointRepository returns a domain.CheckpointRepository over db.
func NewCheckpointRepository(db *sql.DB, logger *slog.Logger) domain.CheckpointRepository {
	return &checkpointRepository{
		db:     db,
		logger: logger,
		tracer: otel.Tracer("distributed-bnb-sqlite-checkpoint-repo"),
	}
}

func (r *checkpointRepository) Save(ctx context.Context, cp *domain.Checkpoint) error {
	ctx, span := r.tracer.Start(ctx, "repo.sqlite.SaveCheckpoint")
	defer span.End()
	span.SetAttributes(
		attribute.String("solve.id", cp.SolveID),
		attribute.Int("checkpoint.nodes", cp.NodeCount),
	)

	var seq int64
	err := r.db.QueryRowContext(ctx, `
INSERT INTO checkpoints (solve_id, sequence, created_at, node_count, digest, data)
VALUES (?, (SELECT COALESCE(MAX(sequence), 0) + 1 FROM checkpoints WHERE solve_id = ?), ?, ?, ?, ?)
RETURNING sequence;`,
		cp.SolveID, cp.SolveID, formatTime(cp.CreatedAt), cp.NodeCount, cp.Digest, cp.Data,
	).Scan(&seq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to insert checkpoint")
		return fmt.Errorf("insert checkpoint for %s: %w", cp.SolveID, err)
	}
	cp.Sequence = seq
	return nil
}

func (r *checkpointRepository) Latest(ctx context.Context, solveID string) (*domain.Checkpoint, error) {
	ctx, span := r.tracer.Start(ctx, "repo.sqlite.LatestCheckpoint")
	defer span.End()
	span.SetAttributes(attribute.String("solve.id", solveID))

	row := r.db.QueryRowContext(ctx, `
SELECT solve_id, sequence, created_at, node_count, digest, data
FROM checkpoints WHERE solve_id = ?
ORDER BY sequence DESC LIMIT 1;`, solveID)

	var (
		cp      domain.Checkpoint
		created string
	)
	if err := row.Scan(&cp.SolveID, &cp.Sequence, &created, &cp.NodeCount, &cp.Digest, &cp.Data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCheckpointNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to query checkpoint")
		return nil, fmt.Errorf("query latest checkpoint of %s: %w", solveID, err)
	}
	t, err := parseTime(created)
	if err != nil {
		return nil, err
	}
	cp.CreatedAt = t
	return &cp, nil
}

func (r *checkpointRepository) List(ctx context.Context, solveID string, limit int) ([]*domain.Checkpoint, error) {
	ctx, span := r.tracer.Start(ctx, "repo.sqlite.ListCheckpoints")
	defer span.End()
	span.SetAttributes(attribute.String("solve.id", solveID), attribute.Int("limit", limit))

	if limit <= 0 {
		limit = -1 // no limit
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT solve_id, sequence, created_at, node_count, digest
FROM checkpoints WHERE solve_id = ?
ORDER BY sequence DESC LIMIT ?;`, solveID, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list checkpoints")
		return nil, fmt.Errorf("list checkpoints of %s: %w", solveID, err)
	}
	defer rows.Close()

	var cps []*domain.Checkpoint
	for rows.Next() {
		var (
			cp      domain.Checkpoint
			created string
		)
		if err := rows.Scan(&cp.SolveID, &cp.Sequence, &created, &cp.NodeCount, &cp.Digest); err != nil {
			return nil, fmt.Errorf("scan checkpoint row: %w", err)
		}
		t, err := parseTime(created)
		if err != nil {
			r.logger.Warn("skipping checkpoint with bad timestamp", "solve_id", solveID, "sequence", cp.Sequence, "error", err)
			continue
		}
		cp.CreatedAt = t
		cps = append(cps, &cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoints of %s: %w", solveID, err)
	}
	return cps, nil
}
