package checkpoint

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"distributed-bnb/internal/domain"
)

// Store saves and restores snapshots through a CheckpointRepository.
type Store struct {
	repo   domain.CheckpointRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewStore wraps repo.
func NewStore(repo domain.CheckpointRepository, logger *slog.Logger) *Store {
	return &Store{
		repo:   repo,
		logger: logger.With("component", "checkpoint-store"),
		now:    time.Now,
	}
}

// Save encodes and persists snap as the newest checkpoint of the solve.
func (s *Store) Save(ctx context.Context, solveID string, snap domain.Snapshot) (*domain.Checkpoint, error) {
	cp, err := Encode(solveID, snap, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, cp); err != nil {
		return nil, fmt.Errorf("failed to save checkpoint for solve %s: %w", solveID, err)
	}
	s.logger.Info("checkpoint saved", "solve_id", solveID, "sequence", cp.Sequence, "nodes", cp.NodeCount, "bytes", len(cp.Data))
	return cp, nil
}

// LoadLatest returns the newest snapshot of the solve, or
// domain.ErrCheckpointNotFound.
func (s *Store) LoadLatest(ctx context.Context, solveID string) (domain.Snapshot, *domain.Checkpoint, error) {
	cp, err := s.repo.Latest(ctx, solveID)
	if err != nil {
		return domain.Snapshot{}, nil, err
	}
	snap, err := Decode(cp.Data)
	if err != nil {
		return domain.Snapshot{}, nil, fmt.Errorf("checkpoint %d of solve %s: %w", cp.Sequence, solveID, err)
	}
	if cp.NodeCount != len(snap.Nodes) {
		return domain.Snapshot{}, nil, fmt.Errorf("%w: checkpoint %d lists %d nodes, blob has %d",
			ErrCorrupt, cp.Sequence, cp.NodeCount, len(snap.Nodes))
	}
	s.logger.Info("checkpoint loaded", "solve_id", solveID, "sequence", cp.Sequence, "nodes", len(snap.Nodes))
	return snap, cp, nil
}

// List returns checkpoint metadata, newest first.
func (s *Store) List(ctx context.Context, solveID string, limit int) ([]*domain.Checkpoint, error) {
	return s.repo.List(ctx, solveID, limit)
}

// Latest returns the newest raw checkpoint.
func (s *Store) Latest(ctx context.Context, solveID string) (*domain.Checkpoint, error) {
	return s.repo.Latest(ctx, solveID)
}
