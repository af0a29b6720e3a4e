package domain

import (
	"context"
	"time"
)

// Snapshot is the exported dispatcher queue: enough to resume a solve.
type Snapshot struct {
	Nodes      []*Node
	NextTreeID uint64
	// BestObjective is the incumbent at export time; nil when unknown.
	BestObjective *float64
}

// Checkpoint is a persisted, encoded snapshot.
type Checkpoint struct {
	SolveID   string    `json:"solve_id"`
	Sequence  int64     `json:"sequence"`
	CreatedAt time.Time `json:"created_at"`
	NodeCount int       `json:"node_count"`
	Digest    string    `json:"digest"`
	Data      []byte    `json:"-"`
}

//go:generate mockgen -destination=mocks/mock_checkpoint.go -package=mocks distributed-bnb/internal/domain CheckpointRepository

// CheckpointRepository persists encoded snapshots.
type CheckpointRepository interface {
	// Save stores data as the newest checkpoint of the solve.
	Save(ctx context.Context, cp *Checkpoint) error
	// Latest returns the newest checkpoint or ErrCheckpointNotFound.
	Latest(ctx context.Context, solveID string) (*Checkpoint, error)
	// List returns checkpoint metadata, newest first, at most limit entries.
	List(ctx context.Context, solveID string, limit int) ([]*Checkpoint, error)
}
