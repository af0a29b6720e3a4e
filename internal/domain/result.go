package domain

import (
	"context"
	"time"
)

// SolveResult is the outcome recorded when a solve finalizes.
type SolveResult struct {
	SolveID     string               `json:"solve_id"`
	Objective   float64              `json:"objective"`
	Bound       float64              `json:"bound"`
	Termination TerminationCondition `json:"termination"`
	Explored    int64                `json:"explored_nodes"`
	Sent        int64                `json:"sent_nodes"`
	QueueSize   int                  `json:"queue_size"`
	StartedAt   time.Time            `json:"started_at"`
	FinishedAt  time.Time            `json:"finished_at"`
}

//go:generate mockgen -destination=mocks/mock_result.go -package=mocks distributed-bnb/internal/domain ResultRepository

// ResultRepository persists solve results.
type ResultRepository interface {
	Save(ctx context.Context, res *SolveResult) error
	Get(ctx context.Context, solveID string) (*SolveResult, error)
}
