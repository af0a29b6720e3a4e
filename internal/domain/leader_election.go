package domain

import "context"

//go:generate mockgen -destination=mocks/mock_leader_election.go -package=mocks distributed-bnb/internal/domain LeaderElectionManager

// LeaderElectionManager decides which dispatcher process serves the solve.
type LeaderElectionManager interface {
	// Campaign blocks until this process is leader. The returned channel is
	// closed when leadership is lost.
	Campaign(ctx context.Context) (<-chan struct{}, error)
	Resign(ctx context.Context) error
	IsLeader() bool
}
