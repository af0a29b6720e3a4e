package domain

import "context"

// ResultNotifier tells an external system that a solve finished.
type ResultNotifier interface {
	Notify(ctx context.Context, res *SolveResult) error
}
