package domain

import "context"

// Scheduler runs periodic background work until ctx is done.
type Scheduler interface {
	Start(ctx context.Context) error
	// RunNow performs the scheduled work once, outside the schedule.
	RunNow(ctx context.Context) error
}
