package master

import (
	"distributed-bnb/internal/dispatcher"
	"distributed-bnb/internal/domain"
)

// Every request reaches the loop as one of these events; replies travel
// back on buffered channels so the loop never blocks on a slow caller.

type joinEvent struct {
	uuid  string
	reply chan joinReply
}

type joinReply struct {
	info JoinInfo
	err  error
}

type initializeEvent struct {
	workerID      int
	bestObjective float64
	root          *domain.Node
	reply         chan error
}

type updateEvent struct {
	workerID int
	update   dispatcher.Update
	reply    chan updateReply
}

type updateReply struct {
	deliveries <-chan dispatcher.Delivery
	err        error
}

type finalizeEvent struct {
	workerID int
	reply    chan finalizeReply
}

type finalizeReply struct {
	info FinalizeInfo
	err  error
}

type logEvent struct {
	workerID int
	level    string
	message  string
}

type snapshotEvent struct {
	reply chan snapshotReply
}

type snapshotReply struct {
	snap        domain.Snapshot
	initialized bool
}

type statsEvent struct {
	reply chan dispatcher.Stats
}

type workerLostEvent struct {
	uuid string
}

type abortEvent struct {
	err error
}
