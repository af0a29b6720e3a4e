package dispatcher

import (
	"time"

	"distributed-bnb/internal/domain"
)

// LocalWorkerID is the only worker id in single-process mode.
const LocalWorkerID = 0

// Options configures one solve.
type Options struct {
	// BestObjective is the incumbent assumed at the start of the solve.
	BestObjective float64
	Strategy      domain.Strategy
	Checker       domain.ConvergenceChecker
	// NodeLimit stops the solve once this many nodes were explored.
	NodeLimit *int64
	// TimeLimit stops the solve once this much time has passed.
	TimeLimit   *time.Duration
	LogInterval time.Duration
}

// Update is one worker report.
type Update struct {
	// BestObjective is the best objective known to the worker.
	BestObjective float64
	// PreviousBound is the final bound of the node the worker last processed.
	PreviousBound float64
	// Explored is the cumulative number of nodes explored by the worker.
	Explored int64
	// Nodes are new children; none of them may carry a tree id.
	Nodes []*domain.Node
}

// DeliveryKind tells a worker what to do next.
type DeliveryKind int

const (
	// DeliveryWork carries a node to process.
	DeliveryWork DeliveryKind = iota + 1
	// DeliveryNoWork tells the worker the search cannot make progress.
	DeliveryNoWork
)

func (k DeliveryKind) String() string {
	switch k {
	case DeliveryWork:
		return "work"
	case DeliveryNoWork:
		return "no_work"
	default:
		return "unknown"
	}
}

// Delivery is a reply addressed to a single worker.
type Delivery struct {
	WorkerID      int
	Kind          DeliveryKind
	BestObjective float64
	// Node is set for DeliveryWork and stamped with BestObjective.
	Node *domain.Node
}

// Stats is a read-only view of the dispatcher state.
type Stats struct {
	Initialized   bool                        `json:"initialized"`
	Sense         string                      `json:"sense,omitempty"`
	Strategy      domain.Strategy             `json:"strategy,omitempty"`
	BestObjective float64                     `json:"best_objective"`
	Bound         float64                     `json:"bound"`
	AbsoluteGap   float64                     `json:"absolute_gap"`
	RelativeGap   float64                     `json:"relative_gap"`
	QueueSize     int                         `json:"queue_size"`
	Busy          int                         `json:"busy_workers"`
	Idle          int                         `json:"idle_workers"`
	Workers       int                         `json:"workers"`
	Explored      int64                       `json:"explored_nodes"`
	Sent          int64                       `json:"sent_nodes"`
	Created       int64                       `json:"created_nodes"`
	Pruned        int64                       `json:"pruned_nodes"`
	Completed     int64                       `json:"completed_nodes"`
	NextTreeID    uint64                      `json:"next_tree_id"`
	Stopped       bool                        `json:"stopped"`
	Termination   domain.TerminationCondition `json:"termination"`
	StartedAt     time.Time                   `json:"started_at"`
	Elapsed       time.Duration               `json:"elapsed"`
}
