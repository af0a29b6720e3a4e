// Package dispatcher holds the central state machine of a branch-and-bound
// solve: the queue of unexplored nodes, the incumbent, the bound ledger and
// the stop flags. It is single-writer; callers serialize every method call.
package dispatcher

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"distributed-bnb/internal/domain"
	"distributed-bnb/internal/ledger"
	"distributed-bnb/internal/queue"
)

// Dispatcher is not safe for concurrent use.
type Dispatcher struct {
	workerIDs []int
	known     map[int]struct{}
	logger    *slog.Logger
	now       func() time.Time

	initialized bool
	opts        Options
	checker     domain.ConvergenceChecker
	queue       domain.PriorityQueue
	ledger      *ledger.Ledger
	progress    *progress

	bestObjective float64
	nextTreeID    uint64
	sent          int64
	explored      int64
	exploredBy    map[int]int64
	// checkedOut holds the node each busy worker is processing.
	checkedOut map[int]*domain.Node
	seen       map[int]bool
	needsWork  []int
	hasWork    map[int]struct{}
	created    int64
	pruned     int64
	completed  int64
	startedAt  time.Time

	stopOptimality bool
	stopNodeLimit  bool
	stopTimeLimit  bool
	stopCutoff     bool
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// New creates a dispatcher serving the given worker ids.
func New(workerIDs []int, logger *slog.Logger, opts ...Option) (*Dispatcher, error) {
	if len(workerIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one worker is required", domain.ErrInvalidConfig)
	}
	known := make(map[int]struct{}, len(workerIDs))
	for _, id := range workerIDs {
		if _, dup := known[id]; dup {
			return nil, fmt.Errorf("%w: duplicate worker id %d", domain.ErrInvalidConfig, id)
		}
		known[id] = struct{}{}
	}
	d := &Dispatcher{
		workerIDs: slices.Clone(workerIDs),
		known:     known,
		logger:    logger.With("component", "dispatcher"),
		now:       time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// NewLocal creates a dispatcher for the single-process fallback.
func NewLocal(logger *slog.Logger, opts ...Option) *Dispatcher {
	d, _ := New([]int{LocalWorkerID}, logger, opts...)
	return d
}

// Initialized reports whether a solve is active.
func (d *Dispatcher) Initialized() bool { return d.initialized }

// WorkerIDs returns the ids the dispatcher serves.
func (d *Dispatcher) WorkerIDs() []int { return slices.Clone(d.workerIDs) }

// Initialize starts a new solve from the given queue snapshot. Every check
// happens before any state is touched.
func (d *Dispatcher) Initialize(opts Options, initial domain.Snapshot) error {
	if opts.Checker == nil {
		return fmt.Errorf("%w: convergence checker is required", domain.ErrInvalidConfig)
	}
	if opts.NodeLimit != nil && *opts.NodeLimit <= 0 {
		return fmt.Errorf("%w: node limit must be positive, got %d", domain.ErrInvalidConfig, *opts.NodeLimit)
	}
	if opts.TimeLimit != nil && *opts.TimeLimit < 0 {
		return fmt.Errorf("%w: time limit must not be negative, got %s", domain.ErrInvalidConfig, *opts.TimeLimit)
	}
	if opts.LogInterval < 0 {
		return fmt.Errorf("%w: log interval must not be negative", domain.ErrInvalidConfig)
	}
	if math.IsNaN(opts.BestObjective) || (initial.BestObjective != nil && math.IsNaN(*initial.BestObjective)) {
		return fmt.Errorf("%w: initial objective is NaN", domain.ErrInvalidConfig)
	}
	q, err := queue.New(opts.Strategy, opts.Checker.Sense())
	if err != nil {
		return err
	}
	for i, n := range initial.Nodes {
		if n == nil || !n.HasTreeID() {
			return fmt.Errorf("%w: initial node %d has no tree id", domain.ErrInvalidConfig, i)
		}
		if *n.TreeID >= initial.NextTreeID {
			return fmt.Errorf("%w: initial node tree id %d is not below next tree id %d",
				domain.ErrInvalidConfig, *n.TreeID, initial.NextTreeID)
		}
		if math.IsNaN(n.Bound) || math.IsNaN(n.Objective) || math.IsNaN(n.QueuePriority) {
			return fmt.Errorf("%w: initial node %d has a NaN bound, objective or priority", domain.ErrInvalidConfig, i)
		}
	}

	d.opts = opts
	d.checker = opts.Checker
	d.queue = q
	d.ledger = ledger.New(opts.Checker)
	d.bestObjective = opts.Checker.InfeasibleObjective()
	d.nextTreeID = initial.NextTreeID
	d.sent, d.explored = 0, 0
	d.created, d.pruned, d.completed = 0, 0, 0
	d.exploredBy = make(map[int]int64, len(d.workerIDs))
	d.checkedOut = make(map[int]*domain.Node, len(d.workerIDs))
	d.seen = make(map[int]bool, len(d.workerIDs))
	d.needsWork = make([]int, 0, len(d.workerIDs))
	d.hasWork = make(map[int]struct{}, len(d.workerIDs))
	d.stopOptimality, d.stopNodeLimit, d.stopTimeLimit, d.stopCutoff = false, false, false, false
	d.startedAt = d.now()
	d.progress = newProgress(d.logger, opts.LogInterval, d.startedAt)
	d.initialized = true

	d.logger.Info("starting branch and bound solve",
		"workers", len(d.workerIDs),
		"strategy", opts.Strategy,
		"sense", opts.Checker.Sense().String(),
		"initial_nodes", len(initial.Nodes),
	)

	for _, n := range initial.Nodes {
		d.created++
		d.addToQueue(n.Clone())
	}
	d.updateBestObjective(opts.BestObjective)
	if initial.BestObjective != nil {
		d.updateBestObjective(*initial.BestObjective)
	}
	d.progress.tic(d.now(), false, d.Stats())
	return nil
}

// Update folds a worker report into the solve state and returns the replies
// that became ready, possibly none.
func (d *Dispatcher) Update(workerID int, u Update) ([]Delivery, error) {
	if !d.initialized {
		return nil, domain.ErrNotInitialized
	}
	if _, ok := d.known[workerID]; !ok {
		return nil, fmt.Errorf("%w: %d", domain.ErrUnknownWorker, workerID)
	}
	if err := validateUpdate(u); err != nil {
		return nil, err
	}
	if slices.Contains(d.needsWork, workerID) {
		return nil, fmt.Errorf("%w: worker %d is already waiting for work", domain.ErrDuplicateUpdate, workerID)
	}

	d.explored += u.Explored - d.exploredBy[workerID]
	d.exploredBy[workerID] = u.Explored

	d.needsWork = append(d.needsWork, workerID)
	delete(d.hasWork, workerID)
	if n, ok := d.checkedOut[workerID]; ok {
		d.ledger.CheckIn(n.Bound)
		delete(d.checkedOut, workerID)
		d.completed++
	}

	d.updateBestObjective(u.BestObjective)

	if len(u.Nodes) > 0 {
		for _, n := range u.Nodes {
			child := n.Clone()
			child.SetTreeID(d.nextTreeID)
			d.nextTreeID++
			d.created++
			d.addToQueue(child)
		}
	} else if d.seen[workerID] {
		d.ledger.RecordTerminal(u.PreviousBound)
	}
	d.seen[workerID] = true

	d.checkConvergence()
	out := d.sendWork()
	d.progress.tic(d.now(), false, d.Stats())
	return out, nil
}

// LocalUpdate is Update for the single-process fallback. A nil node means
// the worker should start finalizing.
func (d *Dispatcher) LocalUpdate(u Update) (float64, *domain.Node, error) {
	out, err := d.Update(LocalWorkerID, u)
	if err != nil {
		return 0, nil, err
	}
	for _, dl := range out {
		if dl.WorkerID == LocalWorkerID && dl.Kind == DeliveryWork {
			return dl.BestObjective, dl.Node, nil
		}
	}
	return d.bestObjective, nil, nil
}

// Finalize ends the solve and returns the global bound.
func (d *Dispatcher) Finalize() (float64, error) {
	if !d.initialized {
		return 0, domain.ErrNotInitialized
	}
	bound := d.currentBound()
	d.progress.tic(d.now(), true, d.Stats())
	d.logger.Info("branch and bound solve finished",
		"termination", d.TerminationCondition(),
		"objective", LogFloat(d.bestObjective),
		"bound", LogFloat(bound),
		"explored", d.explored,
		"sent", d.sent,
		"unexplored", d.queue.Size()+len(d.hasWork),
	)
	d.initialized = false
	return bound, nil
}

// SaveQueue exports the queued nodes and the incumbent; the snapshot shares
// nothing with the dispatcher.
func (d *Dispatcher) SaveQueue() domain.Snapshot {
	if d.queue == nil {
		return domain.Snapshot{NextTreeID: d.nextTreeID}
	}
	items := d.queue.Items()
	nodes := make([]*domain.Node, len(items))
	for i, n := range items {
		nodes[i] = n.Clone()
	}
	best := d.bestObjective
	return domain.Snapshot{Nodes: nodes, NextTreeID: d.nextTreeID, BestObjective: &best}
}

// Checkpoint is SaveQueue plus the nodes checked out to workers, ordered by
// worker id. Resuming from it explores those subtrees again.
func (d *Dispatcher) Checkpoint() domain.Snapshot {
	snap := d.SaveQueue()
	ids := make([]int, 0, len(d.checkedOut))
	for id := range d.checkedOut {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		snap.Nodes = append(snap.Nodes, d.checkedOut[id].Clone())
	}
	return snap
}

// Release is called when the process behind workerID restarted. The node
// checked out to the worker goes back to the queue, and the explored count
// of the new process starts from zero. Unless the worker is waiting for work
// its next update counts as a first one.
func (d *Dispatcher) Release(workerID int) (bool, []Delivery) {
	if !d.initialized {
		return false, nil
	}
	if _, ok := d.known[workerID]; !ok {
		return false, nil
	}
	d.exploredBy[workerID] = 0
	if !slices.Contains(d.needsWork, workerID) {
		d.seen[workerID] = false
	}

	n, ok := d.checkedOut[workerID]
	if !ok {
		return false, nil
	}
	d.ledger.CheckIn(n.Bound)
	delete(d.checkedOut, workerID)
	delete(d.hasWork, workerID)
	d.addToQueue(n)

	d.checkConvergence()
	out := d.sendWork()
	d.progress.tic(d.now(), false, d.Stats())
	return true, out
}

// TerminationCondition reports why the solve stopped, or would stop now.
func (d *Dispatcher) TerminationCondition() domain.TerminationCondition {
	switch {
	case d.stopOptimality:
		return domain.TerminationOptimality
	case d.stopNodeLimit:
		return domain.TerminationNodeLimit
	case d.stopTimeLimit:
		return domain.TerminationTimeLimit
	case d.stopCutoff:
		return domain.TerminationCutoff
	default:
		return domain.TerminationNoNodes
	}
}

// BestObjective returns the incumbent.
func (d *Dispatcher) BestObjective() float64 { return d.bestObjective }

// CurrentBound returns the global bound.
func (d *Dispatcher) CurrentBound() float64 {
	if d.ledger == nil {
		return math.NaN()
	}
	return d.currentBound()
}

// WorstTerminalBound returns the worst bound among exhausted or pruned nodes.
func (d *Dispatcher) WorstTerminalBound() (float64, bool) {
	if d.ledger == nil {
		return 0, false
	}
	return d.ledger.WorstTerminal()
}

// HoldsWork reports whether the worker currently has a node checked out.
func (d *Dispatcher) HoldsWork(workerID int) bool {
	_, ok := d.hasWork[workerID]
	return ok
}

// Stats returns a read-only view of the state.
func (d *Dispatcher) Stats() Stats {
	s := Stats{
		Initialized: d.initialized,
		Workers:     len(d.workerIDs),
	}
	if d.checker == nil {
		return s
	}
	bound := d.currentBound()
	s.Sense = d.checker.Sense().String()
	s.Strategy = d.opts.Strategy
	s.BestObjective = d.bestObjective
	s.Bound = bound
	s.AbsoluteGap = d.checker.AbsoluteGap(bound, d.bestObjective)
	s.RelativeGap = d.checker.RelativeGap(bound, d.bestObjective)
	s.QueueSize = d.queue.Size()
	s.Busy = len(d.hasWork)
	s.Idle = len(d.needsWork)
	s.Explored = d.explored
	s.Sent = d.sent
	s.Created = d.created
	s.Pruned = d.pruned
	s.Completed = d.completed
	s.NextTreeID = d.nextTreeID
	s.Stopped = d.stopped()
	s.Termination = d.TerminationCondition()
	s.StartedAt = d.startedAt
	s.Elapsed = d.now().Sub(d.startedAt)
	return s
}

func validateUpdate(u Update) error {
	if u.Explored < 0 {
		return fmt.Errorf("%w: negative explored count %d", domain.ErrProtocol, u.Explored)
	}
	if math.IsNaN(u.BestObjective) || math.IsNaN(u.PreviousBound) {
		return fmt.Errorf("%w: NaN objective or bound", domain.ErrProtocol)
	}
	for i, n := range u.Nodes {
		if n == nil {
			return fmt.Errorf("%w: new node %d is empty", domain.ErrProtocol, i)
		}
		if n.HasTreeID() {
			return fmt.Errorf("%w: new node %d already has tree id %d", domain.ErrProtocol, i, *n.TreeID)
		}
		if math.IsNaN(n.Bound) || math.IsNaN(n.Objective) || math.IsNaN(n.QueuePriority) {
			return fmt.Errorf("%w: new node %d has a NaN bound, objective or priority", domain.ErrProtocol, i)
		}
	}
	return nil
}
