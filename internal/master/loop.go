// internal/master/loop.go
package master

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"distributed-bnb/internal/dispatcher"
	"distributed-bnb/internal/domain"
	"distributed-bnb/internal/metrics"
)

var (
	// ErrStopped is returned to callers once the loop has exited.
	ErrStopped = fmt.Errorf("%w: loop stopped", domain.ErrUnavailable)
	// ErrSuperseded is returned to a waiting update once a newer update of
	// the same worker took over its reply.
	ErrSuperseded = fmt.Errorf("%w: superseded by a newer update", domain.ErrDuplicateUpdate)
)

// LoopConfig describes the solve served by a Loop.
type LoopConfig struct {
	SolveID     string
	WorkerCount int
	Options     dispatcher.Options
}

// JoinInfo is handed to a worker when it joins.
type JoinInfo struct {
	WorkerID    int
	WorkerCount int
	SolveID     string
	Initialized bool
	Sense       domain.Sense
}

// FinalizeInfo is the same for every worker of a solve.
type FinalizeInfo struct {
	GlobalBound   float64
	BestObjective float64
	Termination   domain.TerminationCondition
	Explored      int64
}

// Loop serializes every interaction with the dispatcher on one goroutine.
type Loop struct {
	cfg    LoopConfig
	disp   *dispatcher.Dispatcher
	logger *slog.Logger
	now    func() time.Time

	events chan any
	done   chan struct{}

	// owned by the Run goroutine
	joined    map[string]int
	waiting   map[int]chan dispatcher.Delivery
	deferred  []*updateEvent
	finalized map[int]bool
	result    *domain.SolveResult
	final     FinalizeInfo
}

// NewLoop creates the loop and its dispatcher.
func NewLoop(cfg LoopConfig, logger *slog.Logger) (*Loop, error) {
	if cfg.WorkerCount <= 0 {
		return nil, fmt.Errorf("%w: worker count must be positive", domain.ErrInvalidConfig)
	}
	if cfg.Options.Checker == nil {
		return nil, fmt.Errorf("%w: convergence checker is required", domain.ErrInvalidConfig)
	}
	ids := make([]int, cfg.WorkerCount)
	for i := range ids {
		ids[i] = i
	}
	disp, err := dispatcher.New(ids, logger)
	if err != nil {
		return nil, err
	}
	return &Loop{
		cfg:       cfg,
		disp:      disp,
		logger:    logger.With("component", "dispatcher-loop", "solve_id", cfg.SolveID),
		now:       time.Now,
		events:    make(chan any, 64),
		done:      make(chan struct{}),
		joined:    make(map[string]int),
		waiting:   make(map[int]chan dispatcher.Delivery),
		finalized: make(map[int]bool),
	}, nil
}

// SolveID returns the id of the served solve.
func (l *Loop) SolveID() string { return l.cfg.SolveID }

// Resume initializes the solve from a checkpoint. It must be called before Run.
func (l *Loop) Resume(snap domain.Snapshot) error {
	if err := l.disp.Initialize(l.cfg.Options, snap); err != nil {
		return fmt.Errorf("failed to resume solve: %w", err)
	}
	l.logger.Info("solve resumed from checkpoint", "nodes", len(snap.Nodes), "next_tree_id", snap.NextTreeID)
	return nil
}

// Run handles events until every worker finalized, a protocol violation
// occurs, or ctx is done.
func (l *Loop) Run(ctx context.Context) (*domain.SolveResult, error) {
	defer close(l.done)
	l.logger.Info("dispatcher loop started", "workers", l.cfg.WorkerCount)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ev := <-l.events:
			if err := l.handle(ev); err != nil {
				l.logger.Error("dispatcher loop stopped", "error", err)
				return nil, err
			}
			if l.result != nil && len(l.finalized) == l.cfg.WorkerCount {
				l.logger.Info("all workers finalized")
				return l.result, nil
			}
		}
	}
}

func (l *Loop) handle(ev any) error {
	switch ev := ev.(type) {
	case *joinEvent:
		info, err := l.join(ev.uuid)
		ev.reply <- joinReply{info: info, err: err}
	case *initializeEvent:
		err := l.initialize(ev)
		ev.reply <- err
		if err == nil {
			return l.drainDeferred()
		}
	case *updateEvent:
		if !l.disp.Initialized() && l.result == nil {
			l.logger.Debug("deferring update until the solve is initialized", "worker_id", ev.workerID)
			l.deferred = append(l.deferred, ev)
			return nil
		}
		return l.update(ev)
	case *finalizeEvent:
		info, err := l.finalize(ev.workerID)
		ev.reply <- finalizeReply{info: info, err: err}
	case *logEvent:
		l.relayLog(ev)
	case *snapshotEvent:
		ev.reply <- snapshotReply{snap: l.disp.Checkpoint(), initialized: l.disp.Initialized()}
	case *statsEvent:
		ev.reply <- l.disp.Stats()
	case *workerLostEvent:
		l.workerLost(ev.uuid)
	case *abortEvent:
		return ev.err
	default:
		return fmt.Errorf("unknown event %T", ev)
	}
	return nil
}

func (l *Loop) join(uuid string) (JoinInfo, error) {
	id, ok := l.joined[uuid]
	if !ok {
		if len(l.joined) >= l.cfg.WorkerCount {
			return JoinInfo{}, fmt.Errorf("%w: %d workers already joined", domain.ErrTooManyWorkers, len(l.joined))
		}
		id = len(l.joined)
		l.joined[uuid] = id
		l.logger.Info("worker joined", "worker_id", id, "worker_uuid", uuid)
	} else if l.disp.Initialized() {
		l.rejoin(uuid, id)
	}
	return JoinInfo{
		WorkerID:    id,
		WorkerCount: l.cfg.WorkerCount,
		SolveID:     l.cfg.SolveID,
		Initialized: l.disp.Initialized() || l.result != nil,
		Sense:       l.cfg.Options.Checker.Sense(),
	}, nil
}

// rejoin handles a known uuid joining again during a solve: the worker
// process restarted, so the node it held will never be reported.
func (l *Loop) rejoin(uuid string, id int) {
	released, out := l.disp.Release(id)
	if released {
		metrics.ReleasedNodesTotal.Inc()
		l.logger.Warn("worker re-joined while holding a node; node returned to the queue",
			"worker_id", id, "worker_uuid", uuid)
	} else {
		l.logger.Info("worker re-joined", "worker_id", id, "worker_uuid", uuid)
	}
	l.deliver(out)
	l.observe()
}

func (l *Loop) initialize(ev *initializeEvent) error {
	if l.disp.Initialized() || l.result != nil {
		return fmt.Errorf("%w: solve is already initialized", domain.ErrProtocol)
	}
	if ev.workerID != 0 {
		return fmt.Errorf("%w: only worker 0 may initialize the solve, got %d", domain.ErrProtocol, ev.workerID)
	}
	if ev.root == nil || ev.root.HasTreeID() {
		return fmt.Errorf("%w: root node must be present and carry no tree id", domain.ErrProtocol)
	}
	root := ev.root.Clone()
	root.SetTreeID(0)

	opts := l.cfg.Options
	if opts.Checker.ObjectiveImproved(ev.bestObjective, opts.BestObjective) {
		opts.BestObjective = ev.bestObjective
	}
	return l.disp.Initialize(opts, domain.Snapshot{Nodes: []*domain.Node{root}, NextTreeID: 1})
}

func (l *Loop) drainDeferred() error {
	pending := l.deferred
	l.deferred = nil
	for _, ev := range pending {
		if err := l.update(ev); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loop) update(ev *updateEvent) error {
	out, err := l.disp.Update(ev.workerID, ev.update)
	if errors.Is(err, domain.ErrDuplicateUpdate) {
		l.supersede(ev)
		return nil
	}
	if err != nil {
		metrics.UpdatesTotal.WithLabelValues("rejected").Inc()
		ev.reply <- updateReply{err: err}
		if errors.Is(err, domain.ErrProtocol) {
			return fmt.Errorf("worker %d: %w", ev.workerID, err)
		}
		l.logger.Warn("update rejected", "worker_id", ev.workerID, "error", err)
		return nil
	}
	metrics.UpdatesTotal.WithLabelValues("ok").Inc()

	ch := make(chan dispatcher.Delivery, 1)
	l.waiting[ev.workerID] = ch
	ev.reply <- updateReply{deliveries: ch}
	l.deliver(out)
	l.observe()
	return nil
}

// supersede hands the pending reply of a waiting worker to its newest
// update, typically a retry after the first call was cut off. The older
// call fails with ErrSuperseded.
func (l *Loop) supersede(ev *updateEvent) {
	metrics.UpdatesTotal.WithLabelValues("duplicate").Inc()
	if old, ok := l.waiting[ev.workerID]; ok {
		close(old)
	}
	ch := make(chan dispatcher.Delivery, 1)
	l.waiting[ev.workerID] = ch
	ev.reply <- updateReply{deliveries: ch}
	l.logger.Debug("duplicate update takes over the pending reply", "worker_id", ev.workerID)
}

func (l *Loop) deliver(out []dispatcher.Delivery) {
	for _, dl := range out {
		ch, ok := l.waiting[dl.WorkerID]
		if !ok {
			l.logger.Error("no pending request for delivery", "worker_id", dl.WorkerID, "kind", dl.Kind.String())
			continue
		}
		delete(l.waiting, dl.WorkerID)
		ch <- dl
		metrics.DeliveriesTotal.WithLabelValues(dl.Kind.String()).Inc()
	}
}

func (l *Loop) finalize(workerID int) (FinalizeInfo, error) {
	if workerID < 0 || workerID >= l.cfg.WorkerCount {
		return FinalizeInfo{}, fmt.Errorf("%w: %d", domain.ErrUnknownWorker, workerID)
	}
	if l.result == nil {
		if !l.disp.Initialized() {
			return FinalizeInfo{}, domain.ErrNotInitialized
		}
		stats := l.disp.Stats()
		if stats.Busy > 0 {
			return FinalizeInfo{}, fmt.Errorf("%w: %d workers still hold nodes", domain.ErrProtocol, stats.Busy)
		}
		bound, err := l.disp.Finalize()
		if err != nil {
			return FinalizeInfo{}, err
		}
		l.final = FinalizeInfo{
			GlobalBound:   bound,
			BestObjective: stats.BestObjective,
			Termination:   stats.Termination,
			Explored:      stats.Explored,
		}
		l.result = &domain.SolveResult{
			SolveID:     l.cfg.SolveID,
			Objective:   stats.BestObjective,
			Bound:       bound,
			Termination: stats.Termination,
			Explored:    stats.Explored,
			Sent:        stats.Sent,
			QueueSize:   stats.QueueSize,
			StartedAt:   stats.StartedAt,
			FinishedAt:  l.now(),
		}
	}
	l.finalized[workerID] = true
	return l.final, nil
}

func (l *Loop) relayLog(ev *logEvent) {
	logger := l.logger.With("worker_id", ev.workerID)
	switch strings.ToLower(ev.level) {
	case "debug":
		logger.Debug(ev.message)
	case "warn", "warning":
		logger.Warn(ev.message)
	case "error":
		logger.Error(ev.message)
	default:
		logger.Info(ev.message)
	}
}

// workerLost only reports: a node held by a vanished worker goes back to the
// queue only when a worker re-joins with the same uuid.
func (l *Loop) workerLost(uuid string) {
	id, ok := l.joined[uuid]
	if !ok {
		return
	}
	if l.disp.Initialized() && l.disp.HoldsWork(id) {
		metrics.LostWorkersTotal.Inc()
		l.logger.Warn("worker lost while holding a node; the solve stalls until it re-joins",
			"worker_id", id, "worker_uuid", uuid)
		return
	}
	l.logger.Info("worker deregistered", "worker_id", id, "worker_uuid", uuid)
}

func (l *Loop) observe() {
	s := l.disp.Stats()
	metrics.SolveGauges.WithLabelValues("queue_size").Set(float64(s.QueueSize))
	metrics.SolveGauges.WithLabelValues("busy_workers").Set(float64(s.Busy))
	metrics.SolveGauges.WithLabelValues("idle_workers").Set(float64(s.Idle))
	metrics.SolveGauges.WithLabelValues("explored_nodes").Set(float64(s.Explored))
	metrics.SolveGauges.WithLabelValues("sent_nodes").Set(float64(s.Sent))
	metrics.SolveGauges.WithLabelValues("pruned_nodes").Set(float64(s.Pruned))
	metrics.SolveGauges.WithLabelValues("incumbent").Set(s.BestObjective)
	metrics.SolveGauges.WithLabelValues("bound").Set(s.Bound)
}

// FinalSnapshot exports the queue and incumbent left when the solve
// stopped. It is only safe to call after Run returned.
func (l *Loop) FinalSnapshot() domain.Snapshot {
	return l.disp.SaveQueue()
}
