package worker

import (
	"context"
	"fmt"
	"log/slog"

	"distributed-bnb/internal/dispatcher"
	"distributed-bnb/internal/domain"
)

// Solver runs the worker side of a distributed solve: it bounds and branches
// the nodes the dispatcher hands out and reports children back.
type Solver struct {
	problem domain.Problem
	checker domain.ConvergenceChecker
	disp    Dispatcher
	logger  *slog.Logger

	bestObjective float64
	explored      int64
}

// SolverOption configures a Solver.
type SolverOption func(*Solver)

// WithBestObjective seeds the incumbent, for example with a known feasible
// solution.
func WithBestObjective(obj float64) SolverOption {
	return func(s *Solver) { s.bestObjective = obj }
}

// NewSolver creates a worker loop for problem. The checker must use the
// same sense and tolerances as the dispatcher.
func NewSolver(problem domain.Problem, checker domain.ConvergenceChecker, disp Dispatcher, logger *slog.Logger, opts ...SolverOption) (*Solver, error) {
	if problem.Sense() != checker.Sense() {
		return nil, fmt.Errorf("%w: problem sense %s does not match checker sense %s",
			domain.ErrInvalidConfig, problem.Sense(), checker.Sense())
	}
	s := &Solver{
		problem:       problem,
		checker:       checker,
		disp:          disp,
		logger:        logger.With("component", "solver"),
		bestObjective: checker.InfeasibleObjective(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Solve joins the solve, works until the dispatcher runs out of nodes and
// returns the final result shared by every worker.
func (s *Solver) Solve(ctx context.Context) (*Result, error) {
	info, err := s.disp.Join(ctx)
	if err != nil {
		return nil, err
	}
	if info.Sense != s.checker.Sense() {
		return nil, fmt.Errorf("%w: dispatcher solves with sense %s, worker with %s",
			domain.ErrInvalidConfig, info.Sense, s.checker.Sense())
	}
	logger := s.logger.With("worker_id", info.WorkerID, "solve_id", info.SolveID)

	if info.WorkerID == dispatcher.LocalWorkerID && !info.Initialized {
		root := rootNode(s.problem)
		logger.Info("initializing solve", "root_bound", root.Bound)
		if err := s.disp.Initialize(ctx, info.WorkerID, s.bestObjective, root); err != nil {
			return nil, err
		}
	}

	u := dispatcher.Update{BestObjective: s.bestObjective}
	for {
		asg, err := s.disp.Update(ctx, info.WorkerID, u)
		if err != nil {
			return nil, err
		}
		if asg.Node == nil {
			break
		}
		u, err = s.process(asg)
		if err != nil {
			if logErr := s.disp.Log(ctx, info.WorkerID, "error", err.Error()); logErr != nil {
				logger.Warn("failed to relay log line", "error", logErr)
			}
			return nil, err
		}
	}

	logger.Info("no work left, finalizing", "explored", s.explored)
	if err := s.disp.Log(ctx, info.WorkerID, "info",
		fmt.Sprintf("worker %d finished after exploring %d nodes", info.WorkerID, s.explored)); err != nil {
		logger.Warn("failed to relay log line", "error", err)
	}
	res, err := s.disp.Finalize(ctx, info.WorkerID)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// process explores one assigned node and builds the next update.
func (s *Solver) process(asg Assignment) (dispatcher.Update, error) {
	s.bestObjective = betterObjective(s.checker, s.bestObjective, asg.BestObjective)
	children, bound, err := expand(s.problem, s.checker, asg.Node, &s.bestObjective)
	if err != nil {
		return dispatcher.Update{}, err
	}
	s.explored++
	return dispatcher.Update{
		BestObjective: s.bestObjective,
		PreviousBound: bound,
		Explored:      s.explored,
		Nodes:         children,
	}, nil
}

// LocalSolve solves problem in this process, without any transport.
func LocalSolve(ctx context.Context, problem domain.Problem, opts dispatcher.Options, logger *slog.Logger) (*Result, error) {
	if opts.Checker == nil {
		return nil, fmt.Errorf("%w: convergence checker is required", domain.ErrInvalidConfig)
	}
	checker := opts.Checker
	d := dispatcher.NewLocal(logger)

	root := rootNode(problem)
	root.SetTreeID(0)
	if err := d.Initialize(opts, domain.Snapshot{Nodes: []*domain.Node{root}, NextTreeID: 1}); err != nil {
		return nil, err
	}

	best := opts.BestObjective
	var explored int64
	u := dispatcher.Update{BestObjective: best}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		incumbent, node, err := d.LocalUpdate(u)
		if err != nil {
			return nil, err
		}
		if node == nil {
			break
		}
		best = betterObjective(checker, best, incumbent)
		children, bound, err := expand(problem, checker, node, &best)
		if err != nil {
			return nil, err
		}
		explored++
		u = dispatcher.Update{BestObjective: best, PreviousBound: bound, Explored: explored, Nodes: children}
	}

	termination := d.TerminationCondition()
	bound, err := d.Finalize()
	if err != nil {
		return nil, err
	}
	return &Result{
		GlobalBound:   bound,
		BestObjective: d.BestObjective(),
		Termination:   termination,
		Explored:      explored,
	}, nil
}

func rootNode(p domain.Problem) *domain.Node {
	root := domain.NewNode(p.Sense(), p.Bound(), p.SaveState())
	root.Objective = p.Objective()
	return root
}

// expand bounds node, updates best with its objective and returns its
// children unless the node can be discarded. bound is the bound the node
// was finally judged by.
func expand(p domain.Problem, checker domain.ConvergenceChecker, node *domain.Node, best *float64) (children []*domain.Node, bound float64, err error) {
	bound = node.Bound
	if !checker.ObjectiveCanImprove(*best, bound) {
		return nil, bound, nil
	}
	if err := p.LoadState(node.Payload); err != nil {
		return nil, bound, fmt.Errorf("load node %d: %w", *node.TreeID, err)
	}
	if b := p.Bound(); !checker.BoundWorsened(b, bound) {
		bound = b
	}
	if obj := p.Objective(); checker.ObjectiveImproved(obj, *best) {
		*best = obj
	}
	if !checker.ObjectiveCanImprove(*best, bound) {
		return nil, bound, nil
	}

	for _, payload := range p.Branch() {
		if err := p.LoadState(payload); err != nil {
			return nil, bound, fmt.Errorf("load child of node %d: %w", *node.TreeID, err)
		}
		childBound := p.Bound()
		if checker.BoundWorsened(childBound, bound) {
			childBound = bound
		}
		child := domain.NewNode(p.Sense(), childBound, payload)
		child.Objective = p.Objective()
		child.TreeDepth = node.TreeDepth + 1
		children = append(children, child)
	}
	return children, bound, nil
}

func betterObjective(checker domain.ConvergenceChecker, a, b float64) float64 {
	if checker.ObjectiveImproved(b, a) {
		return b
	}
	return a
}
