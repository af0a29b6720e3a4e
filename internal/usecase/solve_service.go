package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"distributed-bnb/internal/checkpoint"
	"distributed-bnb/internal/dispatcher"
	"distributed-bnb/internal/domain"
	"distributed-bnb/internal/master"
	"distributed-bnb/internal/scheduler"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var errLeadershipLost = errors.New("leadership lost")

// ServeFunc exposes loop to workers until ctx is done.
type ServeFunc func(ctx context.Context, loop *master.Loop) error

// Option configures a SolveService.
type Option func(*SolveService)

// WithLeaderElection makes the service campaign before serving. Without it
// the process serves the solve right away.
func WithLeaderElection(leader domain.LeaderElectionManager) Option {
	return func(s *SolveService) { s.leader = leader }
}

// WithCheckpoints enables checkpoints. schedule may be empty, in which case
// only the final checkpoint is written. locker may be nil.
func WithCheckpoints(store *checkpoint.Store, schedule string, locker domain.Locker, resume bool) Option {
	return func(s *SolveService) {
		s.store = store
		s.schedule = schedule
		s.locker = locker
		s.resume = resume
	}
}

// WithResults records the outcome of the solve in repo.
func WithResults(repo domain.ResultRepository) Option {
	return func(s *SolveService) { s.results = repo }
}

// WithNotifier announces the finished solve through n.
func WithNotifier(n domain.ResultNotifier) Option {
	return func(s *SolveService) { s.notifier = n }
}

// SolveService runs one solve: it wins leadership, restores the queue,
// serves workers and records the outcome.
type SolveService struct {
	cfg        master.LoopConfig
	serve      ServeFunc
	leader     domain.LeaderElectionManager
	store      *checkpoint.Store
	schedule   string
	locker     domain.Locker
	resume     bool
	results    domain.ResultRepository
	notifier   domain.ResultNotifier
	retryDelay time.Duration
	logger     *slog.Logger
	tracer     trace.Tracer

	mu   sync.RWMutex
	loop *master.Loop
}

// NewSolveService creates the service. serve is required.
func NewSolveService(cfg master.LoopConfig, serve ServeFunc, logger *slog.Logger, opts ...Option) (*SolveService, error) {
	if serve == nil {
		return nil, fmt.Errorf("%w: serve function is required", domain.ErrInvalidConfig)
	}
	s := &SolveService{
		cfg:        cfg,
		serve:      serve,
		retryDelay: 5 * time.Second,
		logger:     logger.With("component", "solve-service", "solve_id", cfg.SolveID),
		tracer:     otel.Tracer("distributed-bnb-usecase"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run blocks until the solve finished or ctx is done. When leadership is lost
// the service campaigns again and resumes from the newest checkpoint.
func (s *SolveService) Run(ctx context.Context) (*domain.SolveResult, error) {
	resume := s.resume
	for {
		var lost <-chan struct{}
		if s.leader != nil {
			s.logger.Info("campaigning for leadership")
			ch, err := s.leader.Campaign(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				s.logger.Error("leadership campaign failed", "error", err, "retry_in", s.retryDelay)
				select {
				case <-time.After(s.retryDelay):
					continue
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
			s.logger.Info("became leader")
			lost = ch
		}

		res, err := s.runOnce(ctx, lost, resume)
		if errors.Is(err, errLeadershipLost) {
			s.logger.Warn("lost leadership, abandoning the running solve")
			resume = true
			continue
		}
		if s.leader != nil {
			resignCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if rerr := s.leader.Resign(resignCtx); rerr != nil {
				s.logger.Error("failed to resign leadership", "error", rerr)
			}
			cancel()
		}
		return res, err
	}
}

func (s *SolveService) runOnce(ctx context.Context, lost <-chan struct{}, resume bool) (*domain.SolveResult, error) {
	loop, err := master.NewLoop(s.cfg, s.logger)
	if err != nil {
		return nil, err
	}
	if resume && s.store != nil {
		if err := s.restore(ctx, loop); err != nil {
			return nil, err
		}
	}

	var sched domain.Scheduler
	if s.store != nil && s.schedule != "" {
		if sched, err = scheduler.NewCronScheduler(s.schedule, loop, s.store, s.locker, s.logger); err != nil {
			return nil, err
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	s.setLoop(loop)
	defer s.setLoop(nil)

	var res *domain.SolveResult
	g.Go(func() error {
		r, err := loop.Run(gctx)
		if err != nil {
			return err
		}
		res = r
		cancel()
		return nil
	})
	g.Go(func() error {
		return s.serve(gctx, loop)
	})
	if sched != nil {
		g.Go(func() error {
			if err := sched.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	if lost != nil {
		g.Go(func() error {
			select {
			case <-lost:
				return errLeadershipLost
			case <-gctx.Done():
				return nil
			}
		})
	}

	if err := g.Wait(); err != nil && res == nil {
		return nil, err
	}
	if res == nil {
		return nil, ctx.Err()
	}

	s.record(ctx, loop, res)
	return res, nil
}

// restore loads the newest checkpoint into loop. A solve without any
// checkpoint starts from the root.
func (s *SolveService) restore(ctx context.Context, loop *master.Loop) error {
	ctx, span := s.tracer.Start(ctx, "service.Restore",
		trace.WithAttributes(attribute.String("solve.id", s.cfg.SolveID)))
	defer span.End()

	snap, cp, err := s.store.LoadLatest(ctx, s.cfg.SolveID)
	if errors.Is(err, domain.ErrCheckpointNotFound) {
		s.logger.Info("no checkpoint found, waiting for the root node")
		return nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load checkpoint")
		return err
	}
	span.SetAttributes(attribute.Int64("checkpoint.sequence", cp.Sequence))
	return loop.Resume(snap)
}

// record persists the final queue and the result. Failures are logged: the
// solve itself already finished.
func (s *SolveService) record(ctx context.Context, loop *master.Loop, res *domain.SolveResult) {
	ctx, span := s.tracer.Start(ctx, "service.Record",
		trace.WithAttributes(attribute.String("solve.id", res.SolveID), attribute.String("termination", string(res.Termination))))
	defer span.End()

	if s.store != nil {
		if snap := loop.FinalSnapshot(); len(snap.Nodes) > 0 {
			if _, err := s.store.Save(ctx, s.cfg.SolveID, snap); err != nil {
				span.RecordError(err)
				s.logger.Error("failed to save final checkpoint", "error", err)
			}
		}
	}
	if s.results != nil {
		if err := s.results.Save(ctx, res); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to save result")
			s.logger.Error("failed to save solve result", "error", err)
		}
	}
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, res); err != nil {
			span.RecordError(err)
			s.logger.Error("failed to notify solve result", "error", err)
		}
	}
}

func (s *SolveService) setLoop(l *master.Loop) {
	s.mu.Lock()
	s.loop = l
	s.mu.Unlock()
}

func (s *SolveService) current() *master.Loop {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loop
}

// Stats reports the running solve, or domain.ErrUnavailable.
func (s *SolveService) Stats(ctx context.Context) (dispatcher.Stats, error) {
	loop := s.current()
	if loop == nil {
		return dispatcher.Stats{}, domain.ErrUnavailable
	}
	return loop.Stats(ctx)
}

// WorkerLost forwards a vanished worker registration to the running solve.
func (s *SolveService) WorkerLost(ctx context.Context, workerUUID string) error {
	loop := s.current()
	if loop == nil {
		return nil
	}
	if err := loop.WorkerLost(ctx, workerUUID); err != nil && !errors.Is(err, master.ErrStopped) {
		return err
	}
	return nil
}
