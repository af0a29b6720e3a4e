// internal/scheduler/cron_scheduler.go
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"distributed-bnb/internal/domain"
	"distributed-bnb/internal/metrics"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Parser accepts standard five-field expressions, an optional leading
// seconds field, and descriptors such as @every 30s.
var Parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// SnapshotSource exports the queue of the running solve.
type SnapshotSource interface {
	SolveID() string
	Snapshot(ctx context.Context) (domain.Snapshot, bool, error)
}

// CheckpointSaver persists a snapshot.
type CheckpointSaver interface {
	Save(ctx context.Context, solveID string, snap domain.Snapshot) (*domain.Checkpoint, error)
}

// cronScheduler writes a checkpoint of the running solve on a cron schedule.
type cronScheduler struct {
	cron    *cron.Cron
	source  SnapshotSource
	saver   CheckpointSaver
	locker  domain.Locker
	timeout time.Duration
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewCronScheduler schedules checkpoints of source according to spec. locker
// may be nil when only one dispatcher can ever run.
func NewCronScheduler(spec string, source SnapshotSource, saver CheckpointSaver, locker domain.Locker, logger *slog.Logger) (domain.Scheduler, error) {
	s := &cronScheduler{
		cron:    cron.New(cron.WithParser(Parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		source:  source,
		saver:   saver,
		locker:  locker,
		timeout: 30 * time.Second,
		logger:  logger.With("component", "checkpoint-scheduler"),
		tracer:  otel.Tracer("distributed-bnb-scheduler"),
	}
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("%w: invalid checkpoint schedule %q: %v", domain.ErrInvalidConfig, spec, err)
	}
	return s, nil
}

func (s *cronScheduler) Start(ctx context.Context) error {
	s.logger.Info("checkpoint scheduler started")
	s.cron.Start()
	<-ctx.Done()
	s.logger.Info("checkpoint scheduler stopping...")
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("checkpoint scheduler stopped")
	return ctx.Err()
}

// run is called by the cron library.
func (s *cronScheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.RunNow(ctx); err != nil {
		s.logger.Error("scheduled checkpoint failed", "error", err)
	}
}

// RunNow writes one checkpoint unless the solve is not running or another
// dispatcher is writing one.
func (s *cronScheduler) RunNow(ctx context.Context) error {
	solveID := s.source.SolveID()
	ctx, span := s.tracer.Start(ctx, "scheduler.Checkpoint",
		trace.WithAttributes(attribute.String("solve.id", solveID)))
	defer span.End()

	snap, initialized, err := s.source.Snapshot(ctx)
	if err != nil {
		metrics.CheckpointsTotal.WithLabelValues("failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "snapshot failed")
		return fmt.Errorf("failed to snapshot solve %s: %w", solveID, err)
	}
	if !initialized {
		metrics.CheckpointsTotal.WithLabelValues("skipped").Inc()
		span.AddEvent("skipped_checkpoint", trace.WithAttributes(attribute.String("reason", "not_running")))
		return nil
	}

	if s.locker != nil {
		lock, err := s.locker.Lock(ctx, "checkpoint-"+solveID)
		if err != nil {
			if errors.Is(err, domain.ErrLockNotAcquired) {
				metrics.CheckpointsTotal.WithLabelValues("skipped").Inc()
				s.logger.Warn("checkpoint already in progress elsewhere", "solve_id", solveID)
				span.AddEvent("skipped_checkpoint", trace.WithAttributes(attribute.String("reason", "lock_not_acquired")))
				return nil
			}
			metrics.CheckpointsTotal.WithLabelValues("failed").Inc()
			span.RecordError(err)
			return err
		}
		defer func() {
			unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := lock.Unlock(unlockCtx); err != nil {
				s.logger.Error("failed to release checkpoint lock", "error", err)
			}
		}()
	}

	cp, err := s.saver.Save(ctx, solveID, snap)
	if err != nil {
		metrics.CheckpointsTotal.WithLabelValues("failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "save failed")
		return err
	}
	metrics.CheckpointsTotal.WithLabelValues("success").Inc()
	span.SetAttributes(attribute.Int64("checkpoint.sequence", cp.Sequence), attribute.Int("checkpoint.nodes", cp.NodeCount))
	return nil
}
