// cmd/dispatcher/main.go
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	http_api "distributed-bnb/internal/api/http"
	"distributed-bnb/internal/checkpoint"
	"distributed-bnb/internal/config"
	"distributed-bnb/internal/dispatcher"
	"distributed-bnb/internal/domain"
	"distributed-bnb/internal/infra/etcd"
	http_infra "distributed-bnb/internal/infra/http"
	"distributed-bnb/internal/infra/sqlite"
	"distributed-bnb/internal/master"
	"distributed-bnb/internal/rpc"
	"distributed-bnb/internal/tracing"
	"distributed-bnb/internal/usecase"

	"github.com/google/uuid"
	clientv3 "go.etcd.io/etcd/client/v3"
	otelgrpc "go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("dispatcher stopped with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration and initialize logger and tracer
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	nodeID := uuid.New().String()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})).
		With("node_id", nodeID)
	slog.SetDefault(logger)

	tracerShutdown, err := tracing.InitTracer("distributed-bnb-dispatcher", nodeID, os.Stderr, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}
	defer func() {
		if err := tracerShutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", "error", err)
		}
	}()

	logger.Info("starting dispatcher", "solve_id", cfg.SolveID, "workers", cfg.WorkerCount)

	// 2. Create root context for lifecycle management
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupGracefulShutdown(cancel, logger)

	// 3. Init etcd client
	etcdClient, err := etcd.NewClient(cfg.EtcdEndpoints, cfg.EtcdTimeout)
	if err != nil {
		return err
	}
	defer etcdClient.Close()

	// 4. Storage backends
	backend, err := openBackend(rootCtx, cfg, etcdClient, logger)
	if err != nil {
		return err
	}
	defer backend.close()

	// 5. Solve service
	checker, err := cfg.Checker()
	if err != nil {
		return err
	}
	loopCfg := master.LoopConfig{
		SolveID:     cfg.SolveID,
		WorkerCount: cfg.WorkerCount,
		Options:     cfg.DispatcherOptions(checker),
	}
	opts := []usecase.Option{
		usecase.WithLeaderElection(etcd.NewEtcdLeaderElectionManager(etcdClient, cfg.SolveID, nodeID, cfg.AdvertiseAddress(), cfg.LeaderElectionTTL, logger)),
	}
	if backend.store != nil {
		opts = append(opts, usecase.WithCheckpoints(backend.store, cfg.CheckpointSchedule, etcd.NewEtcdLocker(etcdClient), cfg.Resume))
	}
	if backend.results != nil {
		opts = append(opts, usecase.WithResults(backend.results))
	}
	if cfg.NotifyURL != "" {
		retry := http_infra.RetryPolicy{MaxRetries: cfg.NotifyRetries, Backoff: cfg.NotifyBackoff}
		opts = append(opts, usecase.WithNotifier(http_infra.NewWebhookNotifier(cfg.NotifyURL, retry, logger)))
	}
	svc, err := usecase.NewSolveService(loopCfg, grpcServe(cfg.GrpcListenAddr, logger), logger, opts...)
	if err != nil {
		return err
	}

	discovery := master.NewWorkerDiscovery(etcdClient, cfg.SolveID, svc.WorkerLost, logger)

	// 6. Status API
	var checkpoints http_api.CheckpointReader
	if backend.store != nil {
		checkpoints = backend.store
	}
	statusHandler := http_api.NewStatusHandler(cfg.SolveID, svc, checkpoints, backend.results, logger).
		WithWorkers(discovery)
	server := &http.Server{
		Addr:              cfg.HttpListenAddr,
		Handler:           statusHandler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// 7. Run everything until the solve finishes or a signal arrives
	g, gctx := errgroup.WithContext(rootCtx)
	g.Go(func() error {
		discovery.WatchWorkers(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("starting HTTP API server", "addr", cfg.HttpListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		res, err := svc.Run(gctx)
		if err != nil {
			return err
		}
		logger.Info("solve finished",
			"termination", res.Termination,
			"objective", dispatcher.LogFloat(res.Objective),
			"bound", dispatcher.LogFloat(res.Bound),
			"explored_nodes", res.Explored,
			"elapsed", res.FinishedAt.Sub(res.StartedAt).String(),
		)
		cancel()
		return nil
	})

	err = g.Wait()
	logger.Info("dispatcher shut down")
	return err
}

// grpcServe exposes the loop on addr until ctx is done.
func grpcServe(addr string, logger *slog.Logger) usecase.ServeFunc {
	return func(ctx context.Context, loop *master.Loop) error {
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", addr, err)
		}
		srv := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
		rpc.RegisterDispatcherServer(srv, master.NewServer(loop, logger))
		go func() {
			<-ctx.Done()
			srv.GracefulStop()
		}()
		logger.Info("gRPC server listening", "addr", addr)
		return srv.Serve(lis)
	}
}

type storage struct {
	store   *checkpoint.Store
	results domain.ResultRepository
	db      *sql.DB
}

func (b *storage) close() {
	if b.db != nil {
		_ = b.db.Close()
	}
}

func openBackend(ctx context.Context, cfg *config.Config, client *clientv3.Client, logger *slog.Logger) (*storage, error) {
	switch cfg.CheckpointBackend {
	case config.BackendEtcd:
		return &storage{
			store:   checkpoint.NewStore(etcd.NewEtcdCheckpointRepository(client, logger), logger),
			results: etcd.NewEtcdResultRepository(client, logger),
		}, nil
	case config.BackendSQLite:
		db, err := sqlite.Open(ctx, cfg.SqlitePath)
		if err != nil {
			return nil, err
		}
		if err := sqlite.Bootstrap(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		logger.Info("using sqlite storage", "path", cfg.SqlitePath)
		return &storage{
			store:   checkpoint.NewStore(sqlite.NewCheckpointRepository(db, logger), logger),
			results: sqlite.NewResultRepository(db),
			db:      db,
		}, nil
	default:
		logger.Warn("checkpoints disabled, the solve cannot be resumed")
		return &storage{}, nil
	}
}

func setupGracefulShutdown(cancel context.CancelFunc, logger *slog.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received signal, initiating graceful shutdown", "signal", sig.String())
		cancel()
	}()
}
