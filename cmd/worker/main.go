// cmd/worker/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"distributed-bnb/internal/config"
	"distributed-bnb/internal/dispatcher"
	"distributed-bnb/internal/domain"
	"distributed-bnb/internal/infra/etcd"
	"distributed-bnb/internal/tracing"
	"distributed-bnb/internal/worker"

	"github.com/google/uuid"
)

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("worker stopped with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Init config, logger and tracer
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// a fixed uuid lets a restarted worker take back its slot
	workerID := cfg.WorkerUUID
	if workerID == "" {
		workerID = uuid.New().String()
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})).
		With("worker_uuid", workerID)
	slog.SetDefault(logger)

	tracerShutdown, err := tracing.InitTracer("distributed-bnb-worker", workerID, os.Stderr, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}
	defer func() {
		if err := tracerShutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", "error", err)
		}
	}()

	hostname, _ := os.Hostname()
	addr := fmt.Sprintf("%s/%d", hostname, os.Getpid())
	logger.Info("starting worker", "addr", addr, "solve_id", cfg.SolveID)

	// 2. Create root context for lifecycle management
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupGracefulShutdown(cancel, logger)

	// 3. Init etcd client and register this worker
	etcdClient, err := etcd.NewClient(cfg.EtcdEndpoints, cfg.EtcdTimeout)
	if err != nil {
		return err
	}
	defer etcdClient.Close()

	registry := worker.NewRegistry(etcdClient, logger)
	regCtx, regCancel := context.WithTimeout(rootCtx, cfg.EtcdTimeout)
	defer regCancel()
	reg := domain.WorkerRegistration{UUID: workerID, Addr: addr, SolveID: cfg.SolveID, RegisteredAt: time.Now()}
	if err := registry.Register(regCtx, reg, cfg.LeaderElectionTTL); err != nil {
		return fmt.Errorf("failed to register worker: %w", err)
	}
	go registry.KeepAlive(rootCtx)
	defer func() {
		cancel()
		deregCtx, deregCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer deregCancel()
		if err := registry.Deregister(deregCtx); err != nil {
			logger.Error("failed to deregister worker", "error", err)
		}
	}()

	// 4. Build the problem and solve it with the dispatcher
	problem, err := cfg.Knapsack()
	if err != nil {
		return err
	}
	checker, err := cfg.Checker()
	if err != nil {
		return err
	}

	target := cfg.DispatcherAddr
	if target == "" {
		if target, err = etcd.WaitForLeader(rootCtx, etcdClient, cfg.SolveID, time.Second, logger); err != nil {
			return err
		}
	}
	logger.Info("connecting to dispatcher", "target", target)
	client, err := worker.Dial(target, workerID, addr, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	solver, err := worker.NewSolver(problem, checker, client, logger)
	if err != nil {
		return err
	}
	res, err := solver.Solve(rootCtx)
	if err != nil {
		return err
	}

	logger.Info("solve finished",
		"termination", res.Termination,
		"objective", dispatcher.LogFloat(res.BestObjective),
		"bound", dispatcher.LogFloat(res.GlobalBound),
		"explored_nodes", res.Explored,
	)
	return nil
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
