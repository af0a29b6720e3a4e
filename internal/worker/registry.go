// internal/worker/registry.go
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"distributed-bnb/internal/domain"
	"distributed-bnb/internal/wire"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const (
	// WorkerRegistryPrefix is the etcd prefix the dispatcher watches for workers.
	WorkerRegistryPrefix = "/bnb/workers/"
)

// Registry keeps a lease-backed registration of this worker in etcd. When
// the process dies the lease expires and the dispatcher sees it leave.
type Registry struct {
	client     *clientv3.Client
	logger     *slog.Logger
	retryDelay time.Duration

	mu      sync.Mutex
	reg     domain.WorkerRegistration
	ttl     time.Duration
	leaseID clientv3.LeaseID
}

// NewRegistry creates a new worker registry.
func NewRegistry(client *clientv3.Client, logger *slog.Logger) *Registry {
	return &Registry{
		client:     client,
		logger:     logger.With("component", "worker-registry"),
		retryDelay: time.Second,
	}
}

// Register publishes reg under a lease of ttl. Call KeepAlive afterwards to
// hold the registration.
func (r *Registry) Register(ctx context.Context, reg domain.WorkerRegistration, ttl time.Duration) error {
	if ttl < time.Second {
		return fmt.Errorf("%w: registration ttl must be at least 1s, got %s", domain.ErrInvalidConfig, ttl)
	}
	r.mu.Lock()
	r.reg = reg
	r.ttl = ttl
	r.mu.Unlock()
	if err := r.put(ctx); err != nil {
		return err
	}
	r.logger.Info("worker registered", "key", WorkerRegistryPrefix+reg.UUID, "solve_id", reg.SolveID)
	return nil
}

func (r *Registry) put(ctx context.Context) error {
	r.mu.Lock()
	reg, ttl := r.reg, r.ttl
	r.mu.Unlock()

	value, err := wire.EncodeRegistration(reg)
	if err != nil {
		return fmt.Errorf("failed to encode registration: %w", err)
	}
	lease, err := r.client.Grant(ctx, int64(ttl.Seconds()))
	if err != nil {
		return fmt.Errorf("failed to grant lease: %w", err)
	}
	if _, err := r.client.Put(ctx, WorkerRegistryPrefix+reg.UUID, string(value), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("failed to put worker registration key: %w", err)
	}

	r.mu.Lock()
	r.leaseID = lease.ID
	r.mu.Unlock()
	return nil
}

// KeepAlive refreshes the lease until ctx is done. If the lease is lost, for
// example after a network partition longer than the ttl, the worker
// registers again.
func (r *Registry) KeepAlive(ctx context.Context) {
	for {
		r.mu.Lock()
		leaseID := r.leaseID
		r.mu.Unlock()

		ch, err := r.client.KeepAlive(ctx, leaseID)
		if err == nil {
			for ka := range ch {
				r.logger.Debug("lease keep-alive refreshed", "lease_id", ka.ID, "ttl", ka.TTL)
			}
		}
		if ctx.Err() != nil {
			return
		}
		r.logger.Warn("registration lease lost, registering again", "error", err)

		select {
		case <-time.After(r.retryDelay):
		case <-ctx.Done():
			return
		}
		regCtx, cancel := context.WithTimeout(ctx, r.ttl)
		if err := r.put(regCtx); err != nil {
			r.logger.Warn("failed to register again", "error", err)
		}
		cancel()
	}
}

// Deregister revokes the lease, which deletes the registration key.
func (r *Registry) Deregister(ctx context.Context) error {
	r.mu.Lock()
	leaseID, uuid := r.leaseID, r.reg.UUID
	r.mu.Unlock()

	r.logger.Info("deregistering worker", "worker_uuid", uuid)
	if _, err := r.client.Revoke(ctx, leaseID); err != nil {
		return fmt.Errorf("failed to revoke lease: %w", err)
	}
	return nil
}
