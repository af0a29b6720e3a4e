// internal/master/discovery.go
package master

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"distributed-bnb/internal/domain"
	"distributed-bnb/internal/wire"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const (
	// WorkerRegistryPrefix is the etcd prefix where workers register themselves.
	WorkerRegistryPrefix = "/bnb/workers/"
)

// LostFunc is told about every worker of the solve whose registration
// disappears.
type LostFunc func(ctx context.Context, workerUUID string) error

// WorkerDiscovery tracks the workers registered in etcd for one solve.
// Registrations of other solves sharing the cluster are ignored.
type WorkerDiscovery struct {
	client     *clientv3.Client
	solveID    string
	onLost     LostFunc
	logger     *slog.Logger
	retryDelay time.Duration

	mu      sync.RWMutex
	workers map[string]domain.WorkerRegistration
}

// NewWorkerDiscovery creates a new discovery service. onLost may be nil.
func NewWorkerDiscovery(client *clientv3.Client, solveID string, onLost LostFunc, logger *slog.Logger) *WorkerDiscovery {
	return &WorkerDiscovery{
		client:     client,
		solveID:    solveID,
		onLost:     onLost,
		logger:     logger.With("component", "worker-discovery", "solve_id", solveID),
		retryDelay: time.Second,
		workers:    make(map[string]domain.WorkerRegistration),
	}
}

// WatchWorkers loads the current registrations and follows changes until ctx
// is done. A watch that breaks, for example after a compaction, is resumed
// from a fresh listing.
func (d *WorkerDiscovery) WatchWorkers(ctx context.Context) {
	d.logger.Info("starting to watch for workers")
	defer d.logger.Info("stopped watching for workers")

	for {
		rev, err := d.loadWorkers(ctx)
		if err != nil {
			d.logger.Error("failed to list workers", "error", err)
		} else {
			d.watch(ctx, rev+1)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.retryDelay):
		}
	}
}

func (d *WorkerDiscovery) watch(ctx context.Context, fromRev int64) {
	watchChan := d.client.Watch(ctx, WorkerRegistryPrefix, clientv3.WithPrefix(), clientv3.WithRev(fromRev))
	for watchResp := range watchChan {
		if err := watchResp.Err(); err != nil {
			d.logger.Warn("worker watch broken", "error", err)
			return
		}
		for _, event := range watchResp.Events {
			uuid := strings.TrimPrefix(string(event.Kv.Key), WorkerRegistryPrefix)
			switch event.Type {
			case clientv3.EventTypePut:
				d.put(uuid, event.Kv.Value)
			case clientv3.EventTypeDelete:
				d.removed(ctx, uuid)
			}
		}
	}
}

// loadWorkers replaces the known set with the current registrations and
// reports workers that vanished meanwhile. It returns the listing revision.
func (d *WorkerDiscovery) loadWorkers(ctx context.Context) (int64, error) {
	listCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp, err := d.client.Get(listCtx, WorkerRegistryPrefix, clientv3.WithPrefix())
	if err != nil {
		return 0, err
	}
	seen := make(map[string]bool, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		uuid := strings.TrimPrefix(string(kv.Key), WorkerRegistryPrefix)
		seen[uuid] = true
		d.put(uuid, kv.Value)
	}
	for _, uuid := range d.GetWorkers() {
		if !seen[uuid] {
			d.removed(ctx, uuid)
		}
	}
	return resp.Header.Revision, nil
}

func (d *WorkerDiscovery) put(uuid string, value []byte) {
	reg, err := wire.DecodeRegistration(uuid, value)
	if err != nil {
		d.logger.Warn("ignoring malformed worker registration", "worker_uuid", uuid, "error", err)
		return
	}
	if reg.SolveID != d.solveID {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.workers[uuid]; !ok {
		d.logger.Info("new worker discovered", "worker_uuid", uuid, "addr", reg.Addr)
	}
	d.workers[uuid] = reg
}

func (d *WorkerDiscovery) removed(ctx context.Context, uuid string) {
	d.mu.Lock()
	reg, ok := d.workers[uuid]
	delete(d.workers, uuid)
	d.mu.Unlock()
	if !ok {
		return
	}

	d.logger.Info("worker deregistered", "worker_uuid", uuid, "addr", reg.Addr)
	if d.onLost == nil {
		return
	}
	if err := d.onLost(ctx, uuid); err != nil {
		d.logger.Warn("failed to report lost worker", "worker_uuid", uuid, "error", err)
	}
}

// GetWorkers returns the registered worker uuids, sorted.
func (d *WorkerDiscovery) GetWorkers() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := make([]string, 0, len(d.workers))
	for id := range d.workers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
