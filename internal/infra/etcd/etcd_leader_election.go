package etcd

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"distributed-bnb/internal/domain"
	"distributed-bnb/internal/metrics"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

const (
	// LeaderElectionPrefix is followed by the solve id; each solve elects its
	// own dispatcher.
	LeaderElectionPrefix = "/bnb/leader/"
)

func electionKey(solveID string) string {
	return LeaderElectionPrefix + solveID
}

type etcdLeaderElectionManager struct {
	client        *clientv3.Client
	solveID       string
	nodeID        string
	advertiseAddr string
	ttl           time.Duration
	logger        *slog.Logger

	mutex    sync.RWMutex
	session  *concurrency.Session
	election *concurrency.Election
	isLeader bool
}

// NewEtcdLeaderElectionManager creates the election that decides which
// dispatcher process serves solveID. The winner publishes advertiseAddr so
// workers can find it.
func NewEtcdLeaderElectionManager(client *clientv3.Client, solveID, nodeID, advertiseAddr string, ttl time.Duration, logger *slog.Logger) domain.LeaderElectionManager {
	return &etcdLeaderElectionManager{
		client:        client,
		solveID:       solveID,
		nodeID:        nodeID,
		advertiseAddr: advertiseAddr,
		ttl:           ttl,
		logger:        logger.With("component", "leader-election"),
	}
}

// Campaign blocks until this node leads or ctx is done. The returned channel
// is closed when the session lease expires, i.e. leadership is lost.
func (m *etcdLeaderElectionManager) Campaign(ctx context.Context) (<-chan struct{}, error) {
	session, err := concurrency.NewSession(m.client, concurrency.WithTTL(int(m.ttl.Seconds())))
	if err != nil {
		return nil, fmt.Errorf("failed to create election session: %w", err)
	}
	election := concurrency.NewElection(session, electionKey(m.solveID))

	if err := election.Campaign(ctx, m.advertiseAddr); err != nil {
		_ = session.Close()
		return nil, err
	}

	m.logger.Info("became the leader", "node_id", m.nodeID, "advertise_addr", m.advertiseAddr)
	m.mutex.Lock()
	m.session = session
	m.election = election
	m.isLeader = true
	m.mutex.Unlock()
	metrics.IsLeader.WithLabelValues(m.nodeID).Set(1)

	go func() {
		<-session.Done()
		m.mutex.Lock()
		defer m.mutex.Unlock()
		if m.session == session {
			m.isLeader = false
			metrics.IsLeader.WithLabelValues(m.nodeID).Set(0)
		}
	}()
	return session.Done(), nil
}

func (m *etcdLeaderElectionManager) Resign(ctx context.Context) error {
	m.mutex.Lock()
	m.isLeader = false
	election, session := m.election, m.session
	m.election, m.session = nil, nil
	m.mutex.Unlock()
	metrics.IsLeader.WithLabelValues(m.nodeID).Set(0)

	if election == nil {
		return nil
	}
	m.logger.Info("resigning leadership", "node_id", m.nodeID)
	err := election.Resign(ctx)
	_ = session.Close()
	return err
}

func (m *etcdLeaderElectionManager) IsLeader() bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.isLeader
}

// LeaderAddress returns the address published by the current leader of
// solveID, or domain.ErrUnavailable when there is none.
func LeaderAddress(ctx context.Context, client *clientv3.Client, solveID string) (string, error) {
	// same lookup as concurrency.Election.Leader, without opening a session
	resp, err := client.Get(ctx, electionKey(solveID)+"/", clientv3.WithFirstCreate()...)
	if err != nil {
		return "", fmt.Errorf("failed to look up leader: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return "", fmt.Errorf("%w: no leader for solve %s", domain.ErrUnavailable, solveID)
	}
	return string(resp.Kvs[0].Value), nil
}

// WaitForLeader polls LeaderAddress every interval until a leader appears or
// ctx is done.
func WaitForLeader(ctx context.Context, client *clientv3.Client, solveID string, interval time.Duration, logger *slog.Logger) (string, error) {
	for {
		addr, err := LeaderAddress(ctx, client, solveID)
		if err == nil {
			return addr, nil
		}
		logger.Info("waiting for a dispatcher", "solve_id", solveID, "reason", err)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(interval):
		}
	}
}
