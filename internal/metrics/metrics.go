// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HttpRequestsTotal counts status API requests.
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of http requests handled by the service.",
		},
		[]string{"path", "method", "code"},
	)

	// UpdatesTotal counts worker updates by outcome (ok, rejected).
	UpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bnb_updates_total",
			Help: "Total number of worker updates handled by the dispatcher.",
		},
		[]string{"status"},
	)

	// DeliveriesTotal counts replies sent to workers by kind (work, no_work).
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bnb_deliveries_total",
			Help: "Total number of replies sent to workers.",
		},
		[]string{"kind"},
	)

	// LostWorkersTotal counts workers that disappeared while holding a node.
	LostWorkersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bnb_lost_workers_total",
			Help: "Total number of workers that deregistered while holding a node.",
		},
	)

	// ReleasedNodesTotal counts nodes returned to the queue after their
	// worker restarted.
	ReleasedNodesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bnb_released_nodes_total",
			Help: "Total number of checked-out nodes requeued because their worker re-joined.",
		},
	)

	// CheckpointsTotal counts checkpoint attempts by status (success, failed, skipped).
	CheckpointsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bnb_checkpoints_total",
			Help: "Total number of checkpoint attempts.",
		},
		[]string{"status"},
	)

	// SolveGauges exposes the dispatcher state after every update.
	SolveGauges = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bnb_solve_state",
			Help: "Dispatcher state: queue_size, busy_workers, idle_workers, explored_nodes, sent_nodes, pruned_nodes, incumbent, bound.",
		},
		[]string{"field"},
	)

	// IsLeader marks whether this dispatcher currently holds the leadership.
	IsLeader = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "is_leader",
			Help: "Is this node currently the leader. 1 if leader, 0 otherwise.",
		},
		[]string{"node_id"},
	)
)
