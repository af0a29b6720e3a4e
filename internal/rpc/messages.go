// Package rpc defines the dispatcher gRPC service. Messages are plain
// structs carried by the msgpack codec; node and update payloads use the
// flat buffers of package wire.
package rpc

// Reply kinds of an UpdateResponse.
const (
	KindWork   = "work"
	KindNoWork = "no_work"
)

type JoinRequest struct {
	// WorkerUUID identifies the worker process across reconnects.
	WorkerUUID string `msgpack:"worker_uuid"`
	Address    string `msgpack:"address"`
}

type JoinResponse struct {
	WorkerID    int    `msgpack:"worker_id"`
	WorkerCount int    `msgpack:"worker_count"`
	SolveID     string `msgpack:"solve_id"`
	// Initialized is set when the solve already has a queue, for example
	// after resuming from a checkpoint; the root worker then skips Initialize.
	Initialized bool   `msgpack:"initialized"`
	Sense       string `msgpack:"sense"`
}

type InitializeRequest struct {
	WorkerID      int     `msgpack:"worker_id"`
	BestObjective float64 `msgpack:"best_objective"`
	// Root is a wire node buffer; it gets tree id 0.
	Root []byte `msgpack:"root"`
}

type InitializeResponse struct {
	SolveID string `msgpack:"solve_id"`
}

type UpdateRequest struct {
	WorkerID int `msgpack:"worker_id"`
	// Frame is a wire update frame.
	Frame []byte `msgpack:"frame"`
}

type UpdateResponse struct {
	Kind          string  `msgpack:"kind"`
	BestObjective float64 `msgpack:"best_objective"`
	Node          []byte  `msgpack:"node,omitempty"`
}

type FinalizeRequest struct {
	WorkerID int `msgpack:"worker_id"`
}

type FinalizeResponse struct {
	GlobalBound   float64 `msgpack:"global_bound"`
	BestObjective float64 `msgpack:"best_objective"`
	Termination   string  `msgpack:"termination"`
	Explored      int64   `msgpack:"explored"`
}

type LogRequest struct {
	WorkerID int    `msgpack:"worker_id"`
	Level    string `msgpack:"level"`
	Message  string `msgpack:"message"`
}

type LogResponse struct{}
