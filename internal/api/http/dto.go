package http

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"distributed-bnb/internal/dispatcher"
	"distributed-bnb/internal/domain"
)

// Float is a float64 that survives JSON: infinities are written as the
// strings "+Inf" and "-Inf", NaN as null.
type Float float64

func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return []byte("null"), nil
	case math.IsInf(v, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Inf"`), nil
	}
	return json.Marshal(v)
}

func (f *Float) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case "null":
		*f = Float(math.NaN())
		return nil
	case `"+Inf"`, `"Inf"`:
		*f = Float(math.Inf(1))
		return nil
	case `"-Inf"`:
		*f = Float(math.Inf(-1))
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	SolveID        string                      `json:"solve_id"`
	Initialized    bool                        `json:"initialized"`
	Sense          string                      `json:"sense,omitempty"`
	Strategy       string                      `json:"strategy,omitempty"`
	BestObjective  Float                       `json:"best_objective"`
	Bound          Float                       `json:"bound"`
	AbsoluteGap    Float                       `json:"absolute_gap"`
	RelativeGap    Float                       `json:"relative_gap"`
	QueueSize      int                         `json:"queue_size"`
	BusyWorkers    int                         `json:"busy_workers"`
	IdleWorkers    int                         `json:"idle_workers"`
	Workers        int                         `json:"workers"`
	ExploredNodes  int64                       `json:"explored_nodes"`
	SentNodes      int64                       `json:"sent_nodes"`
	CreatedNodes   int64                       `json:"created_nodes"`
	PrunedNodes    int64                       `json:"pruned_nodes"`
	CompletedNodes int64                       `json:"completed_nodes"`
	NextTreeID     uint64                      `json:"next_tree_id"`
	Stopped        bool                        `json:"stopped"`
	Termination    domain.TerminationCondition `json:"termination,omitempty"`
	StartedAt      *time.Time                  `json:"started_at,omitempty"`
	ElapsedSeconds float64                     `json:"elapsed_seconds"`
}

func toStatusResponse(solveID string, s dispatcher.Stats) StatusResponse {
	resp := StatusResponse{
		SolveID:        solveID,
		Initialized:    s.Initialized,
		Sense:          s.Sense,
		Strategy:       string(s.Strategy),
		BestObjective:  Float(s.BestObjective),
		Bound:          Float(s.Bound),
		AbsoluteGap:    Float(s.AbsoluteGap),
		RelativeGap:    Float(s.RelativeGap),
		QueueSize:      s.QueueSize,
		BusyWorkers:    s.Busy,
		IdleWorkers:    s.Idle,
		Workers:        s.Workers,
		ExploredNodes:  s.Explored,
		SentNodes:      s.Sent,
		CreatedNodes:   s.Created,
		PrunedNodes:    s.Pruned,
		CompletedNodes: s.Completed,
		NextTreeID:     s.NextTreeID,
		Stopped:        s.Stopped,
		ElapsedSeconds: s.Elapsed.Seconds(),
	}
	if s.Sense != "" {
		resp.Termination = s.Termination
	}
	if !s.StartedAt.IsZero() {
		started := s.StartedAt
		resp.StartedAt = &started
	}
	return resp
}

// CheckpointResponse describes one stored checkpoint.
type CheckpointResponse struct {
	SolveID   string    `json:"solve_id"`
	Sequence  int64     `json:"sequence"`
	CreatedAt time.Time `json:"created_at"`
	NodeCount int       `json:"node_count"`
	Digest    string    `json:"digest"`
}

func toCheckpointResponse(cp *domain.Checkpoint) CheckpointResponse {
	return CheckpointResponse{
		SolveID:   cp.SolveID,
		Sequence:  cp.Sequence,
		CreatedAt: cp.CreatedAt,
		NodeCount: cp.NodeCount,
		Digest:    cp.Digest,
	}
}

// ResultResponse is the body of GET /result.
type ResultResponse struct {
	SolveID       string                      `json:"solve_id"`
	Objective     Float                       `json:"objective"`
	Bound         Float                       `json:"bound"`
	Termination   domain.TerminationCondition `json:"termination"`
	ExploredNodes int64                       `json:"explored_nodes"`
	SentNodes     int64                       `json:"sent_nodes"`
	QueueSize     int                         `json:"queue_size"`
	StartedAt     time.Time                   `json:"started_at"`
	FinishedAt    time.Time                   `json:"finished_at"`
}

func toResultResponse(res *domain.SolveResult) ResultResponse {
	return ResultResponse{
		SolveID:       res.SolveID,
		Objective:     Float(res.Objective),
		Bound:         Float(res.Bound),
		Termination:   res.Termination,
		ExploredNodes: res.Explored,
		SentNodes:     res.Sent,
		QueueSize:     res.QueueSize,
		StartedAt:     res.StartedAt,
		FinishedAt:    res.FinishedAt,
	}
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
