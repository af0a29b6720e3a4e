package worker

import (
	"context"
	"fmt"
	"log/slog"

	"distributed-bnb/internal/dispatcher"
	"distributed-bnb/internal/domain"
	"distributed-bnb/internal/rpc"
	"distributed-bnb/internal/wire"

	otelgrpc "go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// JoinInfo is what a worker learns when it joins a solve.
type JoinInfo struct {
	WorkerID    int
	WorkerCount int
	SolveID     string
	Initialized bool
	Sense       domain.Sense
}

// Assignment is the dispatcher's answer to an update. Node is nil when there
// is no more work and the worker should finalize.
type Assignment struct {
	Node          *domain.Node
	BestObjective float64
}

// Result is the outcome of a solve as seen by a worker.
type Result struct {
	GlobalBound   float64
	BestObjective float64
	Termination   domain.TerminationCondition
	Explored      int64
}

// Dispatcher is the dispatcher as a worker talks to it.
type Dispatcher interface {
	Join(ctx context.Context) (JoinInfo, error)
	Initialize(ctx context.Context, workerID int, bestObjective float64, root *domain.Node) error
	Update(ctx context.Context, workerID int, u dispatcher.Update) (Assignment, error)
	Finalize(ctx context.Context, workerID int) (Result, error)
	Log(ctx context.Context, workerID int, level, message string) error
}

// Client is the gRPC implementation of Dispatcher.
type Client struct {
	conn       *grpc.ClientConn
	rpc        rpc.DispatcherClient
	workerUUID string
	addr       string
	logger     *slog.Logger
}

// Dial connects to the dispatcher at target.
func Dial(target, workerUUID, addr string, logger *slog.Logger) (*Client, error) {
	conn, err := grpc.NewClient(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		// workers may start before a dispatcher won the election
		grpc.WithDefaultCallOptions(grpc.WaitForReady(true)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to dial dispatcher %s: %w", target, err)
	}
	c := NewClient(conn, workerUUID, addr, logger)
	c.conn = conn
	return c, nil
}

// NewClient wraps an existing connection; the caller keeps ownership of cc.
func NewClient(cc grpc.ClientConnInterface, workerUUID, addr string, logger *slog.Logger) *Client {
	return &Client{
		rpc:        rpc.NewDispatcherClient(cc),
		workerUUID: workerUUID,
		addr:       addr,
		logger:     logger.With("component", "dispatcher-client", "worker_uuid", workerUUID),
	}
}

// Close closes the connection opened by Dial.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

var _ Dispatcher = (*Client)(nil)

func (c *Client) Join(ctx context.Context) (JoinInfo, error) {
	resp, err := c.rpc.Join(ctx, &rpc.JoinRequest{WorkerUUID: c.workerUUID, Address: c.addr})
	if err != nil {
		return JoinInfo{}, fmt.Errorf("join: %w", err)
	}
	sense, ok := domain.ParseSense(resp.Sense)
	if !ok {
		return JoinInfo{}, fmt.Errorf("%w: dispatcher sent unknown sense %q", domain.ErrProtocol, resp.Sense)
	}
	return JoinInfo{
		WorkerID:    resp.WorkerID,
		WorkerCount: resp.WorkerCount,
		SolveID:     resp.SolveID,
		Initialized: resp.Initialized,
		Sense:       sense,
	}, nil
}

func (c *Client) Initialize(ctx context.Context, workerID int, bestObjective float64, root *domain.Node) error {
	_, err := c.rpc.Initialize(ctx, &rpc.InitializeRequest{
		WorkerID:      workerID,
		BestObjective: bestObjective,
		Root:          wire.EncodeNode(root),
	})
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	return nil
}

func (c *Client) Update(ctx context.Context, workerID int, u dispatcher.Update) (Assignment, error) {
	resp, err := c.rpc.Update(ctx, &rpc.UpdateRequest{WorkerID: workerID, Frame: wire.EncodeUpdate(u)})
	if err != nil {
		return Assignment{}, fmt.Errorf("update: %w", err)
	}
	switch resp.Kind {
	case rpc.KindNoWork:
		return Assignment{BestObjective: resp.BestObjective}, nil
	case rpc.KindWork:
		n, err := wire.DecodeNode(resp.Node)
		if err != nil {
			return Assignment{}, err
		}
		if !n.HasTreeID() {
			return Assignment{}, fmt.Errorf("%w: assigned node has no tree id", domain.ErrProtocol)
		}
		return Assignment{Node: n, BestObjective: resp.BestObjective}, nil
	default:
		return Assignment{}, fmt.Errorf("%w: unknown reply kind %q", domain.ErrProtocol, resp.Kind)
	}
}

func (c *Client) Finalize(ctx context.Context, workerID int) (Result, error) {
	resp, err := c.rpc.Finalize(ctx, &rpc.FinalizeRequest{WorkerID: workerID})
	if err != nil {
		return Result{}, fmt.Errorf("finalize: %w", err)
	}
	return Result{
		GlobalBound:   resp.GlobalBound,
		BestObjective: resp.BestObjective,
		Termination:   domain.TerminationCondition(resp.Termination),
		Explored:      resp.Explored,
	}, nil
}

func (c *Client) Log(ctx context.Context, workerID int, level, message string) error {
	if _, err := c.rpc.Log(ctx, &rpc.LogRequest{WorkerID: workerID, Level: level, Message: message}); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}
