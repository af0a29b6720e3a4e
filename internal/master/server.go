// internal/master/server.go
package master

import (
	"context"
	"fmt"
	"log/slog"

	"distributed-bnb/internal/dispatcher"
	"distributed-bnb/internal/domain"
	"distributed-bnb/internal/rpc"
	"distributed-bnb/internal/wire"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Server implements rpc.DispatcherServer on top of a Loop.
type Server struct {
	loop   *Loop
	logger *slog.Logger
	tracer trace.Tracer
}

// NewServer creates the gRPC facade of the loop.
func NewServer(loop *Loop, logger *slog.Logger) *Server {
	return &Server{
		loop:   loop,
		logger: logger.With("component", "grpc-server"),
		tracer: otel.Tracer("distributed-bnb-dispatcher"),
	}
}

var _ rpc.DispatcherServer = (*Server)(nil)

func (s *Server) Join(ctx context.Context, req *rpc.JoinRequest) (*rpc.JoinResponse, error) {
	ctx, span := s.tracer.Start(ctx, "dispatcher.Join")
	defer span.End()
	span.SetAttributes(attribute.String("worker.uuid", req.WorkerUUID))

	if req.WorkerUUID == "" {
		return nil, s.fail(span, fmt.Errorf("%w: worker uuid is required", domain.ErrProtocol))
	}
	info, err := s.loop.Join(ctx, req.WorkerUUID)
	if err != nil {
		return nil, s.fail(span, err)
	}
	s.logger.Info("worker joined", "worker_id", info.WorkerID, "worker_uuid", req.WorkerUUID, "addr", req.Address)
	return &rpc.JoinResponse{
		WorkerID:    info.WorkerID,
		WorkerCount: info.WorkerCount,
		SolveID:     info.SolveID,
		Initialized: info.Initialized,
		Sense:       info.Sense.String(),
	}, nil
}

func (s *Server) Initialize(ctx context.Context, req *rpc.InitializeRequest) (*rpc.InitializeResponse, error) {
	ctx, span := s.tracer.Start(ctx, "dispatcher.Initialize")
	defer span.End()
	span.SetAttributes(attribute.Int("worker.id", req.WorkerID))

	root, err := wire.DecodeNode(req.Root)
	if err != nil {
		return nil, s.fail(span, err)
	}
	if err := s.loop.Initialize(ctx, req.WorkerID, req.BestObjective, root); err != nil {
		return nil, s.fail(span, err)
	}
	return &rpc.InitializeResponse{SolveID: s.loop.SolveID()}, nil
}

func (s *Server) Update(ctx context.Context, req *rpc.UpdateRequest) (*rpc.UpdateResponse, error) {
	ctx, span := s.tracer.Start(ctx, "dispatcher.Update")
	defer span.End()
	span.SetAttributes(attribute.Int("worker.id", req.WorkerID))

	u, err := wire.DecodeUpdate(req.Frame)
	if err != nil {
		s.logger.Error("malformed update frame", "worker_id", req.WorkerID, "error", err)
		if abortErr := s.loop.Abort(ctx, fmt.Errorf("worker %d: %w", req.WorkerID, err)); abortErr != nil {
			s.logger.Warn("failed to stop dispatcher loop", "error", abortErr)
		}
		return nil, s.fail(span, err)
	}
	span.SetAttributes(attribute.Int("update.nodes", len(u.Nodes)), attribute.Int64("update.explored", u.Explored))

	dl, err := s.loop.Update(ctx, req.WorkerID, u)
	if err != nil {
		return nil, s.fail(span, err)
	}
	resp := &rpc.UpdateResponse{BestObjective: dl.BestObjective}
	switch dl.Kind {
	case dispatcher.DeliveryWork:
		resp.Kind = rpc.KindWork
		resp.Node = wire.EncodeNode(dl.Node)
	default:
		resp.Kind = rpc.KindNoWork
	}
	span.SetAttributes(attribute.String("delivery.kind", resp.Kind))
	return resp, nil
}

func (s *Server) Finalize(ctx context.Context, req *rpc.FinalizeRequest) (*rpc.FinalizeResponse, error) {
	ctx, span := s.tracer.Start(ctx, "dispatcher.Finalize")
	defer span.End()
	span.SetAttributes(attribute.Int("worker.id", req.WorkerID))

	info, err := s.loop.Finalize(ctx, req.WorkerID)
	if err != nil {
		return nil, s.fail(span, err)
	}
	return &rpc.FinalizeResponse{
		GlobalBound:   info.GlobalBound,
		BestObjective: info.BestObjective,
		Termination:   string(info.Termination),
		Explored:      info.Explored,
	}, nil
}

func (s *Server) Log(ctx context.Context, req *rpc.LogRequest) (*rpc.LogResponse, error) {
	if err := s.loop.Log(ctx, req.WorkerID, req.Level, req.Message); err != nil {
		return nil, rpc.ToStatus(err)
	}
	return &rpc.LogResponse{}, nil
}

func (s *Server) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return rpc.ToStatus(err)
}
