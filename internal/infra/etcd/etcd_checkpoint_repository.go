// internal/infra/etcd/etcd_checkpoint_repository.go
package etcd

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"

	"distributed-bnb/internal/domain"

	"github.com/vmihailenco/msgpack/v5"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	CheckpointDir = "/bnb/checkpoints/"
	// saveAttempts bounds the retries when two writers race for a sequence.
	saveAttempts = 5
)

type checkpointRecord struct {
	SolveID   string `msgpack:"solve_id"`
	Sequence  int64  `msgpack:"sequence"`
	CreatedAt int64  `msgpack:"created_at"`
	NodeCount int    `msgpack:"node_count"`
	Digest    string `msgpack:"digest"`
	Data      []byte `msgpack:"data"`
}

type etcdCheckpointRepository struct {
	client *clientv3.Client
	logger *slog.Logger
	tracer trace.Tracer
}

// NewEtcdCheckpointRepository creates a checkpoint repository backed by etcd.
func NewEtcdCheckpointRepository(client *clientv3.Client, logger *slog.Logger) domain.CheckpointRepository {
	return &etcdCheckpointRepository{
		client: client,
		logger: logger,
		tracer: otel.Tracer("distributed-bnb-etcd-checkpoint-repo"),
	}
}

// checkpointKey is /bnb/checkpoints/{solveID}/{sequence}. The sequence is
// zero padded so lexical order matches numeric order.
func checkpointKey(solveID string, seq int64) string {
	return path.Join(CheckpointDir, solveID, fmt.Sprintf("%020d", seq))
}

func checkpointPrefix(solveID string) string {
	return path.Join(CheckpointDir, solveID) + "/"
}

func parseSequence(key, prefix string) (int64, error) {
	return strconv.ParseInt(strings.TrimPrefix(key, prefix), 10, 64)
}

// Save stores cp under the next sequence of its solve. The put only succeeds
// if the key did not exist yet; a lost race retries with a fresh sequence.
func (r *etcdCheckpointRepository) Save(ctx context.Context, cp *domain.Checkpoint) error {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.SaveCheckpoint")
	defer span.End()
	span.SetAttributes(
		attribute.String("solve.id", cp.SolveID),
		attribute.Int("checkpoint.nodes", cp.NodeCount),
		attribute.Int("checkpoint.bytes", len(cp.Data)),
	)

	prefix := checkpointPrefix(cp.SolveID)
	for attempt := 0; attempt < saveAttempts; attempt++ {
		last, err := r.client.Get(ctx, prefix,
			clientv3.WithPrefix(),
			clientv3.WithSort(clientv3.SortByKey, clientv3.SortDescend),
			clientv3.WithLimit(1),
			clientv3.WithKeysOnly(),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to read latest checkpoint key")
			return fmt.Errorf("failed to read latest checkpoint of %s: %w", cp.SolveID, err)
		}
		seq := int64(1)
		if len(last.Kvs) > 0 {
			prev, err := parseSequence(string(last.Kvs[0].Key), prefix)
			if err != nil {
				return fmt.Errorf("malformed checkpoint key %q: %w", last.Kvs[0].Key, err)
			}
			seq = prev + 1
		}

		value, err := msgpack.Marshal(&checkpointRecord{
			SolveID:   cp.SolveID,
			Sequence:  seq,
			CreatedAt: cp.CreatedAt.UnixNano(),
			NodeCount: cp.NodeCount,
			Digest:    cp.Digest,
			Data:      cp.Data,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal checkpoint: %w", err)
		}

		key := checkpointKey(cp.SolveID, seq)
		resp, err := r.client.Txn(ctx).
			If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
			Then(clientv3.OpPut(key, string(value))).
			Commit()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to put checkpoint to etcd")
			return fmt.Errorf("failed to save checkpoint %s to etcd: %w", key, err)
		}
		if resp.Succeeded {
			cp.Sequence = seq
			span.SetAttributes(attribute.String("etcd.key", key))
			return nil
		}
		r.logger.Debug("checkpoint sequence taken, retrying", "solve_id", cp.SolveID, "sequence", seq)
	}
	err := fmt.Errorf("failed to allocate a checkpoint sequence for %s after %d attempts", cp.SolveID, saveAttempts)
	span.RecordError(err)
	span.SetStatus(codes.Error, "sequence contention")
	return err
}

// Latest returns the newest checkpoint of the solve, data included.
func (r *etcdCheckpointRepository) Latest(ctx context.Context, solveID string) (*domain.Checkpoint, error) {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.LatestCheckpoint")
	defer span.End()
	span.SetAttributes(attribute.String("solve.id", solveID))

	resp, err := r.client.Get(ctx, checkpointPrefix(solveID),
		clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByKey, clientv3.SortDescend),
		clientv3.WithLimit(1),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get checkpoint from etcd")
		return nil, fmt.Errorf("failed to get latest checkpoint of %s from etcd: %w", solveID, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, domain.ErrCheckpointNotFound
	}
	return decodeCheckpoint(resp.Kvs[0].Value, true)
}

// List returns checkpoint metadata, newest first.
func (r *etcdCheckpointRepository) List(ctx context.Context, solveID string, limit int) ([]*domain.Checkpoint, error) {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.ListCheckpoints")
	defer span.End()
	span.SetAttributes(attribute.String("solve.id", solveID), attribute.Int("limit", limit))

	opts := []clientv3.OpOption{
		clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByKey, clientv3.SortDescend),
	}
	if limit > 0 {
		opts = append(opts, clientv3.WithLimit(int64(limit)))
	}
	resp, err := r.client.Get(ctx, checkpointPrefix(solveID), opts...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list checkpoints from etcd")
		return nil, fmt.Errorf("failed to list checkpoints of %s from etcd: %w", solveID, err)
	}

	cps := make([]*domain.Checkpoint, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		cp, err := decodeCheckpoint(kv.Value, false)
		if err != nil {
			r.logger.Warn("failed to unmarshal checkpoint from etcd", "key", string(kv.Key), "error", err)
			continue
		}
		cps = append(cps, cp)
	}
	span.SetAttributes(attribute.Int("records_returned", len(cps)))
	return cps, nil
}

func decodeCheckpoint(value []byte, withData bool) (*domain.Checkpoint, error) {
	var rec checkpointRecord
	if err := msgpack.Unmarshal(value, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	cp := &domain.Checkpoint{
		SolveID:   rec.SolveID,
		Sequence:  rec.Sequence,
		CreatedAt: unixNanoUTC(rec.CreatedAt),
		NodeCount: rec.NodeCount,
		Digest:    rec.Digest,
	}
	if withData {
		cp.Data = rec.Data
	}
	return cp, nil
}
