// Package checkpoint turns dispatcher queue snapshots into self-verifying
// blobs and back.
package checkpoint

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"distributed-bnb/internal/domain"
	"distributed-bnb/internal/wire"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/zeebo/blake3"
)

// Version is the current envelope layout. Version 2 added the incumbent.
const Version = 2

// ErrCorrupt is returned when a blob fails to decode or verify.
var ErrCorrupt = errors.New("corrupt checkpoint")

type envelope struct {
	Version    int       `msgpack:"version"`
	SolveID    string    `msgpack:"solve_id"`
	CreatedAt  time.Time `msgpack:"created_at"`
	NextTreeID uint64    `msgpack:"next_tree_id"`
	// BestObjective is nil when the snapshot carried no incumbent.
	BestObjective *float64 `msgpack:"best_objective"`
	Nodes         [][]byte `msgpack:"nodes"`
	Digest        string   `msgpack:"digest"`
}

// Encode serializes snap into a checkpoint ready to be saved.
func Encode(solveID string, snap domain.Snapshot, createdAt time.Time) (*domain.Checkpoint, error) {
	env := envelope{
		Version:    Version,
		SolveID:    solveID,
		CreatedAt:  createdAt.UTC(),
		NextTreeID: snap.NextTreeID,
		Nodes:      make([][]byte, len(snap.Nodes)),
	}
	if snap.BestObjective != nil {
		if math.IsNaN(*snap.BestObjective) {
			return nil, fmt.Errorf("incumbent is NaN")
		}
		best := *snap.BestObjective
		env.BestObjective = &best
	}
	for i, n := range snap.Nodes {
		if !n.HasTreeID() {
			return nil, fmt.Errorf("node %d has no tree id", i)
		}
		env.Nodes[i] = wire.EncodeNode(n)
	}
	env.Digest = digest(env.NextTreeID, env.BestObjective, env.Nodes)

	data, err := msgpack.Marshal(&env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	return &domain.Checkpoint{
		SolveID:   solveID,
		CreatedAt: env.CreatedAt,
		NodeCount: len(env.Nodes),
		Digest:    env.Digest,
		Data:      data,
	}, nil
}

// Decode verifies a blob produced by Encode and returns its snapshot.
func Decode(data []byte) (domain.Snapshot, error) {
	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return domain.Snapshot{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if env.Version != Version {
		return domain.Snapshot{}, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, env.Version)
	}
	if got := digest(env.NextTreeID, env.BestObjective, env.Nodes); got != env.Digest {
		return domain.Snapshot{}, fmt.Errorf("%w: digest mismatch: expected %s, got %s", ErrCorrupt, env.Digest, got)
	}

	if env.BestObjective != nil && math.IsNaN(*env.BestObjective) {
		return domain.Snapshot{}, fmt.Errorf("%w: incumbent is NaN", ErrCorrupt)
	}

	snap := domain.Snapshot{
		Nodes:         make([]*domain.Node, len(env.Nodes)),
		NextTreeID:    env.NextTreeID,
		BestObjective: env.BestObjective,
	}
	for i, b := range env.Nodes {
		n, err := wire.DecodeNode(b)
		if err != nil {
			return domain.Snapshot{}, fmt.Errorf("%w: node %d: %v", ErrCorrupt, i, err)
		}
		if !n.HasTreeID() || *n.TreeID >= env.NextTreeID {
			return domain.Snapshot{}, fmt.Errorf("%w: node %d has an invalid tree id", ErrCorrupt, i)
		}
		snap.Nodes[i] = n
	}
	return snap, nil
}

func digest(nextTreeID uint64, best *float64, nodes [][]byte) string {
	h := blake3.New()
	var scratch [8]byte
	binary.LittleEndian.PutUint64(scratch[:], nextTreeID)
	h.Write(scratch[:])
	if best != nil {
		h.Write([]byte{1})
		binary.LittleEndian.PutUint64(scratch[:], math.Float64bits(*best))
		h.Write(scratch[:])
	} else {
		h.Write([]byte{0})
	}
	for _, b := range nodes {
		binary.LittleEndian.PutUint64(scratch[:], uint64(len(b)))
		h.Write(scratch[:])
		h.Write(b)
	}
	return hex.EncodeToString(h.Sum(nil))
}
