// Package wire encodes nodes and worker updates into the flat buffers that
// travel between the dispatcher and its workers.
package wire

import (
	"encoding/binary"
	"fmt"
	"math"

	"distributed-bnb/internal/domain"
)

const (
	// NodeVersion is the current node buffer layout.
	NodeVersion = 1

	flagTreeID        = 0x01
	flagBestObjective = 0x02

	// | version(1) | flags(1) | bound(8) | objective(8) | tree_id(8) | best_objective(8) | tree_depth(4) | queue_priority(8) | payload_len(4) | payload |
	nodeHeaderSize = 1 + 1 + 8 + 8 + 8 + 8 + 4 + 8 + 4
)

var le = binary.LittleEndian

// EncodeNode lays n out as a self-describing buffer.
func EncodeNode(n *domain.Node) []byte {
	buf := make([]byte, nodeHeaderSize+len(n.Payload))
	buf[0] = NodeVersion
	var flags byte
	var treeID uint64
	var best float64
	if n.TreeID != nil {
		flags |= flagTreeID
		treeID = *n.TreeID
	}
	if n.BestObjective != nil {
		flags |= flagBestObjective
		best = *n.BestObjective
	}
	buf[1] = flags
	le.PutUint64(buf[2:10], math.Float64bits(n.Bound))
	le.PutUint64(buf[10:18], math.Float64bits(n.Objective))
	le.PutUint64(buf[18:26], treeID)
	le.PutUint64(buf[26:34], math.Float64bits(best))
	le.PutUint32(buf[34:38], uint32(n.TreeDepth))
	le.PutUint64(buf[38:46], math.Float64bits(n.QueuePriority))
	le.PutUint32(buf[46:50], uint32(len(n.Payload)))
	copy(buf[nodeHeaderSize:], n.Payload)
	return buf
}

// DecodeNode parses a buffer produced by EncodeNode. The payload is copied.
func DecodeNode(b []byte) (*domain.Node, error) {
	if len(b) < nodeHeaderSize {
		return nil, fmt.Errorf("%w: node buffer too short (%d bytes)", domain.ErrProtocol, len(b))
	}
	if b[0] != NodeVersion {
		return nil, fmt.Errorf("%w: unsupported node version %d", domain.ErrProtocol, b[0])
	}
	flags := b[1]
	if flags&^(flagTreeID|flagBestObjective) != 0 {
		return nil, fmt.Errorf("%w: unknown node flags %#x", domain.ErrProtocol, flags)
	}
	size := int(le.Uint32(b[46:50]))
	if len(b)-nodeHeaderSize != size {
		return nil, fmt.Errorf("%w: node payload length %d does not match buffer (%d bytes)",
			domain.ErrProtocol, size, len(b)-nodeHeaderSize)
	}
	n := &domain.Node{
		Bound:         math.Float64frombits(le.Uint64(b[2:10])),
		Objective:     math.Float64frombits(le.Uint64(b[10:18])),
		TreeDepth:     int(le.Uint32(b[34:38])),
		QueuePriority: math.Float64frombits(le.Uint64(b[38:46])),
	}
	if math.IsNaN(n.Bound) {
		return nil, fmt.Errorf("%w: node bound is NaN", domain.ErrProtocol)
	}
	if math.IsNaN(n.Objective) || math.IsNaN(n.QueuePriority) {
		return nil, fmt.Errorf("%w: node objective or queue priority is NaN", domain.ErrProtocol)
	}
	if flags&flagTreeID != 0 {
		n.SetTreeID(le.Uint64(b[18:26]))
	}
	if flags&flagBestObjective != 0 {
		n.SetBestObjective(math.Float64frombits(le.Uint64(b[26:34])))
	}
	if size > 0 {
		n.Payload = append([]byte(nil), b[nodeHeaderSize:]...)
	}
	return n, nil
}

// NodeBound reads the bound without decoding the rest of the buffer.
func NodeBound(b []byte) (float64, error) {
	if len(b) < nodeHeaderSize || b[0] != NodeVersion {
		return 0, fmt.Errorf("%w: not a node buffer", domain.ErrProtocol)
	}
	return math.Float64frombits(le.Uint64(b[2:10])), nil
}
