package wire

import (
	"fmt"
	"math"

	"distributed-bnb/internal/dispatcher"
	"distributed-bnb/internal/domain"
)

// An update frame starts with four 8-byte slots, each a float64:
//
//	| incumbent | previous_bound | explored_count | node_count |
//
// followed by node_count entries of | length(8) | node bytes |.
const updateHeaderSize = 4 * 8

// maxCount bounds counts carried in float64 slots to exactly representable integers.
const maxCount = 1 << 53

// EncodeUpdate packs a worker update into one frame.
func EncodeUpdate(u dispatcher.Update) []byte {
	nodes := make([][]byte, len(u.Nodes))
	size := updateHeaderSize
	for i, n := range u.Nodes {
		nodes[i] = EncodeNode(n)
		size += 8 + len(nodes[i])
	}
	buf := make([]byte, size)
	le.PutUint64(buf[0:8], math.Float64bits(u.BestObjective))
	le.PutUint64(buf[8:16], math.Float64bits(u.PreviousBound))
	le.PutUint64(buf[16:24], math.Float64bits(float64(u.Explored)))
	le.PutUint64(buf[24:32], math.Float64bits(float64(len(u.Nodes))))
	pos := updateHeaderSize
	for _, b := range nodes {
		le.PutUint64(buf[pos:pos+8], uint64(len(b)))
		pos += 8
		pos += copy(buf[pos:], b)
	}
	return buf
}

// DecodeUpdate parses a frame produced by EncodeUpdate.
func DecodeUpdate(b []byte) (dispatcher.Update, error) {
	var u dispatcher.Update
	if len(b) < updateHeaderSize {
		return u, fmt.Errorf("%w: update frame too short (%d bytes)", domain.ErrProtocol, len(b))
	}
	u.BestObjective = math.Float64frombits(le.Uint64(b[0:8]))
	u.PreviousBound = math.Float64frombits(le.Uint64(b[8:16]))
	explored, err := count(b[16:24], "explored count")
	if err != nil {
		return u, err
	}
	nodeCount, err := count(b[24:32], "node count")
	if err != nil {
		return u, err
	}
	u.Explored = explored

	pos := updateHeaderSize
	if nodeCount > 0 {
		// each entry needs at least its length slot
		if nodeCount > int64(len(b)-pos)/8 {
			return u, fmt.Errorf("%w: node count %d exceeds frame", domain.ErrProtocol, nodeCount)
		}
		u.Nodes = make([]*domain.Node, 0, nodeCount)
	}
	for i := int64(0); i < nodeCount; i++ {
		if len(b)-pos < 8 {
			return u, fmt.Errorf("%w: truncated length of node %d", domain.ErrProtocol, i)
		}
		size := le.Uint64(b[pos : pos+8])
		pos += 8
		if size > uint64(len(b)-pos) {
			return u, fmt.Errorf("%w: truncated node %d", domain.ErrProtocol, i)
		}
		n, err := DecodeNode(b[pos : pos+int(size)])
		if err != nil {
			return u, fmt.Errorf("node %d: %w", i, err)
		}
		pos += int(size)
		u.Nodes = append(u.Nodes, n)
	}
	if pos != len(b) {
		return u, fmt.Errorf("%w: %d trailing bytes after update frame", domain.ErrProtocol, len(b)-pos)
	}
	return u, nil
}

func count(slot []byte, what string) (int64, error) {
	v := math.Float64frombits(le.Uint64(slot))
	if v < 0 || v != math.Trunc(v) || v > maxCount {
		return 0, fmt.Errorf("%w: %s %v is not a non-negative integer", domain.ErrProtocol, what, v)
	}
	return int64(v), nil
}
