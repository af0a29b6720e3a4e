package etcd

import (
	"math"
	"testing"
	"time"

	"distributed-bnb/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestCheckpointKeysSortBySequence(t *testing.T) {
	k9 := checkpointKey("s1", 9)
	k10 := checkpointKey("s1", 10)

	assert.Equal(t, "/bnb/checkpoints/s1/00000000000000000009", k9)
	assert.Less(t, k9, k10)

	seq, err := parseSequence(k10, checkpointPrefix("s1"))
	require.NoError(t, err)
	assert.Equal(t, int64(10), seq)

	_, err = parseSequence("/bnb/checkpoints/s1/x", checkpointPrefix("s1"))
	assert.Error(t, err)
}

func TestDecodeCheckpointOmitsDataForListing(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	value, err := msgpack.Marshal(&checkpointRecord{
		SolveID: "s1", Sequence: 3, CreatedAt: created.UnixNano(),
		NodeCount: 2, Digest: "abc", Data: []byte{1, 2, 3},
	})
	require.NoError(t, err)

	full, err := decodeCheckpoint(value, true)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, full.Data)
	assert.True(t, created.Equal(full.CreatedAt))
	assert.Equal(t, int64(3), full.Sequence)

	meta, err := decodeCheckpoint(value, false)
	require.NoError(t, err)
	assert.Nil(t, meta.Data)
	assert.Equal(t, "abc", meta.Digest)

	_, err = decodeCheckpoint([]byte{0xc1}, true)
	assert.Error(t, err)
}

func TestResultRecordKeepsInfinity(t *testing.T) {
	res := &domain.SolveResult{
		SolveID:     "s1",
		Objective:   math.Inf(1),
		Bound:       math.Inf(1),
		Termination: domain.TerminationOptimality,
		Explored:    12,
		StartedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		FinishedAt:  time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC),
	}
	value, err := msgpack.Marshal(toResultRecord(res))
	require.NoError(t, err)

	var rec resultRecord
	require.NoError(t, msgpack.Unmarshal(value, &rec))
	assert.Equal(t, res, rec.toDomain())
}

func TestElectionKeyIsPerSolve(t *testing.T) {
	assert.Equal(t, "/bnb/leader/s1", electionKey("s1"))
	assert.NotEqual(t, electionKey("s1"), electionKey("s2"))
}
