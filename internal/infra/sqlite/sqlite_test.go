package sqlite

import (
	"context"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"testing"
	"time"

	"distributed-bnb/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) (*checkpointRepository, *resultRepository) {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "bnb", "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewCheckpointRepository(db, logger).(*checkpointRepository), NewResultRepository(db).(*resultRepository)
}

func TestOpenBootstrapsTables(t *testing.T) {
	cps, _ := openTestDB(t)
	for _, table := range []string{"checkpoints", "solve_results"} {
		var name string
		err := cps.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?;", table).Scan(&name)
		require.NoError(t, err, "table %q missing", table)
	}
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.Error(t, err)
}

func TestCheckpointSequencesPerSolve(t *testing.T) {
	ctx := context.Background()
	repo, _ := openTestDB(t)

	_, err := repo.Latest(ctx, "s1")
	require.ErrorIs(t, err, domain.ErrCheckpointNotFound)

	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		cp := &domain.Checkpoint{
			SolveID: "s1", CreatedAt: base.Add(time.Duration(i) * time.Minute),
			NodeCount: i, Digest: "d", Data: []byte{byte(i)},
		}
		require.NoError(t, repo.Save(ctx, cp))
		assert.Equal(t, int64(i+1), cp.Sequence)
	}
	other := &domain.Checkpoint{SolveID: "s2", CreatedAt: base, Digest: "d", Data: []byte{9}}
	require.NoError(t, repo.Save(ctx, other))
	assert.Equal(t, int64(1), other.Sequence)

	latest, err := repo.Latest(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), latest.Sequence)
	assert.Equal(t, []byte{2}, latest.Data)
	assert.True(t, base.Add(2*time.Minute).Equal(latest.CreatedAt))

	list, err := repo.List(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(3), list[0].Sequence)
	assert.Equal(t, int64(2), list[1].Sequence)
	assert.Nil(t, list[0].Data)

	all, err := repo.List(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestResultRoundTripWithInfinity(t *testing.T) {
	ctx := context.Background()
	_, repo := openTestDB(t)

	_, err := repo.Get(ctx, "s1")
	require.ErrorIs(t, err, domain.ErrResultNotFound)

	res := &domain.SolveResult{
		SolveID:     "s1",
		Objective:   math.Inf(1),
		Bound:       math.Inf(1),
		Termination: domain.TerminationOptimality,
		Explored:    7,
		Sent:        7,
		StartedAt:   time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
		FinishedAt:  time.Date(2026, 5, 1, 8, 1, 0, 0, time.UTC),
	}
	require.NoError(t, repo.Save(ctx, res))

	got, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, math.IsInf(got.Objective, 1))
	assert.Equal(t, domain.TerminationOptimality, got.Termination)
	assert.True(t, res.FinishedAt.Equal(got.FinishedAt))

	res.Objective, res.Bound = 12.5, 11
	require.NoError(t, repo.Save(ctx, res))
	got, err = repo.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 12.5, got.Objective)
	assert.Equal(t, 11.0, got.Bound)
}
