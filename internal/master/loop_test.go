package master

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"distributed-bnb/internal/convergence"
	"distributed-bnb/internal/dispatcher"
	"distributed-bnb/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newLoop(t *testing.T, workers int) *Loop {
	t.Helper()
	checker, err := convergence.New(domain.Minimize)
	require.NoError(t, err)
	l, err := NewLoop(LoopConfig{
		SolveID:     "solve-1",
		WorkerCount: workers,
		Options: dispatcher.Options{
			BestObjective: checker.InfeasibleObjective(),
			Strategy:      domain.StrategyBound,
			Checker:       checker,
		},
	}, discardLogger())
	require.NoError(t, err)
	return l
}

type runResult struct {
	res *domain.SolveResult
	err error
}

func start(t *testing.T, l *Loop) (context.Context, <-chan runResult) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	done := make(chan runResult, 1)
	go func() {
		res, err := l.Run(ctx)
		done <- runResult{res: res, err: err}
	}()
	return ctx, done
}

func TestJoinAssignsDenseIDs(t *testing.T) {
	l := newLoop(t, 2)
	ctx, _ := start(t, l)

	a, err := l.Join(ctx, "a")
	require.NoError(t, err)
	b, err := l.Join(ctx, "b")
	require.NoError(t, err)
	again, err := l.Join(ctx, "a")
	require.NoError(t, err)

	assert.Equal(t, 0, a.WorkerID)
	assert.Equal(t, 1, b.WorkerID)
	assert.Equal(t, 0, again.WorkerID)
	assert.Equal(t, 2, a.WorkerCount)
	assert.Equal(t, "solve-1", a.SolveID)
	assert.Equal(t, domain.Minimize, a.Sense)
	assert.False(t, a.Initialized)

	_, err = l.Join(ctx, "c")
	assert.ErrorIs(t, err, domain.ErrTooManyWorkers)
}

func TestUpdatesWaitForInitialization(t *testing.T) {
	l := newLoop(t, 1)
	ctx, done := start(t, l)

	got := make(chan dispatcher.Delivery, 1)
	go func() {
		dl, err := l.Update(ctx, 0, dispatcher.Update{BestObjective: math.Inf(1)})
		assert.NoError(t, err)
		got <- dl
	}()

	// the update must not be answered before a root exists
	select {
	case <-got:
		t.Fatal("update answered before initialization")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, l.Initialize(ctx, 0, math.Inf(1), domain.NewNode(domain.Minimize, 0, []byte("root"))))
	dl := <-got
	require.Equal(t, dispatcher.DeliveryWork, dl.Kind)
	assert.Equal(t, uint64(0), *dl.Node.TreeID)

	dl, err := l.Update(ctx, 0, dispatcher.Update{BestObjective: 4, PreviousBound: 0, Explored: 1})
	require.NoError(t, err)
	assert.Equal(t, dispatcher.DeliveryNoWork, dl.Kind)
	assert.Equal(t, 4.0, dl.BestObjective)

	info, err := l.Finalize(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, info.GlobalBound)
	assert.Equal(t, 4.0, info.BestObjective)
	assert.Equal(t, domain.TerminationNoNodes, info.Termination)

	r := <-done
	require.NoError(t, r.err)
	assert.Equal(t, "solve-1", r.res.SolveID)
	assert.Equal(t, 4.0, r.res.Objective)
	assert.Equal(t, int64(1), r.res.Explored)
	assert.Empty(t, l.FinalSnapshot().Nodes)
}

func TestInitializeRules(t *testing.T) {
	l := newLoop(t, 2)
	ctx, _ := start(t, l)

	err := l.Initialize(ctx, 1, math.Inf(1), domain.NewNode(domain.Minimize, 0, nil))
	assert.ErrorIs(t, err, domain.ErrProtocol)

	root := domain.NewNode(domain.Minimize, 0, nil)
	root.SetTreeID(5)
	assert.ErrorIs(t, l.Initialize(ctx, 0, math.Inf(1), root), domain.ErrProtocol)

	require.NoError(t, l.Initialize(ctx, 0, math.Inf(1), domain.NewNode(domain.Minimize, 0, nil)))
	assert.ErrorIs(t, l.Initialize(ctx, 0, math.Inf(1), domain.NewNode(domain.Minimize, 0, nil)), domain.ErrProtocol)

	snap, initialized, err := l.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, initialized)
	assert.Len(t, snap.Nodes, 1)
	assert.Equal(t, uint64(1), snap.NextTreeID)
}

func TestTwoWorkersGetNoWorkTogether(t *testing.T) {
	l := newLoop(t, 2)
	snap := domain.Snapshot{NextTreeID: 2}
	for i, b := range []float64{1, 3} {
		n := domain.NewNode(domain.Minimize, b, nil)
		n.SetTreeID(uint64(i))
		snap.Nodes = append(snap.Nodes, n)
	}
	require.NoError(t, l.Resume(snap))
	ctx, done := start(t, l)

	first := map[int]dispatcher.Delivery{}
	for id := 0; id < 2; id++ {
		dl, err := l.Update(ctx, id, dispatcher.Update{BestObjective: math.Inf(1)})
		require.NoError(t, err)
		first[id] = dl
	}
	assert.Equal(t, 1.0, first[0].Node.Bound)
	assert.Equal(t, 3.0, first[1].Node.Bound)

	stats, err := l.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Busy)
	assert.Equal(t, 1.0, stats.Bound)

	var wg sync.WaitGroup
	replies := make([]dispatcher.Delivery, 2)
	for id := 0; id < 2; id++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			dl, err := l.Update(ctx, id, dispatcher.Update{BestObjective: 3, PreviousBound: first[id].Node.Bound, Explored: 1})
			assert.NoError(t, err)
			replies[id] = dl
		}(id)
	}
	wg.Wait()
	for _, dl := range replies {
		assert.Equal(t, dispatcher.DeliveryNoWork, dl.Kind)
		assert.Equal(t, 3.0, dl.BestObjective)
	}

	for id := 0; id < 2; id++ {
		info, err := l.Finalize(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 1.0, info.GlobalBound)
	}
	r := <-done
	require.NoError(t, r.err)
	assert.Equal(t, int64(2), r.res.Explored)
	assert.Equal(t, int64(2), r.res.Sent)
}

func TestFinalizeRejectedWhileWorkIsOut(t *testing.T) {
	l := newLoop(t, 2)
	ctx, _ := start(t, l)

	_, err := l.Finalize(ctx, 0)
	assert.ErrorIs(t, err, domain.ErrNotInitialized)

	require.NoError(t, l.Initialize(ctx, 0, math.Inf(1), domain.NewNode(domain.Minimize, 0, nil)))
	_, err = l.Update(ctx, 0, dispatcher.Update{BestObjective: math.Inf(1)})
	require.NoError(t, err)

	_, err = l.Finalize(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrProtocol)
	_, err = l.Finalize(ctx, 9)
	assert.ErrorIs(t, err, domain.ErrUnknownWorker)
}

func TestProtocolViolationStopsLoop(t *testing.T) {
	l := newLoop(t, 1)
	ctx, done := start(t, l)
	require.NoError(t, l.Initialize(ctx, 0, math.Inf(1), domain.NewNode(domain.Minimize, 0, nil)))
	_, err := l.Update(ctx, 0, dispatcher.Update{BestObjective: math.Inf(1)})
	require.NoError(t, err)

	bad := domain.NewNode(domain.Minimize, 1, nil)
	bad.SetTreeID(3)
	_, err = l.Update(ctx, 0, dispatcher.Update{BestObjective: math.Inf(1), Explored: 1, Nodes: []*domain.Node{bad}})
	assert.ErrorIs(t, err, domain.ErrProtocol)

	r := <-done
	assert.ErrorIs(t, r.err, domain.ErrProtocol)

	_, err = l.Stats(ctx)
	assert.ErrorIs(t, err, ErrStopped)
}

func TestUnknownWorkerDoesNotStopLoop(t *testing.T) {
	l := newLoop(t, 1)
	ctx, _ := start(t, l)
	require.NoError(t, l.Initialize(ctx, 0, math.Inf(1), domain.NewNode(domain.Minimize, 0, nil)))

	_, err := l.Update(ctx, 4, dispatcher.Update{BestObjective: math.Inf(1)})
	assert.ErrorIs(t, err, domain.ErrUnknownWorker)

	_, err = l.Stats(ctx)
	assert.NoError(t, err)
}

func TestWorkerLostIsOnlyReported(t *testing.T) {
	l := newLoop(t, 2)
	ctx, _ := start(t, l)
	_, err := l.Join(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, l.Initialize(ctx, 0, math.Inf(1), domain.NewNode(domain.Minimize, 0, nil)))
	_, err = l.Update(ctx, 0, dispatcher.Update{BestObjective: math.Inf(1)})
	require.NoError(t, err)

	require.NoError(t, l.WorkerLost(ctx, "a"))
	require.NoError(t, l.WorkerLost(ctx, "unknown"))
	require.NoError(t, l.Log(ctx, 0, "warning", "hello"))

	stats, err := l.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Busy, "the node stays checked out")

	snap, initialized, err := l.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, initialized)
	require.Len(t, snap.Nodes, 1, "checkpoints keep the checked-out node")
	assert.Equal(t, uint64(0), *snap.Nodes[0].TreeID)
}

func waitIdle(t *testing.T, ctx context.Context, l *Loop, idle int) {
	t.Helper()
	require.Eventually(t, func() bool {
		s, err := l.Stats(ctx)
		return err == nil && s.Idle == idle
	}, 5*time.Second, 5*time.Millisecond)
}

func TestDuplicateUpdateTakesOverReply(t *testing.T) {
	l := newLoop(t, 2)
	ctx, done := start(t, l)
	require.NoError(t, l.Initialize(ctx, 0, math.Inf(1), domain.NewNode(domain.Minimize, 0, nil)))
	_, err := l.Update(ctx, 0, dispatcher.Update{BestObjective: math.Inf(1)})
	require.NoError(t, err)

	type reply struct {
		dl  dispatcher.Delivery
		err error
	}
	first := make(chan reply, 1)
	go func() {
		dl, err := l.Update(ctx, 1, dispatcher.Update{BestObjective: math.Inf(1)})
		first <- reply{dl, err}
	}()
	waitIdle(t, ctx, l, 1)

	retry := make(chan reply, 1)
	go func() {
		dl, err := l.Update(ctx, 1, dispatcher.Update{BestObjective: math.Inf(1)})
		retry <- reply{dl, err}
	}()
	r := <-first
	assert.ErrorIs(t, r.err, ErrSuperseded)
	assert.ErrorIs(t, r.err, domain.ErrDuplicateUpdate)

	stats, err := l.Stats(ctx)
	require.NoError(t, err, "the solve survives a duplicate update")
	assert.Equal(t, 1, stats.Idle)
	assert.Equal(t, 1, stats.Busy)

	dl, err := l.Update(ctx, 0, dispatcher.Update{BestObjective: 2, PreviousBound: 0, Explored: 1})
	require.NoError(t, err)
	assert.Equal(t, dispatcher.DeliveryNoWork, dl.Kind)
	r = <-retry
	require.NoError(t, r.err)
	assert.Equal(t, dispatcher.DeliveryNoWork, r.dl.Kind)

	for id := 0; id < 2; id++ {
		_, err := l.Finalize(ctx, id)
		require.NoError(t, err)
	}
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, int64(1), res.res.Explored)
}

func TestRejoinReleasesCheckedOutNode(t *testing.T) {
	l := newLoop(t, 2)
	ctx, done := start(t, l)
	_, err := l.Join(ctx, "a")
	require.NoError(t, err)
	_, err = l.Join(ctx, "b")
	require.NoError(t, err)
	require.NoError(t, l.Initialize(ctx, 0, math.Inf(1), domain.NewNode(domain.Minimize, 0, nil)))
	dl, err := l.Update(ctx, 0, dispatcher.Update{BestObjective: math.Inf(1)})
	require.NoError(t, err)
	require.Equal(t, dispatcher.DeliveryWork, dl.Kind)

	waiting := make(chan dispatcher.Delivery, 1)
	go func() {
		dl, err := l.Update(ctx, 1, dispatcher.Update{BestObjective: math.Inf(1)})
		assert.NoError(t, err)
		waiting <- dl
	}()
	waitIdle(t, ctx, l, 1)

	// the process behind "a" restarted and joins again
	info, err := l.Join(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 0, info.WorkerID)
	assert.True(t, info.Initialized)
	dl = <-waiting
	require.Equal(t, dispatcher.DeliveryWork, dl.Kind)
	assert.Equal(t, uint64(0), *dl.Node.TreeID)

	restarted := make(chan dispatcher.Delivery, 1)
	go func() {
		dl, err := l.Update(ctx, 0, dispatcher.Update{BestObjective: math.Inf(1)})
		assert.NoError(t, err)
		restarted <- dl
	}()
	waitIdle(t, ctx, l, 1)

	dl, err = l.Update(ctx, 1, dispatcher.Update{BestObjective: 3, PreviousBound: 0, Explored: 1})
	require.NoError(t, err)
	assert.Equal(t, dispatcher.DeliveryNoWork, dl.Kind)
	assert.Equal(t, dispatcher.DeliveryNoWork, (<-restarted).Kind)

	for id := 0; id < 2; id++ {
		info, err := l.Finalize(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 0.0, info.GlobalBound)
		assert.Equal(t, 3.0, info.BestObjective)
	}
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, int64(1), res.res.Explored)
}
