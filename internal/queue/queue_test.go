package queue

import (
	"testing"

	"distributed-bnb/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func node(bound, objective float64, depth int) *domain.Node {
	return &domain.Node{Bound: bound, Objective: objective, TreeDepth: depth}
}

func drainBounds(q *Queue) []float64 {
	var out []float64
	for n := q.Get(); n != nil; n = q.Get() {
		out = append(out, n.Bound)
	}
	return out
}

func TestNewRejectsUnknownStrategy(t *testing.T) {
	_, err := New("random", domain.Minimize)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	_, err = New(domain.StrategyBound, domain.Sense(0))
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestStrategiesOrdering(t *testing.T) {
	tests := []struct {
		name     string
		strategy domain.Strategy
		sense    domain.Sense
		want     []float64
	}{
		{name: "bound minimize takes smallest bound", strategy: domain.StrategyBound, sense: domain.Minimize, want: []float64{1, 2, 3}},
		{name: "bound maximize takes largest bound", strategy: domain.StrategyBound, sense: domain.Maximize, want: []float64{3, 2, 1}},
		{name: "objective minimize takes smallest objective", strategy: domain.StrategyObjective, sense: domain.Minimize, want: []float64{3, 2, 1}},
		{name: "breadth takes shallow nodes", strategy: domain.StrategyBreadth, sense: domain.Minimize, want: []float64{2, 3, 1}},
		{name: "depth takes deep nodes", strategy: domain.StrategyDepth, sense: domain.Minimize, want: []float64{1, 3, 2}},
		{name: "fifo keeps insertion order", strategy: domain.StrategyFIFO, sense: domain.Minimize, want: []float64{2, 1, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := New(tt.strategy, tt.sense)
			require.NoError(t, err)
			q.Put(node(2, 20, 0))
			q.Put(node(1, 30, 5))
			q.Put(node(3, 10, 1))
			assert.Equal(t, tt.want, drainBounds(q))
			assert.Nil(t, q.Get())
		})
	}
}

func TestCustomStrategyBreaksTiesByInsertion(t *testing.T) {
	q, err := New(domain.StrategyCustom, domain.Minimize)
	require.NoError(t, err)
	for i, p := range []float64{1, 5, 5, 0} {
		n := node(float64(i), 0, 0)
		n.QueuePriority = p
		q.Put(n)
	}
	assert.Equal(t, []float64{1, 2, 0, 3}, drainBounds(q))
}

func TestBoundTracksEveryStrategy(t *testing.T) {
	for _, s := range domain.Strategies {
		t.Run(string(s), func(t *testing.T) {
			q, err := New(s, domain.Minimize)
			require.NoError(t, err)
			_, ok := q.Bound()
			assert.False(t, ok)

			q.Put(node(4, 0, 0))
			q.Put(node(-2, 0, 3))
			q.Put(node(7, 0, 1))
			b, ok := q.Bound()
			require.True(t, ok)
			assert.Equal(t, -2.0, b)

			for q.Size() > 0 {
				got := q.Get()
				if got.Bound == -2 {
					break
				}
			}
			b, ok = q.Bound()
			if q.Size() > 0 {
				require.True(t, ok)
				assert.NotEqual(t, -2.0, b)
			}
		})
	}

	q, _ := New(domain.StrategyFIFO, domain.Maximize)
	q.Put(node(4, 0, 0))
	q.Put(node(9, 0, 0))
	b, _ := q.Bound()
	assert.Equal(t, 9.0, b)
}

func TestFilterRemovesAndReturns(t *testing.T) {
	q, _ := New(domain.StrategyBound, domain.Minimize)
	for _, b := range []float64{5, 1, 8, 3, 9} {
		q.Put(node(b, 0, 0))
	}
	removed := q.Filter(func(n *domain.Node) bool { return n.Bound < 6 })
	var rb []float64
	for _, n := range removed {
		rb = append(rb, n.Bound)
	}
	assert.ElementsMatch(t, []float64{8, 9}, rb)
	assert.Equal(t, 3, q.Size())

	b, _ := q.Bound()
	assert.Equal(t, 1.0, b)
	assert.Equal(t, []float64{1, 3, 5}, drainBounds(q))

	assert.Nil(t, q.Filter(func(*domain.Node) bool { return true }))
}

func TestFilterReleasesRemovedItems(t *testing.T) {
	q, _ := New(domain.StrategyObjective, domain.Maximize)
	for _, b := range []float64{5, 1, 8, 3, 9} {
		q.Put(node(b, b, 0))
	}
	q.Filter(func(n *domain.Node) bool { return n.Bound < 4 })
	require.Equal(t, 2, q.Size())

	for _, tail := range [][]*item{q.byPriority[2:cap(q.byPriority)], q.byBound.items[2:cap(q.byBound.items)]} {
		for _, it := range tail {
			assert.Nil(t, it)
		}
	}
}

func TestItemsEnumeratesWithoutRemoving(t *testing.T) {
	q, _ := New(domain.StrategyBound, domain.Maximize)
	q.Put(node(1, 0, 0))
	q.Put(node(3, 0, 0))
	q.Put(node(2, 0, 0))

	items := q.Items()
	require.Len(t, items, 3)
	assert.Equal(t, 3.0, items[0].Bound)
	assert.Equal(t, 2.0, items[1].Bound)
	assert.Equal(t, 1.0, items[2].Bound)
	assert.Equal(t, 3, q.Size())
}
