package queue

import (
	"container/heap"
	"fmt"
	"slices"

	"distributed-bnb/internal/domain"
)

// PriorityFunc computes the ordering key of a node. seq is the insertion
// counter of the node within the queue.
type PriorityFunc func(n *domain.Node, seq uint64) float64

// Queue is a domain.PriorityQueue ordered by a PriorityFunc.
type Queue struct {
	priority   PriorityFunc
	byPriority priorityHeap
	byBound    boundHeap
	seq        uint64
}

// New returns the queue implementing strategy for the given sense.
func New(strategy domain.Strategy, sense domain.Sense) (*Queue, error) {
	if sense != domain.Minimize && sense != domain.Maximize {
		return nil, fmt.Errorf("%w: unknown sense %d", domain.ErrInvalidConfig, sense)
	}
	s := float64(sense)

	var fn PriorityFunc
	switch strategy {
	case domain.StrategyBound:
		// worst bound first: the most optimistic bound has the largest priority
		fn = func(n *domain.Node, _ uint64) float64 { return -s * n.Bound }
	case domain.StrategyObjective:
		fn = func(n *domain.Node, _ uint64) float64 { return -s * n.Objective }
	case domain.StrategyBreadth:
		fn = func(n *domain.Node, _ uint64) float64 { return -float64(n.TreeDepth) }
	case domain.StrategyDepth:
		fn = func(n *domain.Node, _ uint64) float64 { return float64(n.TreeDepth) }
	case domain.StrategyFIFO:
		fn = func(_ *domain.Node, seq uint64) float64 { return -float64(seq) }
	case domain.StrategyCustom:
		fn = func(n *domain.Node, _ uint64) float64 { return n.QueuePriority }
	default:
		return nil, fmt.Errorf("%w: unsupported queue strategy %q", domain.ErrInvalidConfig, strategy)
	}
	return NewWithPriority(fn, sense), nil
}

// NewWithPriority returns a queue ordered by an arbitrary priority function.
func NewWithPriority(fn PriorityFunc, sense domain.Sense) *Queue {
	return &Queue{
		priority: fn,
		byBound:  boundHeap{sense: sense},
	}
}

func (q *Queue) Size() int { return q.byPriority.Len() }

func (q *Queue) Put(n *domain.Node) {
	it := &item{node: n, seq: q.seq}
	it.priority = q.priority(n, q.seq)
	q.seq++
	heap.Push(&q.byPriority, it)
	heap.Push(&q.byBound, it)
}

func (q *Queue) Get() *domain.Node {
	if q.byPriority.Len() == 0 {
		return nil
	}
	it := heap.Pop(&q.byPriority).(*item)
	heap.Remove(&q.byBound, it.bIndex)
	return it.node
}

func (q *Queue) Bound() (float64, bool) {
	if q.byBound.Len() == 0 {
		return 0, false
	}
	return q.byBound.items[0].node.Bound, true
}

func (q *Queue) Filter(keep func(*domain.Node) bool) []*domain.Node {
	var removed []*domain.Node
	kept := q.byPriority[:0]
	for _, it := range q.byPriority {
		if keep(it.node) {
			kept = append(kept, it)
		} else {
			removed = append(removed, it.node)
		}
	}
	if len(removed) == 0 {
		return nil
	}
	for i := len(kept); i < len(q.byPriority); i++ {
		q.byPriority[i] = nil
	}
	q.byPriority = kept
	clear(q.byBound.items)
	q.byBound.items = q.byBound.items[:0]
	for i, it := range q.byPriority {
		it.pIndex = i
		it.bIndex = i
		q.byBound.items = append(q.byBound.items, it)
	}
	heap.Init(&q.byPriority)
	heap.Init(&q.byBound)
	return removed
}

// Items returns the queued nodes in the order Get would return them.
func (q *Queue) Items() []*domain.Node {
	items := slices.Clone([]*item(q.byPriority))
	slices.SortFunc(items, func(a, b *item) int {
		switch {
		case a.priority > b.priority:
			return -1
		case a.priority < b.priority:
			return 1
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
	nodes := make([]*domain.Node, len(items))
	for i, it := range items {
		nodes[i] = it.node
	}
	return nodes
}

var _ domain.PriorityQueue = (*Queue)(nil)
