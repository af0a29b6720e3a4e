package queue

import "distributed-bnb/internal/domain"

type item struct {
	node     *domain.Node
	priority float64
	seq      uint64
	pIndex   int
	bIndex   int
}

// priorityHeap is a max-heap on priority, FIFO among equal priorities.
type priorityHeap []*item

func (h priorityHeap) Len() int { return len(h) }

func (h priorityHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h priorityHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].pIndex = i
	h[j].pIndex = j
}

func (h *priorityHeap) Push(x any) {
	it := x.(*item)
	it.pIndex = len(*h)
	*h = append(*h, it)
}

func (h *priorityHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.pIndex = -1
	*h = old[:n-1]
	return it
}

// boundHeap keeps the most optimistic bound on top: the smallest for
// minimize, the largest for maximize.
type boundHeap struct {
	items []*item
	sense domain.Sense
}

func (h *boundHeap) Len() int { return len(h.items) }

func (h *boundHeap) Less(i, j int) bool {
	a, b := h.items[i].node.Bound, h.items[j].node.Bound
	if h.sense == domain.Maximize {
		return a > b
	}
	return a < b
}

func (h *boundHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].bIndex = i
	h.items[j].bIndex = j
}

func (h *boundHeap) Push(x any) {
	it := x.(*item)
	it.bIndex = len(h.items)
	h.items = append(h.items, it)
}

func (h *boundHeap) Pop() any {
	n := len(h.items)
	it := h.items[n-1]
	h.items[n-1] = nil
	it.bIndex = -1
	h.items = h.items[:n-1]
	return it
}
