package domain

// Strategy names a node ordering for the dispatcher queue.
type Strategy string

const (
	StrategyBound     Strategy = "bound"
	StrategyObjective Strategy = "objective"
	StrategyBreadth   Strategy = "breadth"
	StrategyDepth     Strategy = "depth"
	StrategyFIFO      Strategy = "fifo"
	StrategyCustom    Strategy = "custom"
)

// Strategies lists every supported ordering.
var Strategies = []Strategy{
	StrategyBound, StrategyObjective, StrategyBreadth,
	StrategyDepth, StrategyFIFO, StrategyCustom,
}

// PriorityQueue holds nodes not currently checked out to any worker.
type PriorityQueue interface {
	// Size returns the number of queued nodes.
	Size() int
	// Put adds a node.
	Put(n *Node)
	// Get removes and returns the next node, or nil when empty.
	Get() *Node
	// Bound returns the worst (most optimistic) bound among queued nodes.
	Bound() (float64, bool)
	// Filter removes every node for which keep returns false and returns them.
	Filter(keep func(*Node) bool) []*Node
	// Items enumerates the queued nodes without removing them.
	Items() []*Node
}
