package domain

import "math"

// Sense is the optimization direction of a solve.
type Sense int

const (
	Minimize Sense = 1
	Maximize Sense = -1
)

// String returns the config spelling of the sense.
func (s Sense) String() string {
	switch s {
	case Minimize:
		return "minimize"
	case Maximize:
		return "maximize"
	default:
		return "unknown"
	}
}

// ParseSense converts "minimize"/"maximize" into a Sense.
func ParseSense(s string) (Sense, bool) {
	switch s {
	case "minimize", "min":
		return Minimize, true
	case "maximize", "max":
		return Maximize, true
	default:
		return 0, false
	}
}

// Node is one unexplored point of the search tree.
//
// Only TreeID and BestObjective are ever written by the dispatcher. Payload
// belongs to the workers and is copied whole.
type Node struct {
	Bound         float64
	Objective     float64
	TreeID        *uint64
	BestObjective *float64
	TreeDepth     int
	QueuePriority float64
	Payload       []byte
}

// NewNode returns a node with the given bound whose objective is unknown.
func NewNode(sense Sense, bound float64, payload []byte) *Node {
	obj := math.Inf(1)
	if sense == Maximize {
		obj = math.Inf(-1)
	}
	return &Node{Bound: bound, Objective: obj, Payload: payload}
}

// HasTreeID reports whether the dispatcher already assigned an id.
func (n *Node) HasTreeID() bool {
	return n.TreeID != nil
}

// SetTreeID assigns the tree id.
func (n *Node) SetTreeID(id uint64) {
	n.TreeID = &id
}

// SetBestObjective stamps the incumbent known at send time.
func (n *Node) SetBestObjective(obj float64) {
	n.BestObjective = &obj
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	c := *n
	if n.TreeID != nil {
		id := *n.TreeID
		c.TreeID = &id
	}
	if n.BestObjective != nil {
		obj := *n.BestObjective
		c.BestObjective = &obj
	}
	if n.Payload != nil {
		c.Payload = append([]byte(nil), n.Payload...)
	}
	return &c
}
