package domain

// Problem is the worker-side view of an optimization problem. The dispatcher
// never sees it; workers use it to bound and branch the nodes they receive.
type Problem interface {
	Sense() Sense
	// Objective returns the objective of the current state, or the
	// infeasible sentinel when the state is not a feasible solution.
	Objective() float64
	// Bound returns a relaxation bound for the current state.
	Bound() float64
	// SaveState serializes the current state into a node payload.
	SaveState() []byte
	// LoadState restores the state from a node payload.
	LoadState(payload []byte) error
	// Branch returns the payloads of the children of the current state.
	Branch() [][]byte
}
