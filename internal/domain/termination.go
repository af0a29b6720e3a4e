package domain

// TerminationCondition describes why a solve stopped.
type TerminationCondition string

const (
	TerminationOptimality TerminationCondition = "optimality"
	TerminationNodeLimit  TerminationCondition = "node_limit"
	TerminationTimeLimit  TerminationCondition = "time_limit"
	TerminationCutoff     TerminationCondition = "cutoff"
	TerminationNoNodes    TerminationCondition = "no_nodes"
)
