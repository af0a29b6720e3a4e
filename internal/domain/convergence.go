package domain

// ConvergenceChecker encapsulates the optimization sense and the gap
// tolerance arithmetic used to compare bounds and objectives.
type ConvergenceChecker interface {
	Sense() Sense
	InfeasibleObjective() float64
	UnboundedObjective() float64

	// ObjectiveImproved reports whether newObj is strictly better than oldObj.
	ObjectiveImproved(newObj, oldObj float64) bool
	// BoundWorsened reports whether newBound is more optimistic than oldBound.
	BoundWorsened(newBound, oldBound float64) bool
	// ObjectiveCanImprove reports whether a node with the given bound may
	// still produce something better than objective.
	ObjectiveCanImprove(objective, bound float64) bool
	// ObjectiveIsOptimal reports whether objective is within tolerance of bound.
	ObjectiveIsOptimal(objective, bound float64) bool
	// CutoffIsMet reports whether the global bound reached the configured stop.
	CutoffIsMet(bound float64) bool

	AbsoluteGap(bound, objective float64) float64
	RelativeGap(bound, objective float64) float64
}
