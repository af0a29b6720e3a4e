// Package convergence implements the default domain.ConvergenceChecker.
package convergence

import (
	"fmt"
	"math"

	"distributed-bnb/internal/domain"
)

const (
	DefaultAbsoluteGap = 0
	DefaultRelativeGap = 1e-4
)

// Checker compares bounds and objectives for one optimization sense.
type Checker struct {
	sense               domain.Sense
	absoluteGap         float64
	relativeGap         float64
	comparisonTolerance float64
	boundStop           *float64
	infeasible          float64
	unbounded           float64
}

// Option configures a Checker.
type Option func(*Checker)

// WithAbsoluteGap sets the absolute gap tolerance.
func WithAbsoluteGap(gap float64) Option {
	return func(c *Checker) { c.absoluteGap = gap }
}

// WithRelativeGap sets the relative gap tolerance.
func WithRelativeGap(gap float64) Option {
	return func(c *Checker) { c.relativeGap = gap }
}

// WithComparisonTolerance sets the slack used when comparing two values.
func WithComparisonTolerance(tol float64) Option {
	return func(c *Checker) { c.comparisonTolerance = tol }
}

// WithBoundStop stops the solve once the global bound reaches stop.
func WithBoundStop(stop float64) Option {
	return func(c *Checker) { c.boundStop = &stop }
}

// New creates a Checker. Tolerances must be non-negative.
func New(sense domain.Sense, opts ...Option) (*Checker, error) {
	c := &Checker{
		sense:       sense,
		absoluteGap: DefaultAbsoluteGap,
		relativeGap: DefaultRelativeGap,
	}
	for _, opt := range opts {
		opt(c)
	}

	switch sense {
	case domain.Minimize:
		c.infeasible, c.unbounded = math.Inf(1), math.Inf(-1)
	case domain.Maximize:
		c.infeasible, c.unbounded = math.Inf(-1), math.Inf(1)
	default:
		return nil, fmt.Errorf("%w: unknown sense %d", domain.ErrInvalidConfig, sense)
	}
	if c.absoluteGap < 0 || math.IsNaN(c.absoluteGap) {
		return nil, fmt.Errorf("%w: absolute gap must be >= 0, got %v", domain.ErrInvalidConfig, c.absoluteGap)
	}
	if c.relativeGap < 0 || math.IsNaN(c.relativeGap) {
		return nil, fmt.Errorf("%w: relative gap must be >= 0, got %v", domain.ErrInvalidConfig, c.relativeGap)
	}
	if c.comparisonTolerance < 0 || math.IsNaN(c.comparisonTolerance) {
		return nil, fmt.Errorf("%w: comparison tolerance must be >= 0, got %v", domain.ErrInvalidConfig, c.comparisonTolerance)
	}
	return c, nil
}

func (c *Checker) Sense() domain.Sense           { return c.sense }
func (c *Checker) InfeasibleObjective() float64  { return c.infeasible }
func (c *Checker) UnboundedObjective() float64   { return c.unbounded }
func (c *Checker) AbsoluteGapTolerance() float64 { return c.absoluteGap }
func (c *Checker) RelativeGapTolerance() float64 { return c.relativeGap }

// AbsoluteGap returns how far objective is from bound in the improving
// direction. Infinite whenever exactly one side is infinite.
func (c *Checker) AbsoluteGap(bound, objective float64) float64 {
	if bound == objective {
		return 0
	}
	if math.IsInf(bound, 0) || math.IsInf(objective, 0) {
		return math.Inf(1)
	}
	if c.sense == domain.Minimize {
		return objective - bound
	}
	return bound - objective
}

// RelativeGap scales the absolute gap by max(1, |objective|).
func (c *Checker) RelativeGap(bound, objective float64) float64 {
	gap := c.AbsoluteGap(bound, objective)
	if math.IsInf(gap, 0) {
		return gap
	}
	return gap / math.Max(1, math.Abs(objective))
}

func (c *Checker) ObjectiveImproved(newObj, oldObj float64) bool {
	if c.sense == domain.Minimize {
		return newObj < oldObj-c.comparisonTolerance
	}
	return newObj > oldObj+c.comparisonTolerance
}

func (c *Checker) BoundWorsened(newBound, oldBound float64) bool {
	if c.sense == domain.Minimize {
		return newBound < oldBound-c.comparisonTolerance
	}
	return newBound > oldBound+c.comparisonTolerance
}

func (c *Checker) ObjectiveIsOptimal(objective, bound float64) bool {
	if objective == c.infeasible || objective == c.unbounded {
		return false
	}
	if bound == c.infeasible {
		return true
	}
	if c.AbsoluteGap(bound, objective) <= c.absoluteGap {
		return true
	}
	return c.RelativeGap(bound, objective) <= c.relativeGap
}

// ObjectiveCanImprove is false once the node's bound is already dominated by
// the incumbent, either strictly or within the gap tolerances.
func (c *Checker) ObjectiveCanImprove(objective, bound float64) bool {
	if bound == c.infeasible {
		return false
	}
	if c.sense == domain.Minimize {
		if !(bound < objective-c.comparisonTolerance) {
			return false
		}
	} else if !(bound > objective+c.comparisonTolerance) {
		return false
	}
	return !c.ObjectiveIsOptimal(objective, bound)
}

func (c *Checker) CutoffIsMet(bound float64) bool {
	if c.boundStop == nil {
		return false
	}
	if c.sense == domain.Minimize {
		return bound >= *c.boundStop
	}
	return bound <= *c.boundStop
}

var _ domain.ConvergenceChecker = (*Checker)(nil)
