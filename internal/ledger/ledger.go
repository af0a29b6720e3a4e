// Package ledger tracks the part of the search space the dispatcher cannot
// see in its queue: bounds of nodes checked out to workers and the worst
// bound among nodes proven to have no further children.
package ledger

import (
	"slices"
	"sort"

	"distributed-bnb/internal/domain"
)

// Ledger is not safe for concurrent use; the dispatcher owns it.
type Ledger struct {
	checker domain.ConvergenceChecker

	// external is sorted ascending; one entry per busy worker.
	external []float64

	worstTerminal float64
	hasTerminal   bool
}

// New returns an empty ledger.
func New(checker domain.ConvergenceChecker) *Ledger {
	return &Ledger{checker: checker}
}

// Len returns the number of checked-out bounds.
func (l *Ledger) Len() int { return len(l.external) }

// External returns a copy of the checked-out bounds in ascending order.
func (l *Ledger) External() []float64 { return slices.Clone(l.external) }

// WorstTerminal returns the worst terminal bound, if any was recorded.
func (l *Ledger) WorstTerminal() (float64, bool) {
	return l.worstTerminal, l.hasTerminal
}

// CheckOut records the bound of a node handed to a worker.
func (l *Ledger) CheckOut(bound float64) {
	i := sort.SearchFloat64s(l.external, bound)
	l.external = slices.Insert(l.external, i, bound)
}

// CheckIn removes one entry equal to bound. A missing entry is not an error:
// an incumbent improvement may have trimmed it already.
func (l *Ledger) CheckIn(bound float64) bool {
	i := sort.SearchFloat64s(l.external, bound)
	if i < len(l.external) && l.external[i] == bound {
		l.external = slices.Delete(l.external, i, i+1)
		return true
	}
	return false
}

// RecordTerminal keeps bound if it is worse than the current terminal bound.
func (l *Ledger) RecordTerminal(bound float64) bool {
	if !l.hasTerminal || l.checker.BoundWorsened(bound, l.worstTerminal) {
		l.worstTerminal = bound
		l.hasTerminal = true
		return true
	}
	return false
}

// CurrentBound combines the queue's own bound with the ledger. The result is
// the most optimistic bound still outstanding: the minimum for minimize, the
// maximum for maximize.
func (l *Ledger) CurrentBound(queueBound float64, queueHasBound bool) (float64, bool) {
	bound, ok := queueBound, queueHasBound
	if n := len(l.external); n > 0 {
		best := l.external[0]
		if l.checker.Sense() == domain.Maximize {
			best = l.external[n-1]
		}
		if !ok || l.worse(best, bound) {
			bound, ok = best, true
		}
	}
	if l.hasTerminal && (!ok || l.worse(l.worstTerminal, bound)) {
		bound, ok = l.worstTerminal, true
	}
	return bound, ok
}

// TrimDead drops checked-out bounds that can no longer improve on objective
// and returns them. Dead entries sit at the front for maximize and at the
// back for minimize; live entries are never touched.
func (l *Ledger) TrimDead(objective float64) []float64 {
	n := len(l.external)
	if n == 0 {
		return nil
	}
	var dead []float64
	if l.checker.Sense() == domain.Maximize {
		i := sort.Search(n, func(i int) bool {
			return l.checker.ObjectiveCanImprove(objective, l.external[i])
		})
		dead = slices.Clone(l.external[:i])
		l.external = slices.Delete(l.external, 0, i)
	} else {
		i := sort.Search(n, func(i int) bool {
			return !l.checker.ObjectiveCanImprove(objective, l.external[i])
		})
		dead = slices.Clone(l.external[i:])
		l.external = l.external[:i]
	}
	return dead
}

func (l *Ledger) worse(a, b float64) bool {
	if l.checker.Sense() == domain.Maximize {
		return a > b
	}
	return a < b
}
