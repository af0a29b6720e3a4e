package dispatcher

import "distributed-bnb/internal/domain"

func (d *Dispatcher) stopped() bool {
	return d.stopOptimality || d.stopNodeLimit || d.stopTimeLimit || d.stopCutoff
}

// currentBound reports the infeasible sentinel when nothing is outstanding:
// an empty search space has nothing left to prove.
func (d *Dispatcher) currentBound() float64 {
	qb, ok := d.queue.Bound()
	bound, ok := d.ledger.CurrentBound(qb, ok)
	if !ok {
		return d.checker.InfeasibleObjective()
	}
	return bound
}

// addToQueue enqueues n unless the incumbent already dominates it, in which
// case its bound becomes a terminal witness.
func (d *Dispatcher) addToQueue(n *domain.Node) bool {
	if d.checker.ObjectiveCanImprove(d.bestObjective, n.Bound) {
		d.queue.Put(n)
		return true
	}
	d.pruned++
	d.ledger.RecordTerminal(n.Bound)
	return false
}

func (d *Dispatcher) updateBestObjective(objective float64) bool {
	if !d.checker.ObjectiveImproved(objective, d.bestObjective) {
		return false
	}
	d.bestObjective = objective
	d.progress.newObjective()

	removed := d.queue.Filter(func(n *domain.Node) bool {
		return d.checker.ObjectiveCanImprove(objective, n.Bound)
	})
	for _, n := range removed {
		d.ledger.RecordTerminal(n.Bound)
	}
	d.pruned += int64(len(removed))

	// nodes in flight keep their checkedOut entry; their check-in finds nothing
	// and the report records the real final bound
	trimmed := d.ledger.TrimDead(objective)
	d.logger.Debug("new incumbent", "objective", LogFloat(objective), "pruned", len(removed), "trimmed", len(trimmed))
	return true
}

// checkConvergence sets at most one stop flag; flags are sticky.
func (d *Dispatcher) checkConvergence() {
	if d.stopped() {
		return
	}
	bound := d.currentBound()
	switch {
	case bound == d.checker.InfeasibleObjective() || d.checker.ObjectiveIsOptimal(d.bestObjective, bound):
		d.stopOptimality = true
	case d.checker.CutoffIsMet(bound):
		d.stopCutoff = true
	case d.opts.NodeLimit != nil && d.explored >= *d.opts.NodeLimit:
		d.stopNodeLimit = true
	case d.opts.TimeLimit != nil && d.now().Sub(d.startedAt) >= *d.opts.TimeLimit:
		d.stopTimeLimit = true
	}
	if d.stopped() {
		d.logger.Info("stop condition reached", "termination", d.TerminationCondition(), "bound", LogFloat(bound))
	}
}

// sendWork hands queued nodes to idle workers. Once every worker is idle the
// search cannot progress and each of them gets a no-work reply.
func (d *Dispatcher) sendWork() []Delivery {
	var out []Delivery
	if !d.stopped() {
		for d.queue.Size() > 0 && len(d.needsWork) > 0 {
			id := d.needsWork[0]
			d.needsWork = d.needsWork[1:]
			out = append(out, d.checkOut(id))
		}
	}
	if len(d.needsWork) == len(d.workerIDs) {
		for _, id := range d.needsWork {
			out = append(out, Delivery{WorkerID: id, Kind: DeliveryNoWork, BestObjective: d.bestObjective})
		}
		d.needsWork = d.needsWork[:0]
	}
	return out
}

func (d *Dispatcher) checkOut(workerID int) Delivery {
	n := d.queue.Get()
	d.ledger.CheckOut(n.Bound)
	n.SetBestObjective(d.bestObjective)
	d.checkedOut[workerID] = n.Clone()
	d.hasWork[workerID] = struct{}{}
	d.sent++
	return Delivery{WorkerID: workerID, Kind: DeliveryWork, BestObjective: d.bestObjective, Node: n}
}
