package dispatcher

import (
	"log/slog"
	"math"
	"strconv"
	"time"
)

const progressSmoothing = 0.7

// progress emits periodic solve status records. A new incumbent forces the
// next record regardless of the interval.
type progress struct {
	logger   *slog.Logger
	interval time.Duration

	start          time.Time
	lastPrint      time.Time
	printed        bool
	lastExplored   int64
	avgTimePerNode float64
	count          int

	pendingObjective bool
	reportObjective  bool
}

func newProgress(logger *slog.Logger, interval time.Duration, start time.Time) *progress {
	return &progress{
		logger:   logger.With("component", "progress"),
		interval: interval,
		start:    start,
	}
}

func (p *progress) newObjective() {
	p.pendingObjective = true
	p.reportObjective = true
}

// tic logs a status record if the interval elapsed, a new incumbent was
// found, or force is set. It reports whether a record was written.
func (p *progress) tic(now time.Time, force bool, s Stats) bool {
	delta := now.Sub(p.lastPrint)
	report := p.reportObjective
	p.reportObjective = false
	if !force && !report && p.printed && delta < p.interval {
		return false
	}
	marked := p.pendingObjective
	p.pendingObjective = false

	deltaN := s.Explored - p.lastExplored
	if p.printed && delta > 0 && deltaN > 0 {
		perNode := delta.Seconds() / float64(deltaN)
		if p.avgTimePerNode == 0 {
			p.avgTimePerNode = perNode
		} else {
			p.avgTimePerNode = progressSmoothing*perNode + (1-progressSmoothing)*p.avgTimePerNode
		}
	}
	rate := 0.0
	if p.avgTimePerNode > 0 {
		rate = 1 / p.avgTimePerNode
	}

	attrs := []any{
		"explored", s.Explored,
		"unexplored", s.QueueSize + s.Busy,
		"incumbent", LogFloat(s.BestObjective),
		"bound", LogFloat(s.Bound),
		"abs_gap", LogFloat(s.AbsoluteGap),
		"runtime_s", now.Sub(p.start).Seconds(),
		"nodes_per_sec", rate,
		"starved", s.Idle,
	}
	if rgap := s.RelativeGap * 100; !math.IsInf(rgap, 0) && rgap > 9999 {
		attrs = append(attrs, "rel_gap_pct", "9999+")
	} else {
		attrs = append(attrs, "rel_gap_pct", LogFloat(rgap))
	}
	if marked {
		attrs = append(attrs, "new_incumbent", true)
	}
	p.logger.Info("progress", attrs...)

	p.lastExplored = s.Explored
	p.lastPrint = now
	p.printed = true
	p.count++
	return true
}

// LogFloat keeps infinities readable in JSON output, which has no literal
// for them.
func LogFloat(v float64) any {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return v
}
