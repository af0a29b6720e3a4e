// Package knapsack is a 0/1 knapsack domain.Problem with a fractional
// relaxation bound. It serves as the demo workload of cmd/worker.
package knapsack

import (
	"fmt"
	"slices"

	"distributed-bnb/internal/domain"

	"github.com/vmihailenco/msgpack/v5"
)

// Item is one candidate of the knapsack.
type Item struct {
	Name   string
	Weight float64
	Value  float64
}

// state is the node payload: which of the first Level items are packed.
type state struct {
	Level  int     `msgpack:"l"`
	Weight float64 `msgpack:"w"`
	Value  float64 `msgpack:"v"`
	Taken  []bool  `msgpack:"t"`
}

// Problem maximizes packed value under a weight capacity.
type Problem struct {
	capacity float64
	items    []Item // sorted by value density, best first
	cur      state
}

var _ domain.Problem = (*Problem)(nil)

// New creates the problem at its root state.
func New(capacity float64, items []Item) (*Problem, error) {
	if capacity < 0 {
		return nil, fmt.Errorf("%w: capacity must be >= 0, got %v", domain.ErrInvalidConfig, capacity)
	}
	sorted := slices.Clone(items)
	for _, it := range sorted {
		if it.Weight <= 0 || it.Value < 0 {
			return nil, fmt.Errorf("%w: item %q needs weight > 0 and value >= 0", domain.ErrInvalidConfig, it.Name)
		}
	}
	slices.SortStableFunc(sorted, func(a, b Item) int {
		da, db := a.Value/a.Weight, b.Value/b.Weight
		switch {
		case da > db:
			return -1
		case da < db:
			return 1
		}
		return 0
	})
	return &Problem{capacity: capacity, items: sorted}, nil
}

func (p *Problem) Sense() domain.Sense { return domain.Maximize }

// Objective is the value packed so far; leaving every undecided item out
// is always feasible.
func (p *Problem) Objective() float64 { return p.cur.Value }

// Bound fills the remaining capacity greedily by density, splitting the
// first item that does not fit.
func (p *Problem) Bound() float64 {
	room := p.capacity - p.cur.Weight
	bound := p.cur.Value
	for _, it := range p.items[p.cur.Level:] {
		if it.Weight <= room {
			room -= it.Weight
			bound += it.Value
			continue
		}
		bound += it.Value * room / it.Weight
		break
	}
	return bound
}

func (p *Problem) SaveState() []byte {
	b, err := msgpack.Marshal(&p.cur)
	if err != nil {
		panic(fmt.Sprintf("knapsack: marshal state: %v", err))
	}
	return b
}

func (p *Problem) LoadState(payload []byte) error {
	var s state
	if err := msgpack.Unmarshal(payload, &s); err != nil {
		return fmt.Errorf("knapsack: unmarshal state: %w", err)
	}
	if s.Level < 0 || s.Level > len(p.items) || len(s.Taken) != s.Level {
		return fmt.Errorf("knapsack: state level %d does not fit %d items", s.Level, len(p.items))
	}
	p.cur = s
	return nil
}

// Branch decides the next item: packed (when it fits) or left out.
func (p *Problem) Branch() [][]byte {
	if p.cur.Level == len(p.items) {
		return nil
	}
	parent := p.cur
	defer func() { p.cur = parent }()

	it := p.items[parent.Level]
	var children [][]byte
	if parent.Weight+it.Weight <= p.capacity {
		p.cur = state{
			Level:  parent.Level + 1,
			Weight: parent.Weight + it.Weight,
			Value:  parent.Value + it.Value,
			Taken:  append(slices.Clone(parent.Taken), true),
		}
		children = append(children, p.SaveState())
	}
	p.cur = state{
		Level:  parent.Level + 1,
		Weight: parent.Weight,
		Value:  parent.Value,
		Taken:  append(slices.Clone(parent.Taken), false),
	}
	children = append(children, p.SaveState())
	return children
}

// Packed returns the names of the items packed in the current state.
func (p *Problem) Packed() []string {
	var names []string
	for i, taken := range p.cur.Taken {
		if taken {
			names = append(names, p.items[i].Name)
		}
	}
	return names
}

// DemoItems is the instance solved when no items are configured.
func DemoItems() (capacity float64, items []Item) {
	weights := []float64{23, 31, 29, 44, 53, 38, 63, 85, 89, 82, 12, 17, 41, 27, 58, 66, 19, 35, 47, 71}
	values := []float64{92, 57, 49, 68, 60, 43, 67, 84, 87, 72, 21, 30, 55, 39, 62, 70, 28, 44, 51, 77}
	items = make([]Item, len(weights))
	for i := range weights {
		items[i] = Item{Name: fmt.Sprintf("item-%02d", i), Weight: weights[i], Value: values[i]}
	}
	return 300, items
}
