package dispatcher

import (
	"encoding/binary"
	"testing"

	"distributed-bnb/internal/convergence"
	"distributed-bnb/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// binaryTree is a synthetic minimization tree: node bounds grow by one per
// level and leaves at maxDepth are feasible with objective bound+offset.
type binaryTree struct {
	maxDepth int
}

func (b binaryTree) encode(depth int, path uint64) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf, uint64(depth))
	binary.LittleEndian.PutUint64(buf[8:], path)
	return buf
}

func (b binaryTree) decode(p []byte) (int, uint64) {
	return int(binary.LittleEndian.Uint64(p)), binary.LittleEndian.Uint64(p[8:])
}

// explore returns the node's objective (inf when not a leaf) and children.
func (b binaryTree) explore(n *domain.Node) (float64, []*domain.Node) {
	depth, path := b.decode(n.Payload)
	if depth == b.maxDepth {
		return n.Bound + float64(path%3), nil
	}
	var kids []*domain.Node
	for i := uint64(0); i < 2; i++ {
		c := domain.NewNode(domain.Minimize, n.Bound+float64(i)+1, b.encode(depth+1, path*2+i))
		c.TreeDepth = depth + 1
		kids = append(kids, c)
	}
	return inf, kids
}

func TestSimulatedSolveInvariants(t *testing.T) {
	for _, strategy := range domain.Strategies {
		t.Run(string(strategy), func(t *testing.T) {
			tree := binaryTree{maxDepth: 5}
			checker, err := convergence.New(domain.Minimize, convergence.WithRelativeGap(0))
			require.NoError(t, err)

			workers := []int{0, 1, 2}
			d, err := New(workers, discardLogger())
			require.NoError(t, err)

			root := domain.NewNode(domain.Minimize, 0, tree.encode(0, 0))
			root.SetTreeID(0)
			require.NoError(t, d.Initialize(Options{
				BestObjective: inf,
				Strategy:      strategy,
				Checker:       checker,
			}, domain.Snapshot{Nodes: []*domain.Node{root}, NextTreeID: 1}))

			type state struct {
				node     *domain.Node
				best     float64
				explored int64
				done     bool
			}
			ws := make(map[int]*state, len(workers))
			var pending []Delivery
			for _, id := range workers {
				ws[id] = &state{best: inf}
				out, err := d.Update(id, Update{BestObjective: inf})
				require.NoError(t, err)
				pending = append(pending, out...)
			}

			lastBound := d.CurrentBound()
			lastObjective := d.BestObjective()
			assertInvariants := func() {
				s := d.Stats()
				assert.Equal(t, s.Created, int64(s.QueueSize+s.Busy)+s.Pruned+s.Completed, "conservation")
				assert.GreaterOrEqual(t, s.Bound, lastBound, "bound monotonicity")
				lastBound = s.Bound
				assert.LessOrEqual(t, s.BestObjective, lastObjective, "incumbent monotonicity")
				lastObjective = s.BestObjective
			}

			for steps := 0; len(pending) > 0; steps++ {
				require.Less(t, steps, 10000)
				dl := pending[0]
				pending = pending[1:]
				w := ws[dl.WorkerID]
				if dl.Kind == DeliveryNoWork {
					w.done = true
					continue
				}
				require.NotNil(t, dl.Node.BestObjective)
				if dl.BestObjective < w.best {
					w.best = dl.BestObjective
				}
				obj, kids := tree.explore(dl.Node)
				if obj < w.best {
					w.best = obj
				}
				if !checker.ObjectiveCanImprove(w.best, dl.Node.Bound) {
					kids = nil
				}
				w.explored++
				out, err := d.Update(dl.WorkerID, Update{
					BestObjective: w.best,
					PreviousBound: dl.Node.Bound,
					Explored:      w.explored,
					Nodes:         kids,
				})
				require.NoError(t, err)
				pending = append(pending, out...)
				assertInvariants()
			}

			for _, id := range workers {
				assert.True(t, ws[id].done, "worker %d got no-work", id)
			}
			assert.Equal(t, 5.0, d.BestObjective())
			bound, err := d.Finalize()
			require.NoError(t, err)
			assert.Equal(t, 5.0, bound)
			assert.Equal(t, domain.TerminationOptimality, d.TerminationCondition())
		})
	}
}
