package comm

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// World is an in-memory process group. Each rank is driven by its own
// goroutine and collectives rendezvous through shared memory.
type World struct {
	root    *group
	members []*member
}

// NewWorld creates a world of size ranks. It panics if size < 1.
func NewWorld(size int) *World {
	if size < 1 {
		panic(fmt.Sprintf("comm: world size must be >= 1, got %d", size))
	}
	g := newGroup(size)
	w := &World{root: g, members: make([]*member, size)}
	for r := range w.members {
		w.members[r] = &member{g: g, rank: r}
	}
	return w
}

// Size returns the number of ranks.
func (w *World) Size() int {
	return len(w.members)
}

// Comm returns the communicator for rank r.
func (w *World) Comm(r int) Communicator {
	return w.members[r]
}

// Run calls fn once per rank, each on its own goroutine, and waits for all of
// them. The first non-nil error is returned.
func (w *World) Run(ctx context.Context, fn func(ctx context.Context, c Communicator) error) error {
	eg, ctx := errgroup.WithContext(ctx)
	for _, m := range w.members {
		m := m
		eg.Go(func() error {
			return fn(ctx, m)
		})
	}
	return eg.Wait()
}

// group is a reusable rendezvous point. Each round every member deposits one
// input; the last to arrive computes all outputs and releases the others.
type group struct {
	size int

	mu      sync.Mutex
	cond    *sync.Cond
	gen     uint64
	arrived int
	inputs  []any
	outputs []any
}

func newGroup(size int) *group {
	g := &group{size: size, inputs: make([]any, size)}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// round blocks until every member has contributed and returns this member's
// output. combine runs once per round, on the last member to arrive.
func (g *group) round(rank int, in any, combine func(inputs []any) []any) any {
	g.mu.Lock()
	defer g.mu.Unlock()

	gen := g.gen
	g.inputs[rank] = in
	g.arrived++
	if g.arrived == g.size {
		g.outputs = combine(g.inputs)
		g.inputs = make([]any, g.size)
		g.arrived = 0
		g.gen++
		g.cond.Broadcast()
	} else {
		for g.gen == gen {
			g.cond.Wait()
		}
	}
	if g.outputs == nil {
		return nil
	}
	return g.outputs[rank]
}

type member struct {
	g    *group
	rank int
}

func (m *member) Rank() int { return m.rank }
func (m *member) Size() int { return m.g.size }

func (m *member) Barrier() {
	m.g.round(m.rank, nil, func([]any) []any { return nil })
}

func (m *member) AllReduce(vals []float64, op Op) []float64 {
	in := append([]float64(nil), vals...)
	out := m.g.round(m.rank, in, func(inputs []any) []any {
		acc := append([]float64(nil), inputs[0].([]float64)...)
		for _, x := range inputs[1:] {
			v := x.([]float64)
			if len(v) != len(acc) {
				panic(fmt.Sprintf("comm: allreduce length mismatch %d != %d", len(v), len(acc)))
			}
			for i := range acc {
				acc[i] = reduce(op, acc[i], v[i])
			}
		}
		return fanOut(len(inputs), acc)
	})
	return append([]float64(nil), out.([]float64)...)
}

func reduce(op Op, a, b float64) float64 {
	switch op {
	case OpMax:
		return max(a, b)
	case OpMin:
		return min(a, b)
	default:
		return a + b
	}
}

func (m *member) AllGather(vals []float64) []float64 {
	in := append([]float64(nil), vals...)
	out := m.g.round(m.rank, in, func(inputs []any) []any {
		var all []float64
		for _, x := range inputs {
			all = append(all, x.([]float64)...)
		}
		return fanOut(len(inputs), all)
	})
	return append([]float64(nil), out.([]float64)...)
}

func (m *member) AllToAll(send, recv []complex128, n int) {
	size := m.g.size
	if len(send) < n*size || len(recv) < n*size {
		panic(fmt.Sprintf("comm: alltoall buffers shorter than %d", n*size))
	}
	out := m.g.round(m.rank, send, func(inputs []any) []any {
		outs := make([]any, size)
		for dst := 0; dst < size; dst++ {
			buf := make([]complex128, n*size)
			for src := 0; src < size; src++ {
				copy(buf[src*n:(src+1)*n], inputs[src].([]complex128)[dst*n:(dst+1)*n])
			}
			outs[dst] = buf
		}
		return outs
	})
	copy(recv, out.([]complex128))
}

func (m *member) BroadcastUint64(v uint64, root int) uint64 {
	m.checkRoot(root)
	out := m.g.round(m.rank, v, func(inputs []any) []any {
		return fanOut(len(inputs), inputs[root])
	})
	return out.(uint64)
}

func (m *member) BroadcastComplex(v complex128, root int) complex128 {
	m.checkRoot(root)
	out := m.g.round(m.rank, v, func(inputs []any) []any {
		return fanOut(len(inputs), inputs[root])
	})
	return out.(complex128)
}

func (m *member) checkRoot(root int) {
	if root < 0 || root >= m.g.size {
		panic(fmt.Sprintf("comm: broadcast root %d outside group of %d", root, m.g.size))
	}
}

func (m *member) Split(color uint64) Communicator {
	out := m.g.round(m.rank, color, func(inputs []any) []any {
		byColor := make(map[uint64][]int)
		for r, x := range inputs {
			c := x.(uint64)
			byColor[c] = append(byColor[c], r)
		}
		outs := make([]any, len(inputs))
		for _, ranks := range byColor {
			sort.Ints(ranks)
			sub := newGroup(len(ranks))
			for i, r := range ranks {
				outs[r] = &member{g: sub, rank: i}
			}
		}
		return outs
	})
	return out.(*member)
}

func fanOut(n int, v any) []any {
	outs := make([]any, n)
	for i := range outs {
		outs[i] = v
	}
	return outs
}
