package scheduler

import (
	"github.com/sirupsen/logrus"

	"github.com/statevec-sim/statevec-sim/sim/bitperm"
)

// ClusterScheduler picks the backlog gates that run together in the next
// fused cluster.
type ClusterScheduler struct {
	size   int
	pos    positions
	gates  []gateMask
	locals uint64
}

// NewClusterScheduler compiles gates against the current local and global
// qubits. size bounds the number of local qubits in one cluster.
func NewClusterScheduler(gates []Gate, locals, globals []int64, size int) (*ClusterScheduler, error) {
	pos, err := newPositions(gates, locals, globals)
	if err != nil {
		return nil, err
	}
	return &ClusterScheduler{
		size:   size,
		pos:    pos,
		gates:  compile(gates, pos),
		locals: pos.mask(locals),
	}, nil
}

// Schedule returns the indices, in backlog order, of the gates to run in the
// next cluster. If no cluster fits, a single gate whose local qubits exceed
// the cluster size is returned when it is otherwise runnable. An empty result
// means nothing can run without a swap.
func (c *ClusterScheduler) Schedule() []int {
	if len(c.gates) == 0 {
		return nil
	}

	st := &clusterSearch{c: c, visited: make(map[uint64]uint64), evaluated: make(map[uint64]bool)}
	for _, g := range c.gates {
		seed := c.locals & g.all()
		if bitperm.Count(seed) <= c.size {
			st.rec(seed, 1)
		}
	}

	if st.best != 0 {
		taken := c.take(st.bestCluster)
		logrus.Debugf("cluster scheduler: %d qubits, %d gates", bitperm.Count(st.bestCluster), len(taken))
		return taken
	}
	if huge := c.firstTakeable(); huge >= 0 {
		logrus.Debug("cluster scheduler: huge gate")
		return []int{huge}
	}
	return nil
}

func (c *ClusterScheduler) canTake(g gateMask, cluster, bad uint64) bool {
	all := g.all()
	if all&bad != 0 || !bitperm.IsSubset(all&c.locals, cluster) {
		return false
	}
	if g.diagonal {
		return true
	}
	return bitperm.IsSubset(g.targets, c.locals)
}

// take scans the backlog in order; a gate that cannot run poisons its qubits
// for every later gate.
func (c *ClusterScheduler) take(cluster uint64) []int {
	var bad uint64
	var out []int
	for i, g := range c.gates {
		if c.canTake(g, cluster, bad) {
			out = append(out, i)
		} else {
			bad |= g.all()
		}
	}
	return out
}

func (c *ClusterScheduler) firstTakeable() int {
	var bad uint64
	for i, g := range c.gates {
		if c.canTake(g, c.locals, bad) {
			return i
		}
		bad |= g.all()
	}
	return -1
}

type clusterSearch struct {
	c           *ClusterScheduler
	visited     map[uint64]uint64 // cluster -> bits already branched on
	evaluated   map[uint64]bool
	best        int
	bestCluster uint64
}

func (st *clusterSearch) evaluate(cluster uint64) {
	if st.evaluated[cluster] {
		return
	}
	st.evaluated[cluster] = true
	n := len(st.c.take(cluster))
	if n > st.best || (n == st.best && bitperm.Count(cluster) < bitperm.Count(st.bestCluster)) {
		st.best = n
		st.bestCluster = cluster
	}
}

// rec enumerates clusters grown from cur by adding local bits at or above
// bit.
func (st *clusterSearch) rec(cur, bit uint64) {
	st.evaluate(cur)
	if bit > st.c.locals || bit == 0 {
		return
	}
	if st.visited[cur]&bit != 0 {
		return
	}
	st.visited[cur] |= bit

	if bitperm.IsSubset(bit, st.c.locals) && bit&cur == 0 && bitperm.Count(cur) < st.c.size {
		st.rec(cur|bit, bit<<1)
	}
	st.rec(cur, bit<<1)
}
