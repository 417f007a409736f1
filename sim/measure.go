package sim

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/statevec-sim/statevec-sim/sim/bitperm"
	"github.com/statevec-sim/statevec-sim/sim/comm"
	"github.com/statevec-sim/statevec-sim/sim/kernel"
)

// maxMeasureBlocks bounds the per-rank block count of the sampling CDF.
const maxMeasureBlocks = 1 << 15

// outcome selects the basis states consistent with a set of qubit values:
// local index bits under localMask must equal localVal, and the rank bits
// under globalMask must equal globalVal.
type outcome struct {
	localMask, localVal   uint64
	globalMask, globalVal uint64
}

func (o outcome) ownsRank(rank int) bool {
	return uint64(rank)&o.globalMask == o.globalVal
}

func (s *Simulator) outcomeOf(ids []int64, values []bool) outcome {
	var o outcome
	for i, id := range ids {
		p := s.where[id]
		bit := bitperm.Bit(uint(p.index))
		if p.global {
			o.globalMask |= bit
			if values[i] {
				o.globalVal |= bit
			}
		} else {
			o.localMask |= bit
			if values[i] {
				o.localVal |= bit
			}
		}
	}
	return o
}

// probability returns the global probability of o. Collective.
func (s *Simulator) probability(o outcome) float64 {
	var p float64
	if o.ownsRank(s.rank) {
		for i, a := range s.shard {
			if uint64(i)&o.localMask == o.localVal {
				p += norm(a)
			}
		}
	}
	return s.world.AllReduce([]float64{p}, comm.OpSum)[0]
}

// project zeroes amplitudes inconsistent with o and rescales the rest by
// 1/sqrt(p).
func (s *Simulator) project(o outcome, p float64) {
	if !o.ownsRank(s.rank) {
		clear(s.shard)
		return
	}
	scale := complex(1/math.Sqrt(p), 0)
	n := uint64(len(s.shard))
	kernel.ParallelFor(n, n, s.cfg.kernelOptions(), func(lo, hi uint64) {
		for i := lo; i < hi; i++ {
			if i&o.localMask == o.localVal {
				s.shard[i] *= scale
			} else {
				s.shard[i] = 0
			}
		}
	})
}

// Measure samples the given qubits, collapses the state onto the result and
// returns the measured values in the order of ids. It is collective; every
// rank returns the same values.
func (s *Simulator) Measure(ids []int64) ([]bool, error) {
	if err := s.flush(); err != nil {
		return nil, err
	}
	if err := s.checkDistinct("measure", ids); err != nil {
		return nil, err
	}
	start := time.Now()

	index := s.sample()
	localIdx := index & (uint64(len(s.shard)) - 1)
	rankBits := index >> uint(len(s.locals))

	values := make([]bool, len(ids))
	for i, id := range ids {
		p := s.where[id]
		if p.global {
			values[i] = bitperm.Has(rankBits, uint(p.index))
		} else {
			values[i] = bitperm.Has(localIdx, uint(p.index))
		}
	}
	o := s.outcomeOf(ids, values)
	s.project(o, s.probability(o))

	s.metrics.RecordMeasure(time.Since(start))
	s.log.Debugf("measure %v -> %v", ids, values)
	if s.cfg.CheckNorm {
		if err := s.CheckNorm(); err != nil {
			return nil, err
		}
	}
	return values, nil
}

// sample draws one full basis index with probability |amplitude|^2 using a
// two-level inverse CDF: per-rank block sums, gathered everywhere, locate the
// owning rank and block; the owner scans the block and broadcasts the index.
func (s *Simulator) sample() uint64 {
	n := min(len(s.shard), maxMeasureBlocks)
	width := len(s.shard) / n
	blocks := make([]float64, n)
	for b := range blocks {
		for _, a := range s.shard[b*width : (b+1)*width] {
			blocks[b] += norm(a)
		}
	}
	floats.CumSum(blocks, blocks)

	cdf := s.world.AllGather(blocks)
	for r := 1; r < s.world.Size(); r++ {
		shift := cdf[r*n-1]
		for j := r * n; j < (r+1)*n; j++ {
			cdf[j] += shift
		}
	}

	rnd := s.rng.Float64()
	i := sort.Search(len(cdf), func(i int) bool { return cdf[i] > 0 && cdf[i] >= rnd })
	if i == len(cdf) {
		// rounding left the total just below rnd; take the last block with mass
		i = len(cdf) - 1
		for i > 0 && cdf[i] == cdf[i-1] {
			i--
		}
		s.log.Warnf("measure: sample %.17g beyond total probability %.17g", rnd, cdf[len(cdf)-1])
	}
	owner, block := i/n, i%n

	var index uint64
	if s.rank == owner {
		acc := 0.0
		if i > 0 {
			acc = cdf[i-1]
		}
		lo := block * width
		k, last := lo, lo
		for ; k < lo+width; k++ {
			p := norm(s.shard[k])
			if p == 0 {
				continue
			}
			acc += p
			last = k
			if acc >= rnd {
				break
			}
		}
		if k == lo+width {
			k = last
		}
		index = uint64(owner)<<uint(len(s.locals)) | uint64(k)
	}
	return s.world.BroadcastUint64(index, owner)
}

// Collapse forces the given qubits to values and renormalizes. It is
// collective.
func (s *Simulator) Collapse(ids []int64, values []bool) error {
	if err := s.flush(); err != nil {
		return err
	}
	if len(ids) != len(values) {
		return s.fail(fmt.Errorf("%w: %d ids, %d values", ErrInvalidAmplitudeQuery, len(ids), len(values)))
	}
	if err := s.checkDistinct("collapse", ids); err != nil {
		return err
	}
	o := s.outcomeOf(ids, values)
	p := s.probability(o)
	if p < zeroTolerance {
		return s.fail(fmt.Errorf("%w: probability %g", ErrZeroProbabilityCollapse, p))
	}
	s.project(o, p)
	if s.cfg.CheckNorm {
		return s.CheckNorm()
	}
	return nil
}

// Probability returns the probability that ids hold values. Collective.
func (s *Simulator) Probability(values []bool, ids []int64) (float64, error) {
	if err := s.flush(); err != nil {
		return 0, err
	}
	if len(ids) != len(values) {
		return 0, s.fail(fmt.Errorf("%w: %d ids, %d values", ErrInvalidAmplitudeQuery, len(ids), len(values)))
	}
	if err := s.checkDistinct("probability", ids); err != nil {
		return 0, err
	}
	return s.probability(s.outcomeOf(ids, values)), nil
}

// Amplitude returns the amplitude of the basis state in which order[i] holds
// bits[i]. order must list every allocated qubit exactly once. Collective.
func (s *Simulator) Amplitude(bits []bool, order []int64) (complex128, error) {
	if err := s.flush(); err != nil {
		return 0, err
	}
	if len(bits) != len(s.where) || len(order) != len(s.where) {
		return 0, s.fail(fmt.Errorf("%w: %d bits and %d ids for %d qubits",
			ErrInvalidAmplitudeQuery, len(bits), len(order), len(s.where)))
	}
	seen := make(map[int64]bool, len(order))
	for _, id := range order {
		if _, ok := s.where[id]; !ok || seen[id] {
			return 0, s.fail(&QubitError{Op: "amplitude", Qubit: id, Err: ErrInvalidAmplitudeQuery})
		}
		seen[id] = true
	}

	o := s.outcomeOf(order, bits)
	owner := int(o.globalVal)
	var v complex128
	if s.rank == owner {
		v = s.shard[o.localVal]
	}
	return s.world.BroadcastComplex(v, owner), nil
}

// Entropy returns the Shannon entropy, in bits, of the measurement
// distribution over all qubits. Collective.
func (s *Simulator) Entropy() (float64, error) {
	if err := s.flush(); err != nil {
		return 0, err
	}
	var e float64
	for _, a := range s.shard {
		if p := norm(a); p > 0 {
			e -= p * math.Log2(p)
		}
	}
	return s.world.AllReduce([]float64{e}, comm.OpSum)[0], nil
}

// Norm returns the total probability across all ranks. Collective.
func (s *Simulator) Norm() float64 {
	var local float64
	for _, a := range s.shard {
		local += norm(a)
	}
	return floats.Sum(s.world.AllReduce([]float64{local}, comm.OpSum))
}

// CheckNorm returns ErrNormalizationFault if the total probability differs
// from 1 by more than the configured tolerance. Collective.
func (s *Simulator) CheckNorm() error {
	n := s.Norm()
	if math.Abs(n-1) > s.cfg.NormTolerance {
		return s.fail(fmt.Errorf("%w: total probability %.12f", ErrNormalizationFault, n))
	}
	return nil
}
