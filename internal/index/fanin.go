package index

import "fmt"

// FanIn lists, per target instance of a group, the synapse-state positions
// driving it. Sources of instance i are Pre[Offsets[i]:Offsets[i+1]].
type FanIn struct {
	Offsets []int32
	Pre     []int32
	// Reverse holds reverse potentials aligned with Pre; nil for
	// current-based tables.
	Reverse []float64
}

// Len returns the total number of connections.
func (f FanIn) Len() int {
	return len(f.Pre)
}

// Range returns the bounds of instance i's sources in Pre.
func (f FanIn) Range(i int) (int, int) {
	return int(f.Offsets[i]), int(f.Offsets[i+1])
}

// Dendrites counts the connections terminating on instance i.
func (f FanIn) Dendrites(i int) int {
	lo, hi := f.Range(i)
	return hi - lo
}

type source struct {
	pre     int32
	reverse float64
}

type buckets struct {
	cond    [][]source
	current [][]source
}

func newBuckets(n int) *buckets {
	return &buckets{cond: make([][]source, n), current: make([][]source, n)}
}

func compact(rows [][]source, withReverse bool) FanIn {
	f := FanIn{Offsets: make([]int32, len(rows)+1)}
	total := 0
	for i, r := range rows {
		total += len(r)
		f.Offsets[i+1] = int32(total)
	}
	f.Pre = make([]int32, 0, total)
	if withReverse {
		f.Reverse = make([]float64, 0, total)
	}
	for _, r := range rows {
		for _, src := range r {
			f.Pre = append(f.Pre, src.pre)
			if withReverse {
				f.Reverse = append(f.Reverse, src.reverse)
			}
		}
	}
	return f
}

func (s *Space) buildFanIn() error {
	gpotOwner := make([]int, s.NumGpot)
	spikeOwner := make([]int, s.NumSpike)
	neuronBuckets := make([]*buckets, len(s.Neurons))
	for li, l := range s.Neurons {
		owner := gpotOwner
		if l.Spiking() {
			owner = spikeOwner
		}
		for k := 0; k < l.Count; k++ {
			owner[l.Start+k] = li
		}
		neuronBuckets[li] = newBuckets(l.Count)
	}
	synOwner := make([]int, s.NumSynapses)
	synBuckets := make([]*buckets, len(s.Synapses))
	for li, l := range s.Synapses {
		for k := 0; k < l.Count; k++ {
			synOwner[l.Start+k] = li
		}
		synBuckets[li] = newBuckets(l.Count)
	}

	add := func(addr int, src source, cond bool) error {
		var b *buckets
		var local int
		switch {
		case addr >= s.SynapseBase:
			pos, ok := s.synOrder[addr-s.SynapseBase]
			if !ok {
				return fmt.Errorf("%w: synapse address %d", ErrUnresolvedPost, addr)
			}
			li := synOwner[pos]
			b, local = synBuckets[li], pos-s.Synapses[li].Start
		case addr < s.NumGpot:
			li := gpotOwner[addr]
			b, local = neuronBuckets[li], addr-s.Neurons[li].Start
		case addr < s.NumGpot+s.NumSpike:
			li := spikeOwner[addr-s.NumGpot]
			b, local = neuronBuckets[li], addr-s.NumGpot-s.Neurons[li].Start
		default:
			return fmt.Errorf("%w: neuron address %d", ErrUnresolvedPost, addr)
		}
		if cond {
			b.cond[local] = append(b.cond[local], src)
		} else {
			b.current[local] = append(b.current[local], src)
		}
		return nil
	}

	for _, l := range s.Synapses {
		for k, addr := range l.Post {
			src := source{pre: int32(l.Start + k)}
			cond := l.Group.Conductance[k]
			if cond {
				src.reverse = l.Group.Reverse[k]
			}
			if err := add(addr, src, cond); err != nil {
				return err
			}
		}
	}
	for j, addr := range s.InputNeurons {
		if err := add(addr, source{pre: int32(s.NumSynapses + j)}, false); err != nil {
			return err
		}
	}

	for li := range s.Neurons {
		s.Neurons[li].Cond = compact(neuronBuckets[li].cond, true)
		s.Neurons[li].Current = compact(neuronBuckets[li].current, false)
	}
	for li := range s.Synapses {
		s.Synapses[li].Cond = compact(synBuckets[li].cond, true)
		s.Synapses[li].Current = compact(synBuckets[li].current, false)
	}
	return nil
}
