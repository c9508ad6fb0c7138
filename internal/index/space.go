// Package index computes the packed layout of a processing unit: where every
// neuron and synapse lives in the state arrays, and which synapses feed which
// targets.
package index

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"lpukit/internal/model"
)

var (
	ErrUnknownID      = errors.New("unknown id")
	ErrUnresolvedPre  = errors.New("unresolvable presynaptic neuron")
	ErrUnresolvedPost = errors.New("unresolvable postsynaptic target")
	ErrInvalidDT      = errors.New("time step must be positive")
)

// NeuronLayout places one neuron model group in its state block.
type NeuronLayout struct {
	// Group holds the instances in packed order.
	Group model.NeuronGroup
	// Start is the offset of the first instance within the graded or spiking block.
	Start   int
	Count   int
	Cond    FanIn
	Current FanIn
}

func (l *NeuronLayout) Spiking() bool {
	return l.Group.Spiking
}

// SynapseLayout places one synapse model group in the synapse-state array.
type SynapseLayout struct {
	Group model.SynapseGroup
	Start int
	Count int
	// Pre is the presynaptic position within the graded or spiking block,
	// depending on the class of each instance.
	Pre []int32
	// Post is the resolved target address: a packed neuron position, or
	// SynapseBase+id for synapse targets.
	Post       []int
	DelaySteps []int32
	Cond       FanIn
	Current    FanIn
}

// PortInput locates the port-input pseudo-neurons of one kind.
type PortInput struct {
	Start     int
	Count     int
	Selectors []string
}

// Outputs lists public neurons of one kind: positions in the state block
// paired with their selectors.
type Outputs struct {
	Positions []int32
	IDs       []int
	Selectors []string
}

func (o Outputs) Len() int {
	return len(o.Positions)
}

// Space is the immutable address space of a unit.
type Space struct {
	DT          float64
	NumGpot     int
	NumSpike    int
	NumSynapses int
	NumInputs   int
	// SynapseBase is max neuron ID + 1; synapse targets resolve at or above it.
	SynapseBase int
	GpotDepth   int
	SpikeDepth  int

	Neurons  []NeuronLayout
	Synapses []SynapseLayout

	InGpot   PortInput
	InSpike  PortInput
	OutGpot  Outputs
	OutSpike Outputs
	// InputNeurons are the packed positions of extern neurons, one input
	// channel each, in ascending ID order.
	InputNeurons []int
	InputIDs     []int

	order      map[int]int
	gpotOrder  map[int]int
	spikeOrder map[int]int
	synOrder   map[int]int
	gpotIDs    []int
	spikeIDs   []int
	synIDs     []int
	gpotByID   []int32
	spikeByID  []int32
}

// Build lays out g for a time step of dt seconds.
func Build(g model.Graph, dt float64) (*Space, error) {
	if !(dt > 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDT, dt)
	}
	s := &Space{
		DT:         dt,
		order:      make(map[int]int),
		gpotOrder:  make(map[int]int),
		spikeOrder: make(map[int]int),
		synOrder:   make(map[int]int),
	}
	s.layoutNeurons(g)
	if err := s.layoutSynapses(g); err != nil {
		return nil, err
	}
	if err := s.buildFanIn(); err != nil {
		return nil, err
	}
	var err error
	if s.gpotByID, err = Orders(s.GpotOrder, ascending(s.gpotIDs)); err != nil {
		return nil, err
	}
	if s.spikeByID, err = Orders(s.SpikeOrder, ascending(s.spikeIDs)); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Space) layoutNeurons(g model.Graph) {
	var gpot, spike []model.NeuronGroup
	for _, n := range g.Neurons {
		if n.Spiking {
			spike = append(spike, n)
		} else {
			gpot = append(gpot, n)
		}
	}
	place := func(groups []model.NeuronGroup, local map[int]int, ids *[]int, shift int) int {
		count := 0
		for _, n := range groups {
			perm := make([]int, n.Len())
			for i := range perm {
				perm[i] = i
			}
			sort.SliceStable(perm, func(a, b int) bool { return n.IDs[perm[a]] < n.IDs[perm[b]] })
			packed := n.Permute(perm)
			s.Neurons = append(s.Neurons, NeuronLayout{Group: packed, Start: count, Count: packed.Len()})
			for i, id := range packed.IDs {
				local[id] = count + i
				s.order[id] = shift + count + i
				*ids = append(*ids, id)
			}
			count += packed.Len()
		}
		return count
	}
	s.NumGpot = place(gpot, s.gpotOrder, &s.gpotIDs, 0)
	s.NumSpike = place(spike, s.spikeOrder, &s.spikeIDs, s.NumGpot)
	s.SynapseBase = g.MaxNeuronID() + 1

	for i := range s.Neurons {
		l := &s.Neurons[i]
		switch l.Group.Model {
		case model.PortInGpot:
			s.InGpot = PortInput{Start: l.Start, Count: l.Count, Selectors: l.Group.Selector}
			continue
		case model.PortInSpike:
			s.InSpike = PortInput{Start: l.Start, Count: l.Count, Selectors: l.Group.Selector}
			continue
		}
		out := &s.OutGpot
		if l.Spiking() {
			out = &s.OutSpike
		}
		for k, pub := range l.Group.Public {
			if !pub {
				continue
			}
			out.Positions = append(out.Positions, int32(l.Start+k))
			out.IDs = append(out.IDs, l.Group.IDs[k])
			out.Selectors = append(out.Selectors, l.Group.Selector[k])
		}
	}

	for _, l := range s.Neurons {
		for k, ext := range l.Group.Extern {
			if ext {
				s.InputIDs = append(s.InputIDs, l.Group.IDs[k])
			}
		}
	}
	sort.Ints(s.InputIDs)
	for _, id := range s.InputIDs {
		s.InputNeurons = append(s.InputNeurons, s.order[id])
	}
	s.NumInputs = len(s.InputIDs)
}

func (s *Space) layoutSynapses(g model.Graph) error {
	var gpotMax, spikeMax int32
	start := 0
	for _, grp := range g.Synapses {
		n := grp.Len()
		post := make([]int, n)
		for i, t := range grp.Post {
			if t.Synapse {
				post[i] = s.SynapseBase + t.ID
				continue
			}
			pos, ok := s.order[t.ID]
			if !ok {
				return fmt.Errorf("%w: synapse %d targets neuron %d", ErrUnresolvedPost, grp.IDs[i], t.ID)
			}
			post[i] = pos
		}
		perm := make([]int, n)
		for i := range perm {
			perm[i] = i
		}
		sort.SliceStable(perm, func(a, b int) bool { return post[perm[a]] < post[perm[b]] })

		l := SynapseLayout{
			Group:      grp.Permute(perm),
			Start:      start,
			Count:      n,
			Pre:        make([]int32, n),
			Post:       make([]int, n),
			DelaySteps: make([]int32, n),
		}
		for k, src := range perm {
			l.Post[k] = post[src]
			id := l.Group.IDs[k]
			s.synOrder[id] = start + k
			s.synIDs = append(s.synIDs, id)

			preID := l.Group.Pre[k]
			lookup := s.gpotOrder
			if l.Group.Class[k].PreSpiking() {
				lookup = s.spikeOrder
			}
			pre, ok := lookup[preID]
			if !ok {
				return fmt.Errorf("%w: synapse %d (%s) from neuron %d", ErrUnresolvedPre, id, l.Group.Class[k], preID)
			}
			l.Pre[k] = int32(pre)

			steps := DelaySteps(l.Group.Delay[k], s.DT)
			l.DelaySteps[k] = steps
			if l.Group.Class[k].PreSpiking() {
				spikeMax = max(spikeMax, steps)
			} else {
				gpotMax = max(gpotMax, steps)
			}
		}
		s.Synapses = append(s.Synapses, l)
		start += n
	}
	s.NumSynapses = start
	s.GpotDepth = int(gpotMax) + 1
	s.SpikeDepth = int(spikeMax) + 1

	for i := range s.Synapses {
		l := &s.Synapses[i]
		for k, addr := range l.Post {
			if addr < s.SynapseBase {
				continue
			}
			if _, ok := s.synOrder[addr-s.SynapseBase]; !ok {
				return fmt.Errorf("%w: synapse %d targets synapse %d", ErrUnresolvedPost, l.Group.IDs[k], addr-s.SynapseBase)
			}
		}
	}
	return nil
}

// DelaySteps converts a delay in milliseconds into whole time steps of dt seconds.
func DelaySteps(delayMS, dt float64) int32 {
	return int32(math.Round(delayMS * 1e-3 / dt))
}

// Depth returns the ring-buffer depth needed for a maximum delay.
func Depth(maxDelayMS, dt float64) int {
	return int(DelaySteps(maxDelayMS, dt)) + 1
}

// Order returns the position of neuron id across the graded block followed
// by the spiking block.
func (s *Space) Order(id int) (int, error) {
	return lookup(s.order, id, "neuron")
}

// GpotOrder returns the position of a graded neuron within the graded block.
func (s *Space) GpotOrder(id int) (int, error) {
	return lookup(s.gpotOrder, id, "graded neuron")
}

// SpikeOrder returns the position of a spiking neuron within the spiking block.
func (s *Space) SpikeOrder(id int) (int, error) {
	return lookup(s.spikeOrder, id, "spiking neuron")
}

// SynapseOrder returns the position of a synapse in the synapse-state array.
func (s *Space) SynapseOrder(id int) (int, error) {
	return lookup(s.synOrder, id, "synapse")
}

// Orders resolves a batch of IDs through fn.
func Orders(fn func(int) (int, error), ids []int) ([]int32, error) {
	out := make([]int32, len(ids))
	for i, id := range ids {
		pos, err := fn(id)
		if err != nil {
			return nil, err
		}
		out[i] = int32(pos)
	}
	return out, nil
}

// NeuronID returns the original ID stored at a packed neuron position.
func (s *Space) NeuronID(pos int) (int, bool) {
	if pos < 0 || pos >= s.NumGpot+s.NumSpike {
		return 0, false
	}
	if pos < s.NumGpot {
		return s.gpotIDs[pos], true
	}
	return s.spikeIDs[pos-s.NumGpot], true
}

// SynapseID returns the original ID stored at a packed synapse position.
func (s *Space) SynapseID(pos int) (int, bool) {
	if pos < 0 || pos >= len(s.synIDs) {
		return 0, false
	}
	return s.synIDs[pos], true
}

// GpotByID lists graded-block positions in ascending original-ID order.
func (s *Space) GpotByID() []int32 {
	return s.gpotByID
}

// SpikeByID lists spiking-block positions in ascending original-ID order.
func (s *Space) SpikeByID() []int32 {
	return s.spikeByID
}

// SynapseStateLen is the synapse-state array length: one slot per synapse
// plus one per input channel, and at least one.
func (s *Space) SynapseStateLen() int {
	return max(s.NumSynapses+s.NumInputs, 1)
}

func ascending(ids []int) []int {
	out := append([]int(nil), ids...)
	sort.Ints(out)
	return out
}

func lookup(m map[int]int, id int, what string) (int, error) {
	pos, ok := m[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s %d", ErrUnknownID, what, id)
	}
	return pos, nil
}
