package model

import (
	"fmt"
	"sort"
)

// Reserved neuron model names for port-input pseudo-neurons. Their state slots
// are filled from peer units every tick and they are never evaluated.
const (
	PortInGpot  = "port_in_gpot"
	PortInSpike = "port_in_spk"
)

// SynapseTargetPrefix tags a post-synaptic site that is another synapse.
const SynapseTargetPrefix = "synapse-"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Class is the connection class of a synapse.
type Class int

const (
	ClassSpikeSpike Class = iota
	ClassSpikeGraded
	ClassGradedSpike
	ClassGradedGraded
)

func (c Class) Valid() bool {
	return c >= ClassSpikeSpike && c <= ClassGradedGraded
}

// PreSpiking reports whether the presynaptic neuron of the class emits spikes.
func (c Class) PreSpiking() bool {
	return c == ClassSpikeSpike || c == ClassSpikeGraded
}

func (c Class) PostSpiking() bool {
	return c == ClassSpikeSpike || c == ClassGradedSpike
}

func (c Class) String() string {
	switch c {
	case ClassSpikeSpike:
		return "spike->spike"
	case ClassSpikeGraded:
		return "spike->gpot"
	case ClassGradedSpike:
		return "gpot->spike"
	case ClassGradedGraded:
		return "gpot->gpot"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Target is the post-synaptic site of a synapse: a neuron or another synapse.
type Target struct {
	ID      int  `json:"id"`
	Synapse bool `json:"synapse,omitempty"`
}

func (t Target) String() string {
	if t.Synapse {
		return fmt.Sprintf("%s%d", SynapseTargetPrefix, t.ID)
	}
	return fmt.Sprintf("%d", t.ID)
}

// NeuronGroup holds every instance of one neuron model as parallel columns.
type NeuronGroup struct {
	Model    string               `json:"model"`
	Spiking  bool                 `json:"spiking"`
	IDs      []int                `json:"ids"`
	Public   []bool               `json:"public"`
	Extern   []bool               `json:"extern"`
	Selector []string             `json:"selector"`
	Params   map[string][]float64 `json:"params,omitempty"`
	Labels   map[string][]string  `json:"labels,omitempty"`
}

func (g NeuronGroup) Len() int {
	return len(g.IDs)
}

// IsPortInput reports whether the group holds port-input pseudo-neurons.
func (g NeuronGroup) IsPortInput() bool {
	return g.Model == PortInGpot || g.Model == PortInSpike
}

// Param returns the named model parameter column.
func (g NeuronGroup) Param(name string) ([]float64, bool) {
	xs, ok := g.Params[name]
	return xs, ok
}

// Permute returns a copy of the group with instance k taken from perm[k].
func (g NeuronGroup) Permute(perm []int) NeuronGroup {
	out := NeuronGroup{
		Model:    g.Model,
		Spiking:  g.Spiking,
		IDs:      permuteInts(g.IDs, perm),
		Public:   permuteBools(g.Public, perm),
		Extern:   permuteBools(g.Extern, perm),
		Selector: permuteStrings(g.Selector, perm),
		Params:   make(map[string][]float64, len(g.Params)),
		Labels:   make(map[string][]string, len(g.Labels)),
	}
	for k, v := range g.Params {
		out.Params[k] = permuteFloats(v, perm)
	}
	for k, v := range g.Labels {
		out.Labels[k] = permuteStrings(v, perm)
	}
	return out
}

// SynapseGroup holds every instance of one synapse model as parallel columns.
type SynapseGroup struct {
	Model       string               `json:"model"`
	IDs         []int                `json:"ids"`
	Pre         []int                `json:"pre"`
	Post        []Target             `json:"post"`
	Class       []Class              `json:"class"`
	Conductance []bool               `json:"conductance"`
	Reverse     []float64            `json:"reverse,omitempty"`
	Delay       []float64            `json:"delay"`
	Params      map[string][]float64 `json:"params,omitempty"`
	Labels      map[string][]string  `json:"labels,omitempty"`
}

func (g SynapseGroup) Len() int {
	return len(g.IDs)
}

func (g SynapseGroup) Param(name string) ([]float64, bool) {
	xs, ok := g.Params[name]
	return xs, ok
}

func (g SynapseGroup) Permute(perm []int) SynapseGroup {
	out := SynapseGroup{
		Model:       g.Model,
		IDs:         permuteInts(g.IDs, perm),
		Pre:         permuteInts(g.Pre, perm),
		Conductance: permuteBools(g.Conductance, perm),
		Delay:       permuteFloats(g.Delay, perm),
		Params:      make(map[string][]float64, len(g.Params)),
		Labels:      make(map[string][]string, len(g.Labels)),
	}
	out.Post = make([]Target, len(perm))
	out.Class = make([]Class, len(perm))
	for k, src := range perm {
		out.Post[k] = g.Post[src]
		out.Class[k] = g.Class[src]
	}
	if g.Reverse != nil {
		out.Reverse = permuteFloats(g.Reverse, perm)
	}
	for k, v := range g.Params {
		out.Params[k] = permuteFloats(v, perm)
	}
	for k, v := range g.Labels {
		out.Labels[k] = permuteStrings(v, perm)
	}
	return out
}

// Graph is the validated, typed description of one processing unit.
type Graph struct {
	Neurons  []NeuronGroup  `json:"neurons"`
	Synapses []SynapseGroup `json:"synapses"`
}

func (g Graph) NeuronCount() int {
	total := 0
	for _, n := range g.Neurons {
		total += n.Len()
	}
	return total
}

func (g Graph) SynapseCount() int {
	total := 0
	for _, s := range g.Synapses {
		total += s.Len()
	}
	return total
}

// MaxNeuronID returns the largest neuron ID, or -1 for a unit without neurons.
func (g Graph) MaxNeuronID() int {
	maxID := -1
	for _, n := range g.Neurons {
		for _, id := range n.IDs {
			if id > maxID {
				maxID = id
			}
		}
	}
	return maxID
}

// NeuronModels returns the distinct neuron model names, sorted.
func (g Graph) NeuronModels() []string {
	names := make([]string, 0, len(g.Neurons))
	for _, n := range g.Neurons {
		names = append(names, n.Model)
	}
	sort.Strings(names)
	return names
}

func permuteInts(xs []int, perm []int) []int {
	out := make([]int, len(perm))
	for k, src := range perm {
		out[k] = xs[src]
	}
	return out
}

func permuteFloats(xs []float64, perm []int) []float64 {
	out := make([]float64, len(perm))
	for k, src := range perm {
		out[k] = xs[src]
	}
	return out
}

func permuteBools(xs []bool, perm []int) []bool {
	out := make([]bool, len(perm))
	for k, src := range perm {
		out[k] = xs[src]
	}
	return out
}

func permuteStrings(xs []string, perm []int) []string {
	out := make([]string, len(perm))
	for k, src := range perm {
		out[k] = xs[src]
	}
	return out
}
