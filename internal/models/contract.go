// Package models holds the neuron and synapse plugin registry and the
// built-in model implementations.
package models

import (
	"lpukit/internal/device"
	"lpukit/internal/model"
)

// PassSynapse names a synapse model whose state is left untouched by the
// engine.
const PassSynapse = "pass"

// NeuronConfig carries what a neuron factory needs to bind one group.
// Graded is set for graded groups, Spikes for spiking groups; both views
// cover exactly the group's instances in packed order.
type NeuronConfig struct {
	Group  model.NeuronGroup
	DT     float64
	Debug  bool
	Device *device.Device
	Graded device.View[float64]
	Spikes device.View[int32]
}

// Neuron evaluates one neuron group. Update is called concurrently for
// distinct i and must only touch instance i.
type Neuron interface {
	// Update advances instance i by dt under the summed synaptic drive.
	Update(i int, dt, current float64)
	// Potential returns the membrane potential used for conductance drive.
	Potential(i int) float64
}

type NeuronFactory func(NeuronConfig) (Neuron, error)

// SynapseConfig binds one synapse group to its slice of the synapse-state
// array.
type SynapseConfig struct {
	Group  model.SynapseGroup
	DT     float64
	Debug  bool
	Device *device.Device
	State  device.View[float64]
}

// Synapse evaluates one synapse group. pre is the delayed presynaptic output
// and modulation sums the states of synapses targeting instance i.
type Synapse interface {
	Update(i int, dt, pre, modulation float64)
}

type SynapseFactory func(SynapseConfig) (Synapse, error)

type closer interface {
	Close() error
}

// CloseIfSupported releases model-owned resources when the model has any.
func CloseIfSupported(m any) error {
	if c, ok := m.(closer); ok {
		return c.Close()
	}
	return nil
}
