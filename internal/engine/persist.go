package engine

import (
	"context"
	"fmt"
)

// Snapshot is a host copy of a unit's neuron state in original-ID order.
type Snapshot struct {
	Tick     int64     `json:"tick"`
	GpotIDs  []int     `json:"gpot_ids"`
	Gpot     []float64 `json:"gpot"`
	SpikeIDs []int     `json:"spike_ids"`
	Spike    []int32   `json:"spike"`
}

// Snapshot waits for issued kernels and copies the neuron state to the host.
func (u *Unit) Snapshot(ctx context.Context) (Snapshot, error) {
	if err := u.Sync(ctx); err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{
		Tick:     u.tick,
		GpotIDs:  make([]int, len(u.gpotByID)),
		Gpot:     make([]float64, len(u.gpotByID)),
		SpikeIDs: make([]int, len(u.spikeByID)),
		Spike:    make([]int32, len(u.spikeByID)),
	}
	gpot, spike := u.gpot.Data(), u.spike.Data()
	for k, pos := range u.gpotByID {
		snap.GpotIDs[k], _ = u.space.NeuronID(int(pos))
		snap.Gpot[k] = gpot[pos]
	}
	for k, pos := range u.spikeByID {
		snap.SpikeIDs[k], _ = u.space.NeuronID(u.space.NumGpot + int(pos))
		snap.Spike[k] = spike[pos]
	}
	return snap, nil
}

// SynapseState waits for issued kernels and copies the synapse-state array,
// including the trailing input-channel segment.
func (u *Unit) SynapseState(ctx context.Context) ([]float64, error) {
	if err := u.Sync(ctx); err != nil {
		return nil, err
	}
	return u.synState.Get(), nil
}

func (u *Unit) persist(ctx context.Context) error {
	o := u.outputs
	if o.Gpot == nil && o.Spike == nil && o.Buffer == nil && o.Synapses == nil {
		return nil
	}
	if err := u.stream.Synchronize(ctx); err != nil {
		return err
	}
	if o.Gpot != nil {
		gpot := u.gpot.Data()
		row := make([]float64, len(u.gpotByID))
		for k, pos := range u.gpotByID {
			row[k] = gpot[pos]
		}
		if err := o.Gpot.Append(ctx, u.tick, row); err != nil {
			return fmt.Errorf("write graded output: %w", err)
		}
	}
	if o.Spike != nil {
		spike := u.spike.Data()
		row := make([]float64, len(u.spikeByID))
		for k, pos := range u.spikeByID {
			row[k] = float64(spike[pos])
		}
		if err := o.Spike.Append(ctx, u.tick, row); err != nil {
			return fmt.Errorf("write spiking output: %w", err)
		}
	}
	if o.Buffer != nil {
		if err := o.Buffer.Append(ctx, u.tick, u.buffer.Gpot.Array().Get()); err != nil {
			return fmt.Errorf("write delay buffer: %w", err)
		}
	}
	if o.Synapses != nil {
		row := u.synState.Get()[:u.space.NumSynapses+u.space.NumInputs]
		if err := o.Synapses.Append(ctx, u.tick, row); err != nil {
			return fmt.Errorf("write synapse state: %w", err)
		}
	}
	return nil
}
