package index

import "lpukit/internal/model"

// GroupSummary describes where one model group landed.
type GroupSummary struct {
	Model string `json:"model"`
	Kind  string `json:"kind"`
	Start int    `json:"start"`
	Count int    `json:"count"`
	// FanIn is the number of connections terminating on the group.
	FanIn int `json:"fan_in"`
}

// Layout is a flat, printable description of a Space.
type Layout struct {
	DT          float64        `json:"dt"`
	NumGpot     int            `json:"num_gpot"`
	NumSpike    int            `json:"num_spike"`
	NumSynapses int            `json:"num_synapses"`
	NumInputs   int            `json:"num_inputs"`
	SynapseBase int            `json:"synapse_base"`
	GpotDepth   int            `json:"gpot_depth"`
	SpikeDepth  int            `json:"spike_depth"`
	PortsIn     int            `json:"ports_in"`
	PortsOut    int            `json:"ports_out"`
	Neurons     []GroupSummary `json:"neurons"`
	Synapses    []GroupSummary `json:"synapses"`
}

func (s *Space) Layout() Layout {
	out := Layout{
		DT:          s.DT,
		NumGpot:     s.NumGpot,
		NumSpike:    s.NumSpike,
		NumSynapses: s.NumSynapses,
		NumInputs:   s.NumInputs,
		SynapseBase: s.SynapseBase,
		GpotDepth:   s.GpotDepth,
		SpikeDepth:  s.SpikeDepth,
		PortsIn:     s.InGpot.Count + s.InSpike.Count,
		PortsOut:    s.OutGpot.Len() + s.OutSpike.Len(),
	}
	for _, l := range s.Neurons {
		kind := "gpot"
		switch {
		case l.Group.Model == model.PortInGpot || l.Group.Model == model.PortInSpike:
			kind = "port"
		case l.Spiking():
			kind = "spike"
		}
		out.Neurons = append(out.Neurons, GroupSummary{
			Model: l.Group.Model, Kind: kind, Start: l.Start, Count: l.Count,
			FanIn: l.Cond.Len() + l.Current.Len(),
		})
	}
	for _, l := range s.Synapses {
		out.Synapses = append(out.Synapses, GroupSummary{
			Model: l.Group.Model, Kind: "synapse", Start: l.Start, Count: l.Count,
			FanIn: l.Cond.Len() + l.Current.Len(),
		})
	}
	return out
}
