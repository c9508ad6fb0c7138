package models

import (
	"fmt"
	"math"

	"lpukit/internal/device"
)

// RegisterBuiltins adds the stock models to r.
func RegisterBuiltins(r *Registry) error {
	for _, spec := range []NeuronSpec{
		{Name: "LeakyIAF", Spiking: true, Params: []string{"Vr", "Vt", "R", "C"}, New: newLeakyIAF},
		{Name: "LeakyIntegrator", Params: []string{"V0", "tau", "R"}, New: newLeakyIntegrator},
	} {
		if err := r.RegisterNeuron(spec); err != nil {
			return err
		}
	}
	for _, spec := range []SynapseSpec{
		{Name: "AlphaSynapse", Params: []string{"ar", "ad", "gmax"}, New: newAlphaSynapse},
		{Name: "PowerGPotGPot", Params: []string{"threshold", "slope", "power", "saturation"}, New: newPowerGPotGPot},
	} {
		if err := r.RegisterSynapse(spec); err != nil {
			return err
		}
	}
	return nil
}

// leakyIAF is a leaky integrate-and-fire neuron. The membrane potential is
// model-owned; the spike view receives 1 on the tick the threshold is crossed.
type leakyIAF struct {
	vr, vt, r, c []float64
	v            *device.Array[float64]
	spikes       []int32
}

func newLeakyIAF(cfg NeuronConfig) (Neuron, error) {
	n := cfg.Group.Len()
	cols, err := columns(cfg.Group.Params, n, "Vr", "Vt", "R", "C")
	if err != nil {
		return nil, fmt.Errorf("LeakyIAF: %w", err)
	}
	if cfg.Spikes.Len() != n {
		return nil, fmt.Errorf("LeakyIAF: %w: spike view %d for %d neurons", device.ErrLength, cfg.Spikes.Len(), n)
	}
	m := &leakyIAF{vr: cols[0], vt: cols[1], r: cols[2], c: cols[3], spikes: cfg.Spikes.Slice()}
	m.v = device.FromHost(cfg.Device, "LeakyIAF_V", optional(cfg.Group.Params, n, "V", m.vr))
	return m, nil
}

func (m *leakyIAF) Update(i int, dt, current float64) {
	v := m.v.Data()
	bh := math.Exp(-dt / (m.r[i] * m.c[i]))
	v[i] = v[i]*bh + m.r[i]*current*(1-bh)
	m.spikes[i] = 0
	if v[i] >= m.vt[i] {
		v[i] = m.vr[i]
		m.spikes[i] = 1
	}
}

func (m *leakyIAF) Potential(i int) float64 {
	return m.v.Data()[i]
}

func (m *leakyIAF) Close() error {
	m.v.Free()
	return nil
}

// leakyIntegrator is a graded neuron relaxing towards V0 with time constant
// tau. Its potential is the graded output.
type leakyIntegrator struct {
	v0, tau, r []float64
	v          []float64
}

func newLeakyIntegrator(cfg NeuronConfig) (Neuron, error) {
	n := cfg.Group.Len()
	cols, err := columns(cfg.Group.Params, n, "V0", "tau", "R")
	if err != nil {
		return nil, fmt.Errorf("LeakyIntegrator: %w", err)
	}
	if cfg.Graded.Len() != n {
		return nil, fmt.Errorf("LeakyIntegrator: %w: graded view %d for %d neurons", device.ErrLength, cfg.Graded.Len(), n)
	}
	m := &leakyIntegrator{v0: cols[0], tau: cols[1], r: cols[2], v: cfg.Graded.Slice()}
	copy(m.v, optional(cfg.Group.Params, n, "V", m.v0))
	return m, nil
}

func (m *leakyIntegrator) Update(i int, dt, current float64) {
	m.v[i] += dt / m.tau[i] * (m.v0[i] - m.v[i] + m.r[i]*current)
}

func (m *leakyIntegrator) Potential(i int) float64 {
	return m.v[i]
}

// alphaSynapse produces an alpha-function conductance on every presynaptic
// spike.
type alphaSynapse struct {
	ar, ad, gmax []float64
	a0, a1, a2   []float64
	g            []float64
}

func newAlphaSynapse(cfg SynapseConfig) (Synapse, error) {
	n := cfg.Group.Len()
	cols, err := columns(cfg.Group.Params, n, "ar", "ad", "gmax")
	if err != nil {
		return nil, fmt.Errorf("AlphaSynapse: %w", err)
	}
	return &alphaSynapse{
		ar: cols[0], ad: cols[1], gmax: cols[2],
		a0: make([]float64, n), a1: make([]float64, n), a2: make([]float64, n),
		g: cfg.State.Slice(),
	}, nil
}

func (m *alphaSynapse) Update(i int, dt, pre, _ float64) {
	a0 := math.Max(0, m.a0[i]+dt*m.a1[i])
	a1 := m.a1[i] + dt*m.a2[i]
	if pre != 0 {
		a1 += m.ar[i] * m.ad[i]
	}
	m.a2[i] = -(m.ar[i]+m.ad[i])*m.a1[i] - m.ar[i]*m.ad[i]*m.a0[i]
	m.a0[i], m.a1[i] = a0, a1
	m.g[i] = a0 * m.gmax[i]
}

// powerGPotGPot maps a graded presynaptic potential above threshold through
// a saturating power law.
type powerGPotGPot struct {
	threshold, slope, power, saturation []float64
	g                                   []float64
}

func newPowerGPotGPot(cfg SynapseConfig) (Synapse, error) {
	n := cfg.Group.Len()
	cols, err := columns(cfg.Group.Params, n, "threshold", "slope", "power", "saturation")
	if err != nil {
		return nil, fmt.Errorf("PowerGPotGPot: %w", err)
	}
	return &powerGPotGPot{threshold: cols[0], slope: cols[1], power: cols[2], saturation: cols[3], g: cfg.State.Slice()}, nil
}

func (m *powerGPotGPot) Update(i int, _, pre, _ float64) {
	x := math.Max(0, pre-m.threshold[i])
	m.g[i] = math.Min(m.saturation[i], m.slope[i]*math.Pow(x, m.power[i]))
}
