package models

import (
	"errors"
	"math"
	"testing"

	"lpukit/internal/device"
	"lpukit/internal/model"
)

func spikingGroup(n int) model.NeuronGroup {
	g := model.NeuronGroup{Model: "LeakyIAF", Spiking: true, Params: map[string][]float64{}}
	for i := 0; i < n; i++ {
		g.IDs = append(g.IDs, i)
		g.Params["Vr"] = append(g.Params["Vr"], -0.07)
		g.Params["Vt"] = append(g.Params["Vt"], -0.05)
		g.Params["R"] = append(g.Params["R"], 1)
		g.Params["C"] = append(g.Params["C"], 0.01)
	}
	return g
}

func TestLeakyIAFSpikesAndResets(t *testing.T) {
	spikes := device.Alloc[int32](nil, "spikes", 1)
	view, _ := spikes.View(0, 1)
	spec, err := Default().ResolveNeuron("LeakyIAF")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	n, err := spec.New(NeuronConfig{Group: spikingGroup(1), DT: 1e-4, Spikes: view})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := n.Potential(0); got != -0.07 {
		t.Fatalf("initial potential: got=%v want=-0.07", got)
	}
	fired := false
	for step := 0; step < 1000 && !fired; step++ {
		n.Update(0, 1e-4, 1)
		fired = spikes.Data()[0] == 1
	}
	if !fired {
		t.Fatal("neuron never fired under constant drive")
	}
	if got := n.Potential(0); got != -0.07 {
		t.Fatalf("potential after spike: got=%v want=-0.07", got)
	}
	n.Update(0, 1e-4, 0)
	if spikes.Data()[0] != 0 {
		t.Fatal("spike flag should clear on the next update")
	}
	if err := CloseIfSupported(n); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestLeakyIntegratorRelaxes(t *testing.T) {
	state := device.Alloc[float64](nil, "gpot", 2)
	view, _ := state.View(0, 2)
	g := model.NeuronGroup{Model: "LeakyIntegrator", IDs: []int{0, 1}, Params: map[string][]float64{
		"V0": {-0.06, -0.06}, "tau": {0.02, 0.02}, "R": {1, 1}, "V": {0, -0.06},
	}}
	spec, _ := Default().ResolveNeuron("LeakyIntegrator")
	n, err := spec.New(NeuronConfig{Group: g, DT: 1e-3, Graded: view})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := state.Data()[0]; got != 0 {
		t.Fatalf("initial V not applied: %v", got)
	}
	n.Update(0, 1e-3, 0)
	n.Update(1, 1e-3, 0)
	if got := state.Data()[0]; !(got < 0 && got > -0.06) {
		t.Fatalf("potential should move towards rest: %v", got)
	}
	if got := state.Data()[1]; got != -0.06 {
		t.Fatalf("resting neuron moved: %v", got)
	}
}

func TestMissingParamRejected(t *testing.T) {
	spec, _ := Default().ResolveNeuron("LeakyIntegrator")
	_, err := spec.New(NeuronConfig{Group: model.NeuronGroup{IDs: []int{0}, Params: map[string][]float64{"V0": {0}}}})
	if !errors.Is(err, ErrMissingParam) {
		t.Fatalf("expected ErrMissingParam, got: %v", err)
	}
}

func TestAlphaSynapseRespondsToSpike(t *testing.T) {
	state := device.Alloc[float64](nil, "syn", 1)
	view, _ := state.View(0, 1)
	g := model.SynapseGroup{Model: "AlphaSynapse", IDs: []int{0}, Params: map[string][]float64{
		"ar": {400}, "ad": {400}, "gmax": {0.01},
	}}
	spec, _ := Default().ResolveSynapse("AlphaSynapse")
	s, err := spec.New(SynapseConfig{Group: g, DT: 1e-4, State: view})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	s.Update(0, 1e-4, 0, 0)
	if state.Data()[0] != 0 {
		t.Fatalf("conductance without spike: %v", state.Data()[0])
	}
	s.Update(0, 1e-4, 1, 0)
	s.Update(0, 1e-4, 0, 0)
	if state.Data()[0] <= 0 {
		t.Fatalf("conductance should rise after a spike: %v", state.Data()[0])
	}
}

func TestPowerGPotGPotSaturates(t *testing.T) {
	state := device.Alloc[float64](nil, "syn", 1)
	view, _ := state.View(0, 1)
	g := model.SynapseGroup{Model: "PowerGPotGPot", IDs: []int{0}, Params: map[string][]float64{
		"threshold": {-0.05}, "slope": {2}, "power": {1}, "saturation": {0.03},
	}}
	spec, _ := Default().ResolveSynapse("PowerGPotGPot")
	s, err := spec.New(SynapseConfig{Group: g, State: view})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	s.Update(0, 1e-3, -0.06, 0)
	if state.Data()[0] != 0 {
		t.Fatalf("below threshold: got=%v want=0", state.Data()[0])
	}
	s.Update(0, 1e-3, -0.04, 0)
	if got := state.Data()[0]; math.Abs(got-0.02) > 1e-12 {
		t.Fatalf("linear region: got=%v want=0.02", got)
	}
	s.Update(0, 1e-3, 1, 0)
	if got := state.Data()[0]; got != 0.03 {
		t.Fatalf("saturation: got=%v want=0.03", got)
	}
}
