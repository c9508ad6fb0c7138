package graph

import (
	"errors"
	"reflect"
	"testing"

	"lpukit/internal/model"
)

func TestCompileTypedGroups(t *testing.T) {
	nDict, sDict, err := FromRecords(sampleNodes(), []Edge{
		{Pre: 1, Post: 4, Attrs: map[string]any{"model": "PowerGPotGPot", "class": 2, "reverse": 0.0, "delay": 2.0,
			"threshold": -0.06, "slope": 1.0, "power": 1.0, "saturation": 1.0}},
	})
	if err != nil {
		t.Fatalf("from records: %v", err)
	}
	g, err := Compile(nDict, sDict)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if len(g.Neurons) != 3 {
		t.Fatalf("unexpected neuron groups: %d", len(g.Neurons))
	}
	li := g.Neurons[0]
	if li.Model != "LeakyIntegrator" || li.Spiking {
		t.Fatalf("unexpected first group: %+v", li)
	}
	if !reflect.DeepEqual(li.IDs, []int{0, 1}) || !reflect.DeepEqual(li.Extern, []bool{false, true}) {
		t.Fatalf("unexpected columns: ids=%v extern=%v", li.IDs, li.Extern)
	}
	if tau, ok := li.Param("tau"); !ok || len(tau) != 2 {
		t.Fatalf("tau param missing: %v", tau)
	}
	if !g.Neurons[2].Spiking {
		t.Fatal("LeakyIAF should be spiking")
	}
	syn := g.Synapses[0]
	if syn.Class[0] != model.ClassGradedSpike || !syn.Conductance[0] || syn.Delay[0] != 2 {
		t.Fatalf("unexpected synapse group: %+v", syn)
	}
	if syn.Post[0] != (model.Target{ID: 4}) {
		t.Fatalf("unexpected post: %v", syn.Post[0])
	}
}

func TestCompileRejectsUnequalColumns(t *testing.T) {
	nDict := NeuronDict{{Model: "LeakyIAF", Columns: Columns{
		"id":      {0, 1},
		"spiking": {true, true},
		"extern":  {false, false},
		"Vr":      {0.1},
	}}}
	if _, err := Compile(nDict, nil); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got: %v", err)
	}
}

func TestCompileRejectsMixedSpiking(t *testing.T) {
	nDict := NeuronDict{{Model: "Mixed", Columns: Columns{
		"id":      {0, 1},
		"spiking": {true, false},
		"extern":  {false, false},
	}}}
	if _, err := Compile(nDict, nil); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got: %v", err)
	}
}

func TestCompileRequiresReverseForConductance(t *testing.T) {
	sDict := SynapseDict{{Model: "AlphaSynapse", Columns: Columns{
		"pre":   {0},
		"post":  {1},
		"class": {1},
	}}}
	if _, err := Compile(nil, sDict); !errors.Is(err, ErrMissingReverse) {
		t.Fatalf("expected ErrMissingReverse, got: %v", err)
	}

	sDict[0].Columns["conductance"] = []any{false}
	g, err := Compile(nil, sDict)
	if err != nil {
		t.Fatalf("current synapse should not need reverse: %v", err)
	}
	if g.Synapses[0].Reverse != nil {
		t.Fatalf("unexpected reverse column: %v", g.Synapses[0].Reverse)
	}
}

func TestCompileAssignsSequentialSynapseIDs(t *testing.T) {
	sDict := SynapseDict{
		{Model: "A", Columns: Columns{"pre": {0, 0}, "post": {1, 2}, "class": {3, 3}, "conductance": {false, false}}},
		{Model: "B", Columns: Columns{"pre": {1}, "post": {2}, "class": {3}, "conductance": {false}}},
	}
	g, err := Compile(nil, sDict)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !reflect.DeepEqual(g.Synapses[0].IDs, []int{0, 1}) || !reflect.DeepEqual(g.Synapses[1].IDs, []int{2}) {
		t.Fatalf("unexpected ids: %v %v", g.Synapses[0].IDs, g.Synapses[1].IDs)
	}
}

func TestCompileDuplicateNeuronID(t *testing.T) {
	nDict := NeuronDict{
		{Model: "A", Columns: Columns{"id": {0}, "spiking": {false}, "extern": {false}}},
		{Model: "B", Columns: Columns{"id": {0}, "spiking": {true}, "extern": {false}}},
	}
	if _, err := Compile(nDict, nil); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got: %v", err)
	}
}

func TestCompileIsDeterministic(t *testing.T) {
	build := func() model.Graph {
		nDict, sDict, err := FromRecords(sampleNodes(), nil)
		if err != nil {
			t.Fatalf("from records: %v", err)
		}
		g, err := Compile(nDict, sDict)
		if err != nil {
			t.Fatalf("compile: %v", err)
		}
		return g
	}
	first := build()
	for i := 0; i < 5; i++ {
		if next := build(); !reflect.DeepEqual(first, next) {
			t.Fatalf("compile output differs on run %d", i)
		}
	}
}

func TestExtractSelectors(t *testing.T) {
	nodes := append(sampleNodes(),
		Node{ID: 7, Attrs: map[string]any{"model": "LeakyIAF", "spiking": true, "extern": false, "public": true, "selector": "/a/out/spk[0]", "Vr": -0.07, "Vt": -0.05, "R": 1.0, "C": 0.01}},
	)
	nDict, _, err := FromRecords(nodes, nil)
	if err != nil {
		t.Fatalf("from records: %v", err)
	}
	g, err := Compile(nDict, nil)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	sel := ExtractSelectors(g)
	if sel.Gpot() != "/a/in/gpot[0],/a/out/gpot[0]" {
		t.Fatalf("unexpected gpot selectors: %q", sel.Gpot())
	}
	if sel.Spike() != "/a/out/spk[0]" {
		t.Fatalf("unexpected spike selectors: %q", sel.Spike())
	}
	if sel.In() != "/a/in/gpot[0]" {
		t.Fatalf("unexpected input selectors: %q", sel.In())
	}
	if got := Join("", "a", "", "b"); got != "a,b" {
		t.Fatalf("unexpected join: %q", got)
	}
}
