package graph

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"lpukit/internal/model"
)

func sampleNodes() []Node {
	return []Node{
		{ID: 4, Attrs: map[string]any{"model": "LeakyIAF", "spiking": true, "extern": false, "Vr": -0.07, "Vt": -0.05, "R": 1.0, "C": 0.01}},
		{ID: 1, Attrs: map[string]any{"model": "LeakyIntegrator", "spiking": false, "extern": true, "public": true, "selector": "/a/out/gpot[0]", "V0": -0.06, "tau": 0.02, "R": 1.0}},
		{ID: 0, Attrs: map[string]any{"model": "LeakyIntegrator", "spiking": false, "extern": false, "V0": -0.06, "tau": 0.02, "R": 1.0}},
		{ID: 2, Attrs: map[string]any{"model": model.PortInGpot, "extern": false, "selector": "/a/in/gpot[0]"}},
	}
}

func TestFromRecordsDefaultsAndOrdering(t *testing.T) {
	nDict, _, err := FromRecords(sampleNodes(), nil)
	if err != nil {
		t.Fatalf("from records: %v", err)
	}
	if len(nDict) != 3 {
		t.Fatalf("unexpected model count: got=%d want=3", len(nDict))
	}
	// neurons are visited in ascending ID order, so model discovery follows that
	if nDict[0].Model != "LeakyIntegrator" || nDict[1].Model != model.PortInGpot || nDict[2].Model != "LeakyIAF" {
		t.Fatalf("unexpected model order: %s %s %s", nDict[0].Model, nDict[1].Model, nDict[2].Model)
	}
	li := nDict[0].Columns
	if got := li["id"]; !reflect.DeepEqual(got, []any{0, 1}) {
		t.Fatalf("unexpected ids: %v", got)
	}
	if got := li["public"]; !reflect.DeepEqual(got, []any{false, true}) {
		t.Fatalf("public default not applied: %v", got)
	}
	if got := li["selector"]; !reflect.DeepEqual(got, []any{"", "/a/out/gpot[0]"}) {
		t.Fatalf("selector default not applied: %v", got)
	}
	if _, ok := li["model"]; ok {
		t.Fatal("model column should be removed")
	}
	port := nDict[1].Columns
	if got := port["spiking"]; !reflect.DeepEqual(got, []any{false}) {
		t.Fatalf("port input spiking not forced: %v", got)
	}
	if got := port["public"]; !reflect.DeepEqual(got, []any{false}) {
		t.Fatalf("port input public not forced: %v", got)
	}
}

func TestFromRecordsSchemaMismatch(t *testing.T) {
	nodes := []Node{
		{ID: 0, Attrs: map[string]any{"model": "LeakyIAF", "spiking": true, "extern": false, "Vr": 0.0}},
		{ID: 1, Attrs: map[string]any{"model": "LeakyIAF", "spiking": true, "extern": false, "Vt": 1.0}},
	}
	_, _, err := FromRecords(nodes, nil)
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got: %v", err)
	}
}

func TestFromRecordsPublicRequiresSelector(t *testing.T) {
	nodes := []Node{
		{ID: 0, Attrs: map[string]any{"model": "LeakyIAF", "spiking": true, "extern": false, "public": true}},
	}
	_, _, err := FromRecords(nodes, nil)
	if !errors.Is(err, ErrMissingSelector) {
		t.Fatalf("expected ErrMissingSelector, got: %v", err)
	}

	nodes = []Node{{ID: 3, Attrs: map[string]any{"model": model.PortInSpike, "extern": false}}}
	_, _, err = FromRecords(nodes, nil)
	if !errors.Is(err, ErrMissingSelector) {
		t.Fatalf("expected ErrMissingSelector for port input, got: %v", err)
	}
}

func TestFromRecordsSynapseNormalization(t *testing.T) {
	edges := []Edge{
		{Pre: 1, Post: "synapse-0", Attrs: map[string]any{"model": "PowerGPotGPot", "class": 3, "reversal_pot": -0.08}},
		{Pre: 0, Post: 2, Attrs: map[string]any{"model": "PowerGPotGPot", "class": 3, "reversal_pot": -0.08}},
		{Pre: 1, Post: 0, Attrs: map[string]any{"model": "PowerGPotGPot", "class": 3, "reversal_pot": -0.08}},
	}
	_, sDict, err := FromRecords(nil, edges)
	if err != nil {
		t.Fatalf("from records: %v", err)
	}
	if len(sDict) != 1 {
		t.Fatalf("unexpected synapse models: %d", len(sDict))
	}
	cols := sDict[0].Columns
	if got := cols["post"]; !reflect.DeepEqual(got, []any{0, 2, "synapse-0"}) {
		t.Fatalf("synapse targets should sort after neuron targets: %v", got)
	}
	if got := cols["id"]; !reflect.DeepEqual(got, []any{0, 1, 2}) {
		t.Fatalf("unexpected sequential ids: %v", got)
	}
	if got := cols["conductance"]; !reflect.DeepEqual(got, []any{true, true, true}) {
		t.Fatalf("conductance default not applied: %v", got)
	}
	if _, ok := cols["reversal_pot"]; ok {
		t.Fatal("reversal_pot should be renamed")
	}
	if got := cols["reverse"]; len(got) != 3 {
		t.Fatalf("reverse column missing: %v", got)
	}
}

func TestReadJSONDocumentCompiles(t *testing.T) {
	doc := `{
		"nodes": [
			{"id": "0", "attrs": {"model": "LeakyIntegrator", "spiking": false, "extern": true, "V0": -0.06, "tau": 0.02, "R": 1}},
			{"id": "1", "attrs": {"model": "LeakyIntegrator", "spiking": false, "extern": false, "V0": -0.06, "tau": 0.02, "R": 1}}
		],
		"edges": [
			{"pre": "0", "post": "1", "attrs": {"model": "PowerGPotGPot", "class": 3, "conductance": false, "delay": 1,
				"threshold": -0.06, "slope": 1, "power": 1, "saturation": 1}}
		]
	}`
	parsed, err := ReadJSON(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	g, err := parsed.Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if g.NeuronCount() != 2 || g.SynapseCount() != 1 {
		t.Fatalf("unexpected counts: neurons=%d synapses=%d", g.NeuronCount(), g.SynapseCount())
	}
	if g.Synapses[0].Delay[0] != 1 {
		t.Fatalf("unexpected delay: %v", g.Synapses[0].Delay)
	}
}
