package index

import (
	"errors"
	"reflect"
	"testing"

	"lpukit/internal/model"
)

func sampleGraph() model.Graph {
	return model.Graph{
		Neurons: []model.NeuronGroup{
			{
				Model:    "LeakyIntegrator",
				IDs:      []int{5, 1},
				Public:   []bool{false, true},
				Extern:   []bool{true, false},
				Selector: []string{"", "/u/out/gpot[0]"},
				Params:   map[string][]float64{"V0": {-0.06, -0.05}, "tau": {0.02, 0.02}, "R": {1, 1}},
			},
			{
				Model:    "LeakyIAF",
				Spiking:  true,
				IDs:      []int{3, 0},
				Public:   []bool{true, false},
				Extern:   []bool{false, false},
				Selector: []string{"/u/out/spk[0]", ""},
				Params:   map[string][]float64{"Vr": {-0.07, -0.07}, "Vt": {-0.05, -0.05}, "R": {1, 1}, "C": {0.01, 0.01}},
			},
			{
				Model:    model.PortInGpot,
				IDs:      []int{2},
				Public:   []bool{false},
				Extern:   []bool{false},
				Selector: []string{"/u/in/gpot[0]"},
			},
		},
		Synapses: []model.SynapseGroup{
			{
				Model:       "PowerGPotGPot",
				IDs:         []int{0, 1},
				Pre:         []int{2, 1},
				Post:        []model.Target{{ID: 1}, {ID: 5}},
				Class:       []model.Class{model.ClassGradedGraded, model.ClassGradedGraded},
				Conductance: []bool{false, true},
				Reverse:     []float64{0, -0.08},
				Delay:       []float64{2, 0},
			},
			{
				Model:       "AlphaSynapse",
				IDs:         []int{2},
				Pre:         []int{3},
				Post:        []model.Target{{ID: 0, Synapse: true}},
				Class:       []model.Class{model.ClassSpikeGraded},
				Conductance: []bool{false},
				Delay:       []float64{1},
			},
		},
	}
}

func TestBuildPacksGradedThenSpiking(t *testing.T) {
	s, err := Build(sampleGraph(), 1e-3)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if s.NumGpot != 3 || s.NumSpike != 2 || s.NumSynapses != 3 {
		t.Fatalf("unexpected counts: gpot=%d spike=%d syn=%d", s.NumGpot, s.NumSpike, s.NumSynapses)
	}
	want := map[int]int{1: 0, 5: 1, 2: 2, 0: 3, 3: 4}
	for id, pos := range want {
		got, err := s.Order(id)
		if err != nil || got != pos {
			t.Fatalf("order(%d): got=%d want=%d err=%v", id, got, pos, err)
		}
		back, ok := s.NeuronID(pos)
		if !ok || back != id {
			t.Fatalf("neuron id at %d: got=%d want=%d", pos, back, id)
		}
	}
	if pos, _ := s.SpikeOrder(3); pos != 1 {
		t.Fatalf("spike order of 3: got=%d want=1", pos)
	}
	if _, err := s.Order(42); !errors.Is(err, ErrUnknownID) {
		t.Fatalf("expected ErrUnknownID, got: %v", err)
	}
	if s.InGpot.Start != 2 || s.InGpot.Count != 1 || s.InSpike.Count != 0 {
		t.Fatalf("unexpected port inputs: %+v %+v", s.InGpot, s.InSpike)
	}
	if !reflect.DeepEqual(s.OutGpot.Positions, []int32{0}) || !reflect.DeepEqual(s.OutSpike.Positions, []int32{1}) {
		t.Fatalf("unexpected outputs: %v %v", s.OutGpot.Positions, s.OutSpike.Positions)
	}
	if !reflect.DeepEqual(s.OutSpike.Selectors, []string{"/u/out/spk[0]"}) {
		t.Fatalf("unexpected spike selectors: %v", s.OutSpike.Selectors)
	}
	if !reflect.DeepEqual(s.GpotByID(), []int32{0, 2, 1}) || !reflect.DeepEqual(s.SpikeByID(), []int32{0, 1}) {
		t.Fatalf("unexpected by-id order: %v %v", s.GpotByID(), s.SpikeByID())
	}
}

func TestNeuronPositionsAreABijection(t *testing.T) {
	s, err := Build(sampleGraph(), 1e-3)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	check := func(kind string, byID []int32, order func(int) (int, error), shift int) {
		t.Helper()
		prev := -1
		for _, pos := range byID {
			id, ok := s.NeuronID(shift + int(pos))
			if !ok {
				t.Fatalf("%s position %d has no id", kind, pos)
			}
			if id <= prev {
				t.Fatalf("%s ids out of order: %d after %d", kind, id, prev)
			}
			prev = id
			back, err := order(id)
			if err != nil || back != int(pos) {
				t.Fatalf("%s order(%d): got=%d want=%d err=%v", kind, id, back, pos, err)
			}
		}
	}
	check("graded", s.GpotByID(), s.GpotOrder, 0)
	check("spiking", s.SpikeByID(), s.SpikeOrder, s.NumGpot)

	got, err := Orders(s.GpotOrder, []int{5, 1, 2})
	if err != nil || !reflect.DeepEqual(got, []int32{1, 0, 2}) {
		t.Fatalf("graded orders: got=%v want=[1 0 2] err=%v", got, err)
	}
	if _, err := Orders(s.SpikeOrder, []int{3, 5}); !errors.Is(err, ErrUnknownID) {
		t.Fatalf("expected ErrUnknownID for a graded id in the spiking block, got: %v", err)
	}
}

func TestBuildResolvesSynapses(t *testing.T) {
	s, err := Build(sampleGraph(), 1e-3)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if s.SynapseBase != 6 {
		t.Fatalf("unexpected synapse base: got=%d want=6", s.SynapseBase)
	}
	pg := s.Synapses[0]
	if !reflect.DeepEqual(pg.Pre, []int32{2, 0}) || !reflect.DeepEqual(pg.Post, []int{0, 1}) {
		t.Fatalf("unexpected gpot synapse layout: pre=%v post=%v", pg.Pre, pg.Post)
	}
	alpha := s.Synapses[1]
	if alpha.Start != 2 || !reflect.DeepEqual(alpha.Pre, []int32{1}) || !reflect.DeepEqual(alpha.Post, []int{6}) {
		t.Fatalf("unexpected alpha layout: %+v", alpha)
	}
	for _, l := range s.Synapses {
		for k, addr := range l.Post {
			if l.Group.Post[k].Synapse && addr < s.SynapseBase {
				t.Fatalf("synapse target %d collides with neuron addresses", addr)
			}
		}
	}
	if pos, _ := s.SynapseOrder(2); pos != 2 {
		t.Fatalf("synapse order of 2: got=%d want=2", pos)
	}
	if id, ok := s.SynapseID(1); !ok || id != 1 {
		t.Fatalf("synapse id at 1: got=%d", id)
	}
	if !reflect.DeepEqual(pg.DelaySteps, []int32{2, 0}) {
		t.Fatalf("unexpected delay steps: %v", pg.DelaySteps)
	}
	if s.GpotDepth != 3 || s.SpikeDepth != 2 {
		t.Fatalf("unexpected depths: gpot=%d spike=%d", s.GpotDepth, s.SpikeDepth)
	}
}

func TestBuildFanIn(t *testing.T) {
	s, err := Build(sampleGraph(), 1e-3)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	li := s.Neurons[0]
	if !reflect.DeepEqual(li.Current.Offsets, []int32{0, 1, 2}) || !reflect.DeepEqual(li.Current.Pre, []int32{0, 3}) {
		t.Fatalf("unexpected current fan-in: %+v", li.Current)
	}
	if !reflect.DeepEqual(li.Cond.Offsets, []int32{0, 0, 1}) || !reflect.DeepEqual(li.Cond.Reverse, []float64{-0.08}) {
		t.Fatalf("unexpected conductance fan-in: %+v", li.Cond)
	}
	if li.Current.Reverse != nil {
		t.Fatal("current fan-in should not carry reverse potentials")
	}
	if d := li.Current.Dendrites(1); d != 1 {
		t.Fatalf("dendrites: got=%d want=1", d)
	}
	if got := s.Synapses[0].Current; !reflect.DeepEqual(got.Offsets, []int32{0, 1, 1}) || !reflect.DeepEqual(got.Pre, []int32{2}) {
		t.Fatalf("unexpected synapse fan-in: %+v", got)
	}
	if port := s.Neurons[1]; port.Current.Len() != 0 || !reflect.DeepEqual(port.Current.Offsets, []int32{0, 0}) {
		t.Fatalf("port input should have no fan-in: %+v", port.Current)
	}
	if !reflect.DeepEqual(s.InputIDs, []int{5}) || !reflect.DeepEqual(s.InputNeurons, []int{1}) {
		t.Fatalf("unexpected inputs: ids=%v pos=%v", s.InputIDs, s.InputNeurons)
	}
	if s.SynapseStateLen() != 4 {
		t.Fatalf("unexpected synapse state length: %d", s.SynapseStateLen())
	}
}

func TestBuildWithoutSynapses(t *testing.T) {
	g := sampleGraph()
	g.Synapses = nil
	g.Neurons[0].Extern = []bool{false, false}
	s, err := Build(g, 1e-4)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for _, l := range s.Neurons {
		if l.Cond.Len() != 0 || l.Current.Len() != 0 {
			t.Fatalf("unexpected fan-in for %s", l.Group.Model)
		}
		for _, off := range l.Current.Offsets {
			if off != 0 {
				t.Fatalf("non-zero offset: %v", l.Current.Offsets)
			}
		}
	}
	if s.GpotDepth != 1 || s.SpikeDepth != 1 || s.SynapseStateLen() != 1 {
		t.Fatalf("unexpected empty layout: depth=%d/%d len=%d", s.GpotDepth, s.SpikeDepth, s.SynapseStateLen())
	}
}

func TestBuildErrors(t *testing.T) {
	if _, err := Build(sampleGraph(), 0); !errors.Is(err, ErrInvalidDT) {
		t.Fatalf("expected ErrInvalidDT, got: %v", err)
	}

	g := sampleGraph()
	g.Synapses[0].Post[0] = model.Target{ID: 99}
	if _, err := Build(g, 1e-3); !errors.Is(err, ErrUnresolvedPost) {
		t.Fatalf("expected ErrUnresolvedPost, got: %v", err)
	}

	g = sampleGraph()
	g.Synapses[1].Post[0] = model.Target{ID: 7, Synapse: true}
	if _, err := Build(g, 1e-3); !errors.Is(err, ErrUnresolvedPost) {
		t.Fatalf("expected ErrUnresolvedPost for synapse target, got: %v", err)
	}

	g = sampleGraph()
	g.Synapses[1].Pre[0] = 1
	if _, err := Build(g, 1e-3); !errors.Is(err, ErrUnresolvedPre) {
		t.Fatalf("expected ErrUnresolvedPre, got: %v", err)
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	first, err := Build(sampleGraph(), 1e-3)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for i := 0; i < 5; i++ {
		next, err := Build(sampleGraph(), 1e-3)
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		if !reflect.DeepEqual(first, next) {
			t.Fatalf("layout differs on run %d", i)
		}
	}
}

func TestDelaySteps(t *testing.T) {
	if got := DelaySteps(2, 1e-3); got != 2 {
		t.Fatalf("delay steps: got=%d want=2", got)
	}
	if got := Depth(2, 1e-3); got != 3 {
		t.Fatalf("depth: got=%d want=3", got)
	}
	if got := DelaySteps(0.26, 1e-4); got != 3 {
		t.Fatalf("rounded delay steps: got=%d want=3", got)
	}
}

func TestLayoutSummary(t *testing.T) {
	s, err := Build(sampleGraph(), 1e-3)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	l := s.Layout()
	if l.PortsIn != 1 || l.PortsOut != 2 || len(l.Neurons) != 3 || len(l.Synapses) != 2 {
		t.Fatalf("unexpected layout: %+v", l)
	}
	if l.Neurons[1].Kind != "port" || l.Neurons[2].Kind != "spike" {
		t.Fatalf("unexpected kinds: %+v", l.Neurons)
	}
	if l.Neurons[0].FanIn != 3 || l.Synapses[0].FanIn != 1 {
		t.Fatalf("unexpected fan-in counts: %+v %+v", l.Neurons[0], l.Synapses[0])
	}
}
