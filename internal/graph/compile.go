package graph

import (
	"errors"
	"fmt"
	"sort"

	"lpukit/internal/model"
)

var ErrMissingReverse = errors.New("conductance synapse has no reverse potential")

var (
	neuronReserved  = map[string]bool{"id": true, "spiking": true, "public": true, "extern": true, "selector": true, "model": true}
	synapseReserved = map[string]bool{"id": true, "pre": true, "post": true, "class": true, "conductance": true, "reverse": true, "reversal_pot": true, "delay": true, "model": true}
)

// Compile validates column dicts and converts them into typed groups. It is a
// pure function of its input; the dicts are not modified.
func Compile(nDict NeuronDict, sDict SynapseDict) (model.Graph, error) {
	var g model.Graph
	seenModels := make(map[string]bool)
	seenIDs := make(map[int]string)
	for _, mc := range nDict {
		if mc.Model == "" {
			return model.Graph{}, fmt.Errorf("%w: neuron dict entry", ErrMissingModel)
		}
		if seenModels[mc.Model] {
			return model.Graph{}, fmt.Errorf("%w: neuron model %s listed twice", ErrSchemaMismatch, mc.Model)
		}
		seenModels[mc.Model] = true

		group, err := compileNeurons(mc)
		if err != nil {
			return model.Graph{}, err
		}
		if group.Len() == 0 {
			continue
		}
		for _, id := range group.IDs {
			if other, dup := seenIDs[id]; dup {
				return model.Graph{}, fmt.Errorf("%w: neuron %d in models %s and %s", ErrDuplicateID, id, other, group.Model)
			}
			seenIDs[id] = group.Model
		}
		g.Neurons = append(g.Neurons, group)
	}

	seenModels = make(map[string]bool)
	seenSynapses := make(map[int]string)
	next := 0
	for _, mc := range sDict {
		if mc.Model == "" {
			return model.Graph{}, fmt.Errorf("%w: synapse dict entry", ErrMissingModel)
		}
		if seenModels[mc.Model] {
			return model.Graph{}, fmt.Errorf("%w: synapse model %s listed twice", ErrSchemaMismatch, mc.Model)
		}
		seenModels[mc.Model] = true

		group, err := compileSynapses(mc, next)
		if err != nil {
			return model.Graph{}, err
		}
		next += group.Len()
		if group.Len() == 0 {
			continue
		}
		for _, id := range group.IDs {
			if other, dup := seenSynapses[id]; dup {
				return model.Graph{}, fmt.Errorf("%w: synapse %d in models %s and %s", ErrDuplicateID, id, other, group.Model)
			}
			seenSynapses[id] = group.Model
		}
		g.Synapses = append(g.Synapses, group)
	}
	return g, nil
}

// columnLen returns the common instance count of all columns. Columns of
// unequal length mean some instance lacks an attribute the others carry.
func columnLen(mc ModelColumns, anchor string) (int, error) {
	n := -1
	if col, ok := mc.Columns[anchor]; ok {
		n = len(col)
	}
	keys := make([]string, 0, len(mc.Columns))
	for k := range mc.Columns {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		col := mc.Columns[k]
		if n < 0 {
			n = len(col)
		}
		if len(col) != n {
			return 0, fmt.Errorf("%w: model %s attribute %s has %d values, want %d", ErrSchemaMismatch, mc.Model, k, len(col), n)
		}
		for i, v := range col {
			if v == nil {
				return 0, fmt.Errorf("%w: model %s instance %d lacks attribute %s", ErrSchemaMismatch, mc.Model, i, k)
			}
		}
	}
	if n < 0 {
		n = 0
	}
	return n, nil
}

func compileNeurons(mc ModelColumns) (model.NeuronGroup, error) {
	n, err := columnLen(mc, "id")
	if err != nil {
		return model.NeuronGroup{}, err
	}
	cols := mc.Columns
	group := model.NeuronGroup{
		Model:    mc.Model,
		IDs:      make([]int, n),
		Public:   make([]bool, n),
		Extern:   make([]bool, n),
		Selector: make([]string, n),
		Params:   make(map[string][]float64),
		Labels:   make(map[string][]string),
	}
	if n == 0 {
		return group, nil
	}

	ids, ok := cols["id"]
	if !ok {
		return model.NeuronGroup{}, fmt.Errorf("%w: neuron model %s has no id column", ErrMissingField, mc.Model)
	}
	for i, raw := range ids {
		id, ok := asInt(raw)
		if !ok || id < 0 {
			return model.NeuronGroup{}, fmt.Errorf("%w: neuron model %s id %v", ErrInvalidID, mc.Model, raw)
		}
		group.IDs[i] = id
	}

	switch mc.Model {
	case model.PortInGpot:
		group.Spiking = false
	case model.PortInSpike:
		group.Spiking = true
	default:
		spk, ok := cols["spiking"]
		if !ok {
			return model.NeuronGroup{}, fmt.Errorf("%w: neuron model %s has no spiking column", ErrMissingField, mc.Model)
		}
		for i, raw := range spk {
			b, ok := asBool(raw)
			if !ok {
				return model.NeuronGroup{}, fmt.Errorf("%w: neuron %d spiking=%v", ErrInvalidField, group.IDs[i], raw)
			}
			if i == 0 {
				group.Spiking = b
			} else if b != group.Spiking {
				return model.NeuronGroup{}, fmt.Errorf("%w: neuron model %s mixes spiking and graded instances", ErrSchemaMismatch, mc.Model)
			}
		}
	}

	if err := fillBools(cols["public"], group.Public, mc.Model, "public"); err != nil {
		return model.NeuronGroup{}, err
	}
	if err := fillBools(cols["extern"], group.Extern, mc.Model, "extern"); err != nil {
		return model.NeuronGroup{}, err
	}
	if sel, ok := cols["selector"]; ok {
		for i, raw := range sel {
			s, ok := asString(raw)
			if !ok {
				return model.NeuronGroup{}, fmt.Errorf("%w: neuron %d selector=%v", ErrInvalidField, group.IDs[i], raw)
			}
			group.Selector[i] = s
		}
	}
	for i := 0; i < n; i++ {
		if group.IsPortInput() {
			if group.Public[i] {
				return model.NeuronGroup{}, fmt.Errorf("%w: port input neuron %d cannot be public", ErrInvalidField, group.IDs[i])
			}
			if group.Selector[i] == "" {
				return model.NeuronGroup{}, fmt.Errorf("%w: port input neuron %d", ErrMissingSelector, group.IDs[i])
			}
		}
		if group.Public[i] && group.Selector[i] == "" {
			return model.NeuronGroup{}, fmt.Errorf("%w: neuron %d", ErrMissingSelector, group.IDs[i])
		}
	}

	for key, col := range cols {
		if neuronReserved[key] {
			continue
		}
		if err := fillParam(key, col, group.Params, group.Labels, mc.Model); err != nil {
			return model.NeuronGroup{}, err
		}
	}
	return group, nil
}

func compileSynapses(mc ModelColumns, firstID int) (model.SynapseGroup, error) {
	n, err := columnLen(mc, "pre")
	if err != nil {
		return model.SynapseGroup{}, err
	}
	cols := mc.Columns
	group := model.SynapseGroup{
		Model:       mc.Model,
		IDs:         make([]int, n),
		Pre:         make([]int, n),
		Post:        make([]model.Target, n),
		Class:       make([]model.Class, n),
		Conductance: make([]bool, n),
		Delay:       make([]float64, n),
		Params:      make(map[string][]float64),
		Labels:      make(map[string][]string),
	}
	if n == 0 {
		return group, nil
	}

	if ids, ok := cols["id"]; ok {
		for i, raw := range ids {
			id, ok := asInt(raw)
			if !ok || id < 0 {
				return model.SynapseGroup{}, fmt.Errorf("%w: synapse model %s id %v", ErrInvalidID, mc.Model, raw)
			}
			group.IDs[i] = id
		}
	} else {
		for i := range group.IDs {
			group.IDs[i] = firstID + i
		}
	}

	pre, ok := cols["pre"]
	if !ok {
		return model.SynapseGroup{}, fmt.Errorf("%w: synapse model %s has no pre column", ErrMissingField, mc.Model)
	}
	for i, raw := range pre {
		id, ok := asInt(raw)
		if !ok || id < 0 {
			return model.SynapseGroup{}, fmt.Errorf("%w: synapse %d pre=%v", ErrInvalidField, group.IDs[i], raw)
		}
		group.Pre[i] = id
	}

	post, ok := cols["post"]
	if !ok {
		return model.SynapseGroup{}, fmt.Errorf("%w: synapse model %s has no post column", ErrMissingField, mc.Model)
	}
	for i, raw := range post {
		t, ok := asTarget(raw)
		if !ok || t.ID < 0 {
			return model.SynapseGroup{}, fmt.Errorf("%w: synapse %d post=%v", ErrInvalidField, group.IDs[i], raw)
		}
		group.Post[i] = t
	}

	class, ok := cols["class"]
	if !ok {
		return model.SynapseGroup{}, fmt.Errorf("%w: synapse model %s has no class column", ErrMissingField, mc.Model)
	}
	for i, raw := range class {
		c, ok := asInt(raw)
		if !ok || !model.Class(c).Valid() {
			return model.SynapseGroup{}, fmt.Errorf("%w: synapse %d class=%v", ErrInvalidField, group.IDs[i], raw)
		}
		group.Class[i] = model.Class(c)
	}

	if cond, ok := cols["conductance"]; ok {
		if err := fillBools(cond, group.Conductance, mc.Model, "conductance"); err != nil {
			return model.SynapseGroup{}, err
		}
	} else {
		for i := range group.Conductance {
			group.Conductance[i] = true
		}
	}

	rev, ok := cols["reverse"]
	if !ok {
		rev, ok = cols["reversal_pot"]
	}
	if ok {
		group.Reverse = make([]float64, n)
		for i, raw := range rev {
			x, ok := asFloat64(raw)
			if !ok {
				return model.SynapseGroup{}, fmt.Errorf("%w: synapse %d reverse=%v", ErrInvalidField, group.IDs[i], raw)
			}
			group.Reverse[i] = x
		}
	} else {
		for i, c := range group.Conductance {
			if c {
				return model.SynapseGroup{}, fmt.Errorf("%w: synapse %d of model %s", ErrMissingReverse, group.IDs[i], mc.Model)
			}
		}
	}

	if delay, ok := cols["delay"]; ok {
		for i, raw := range delay {
			x, ok := asFloat64(raw)
			if !ok || x < 0 {
				return model.SynapseGroup{}, fmt.Errorf("%w: synapse %d delay=%v", ErrInvalidField, group.IDs[i], raw)
			}
			group.Delay[i] = x
		}
	}

	for key, col := range cols {
		if synapseReserved[key] {
			continue
		}
		if err := fillParam(key, col, group.Params, group.Labels, mc.Model); err != nil {
			return model.SynapseGroup{}, err
		}
	}
	return group, nil
}

func fillBools(col []any, dst []bool, modelName, key string) error {
	for i, raw := range col {
		b, ok := asBool(raw)
		if !ok {
			return fmt.Errorf("%w: model %s instance %d %s=%v", ErrInvalidField, modelName, i, key, raw)
		}
		dst[i] = b
	}
	return nil
}

// fillParam stores a model-specific column as numbers when every value is
// numeric and as labels when every value is a string.
func fillParam(key string, col []any, params map[string][]float64, labels map[string][]string, modelName string) error {
	if len(col) == 0 {
		return nil
	}
	if _, isString := col[0].(string); isString {
		out := make([]string, len(col))
		for i, raw := range col {
			s, ok := asString(raw)
			if !ok {
				return fmt.Errorf("%w: model %s instance %d %s=%v", ErrInvalidField, modelName, i, key, raw)
			}
			out[i] = s
		}
		labels[key] = out
		return nil
	}
	out := make([]float64, len(col))
	for i, raw := range col {
		x, ok := asFloat64(raw)
		if !ok {
			return fmt.Errorf("%w: model %s instance %d %s=%v", ErrInvalidField, modelName, i, key, raw)
		}
		out[i] = x
	}
	params[key] = out
	return nil
}
