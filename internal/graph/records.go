package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"lpukit/internal/model"
)

var (
	ErrSchemaMismatch  = errors.New("attribute key set mismatch")
	ErrMissingSelector = errors.New("public record has no selector")
	ErrMissingModel    = errors.New("record has no model")
	ErrInvalidID       = errors.New("invalid record id")
	ErrDuplicateID     = errors.New("duplicate record id")
	ErrMissingField    = errors.New("required attribute missing")
	ErrInvalidField    = errors.New("invalid attribute value")
)

// Columns maps an attribute name to its per-instance values.
type Columns map[string][]any

// ModelColumns is the column data of every instance of one model.
type ModelColumns struct {
	Model   string
	Columns Columns
}

// NeuronDict and SynapseDict list models in discovery order.
type (
	NeuronDict  []ModelColumns
	SynapseDict []ModelColumns
)

// DictFromMap orders an unordered model mapping by model name.
func DictFromMap(in map[string]Columns) []ModelColumns {
	names := make([]string, 0, len(in))
	for name := range in {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]ModelColumns, 0, len(names))
	for _, name := range names {
		out = append(out, ModelColumns{Model: name, Columns: in[name]})
	}
	return out
}

// Node is one neuron record as produced by a graph description parser.
type Node struct {
	ID    any            `json:"id"`
	Attrs map[string]any `json:"attrs"`
}

// Edge is one synapse record. Post is a neuron ID or a "synapse-<id>" tag.
type Edge struct {
	Pre   any            `json:"pre"`
	Post  any            `json:"post"`
	Attrs map[string]any `json:"attrs"`
}

// FromRecords reshapes node and edge records into per-model column dicts.
// Neurons are ordered by ID, synapses by post-synaptic target with synapse
// targets after every neuron target. Anonymous synapses receive sequential
// IDs in that order.
func FromRecords(nodes []Node, edges []Edge) (NeuronDict, SynapseDict, error) {
	neurons := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		if isSynapseTag(n.ID) {
			continue
		}
		neurons = append(neurons, n)
	}
	sort.SliceStable(neurons, func(i, j int) bool {
		return lessID(neurons[i].ID, neurons[j].ID)
	})

	var nDict NeuronDict
	nIndex := make(map[string]int)
	for _, n := range neurons {
		id, ok := asInt(n.ID)
		if !ok || id < 0 {
			return nil, nil, fmt.Errorf("%w: neuron %v", ErrInvalidID, n.ID)
		}
		attrs := cloneAttrs(n.Attrs)
		modelName, ok := asString(attrs["model"])
		if !ok || modelName == "" {
			return nil, nil, fmt.Errorf("%w: neuron %d", ErrMissingModel, id)
		}
		if modelName == model.PortInGpot || modelName == model.PortInSpike {
			if _, ok := attrs["selector"]; !ok {
				return nil, nil, fmt.Errorf("%w: port input neuron %d", ErrMissingSelector, id)
			}
			attrs["spiking"] = modelName == model.PortInSpike
			attrs["public"] = false
		}
		if pub, ok := attrs["public"]; ok {
			if b, _ := asBool(pub); b {
				if sel, _ := asString(attrs["selector"]); sel == "" {
					return nil, nil, fmt.Errorf("%w: neuron %d", ErrMissingSelector, id)
				}
			}
		} else {
			attrs["public"] = false
		}
		if _, ok := attrs["selector"]; !ok {
			attrs["selector"] = ""
		}
		delete(attrs, "model")
		attrs["id"] = id

		var err error
		nDict, err = appendRecord(nDict, nIndex, modelName, attrs, fmt.Sprintf("neuron %d", id))
		if err != nil {
			return nil, nil, err
		}
	}

	sorted := make([]Edge, len(edges))
	copy(sorted, edges)
	sort.SliceStable(sorted, func(i, j int) bool {
		return lessPost(sorted[i].Post, sorted[j].Post)
	})

	var sDict SynapseDict
	sIndex := make(map[string]int)
	for seq, e := range sorted {
		attrs := cloneAttrs(e.Attrs)
		modelName, ok := asString(attrs["model"])
		if !ok || modelName == "" {
			return nil, nil, fmt.Errorf("%w: synapse %v->%v", ErrMissingModel, e.Pre, e.Post)
		}
		if _, ok := attrs["conductance"]; !ok {
			attrs["conductance"] = true
		}
		if rev, ok := attrs["reversal_pot"]; ok {
			if _, has := attrs["reverse"]; !has {
				attrs["reverse"] = rev
			}
			delete(attrs, "reversal_pot")
		}
		if raw, ok := attrs["id"]; ok {
			id, ok := asInt(raw)
			if !ok {
				return nil, nil, fmt.Errorf("%w: synapse %v", ErrInvalidID, raw)
			}
			attrs["id"] = id
		} else {
			attrs["id"] = seq
		}
		delete(attrs, "model")
		attrs["pre"] = e.Pre
		attrs["post"] = e.Post

		var err error
		sDict, err = appendRecord(sDict, sIndex, modelName, attrs, fmt.Sprintf("synapse %v", attrs["id"]))
		if err != nil {
			return nil, nil, err
		}
	}
	return nDict, sDict, nil
}

func appendRecord(dict []ModelColumns, index map[string]int, modelName string, attrs map[string]any, what string) ([]ModelColumns, error) {
	pos, ok := index[modelName]
	if !ok {
		cols := make(Columns, len(attrs))
		for k := range attrs {
			cols[k] = nil
		}
		dict = append(dict, ModelColumns{Model: modelName, Columns: cols})
		pos = len(dict) - 1
		index[modelName] = pos
	}
	cols := dict[pos].Columns
	if !sameKeys(cols, attrs) {
		return nil, fmt.Errorf("%w: %s of model %s has keys %v, want %v",
			ErrSchemaMismatch, what, modelName, sortedKeys(attrs), sortedColumnKeys(cols))
	}
	for k, v := range attrs {
		cols[k] = append(cols[k], v)
	}
	return dict, nil
}

func sameKeys(cols Columns, attrs map[string]any) bool {
	if len(cols) != len(attrs) {
		return false
	}
	for k := range attrs {
		if _, ok := cols[k]; !ok {
			return false
		}
	}
	return true
}

func sortedKeys(attrs map[string]any) []string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedColumnKeys(cols Columns) []string {
	keys := make([]string, 0, len(cols))
	for k := range cols {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cloneAttrs(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+4)
	for k, v := range in {
		out[k] = v
	}
	return out
}

func lessID(a, b any) bool {
	ai, aok := asInt(a)
	bi, bok := asInt(b)
	if aok && bok {
		return ai < bi
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

func lessPost(a, b any) bool {
	at, aok := asTarget(a)
	bt, bok := asTarget(b)
	if !aok || !bok {
		return strings.Compare(fmt.Sprint(a), fmt.Sprint(b)) < 0
	}
	if at.Synapse != bt.Synapse {
		return !at.Synapse
	}
	return at.ID < bt.ID
}
