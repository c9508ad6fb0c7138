package models

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrModelExists   = errors.New("model already registered")
	ErrModelNotFound = errors.New("model not found")
	ErrInvalidSpec   = errors.New("invalid model spec")
)

// NeuronSpec describes a registered neuron model.
type NeuronSpec struct {
	Name    string
	Spiking bool
	// Params lists the parameters every instance must carry.
	Params []string
	New    NeuronFactory
}

type SynapseSpec struct {
	Name   string
	Params []string
	New    SynapseFactory
}

// Registry maps model names to factories. The zero value is not usable;
// call NewRegistry.
type Registry struct {
	mu       sync.RWMutex
	neurons  map[string]NeuronSpec
	synapses map[string]SynapseSpec
}

func NewRegistry() *Registry {
	return &Registry{
		neurons:  make(map[string]NeuronSpec),
		synapses: make(map[string]SynapseSpec),
	}
}

func (r *Registry) RegisterNeuron(spec NeuronSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("%w: neuron name is required", ErrInvalidSpec)
	}
	if spec.New == nil {
		return fmt.Errorf("%w: neuron %s has no factory", ErrInvalidSpec, spec.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.neurons[spec.Name]; exists {
		return fmt.Errorf("%w: neuron %s", ErrModelExists, spec.Name)
	}
	r.neurons[spec.Name] = spec
	return nil
}

func (r *Registry) RegisterSynapse(spec SynapseSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("%w: synapse name is required", ErrInvalidSpec)
	}
	if spec.New == nil {
		return fmt.Errorf("%w: synapse %s has no factory", ErrInvalidSpec, spec.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.synapses[spec.Name]; exists {
		return fmt.Errorf("%w: synapse %s", ErrModelExists, spec.Name)
	}
	r.synapses[spec.Name] = spec
	return nil
}

func (r *Registry) ResolveNeuron(name string) (NeuronSpec, error) {
	r.mu.RLock()
	spec, ok := r.neurons[name]
	r.mu.RUnlock()
	if !ok {
		return NeuronSpec{}, fmt.Errorf("%w: neuron %s", ErrModelNotFound, name)
	}
	return spec, nil
}

func (r *Registry) ResolveSynapse(name string) (SynapseSpec, error) {
	r.mu.RLock()
	spec, ok := r.synapses[name]
	r.mu.RUnlock()
	if !ok {
		return SynapseSpec{}, fmt.Errorf("%w: synapse %s", ErrModelNotFound, name)
	}
	return spec, nil
}

func (r *Registry) ListNeurons() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.neurons))
	for name := range r.neurons {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) ListSynapses() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.synapses))
	for name := range r.synapses {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var defaultRegistry = struct {
	mu sync.RWMutex
	r  *Registry
}{
	r: newBuiltinRegistry(),
}

func newBuiltinRegistry() *Registry {
	r := NewRegistry()
	if err := RegisterBuiltins(r); err != nil {
		panic(err)
	}
	return r
}

// Default returns the process-wide registry holding the built-in models and
// anything added through the package-level Register functions.
func Default() *Registry {
	defaultRegistry.mu.RLock()
	defer defaultRegistry.mu.RUnlock()
	return defaultRegistry.r
}

func RegisterNeuron(spec NeuronSpec) error {
	return Default().RegisterNeuron(spec)
}

func RegisterSynapse(spec SynapseSpec) error {
	return Default().RegisterSynapse(spec)
}

func MustRegisterNeuron(spec NeuronSpec) {
	if err := RegisterNeuron(spec); err != nil {
		panic(err)
	}
}

func MustRegisterSynapse(spec SynapseSpec) {
	if err := RegisterSynapse(spec); err != nil {
		panic(err)
	}
}

func resetDefaultForTests() {
	defaultRegistry.mu.Lock()
	defaultRegistry.r = newBuiltinRegistry()
	defaultRegistry.mu.Unlock()
}
