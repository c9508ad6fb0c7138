package port

import (
	"errors"
	"fmt"

	"lpukit/internal/device"
)

var ErrUnknownSelector = errors.New("unknown selector")

// Kind distinguishes the graded and spiking port arrays.
type Kind int

const (
	Gpot Kind = iota
	Spike
)

func (k Kind) String() string {
	if k == Spike {
		return "spike"
	}
	return "gpot"
}

// Mapper resolves selectors into positions of the shared port arrays.
type Mapper interface {
	Indices(kind Kind, selectors []string) ([]int32, error)
}

// SelectorMap assigns consecutive port positions to selectors in the order
// they were declared.
type SelectorMap struct {
	gpot  map[string]int32
	spike map[string]int32
}

func NewSelectorMap(gpot, spike []string) *SelectorMap {
	m := &SelectorMap{gpot: make(map[string]int32), spike: make(map[string]int32)}
	for _, s := range gpot {
		if _, ok := m.gpot[s]; !ok {
			m.gpot[s] = int32(len(m.gpot))
		}
	}
	for _, s := range spike {
		if _, ok := m.spike[s]; !ok {
			m.spike[s] = int32(len(m.spike))
		}
	}
	return m
}

// Len returns the number of ports of a kind.
func (m *SelectorMap) Len(kind Kind) int {
	if kind == Spike {
		return len(m.spike)
	}
	return len(m.gpot)
}

func (m *SelectorMap) Indices(kind Kind, selectors []string) ([]int32, error) {
	table := m.gpot
	if kind == Spike {
		table = m.spike
	}
	out := make([]int32, len(selectors))
	for i, s := range selectors {
		pos, ok := table[s]
		if !ok {
			return nil, fmt.Errorf("%w: %s %q", ErrUnknownSelector, kind, s)
		}
		out[i] = pos
	}
	return out, nil
}

// Data holds the shared port arrays. The transport layer owns them; the
// gateway only reads and writes through index tables.
type Data struct {
	Gpot  *device.Array[float64]
	Spike *device.Array[int32]
}

func NewData(dev *device.Device, gpot, spike int) *Data {
	return &Data{
		Gpot:  device.Alloc[float64](dev, "port_gpot", gpot),
		Spike: device.Alloc[int32](dev, "port_spike", spike),
	}
}

func (d *Data) Free() {
	d.Gpot.Free()
	d.Spike.Free()
}
