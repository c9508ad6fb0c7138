package port

import (
	"lpukit/internal/device"
	"lpukit/internal/index"
)

// Binding is the per-kind index plan of one unit: which port positions feed
// its port-input neurons and where its public neurons are published.
type Binding struct {
	Kind     Kind
	In       *device.Array[int32]
	InOffset int
	Src      *device.Array[int32]
	Dst      *device.Array[int32]
}

// Bind resolves the selectors of in and out through m.
func Bind(dev *device.Device, m Mapper, kind Kind, in index.PortInput, out index.Outputs) (*Binding, error) {
	b := &Binding{Kind: kind, InOffset: in.Start}
	if in.Count > 0 {
		idx, err := m.Indices(kind, in.Selectors)
		if err != nil {
			return nil, err
		}
		b.In = device.FromHost(dev, "port_in_"+kind.String(), idx)
	}
	if out.Len() > 0 {
		dst, err := m.Indices(kind, out.Selectors)
		if err != nil {
			b.Free()
			return nil, err
		}
		b.Src = device.FromHost(dev, "port_src_"+kind.String(), out.Positions)
		b.Dst = device.FromHost(dev, "port_dst_"+kind.String(), dst)
	}
	return b, nil
}

// Outputs returns the number of published neurons.
func (b *Binding) Outputs() int {
	if b.Src == nil {
		return 0
	}
	return b.Src.Len()
}

// Pull gathers port inputs into state.
func (b *Binding) Pull(g *Gateway, external, state device.Buffer) error {
	if b.In == nil {
		return nil
	}
	return g.Gather(external, state, b.In, b.InOffset)
}

// Push scatters public neuron state into the port array.
func (b *Binding) Push(g *Gateway, state, external device.Buffer) error {
	return g.Scatter(state, external, b.Src, b.Dst, b.Outputs())
}

func (b *Binding) Free() {
	b.In.Free()
	b.Src.Free()
	b.Dst.Free()
}
