// Package delay holds the circular history of neuron outputs that synapses
// read with per-synapse delays.
package delay

import (
	"errors"
	"fmt"

	"lpukit/internal/device"
)

var ErrDepth = errors.New("delay exceeds buffer depth")

// Ring keeps depth snapshots of a width-wide state vector in one device
// array, row-major by slot. The cursor names the slot written next.
type Ring[T device.Elem] struct {
	depth  int
	width  int
	cursor int
	data   *device.Array[T]
}

// NewRing allocates a ring of depth rows, each initialised to fill.
func NewRing[T device.Elem](dev *device.Device, name string, depth, width int, fill T) (*Ring[T], error) {
	if depth < 1 {
		return nil, fmt.Errorf("%w: depth %d", ErrDepth, depth)
	}
	r := &Ring[T]{depth: depth, width: width, data: device.Alloc[T](dev, name, depth*width)}
	if fill != 0 {
		buf := r.data.Data()
		for i := range buf {
			buf[i] = fill
		}
	}
	return r, nil
}

func (r *Ring[T]) Depth() int {
	return r.depth
}

func (r *Ring[T]) Width() int {
	return r.width
}

// Cursor returns the slot the next Store writes into.
func (r *Ring[T]) Cursor() int {
	return r.cursor
}

func (r *Ring[T]) Array() *device.Array[T] {
	return r.data
}

// Store queues a copy of src into the current slot. The copy runs on stream
// so it is ordered after the kernels that produced src.
func (r *Ring[T]) Store(stream *device.Stream, src *device.Array[T]) error {
	if src.Len() != r.width {
		return fmt.Errorf("%w: ring width %d, state %d", device.ErrLength, r.width, src.Len())
	}
	slot := r.cursor
	return stream.Launch("delay.store."+r.data.Name(), func() error {
		copy(r.Slot(slot), src.Data())
		return nil
	})
}

// Fill queues a copy of src into every slot without moving the cursor.
func (r *Ring[T]) Fill(stream *device.Stream, src *device.Array[T]) error {
	if src.Len() != r.width {
		return fmt.Errorf("%w: ring width %d, state %d", device.ErrLength, r.width, src.Len())
	}
	return stream.Launch("delay.fill."+r.data.Name(), func() error {
		for slot := 0; slot < r.depth; slot++ {
			copy(r.Slot(slot), src.Data())
		}
		return nil
	})
}

// Rotate advances the cursor by one slot, wrapping at depth.
func (r *Ring[T]) Rotate() {
	r.cursor = (r.cursor + 1) % r.depth
}

// Advance stores src and rotates.
func (r *Ring[T]) Advance(stream *device.Stream, src *device.Array[T]) error {
	if err := r.Store(stream, src); err != nil {
		return err
	}
	r.Rotate()
	return nil
}

// Index returns the slot holding the value written steps stores before the
// one at cursor.
func (r *Ring[T]) Index(cursor int, steps int32) int {
	return ((cursor-int(steps))%r.depth + r.depth) % r.depth
}

// Slot exposes one row of device memory. Call it only from kernels or after
// the stream has been synchronized.
func (r *Ring[T]) Slot(slot int) []T {
	lo := slot * r.width
	return r.data.Data()[lo : lo+r.width : lo+r.width]
}

// Delayed reads element i as it was steps stores before cursor.
func (r *Ring[T]) Delayed(cursor int, steps int32, i int) T {
	return r.data.Data()[r.Index(cursor, steps)*r.width+i]
}

// Snapshot copies the ring to the host, oldest slot first relative to the
// cursor.
func (r *Ring[T]) Snapshot() [][]T {
	out := make([][]T, r.depth)
	for k := range out {
		row := make([]T, r.width)
		copy(row, r.Slot((r.cursor+k)%r.depth))
		out[k] = row
	}
	return out
}

func (r *Ring[T]) Free() {
	r.data.Free()
}

// Buffer pairs the graded-potential and spike histories of a unit. A ring is
// nil when its block is empty.
type Buffer struct {
	Gpot  *Ring[float64]
	Spike *Ring[int32]
}

// Config sizes a Buffer. Both rings start zeroed; callers fill the graded
// ring with the initial potentials before the first tick.
type Config struct {
	GpotDepth  int
	GpotWidth  int
	SpikeDepth int
	SpikeWidth int
}

func NewBuffer(dev *device.Device, cfg Config) (*Buffer, error) {
	b := &Buffer{}
	if cfg.GpotWidth > 0 {
		r, err := NewRing[float64](dev, "delay_gpot", cfg.GpotDepth, cfg.GpotWidth, 0)
		if err != nil {
			return nil, err
		}
		b.Gpot = r
	}
	if cfg.SpikeWidth > 0 {
		r, err := NewRing[int32](dev, "delay_spike", cfg.SpikeDepth, cfg.SpikeWidth, 0)
		if err != nil {
			b.Free()
			return nil, err
		}
		b.Spike = r
	}
	return b, nil
}

// Store copies the current neuron outputs into both rings. Either source may
// be nil when the matching ring is.
func (b *Buffer) Store(stream *device.Stream, gpot *device.Array[float64], spike *device.Array[int32]) error {
	if b.Gpot != nil {
		if err := b.Gpot.Store(stream, gpot); err != nil {
			return err
		}
	}
	if b.Spike != nil {
		if err := b.Spike.Store(stream, spike); err != nil {
			return err
		}
	}
	return nil
}

func (b *Buffer) Rotate() {
	if b.Gpot != nil {
		b.Gpot.Rotate()
	}
	if b.Spike != nil {
		b.Spike.Rotate()
	}
}

// Advance is Store followed by Rotate.
func (b *Buffer) Advance(stream *device.Stream, gpot *device.Array[float64], spike *device.Array[int32]) error {
	if err := b.Store(stream, gpot, spike); err != nil {
		return err
	}
	b.Rotate()
	return nil
}

// Cursors returns the current slot of each ring, zero for a nil ring.
func (b *Buffer) Cursors() (gpot, spike int) {
	if b.Gpot != nil {
		gpot = b.Gpot.Cursor()
	}
	if b.Spike != nil {
		spike = b.Spike.Cursor()
	}
	return gpot, spike
}

func (b *Buffer) Free() {
	if b.Gpot != nil {
		b.Gpot.Free()
	}
	if b.Spike != nil {
		b.Spike.Free()
	}
}
