package device

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/c2h5oh/datasize"
)

var (
	ErrViewRange = errors.New("view out of range")
	ErrFreed     = errors.New("array already freed")
	ErrLength    = errors.New("length mismatch")
)

// DType identifies the element type of a device array.
type DType int

const (
	Float64 DType = iota + 1
	Int32
)

func (d DType) String() string {
	switch d {
	case Float64:
		return "float64"
	case Int32:
		return "int32"
	default:
		return fmt.Sprintf("dtype(%d)", int(d))
	}
}

// Size returns the element size in bytes.
func (d DType) Size() int {
	switch d {
	case Float64:
		return 8
	case Int32:
		return 4
	default:
		return 0
	}
}

// Elem is the set of element types a device array can hold.
type Elem interface {
	float64 | int32
}

// DTypeOf returns the DType of T.
func DTypeOf[T Elem]() DType {
	var zero T
	switch any(zero).(type) {
	case float64:
		return Float64
	case int32:
		return Int32
	}
	return 0
}

// Buffer is the type-erased view of an array used for dtype checks before a
// kernel launch.
type Buffer interface {
	DType() DType
	Len() int
}

// Device owns device-resident allocations and accounts for their size.
type Device struct {
	ordinal   int
	logger    *slog.Logger
	allocated atomic.Int64
	arrays    atomic.Int64
}

func NewDevice(ordinal int, logger *slog.Logger) *Device {
	if logger == nil {
		logger = slog.Default()
	}
	return &Device{
		ordinal: ordinal,
		logger:  logger.With(slog.String("component", "device"), slog.Int("ordinal", ordinal)),
	}
}

func (d *Device) Ordinal() int {
	return d.ordinal
}

// Allocated returns the bytes currently held by live arrays.
func (d *Device) Allocated() datasize.ByteSize {
	return datasize.ByteSize(d.allocated.Load())
}

// Live returns the number of arrays not yet freed.
func (d *Device) Live() int {
	return int(d.arrays.Load())
}

func (d *Device) track(name string, bytes int64) {
	d.allocated.Add(bytes)
	d.arrays.Add(1)
	d.logger.Debug("allocate",
		slog.String("array", name),
		slog.String("size", datasize.ByteSize(bytes).HumanReadable()),
		slog.String("total", d.Allocated().HumanReadable()))
}

func (d *Device) untrack(bytes int64) {
	d.allocated.Add(-bytes)
	d.arrays.Add(-1)
}

// Array is a contiguous device-resident array. Its contents may only be
// touched by kernels running on a stream, or by the host after the stream
// has been synchronized.
type Array[T Elem] struct {
	dev   *Device
	name  string
	data  []T
	freed bool
}

// Alloc returns a zero-filled array of n elements.
func Alloc[T Elem](dev *Device, name string, n int) *Array[T] {
	if n < 0 {
		n = 0
	}
	a := &Array[T]{dev: dev, name: name, data: make([]T, n)}
	if dev != nil {
		dev.track(name, int64(n*DTypeOf[T]().Size()))
	}
	return a
}

// FromHost allocates an array holding a copy of vals.
func FromHost[T Elem](dev *Device, name string, vals []T) *Array[T] {
	a := Alloc[T](dev, name, len(vals))
	copy(a.data, vals)
	return a
}

func (a *Array[T]) Name() string {
	return a.name
}

func (a *Array[T]) DType() DType {
	return DTypeOf[T]()
}

func (a *Array[T]) Len() int {
	return len(a.data)
}

// Data exposes device memory to kernels.
func (a *Array[T]) Data() []T {
	return a.data
}

// Get copies the array back to the host.
func (a *Array[T]) Get() []T {
	out := make([]T, len(a.data))
	copy(out, a.data)
	return out
}

// Set copies vals from the host into the array.
func (a *Array[T]) Set(vals []T) error {
	if a.freed {
		return fmt.Errorf("%w: %s", ErrFreed, a.name)
	}
	if len(vals) != len(a.data) {
		return fmt.Errorf("%w: %s has %d elements, got %d", ErrLength, a.name, len(a.data), len(vals))
	}
	copy(a.data, vals)
	return nil
}

// View returns the sub-array [offset, offset+n).
func (a *Array[T]) View(offset, n int) (View[T], error) {
	if offset < 0 || n < 0 || offset+n > len(a.data) {
		return View[T]{}, fmt.Errorf("%w: %s[%d:%d] of %d", ErrViewRange, a.name, offset, offset+n, len(a.data))
	}
	return View[T]{owner: a, offset: offset, n: n}, nil
}

// Free releases the allocation. Freeing twice is a no-op.
func (a *Array[T]) Free() {
	if a == nil || a.freed {
		return
	}
	a.freed = true
	if a.dev != nil {
		a.dev.untrack(int64(len(a.data) * DTypeOf[T]().Size()))
	}
	a.data = nil
}

// View is a window into an owning array.
type View[T Elem] struct {
	owner  *Array[T]
	offset int
	n      int
}

func (v View[T]) Owner() *Array[T] {
	return v.owner
}

func (v View[T]) Offset() int {
	return v.offset
}

func (v View[T]) Len() int {
	return v.n
}

// Slice exposes the viewed device memory; capacity is clipped to the view.
func (v View[T]) Slice() []T {
	if v.owner == nil {
		return nil
	}
	return v.owner.data[v.offset : v.offset+v.n : v.offset+v.n]
}
