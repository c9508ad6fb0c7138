// Package port moves values between a unit's packed state and the shared
// port arrays owned by the inter-unit transport.
package port

import (
	"errors"
	"fmt"

	"lpukit/internal/device"
)

var (
	ErrDTypeMismatch = errors.New("dtype mismatch")
	ErrIndexDType    = errors.New("index arrays must be int32")
	ErrIndexRange    = errors.New("port index out of range")
	ErrUnsupported   = errors.New("unsupported port array")
)

// Gateway issues gather and scatter kernels on one stream. Compiled kernels
// are cached per gateway for its lifetime.
type Gateway struct {
	stream  *device.Stream
	cache   *device.KernelCache
	workers int
}

func NewGateway(stream *device.Stream, cache *device.KernelCache, workers int) *Gateway {
	if cache == nil {
		cache = device.NewKernelCache()
	}
	return &Gateway{stream: stream, cache: cache, workers: workers}
}

type gatherFn[T device.Elem] func(external, internal []T, idx []int32) error

type scatterFn[T device.Elem] func(internal, external []T, src, dst []int32, n int) error

// Gather sets internal[i+offset] = external[idx[i]] for every i in idx.
func (g *Gateway) Gather(external, internal device.Buffer, idx *device.Array[int32], offset int) error {
	if external.DType() != internal.DType() {
		return fmt.Errorf("%w: gather %s into %s", ErrDTypeMismatch, external.DType(), internal.DType())
	}
	if idx == nil || idx.Len() == 0 {
		return nil
	}
	if offset < 0 || offset+idx.Len() > internal.Len() {
		return fmt.Errorf("%w: %d entries at offset %d into %d", ErrIndexRange, idx.Len(), offset, internal.Len())
	}
	key := device.KernelKey{Op: "gather", DType: external.DType(), IndexDType: device.Int32, Offset: offset}
	switch ext := external.(type) {
	case *device.Array[float64]:
		return launchGather(g, key, ext, internal.(*device.Array[float64]), idx, offset)
	case *device.Array[int32]:
		return launchGather(g, key, ext, internal.(*device.Array[int32]), idx, offset)
	default:
		return fmt.Errorf("%w: %T", ErrUnsupported, external)
	}
}

// Scatter sets external[dst[i]] = internal[src[i]] for i in [0, n).
func (g *Gateway) Scatter(internal, external device.Buffer, src, dst *device.Array[int32], n int) error {
	if external.DType() != internal.DType() {
		return fmt.Errorf("%w: scatter %s into %s", ErrDTypeMismatch, internal.DType(), external.DType())
	}
	if n == 0 {
		return nil
	}
	if src == nil || dst == nil || n < 0 || n > src.Len() || n > dst.Len() {
		return fmt.Errorf("%w: scatter count %d", ErrIndexRange, n)
	}
	key := device.KernelKey{Op: "scatter", DType: internal.DType(), IndexDType: device.Int32}
	switch in := internal.(type) {
	case *device.Array[float64]:
		return launchScatter(g, key, in, external.(*device.Array[float64]), src, dst, n)
	case *device.Array[int32]:
		return launchScatter(g, key, in, external.(*device.Array[int32]), src, dst, n)
	default:
		return fmt.Errorf("%w: %T", ErrUnsupported, internal)
	}
}

func launchGather[T device.Elem](g *Gateway, key device.KernelKey, external, internal *device.Array[T], idx *device.Array[int32], offset int) error {
	workers := g.workers
	fn := g.cache.Get(key, func() any {
		return gatherFn[T](func(ext, in []T, idx []int32) error {
			return device.ParallelFor(len(idx), workers, func(lo, hi int) error {
				for i := lo; i < hi; i++ {
					j := int(idx[i])
					if j < 0 || j >= len(ext) {
						return fmt.Errorf("%w: %d of %d", ErrIndexRange, j, len(ext))
					}
					in[i+offset] = ext[j]
				}
				return nil
			})
		})
	}).(gatherFn[T])
	return g.stream.Launch("port.gather."+internal.Name(), func() error {
		return fn(external.Data(), internal.Data(), idx.Data())
	})
}

func launchScatter[T device.Elem](g *Gateway, key device.KernelKey, internal, external *device.Array[T], src, dst *device.Array[int32], n int) error {
	workers := g.workers
	fn := g.cache.Get(key, func() any {
		return scatterFn[T](func(in, ext []T, src, dst []int32, n int) error {
			return device.ParallelFor(n, workers, func(lo, hi int) error {
				for i := lo; i < hi; i++ {
					s, d := int(src[i]), int(dst[i])
					if s < 0 || s >= len(in) || d < 0 || d >= len(ext) {
						return fmt.Errorf("%w: %d -> %d", ErrIndexRange, s, d)
					}
					ext[d] = in[s]
				}
				return nil
			})
		})
	}).(scatterFn[T])
	return g.stream.Launch("port.scatter."+external.Name(), func() error {
		return fn(internal.Data(), external.Data(), src.Data(), dst.Data(), n)
	})
}
