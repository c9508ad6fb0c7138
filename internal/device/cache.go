package device

import "sync"

// KernelKey describes a compiled kernel variant.
type KernelKey struct {
	Op         string
	DType      DType
	IndexDType DType
	Offset     int
}

// KernelCache holds compiled kernels for the lifetime of one engine.
type KernelCache struct {
	mu      sync.Mutex
	kernels map[KernelKey]any
	builds  int
}

func NewKernelCache() *KernelCache {
	return &KernelCache{kernels: make(map[KernelKey]any)}
}

// Get returns the kernel for key, building it on first use.
func (c *KernelCache) Get(key KernelKey, build func() any) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	if k, ok := c.kernels[key]; ok {
		return k
	}
	k := build()
	c.kernels[key] = k
	c.builds++
	return k
}

func (c *KernelCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.kernels)
}

// Builds counts how many kernels were compiled.
func (c *KernelCache) Builds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.builds
}

// Reset drops every cached kernel.
func (c *KernelCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kernels = make(map[KernelKey]any)
}
