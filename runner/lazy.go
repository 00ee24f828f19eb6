package runner

import (
	"sync"

	"github.com/notargets/krnl/cache"
	"github.com/notargets/krnl/kernel"
)

// LazyBuilder loads one kernel from an embedded cache on first use. Generated
// bindings declare one per kernel.
type LazyBuilder struct {
	cache  *cache.Embedded
	module string
	name   string
	iface  kernel.KernelDesc

	once    sync.Once
	builder *KernelBuilder
	err     error
}

// NewLazyBuilder returns a loader for kernel name of module. iface is the
// interface the caller was generated against.
func NewLazyBuilder(c *cache.Embedded, module, name string, iface kernel.KernelDesc) *LazyBuilder {
	return &LazyBuilder{cache: c, module: module, name: name, iface: iface.Interface()}
}

// Get returns the kernel builder. The cache is decoded, searched and checked
// once; later calls return the same result.
func (l *LazyBuilder) Get() (*KernelBuilder, error) {
	l.once.Do(func() {
		l.builder, l.err = l.load()
	})
	return l.builder, l.err
}

func (l *LazyBuilder) load() (*KernelBuilder, error) {
	c, err := l.cache.MustLoad()
	if err != nil {
		return nil, err
	}
	desc, err := c.Find(l.module, l.name)
	if err != nil {
		return nil, err
	}
	cached := desc.Interface()
	if !cached.SameInterface(&l.iface) {
		return nil, &KernelMismatchError{
			Kernel:   l.name,
			Cached:   cached.Describe(),
			Expected: l.iface.Describe(),
		}
	}
	return NewKernelBuilder(desc)
}
