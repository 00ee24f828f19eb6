package runner

import (
	"fmt"
	"sort"
	"sync"

	"github.com/notargets/krnl/cache"
	"github.com/notargets/krnl/device"
	"github.com/notargets/krnl/scalar"
)

// Runner builds and dispatches kernels by name, without generated bindings.
// It is meant for tools and tests.
type Runner struct {
	Device device.Device
	Cache  *cache.Cache

	mu                sync.RWMutex
	kernelDefinitions map[string]*KernelDefinition
}

// NewRunner creates a new Runner instance
func NewRunner(dev device.Device, c *cache.Cache) *Runner {
	return &Runner{
		Device:            dev,
		Cache:             c,
		kernelDefinitions: make(map[string]*KernelDefinition),
	}
}

// DefineKernel looks up kernel name of module in the cache, specializes it
// with specs in declaration order and builds it. Threads of zero selects the
// device default. The kernel is registered under its name.
func (r *Runner) DefineKernel(module, name string, threads uint32, specs ...interface{}) error {
	desc, err := r.Cache.Find(module, name)
	if err != nil {
		return err
	}
	builder, err := NewKernelBuilder(desc)
	if err != nil {
		return err
	}
	values := make([]scalar.Value, len(specs))
	for i, s := range specs {
		if values[i], err = scalar.FromInterface(s); err != nil {
			return fmt.Errorf("kernel `%s`: spec %d: %w", name, i, err)
		}
	}
	if len(desc.SpecDescs) > 0 || len(values) > 0 {
		if builder, err = builder.Specialize(values...); err != nil {
			return err
		}
	}
	k, err := builder.WithThreads(threads).Build(r.Device)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.kernelDefinitions[name]; exists {
		return fmt.Errorf("kernel %s already defined", name)
	}
	r.kernelDefinitions[name] = &KernelDefinition{Module: module, Name: name, Kernel: k}
	return nil
}

// GetKernelDefinition returns a defined kernel.
func (r *Runner) GetKernelDefinition(name string) (*KernelDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.kernelDefinitions[name]
	return def, ok
}

// KernelNames lists the defined kernels in name order.
func (r *Runner) KernelNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.kernelDefinitions))
	for name := range r.kernelDefinitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunKernel dispatches a defined kernel. args hold slices (device.Slice,
// device.SliceMut or device.SliceArg) in descriptor order and scalars in
// push-constant order; the two may be interleaved. groups of zero dispatches
// one thread per item for item kernels.
func (r *Runner) RunKernel(name string, groups uint32, args ...interface{}) error {
	def, exists := r.GetKernelDefinition(name)
	if !exists {
		return fmt.Errorf("kernel %s not defined - use DefineKernel first", name)
	}
	slices, pushes, err := splitArguments(args)
	if err != nil {
		return fmt.Errorf("kernel %s: %w", name, err)
	}
	k := def.Kernel
	if groups > 0 {
		k = k.WithGroups(groups)
	}
	return k.Dispatch(slices, pushes)
}
