package runner

import (
	"fmt"
	"strings"
	"sync"

	"github.com/notargets/krnl/device"
	"github.com/notargets/krnl/kernel"
	"github.com/notargets/krnl/scalar"
)

// KernelBuilder configures a compiled kernel before it is built for a
// device. Its methods return modified copies; a KernelBuilder is safe for
// concurrent use.
type KernelBuilder struct {
	desc    kernel.KernelDesc
	threads uint32
	specs   []scalar.Value

	programs *programCache
}

// programCache memoizes specialized SPIR-V per (threads, spec values). It is
// shared by every copy of a KernelBuilder.
type programCache struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewKernelBuilder returns a builder for a completed descriptor.
func NewKernelBuilder(desc kernel.KernelDesc) (*KernelBuilder, error) {
	if !desc.Completed() {
		return nil, fmt.Errorf("kernel `%s` has no program", desc.Name)
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	return &KernelBuilder{
		desc:     desc,
		programs: &programCache{entries: make(map[string][]byte)},
	}, nil
}

// Desc returns the kernel descriptor.
func (b *KernelBuilder) Desc() kernel.KernelDesc { return b.desc.Clone() }

// Threads returns the configured threads per group, zero for the device
// default.
func (b *KernelBuilder) Threads() uint32 { return b.threads }

// Specialized reports whether every specialization constant has a value.
func (b *KernelBuilder) Specialized() bool {
	return len(b.desc.SpecDescs) == 0 || len(b.specs) == len(b.desc.SpecDescs)
}

// WithThreads returns a copy using threads per group. Zero selects the
// device default.
func (b *KernelBuilder) WithThreads(threads uint32) *KernelBuilder {
	out := *b
	out.threads = threads
	return &out
}

// Specialize returns a copy with the specialization constants set, in
// declaration order.
func (b *KernelBuilder) Specialize(values ...scalar.Value) (*KernelBuilder, error) {
	if len(values) != len(b.desc.SpecDescs) {
		return nil, &SpecializationError{
			Kernel: b.desc.Name,
			Msg:    fmt.Sprintf("expected %d specialization values, got %d", len(b.desc.SpecDescs), len(values)),
		}
	}
	for i, v := range values {
		spec := b.desc.SpecDescs[i]
		if v.Type != spec.ScalarType {
			return nil, &SpecializationError{
				Kernel: b.desc.Name,
				Msg:    fmt.Sprintf("%s expects %s, got %s", spec.Name, spec.ScalarType.Name(), v.Type.Name()),
			}
		}
	}
	out := *b
	out.specs = append([]scalar.Value{}, values...)
	return &out, nil
}

// MustSpecialize is like Specialize but panics on error. Generated bindings
// use it where the Go types already guarantee valid values.
func (b *KernelBuilder) MustSpecialize(values ...scalar.Value) *KernelBuilder {
	out, err := b.Specialize(values...)
	if err != nil {
		panic(err)
	}
	return out
}

// Build checks the device features, specializes the program and builds it on
// dev.
func (b *KernelBuilder) Build(dev device.Device) (*Kernel, error) {
	if err := device.CheckFeatures(b.desc.Name, dev, b.desc.Features); err != nil {
		return nil, err
	}
	if !b.Specialized() {
		return nil, &SpecializationError{Kernel: b.desc.Name, Msg: "kernel must be specialized before it is built"}
	}
	threads := b.threads
	if threads == 0 {
		threads = dev.DefaultThreads()
	}
	if threads == 0 {
		return nil, fmt.Errorf("kernel `%s`: device reports zero default threads", b.desc.Name)
	}

	spirv, err := b.specializedProgram(threads)
	if err != nil {
		return nil, fmt.Errorf("specializing kernel `%s`: %w", b.desc.Name, err)
	}
	program, err := dev.BuildProgram(spirv, b.desc.Features)
	if err != nil {
		return nil, fmt.Errorf("building kernel `%s`: %w", b.desc.Name, err)
	}
	return newKernel(b.desc, program, threads), nil
}

func (b *KernelBuilder) cacheKey(threads uint32) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d", threads)
	for _, v := range b.specs {
		fmt.Fprintf(&sb, ",%d:%x", v.Type, v.Bits())
	}
	return sb.String()
}

// specializedProgram patches the spec constants and the threads constant,
// which follows them, into the program. Results are memoized.
func (b *KernelBuilder) specializedProgram(threads uint32) ([]byte, error) {
	key := b.cacheKey(threads)

	b.programs.mu.RLock()
	spirv, ok := b.programs.entries[key]
	b.programs.mu.RUnlock()
	if ok {
		return spirv, nil
	}

	b.programs.mu.Lock()
	defer b.programs.mu.Unlock()
	if spirv, ok := b.programs.entries[key]; ok {
		return spirv, nil
	}
	values := make(map[uint32][]uint32, len(b.specs)+1)
	for i, v := range b.specs {
		values[uint32(i)] = v.Words()
	}
	values[uint32(len(b.desc.SpecDescs))] = []uint32{threads}

	spirv, err := SpecializeSPIRV(b.desc.Program, values)
	if err != nil {
		return nil, err
	}
	b.programs.entries[key] = spirv
	return spirv, nil
}
