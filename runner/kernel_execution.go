// File: runner/kernel_execution.go

package runner

import (
	"fmt"

	"github.com/notargets/krnl/device"
	"github.com/notargets/krnl/kernel"
	"github.com/notargets/krnl/scalar"
)

// Kernel is a kernel built for a device. WithGlobalThreads and WithGroups
// return modified copies.
type Kernel struct {
	desc    kernel.KernelDesc
	layout  kernel.PushLayout
	program device.Program
	threads uint32

	groups    uint32
	groupsSet bool
}

func newKernel(desc kernel.KernelDesc, program device.Program, threads uint32) *Kernel {
	return &Kernel{
		desc:    desc,
		layout:  desc.PushLayout(),
		program: program,
		threads: threads,
	}
}

// Desc returns the kernel descriptor.
func (k *Kernel) Desc() kernel.KernelDesc { return k.desc.Clone() }

// Threads returns the threads per group.
func (k *Kernel) Threads() uint32 { return k.threads }

// Groups returns the configured number of groups and whether it was set.
func (k *Kernel) Groups() (uint32, bool) { return k.groups, k.groupsSet }

// WithGlobalThreads returns a copy dispatching enough groups to cover n
// threads.
func (k *Kernel) WithGlobalThreads(n uint32) *Kernel {
	return k.WithGroups(groupsFor(uint64(n), k.threads))
}

// WithGroups returns a copy dispatching groups workgroups.
func (k *Kernel) WithGroups(groups uint32) *Kernel {
	out := *k
	out.groups = groups
	out.groupsSet = true
	return &out
}

func groupsFor(n uint64, threads uint32) uint32 {
	return uint32((n + uint64(threads) - 1) / uint64(threads))
}

// Dispatch validates the arguments and enqueues the kernel. slices are in
// descriptor order and pushes in PushDescs order. Item kernels without a
// configured size dispatch one thread per item. A dispatch of zero groups is
// skipped.
func (k *Kernel) Dispatch(slices []device.SliceArg, pushes []scalar.Value) error {
	push, err := buildArguments(&k.desc, k.layout, slices, pushes)
	if err != nil {
		return err
	}

	groups := k.groups
	if !k.groupsSet {
		if !k.desc.ItemKernel() {
			return fmt.Errorf("kernel `%s`: groups must be set with WithGroups or WithGlobalThreads", k.desc.Name)
		}
		groups = groupsFor(uint64(itemCount(&k.desc, slices)), k.threads)
	}
	if groups == 0 {
		return nil
	}
	if err := k.program.Dispatch(groups, slices, push); err != nil {
		return fmt.Errorf("dispatching kernel `%s`: %w", k.desc.Name, err)
	}
	return nil
}
