// Package device declares the execution environment that krnl kernels run
// on. A GPU runtime satisfies Device, Program and Buffer; krnl itself never
// allocates memory or submits work.
package device

import (
	"fmt"

	"github.com/notargets/krnl/scalar"
)

// Device is a GPU able to build compute programs.
type Device interface {
	// DefaultThreads is the threads-per-group used when a kernel builder does
	// not set one.
	DefaultThreads() uint32
	Features() Features
	// BuildProgram creates a program from specialized SPIR-V words.
	BuildProgram(spirv []byte, features Features) (Program, error)
}

// Program is a compiled, device-bound compute program.
type Program interface {
	// Dispatch enqueues groups workgroups. slices are bound to bindings
	// 0..len(slices)-1 and push is the raw push-constant block.
	Dispatch(groups uint32, slices []SliceArg, push []byte) error
}

// Buffer is runtime-owned device memory.
type Buffer interface {
	// Len returns the length in elements.
	Len() int
	ScalarType() scalar.ScalarType
}

// SliceArg is an untyped slice binding handed to Program.Dispatch.
type SliceArg struct {
	Buffer     Buffer
	ScalarType scalar.ScalarType
	Offset     int
	Len        int
	Mutable    bool
}

// CapabilityError reports that a device lacks features a kernel requires.
type CapabilityError struct {
	Kernel   string
	Required Features
	Offered  Features
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("kernel `%s` requires %s, device offers %s (missing %s)",
		e.Kernel, e.Required, e.Offered, e.Missing())
}

// Missing returns the required features the device does not offer.
func (e *CapabilityError) Missing() Features {
	return e.Required.Difference(e.Offered)
}

// CheckFeatures returns a *CapabilityError if dev does not offer every
// feature in required.
func CheckFeatures(kernel string, dev Device, required Features) error {
	offered := dev.Features()
	if !offered.Contains(required) {
		return &CapabilityError{Kernel: kernel, Required: required, Offered: offered}
	}
	return nil
}
