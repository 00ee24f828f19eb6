package runner

import (
	"fmt"

	"github.com/notargets/krnl/kernel"
)

// DispatchLayoutError reports dispatch arguments that do not match the
// kernel's descriptor.
type DispatchLayoutError struct {
	Kernel string
	Msg    string
}

func (e *DispatchLayoutError) Error() string {
	return fmt.Sprintf("kernel `%s`: %s", e.Kernel, e.Msg)
}

func layoutError(desc *kernel.KernelDesc, format string, args ...interface{}) *DispatchLayoutError {
	return &DispatchLayoutError{Kernel: desc.Name, Msg: fmt.Sprintf(format, args...)}
}

// KernelMismatchError reports a cached kernel whose interface differs from
// the one the bindings were generated for.
type KernelMismatchError struct {
	Kernel   string
	Cached   string
	Expected string
}

func (e *KernelMismatchError) Error() string {
	return fmt.Sprintf("kernel `%s` has changed, recompile with krnlc (cached %s, expected %s)",
		e.Kernel, e.Cached, e.Expected)
}

// SpecializationError reports invalid specialization values.
type SpecializationError struct {
	Kernel string
	Msg    string
}

func (e *SpecializationError) Error() string {
	return fmt.Sprintf("kernel `%s`: %s", e.Kernel, e.Msg)
}
