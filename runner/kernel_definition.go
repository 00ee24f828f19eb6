package runner

import (
	"fmt"

	"github.com/notargets/krnl/kernel"
)

// KernelDefinition holds all information about a kernel defined on a Runner
type KernelDefinition struct {
	Module string
	Name   string
	Kernel *Kernel
}

// Desc returns the descriptor of the defined kernel.
func (d *KernelDefinition) Desc() kernel.KernelDesc { return d.Kernel.Desc() }

// Signature describes the arguments RunKernel expects: slices in descriptor
// order followed by push constants in push-constant order.
func (d *KernelDefinition) Signature() string {
	desc := d.Kernel.Desc()
	return fmt.Sprintf("%s (threads %d)", desc.Describe(), d.Kernel.Threads())
}
