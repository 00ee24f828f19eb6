package builder

import (
	"fmt"
	"strings"

	"github.com/notargets/krnl/kernel"
)

// ArgSignature renders a single argument the way it is written in a .krnl
// source.
func ArgSignature(a ArgMeta) string {
	t := a.ScalarType.Name()
	switch a.Kind {
	case kernel.Global:
		if a.Mutable {
			return fmt.Sprintf("@global %s: UnsafeSlice<%s>", a.Name, t)
		}
		return fmt.Sprintf("@global %s: Slice<%s>", a.Name, t)
	case kernel.Item:
		if a.Mutable {
			return fmt.Sprintf("@item %s: &mut %s", a.Name, t)
		}
		return fmt.Sprintf("@item %s: %s", a.Name, t)
	case kernel.Group:
		length := ""
		if a.Len != nil {
			length = a.Len.String()
			switch a.Len.root.(type) {
			case lenLit, lenIdent:
			default:
				length = "{ " + length + " }"
			}
		}
		return fmt.Sprintf("@group %s: UnsafeSlice<%s, %s>", a.Name, t, length)
	default:
		return fmt.Sprintf("%s: %s", a.Name, t)
	}
}

// Signature renders the kernel declaration without its body, e.g.
//
//	@kernel fn axpy<const N: u32>(@global x: Slice<f32>, alpha: f32)
func (m *KernelMeta) Signature() string {
	var sb strings.Builder
	sb.WriteString("@kernel ")
	if !m.Safe() {
		sb.WriteString("unsafe ")
	}
	sb.WriteString("fn ")
	sb.WriteString(m.Name)
	if len(m.Specs) > 0 {
		specs := make([]string, len(m.Specs))
		for i, s := range m.Specs {
			specs[i] = fmt.Sprintf("const %s: %s", s.Name, s.ScalarType.Name())
		}
		sb.WriteString("<" + strings.Join(specs, ", ") + ">")
	}
	args := make([]string, len(m.Args))
	for i, a := range m.Args {
		args[i] = ArgSignature(a)
	}
	sb.WriteString("(" + strings.Join(args, ", ") + ")")
	return sb.String()
}

// DispatchSignature renders the Go signature of the generated dispatch
// method.
func (m *KernelMeta) DispatchSignature() string {
	method := "Dispatch"
	if !m.Safe() {
		method = "UnsafeDispatch"
	}
	return fmt.Sprintf("%s(%s) error", method, dispatchSignature(m))
}
