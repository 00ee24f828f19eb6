package builder

import (
	"fmt"

	"github.com/notargets/krnl/device"
	"github.com/notargets/krnl/kernel"
	"github.com/notargets/krnl/scalar"
)

// NoBinding is the binding of Group and Push arguments.
const NoBinding = -1

// ArgMeta describes one kernel argument after analysis.
type ArgMeta struct {
	Kind       kernel.ArgKind
	Name       string
	ScalarType scalar.ScalarType
	Mutable    bool
	// Binding is the storage-buffer binding for Global and Item arguments
	// and NoBinding otherwise.
	Binding int
	// Len is set for Group arguments only.
	Len *LenExpr
	Pos Pos
}

// HasBinding reports whether a is bound as a storage buffer.
func (a ArgMeta) HasBinding() bool {
	return a.Binding != NoBinding
}

// SpecMeta is a specialization constant. ID is its declaration index.
type SpecMeta struct {
	Name       string
	ScalarType scalar.ScalarType
	ID         int
}

// ParamBuilder provides a fluent interface for building kernel arguments
type ParamBuilder struct {
	Spec ArgMeta
}

func newParam(kind kernel.ArgKind, name string) *ParamBuilder {
	return &ParamBuilder{Spec: ArgMeta{Kind: kind, Name: name, Binding: NoBinding}}
}

// Global creates an argument addressed by the whole invocation
func Global(name string) *ParamBuilder { return newParam(kernel.Global, name) }

// Item creates an argument addressed per item
func Item(name string) *ParamBuilder { return newParam(kernel.Item, name) }

// Group creates a workgroup-shared array argument; group arrays are always
// mutable
func Group(name string) *ParamBuilder {
	p := newParam(kernel.Group, name)
	p.Spec.Mutable = true
	return p
}

// Push creates a push-constant scalar argument
func Push(name string) *ParamBuilder { return newParam(kernel.Push, name) }

// Of sets the scalar type
func (p *ParamBuilder) Of(t scalar.ScalarType) *ParamBuilder {
	p.Spec.ScalarType = t
	return p
}

// Mut marks a Global or Item argument as mutable
func (p *ParamBuilder) Mut() *ParamBuilder {
	p.Spec.Mutable = true
	return p
}

// Len sets the length of a Group argument
func (p *ParamBuilder) Len(e *LenExpr) *ParamBuilder {
	p.Spec.Len = e
	return p
}

// At records where the argument was declared
func (p *ParamBuilder) At(pos Pos) *ParamBuilder {
	p.Spec.Pos = pos
	return p
}

// Validate checks that the argument declaration is consistent
func (p *ParamBuilder) Validate() error {
	s := p.Spec
	if s.Name == "" {
		return fmt.Errorf("argument name is required")
	}
	if why := reservedName(s.Name); why != "" {
		return fmt.Errorf("argument name `%s` %s", s.Name, why)
	}
	if !s.ScalarType.Valid() {
		return fmt.Errorf("argument `%s`: missing scalar type", s.Name)
	}
	switch s.Kind {
	case kernel.Group:
		if s.Len == nil {
			return fmt.Errorf("group argument `%s` requires a length", s.Name)
		}
		if !s.Mutable {
			return fmt.Errorf("group argument `%s` must be mutable", s.Name)
		}
	case kernel.Push:
		if s.Mutable {
			return fmt.Errorf("push argument `%s` cannot be mutable", s.Name)
		}
		fallthrough
	default:
		if s.Len != nil {
			return fmt.Errorf("argument `%s`: only group arguments take a length", s.Name)
		}
	}
	return nil
}

// KernelMeta is the analyzed signature of one kernel.
type KernelMeta struct {
	Module   string
	Name     string
	Safety   kernel.Safety
	Features device.Features
	Specs    []SpecMeta
	Args     []ArgMeta
	// Body is the GLSL body text between the kernel's braces.
	Body     string
	BodyLine int
	Pos      Pos
}

// DefineKernel validates the arguments, assigns bindings and returns the
// kernel's metadata. Features are inferred from the argument types; callers
// add explicitly requested and body-derived features afterwards.
func DefineKernel(module, name string, specs []SpecMeta, params ...*ParamBuilder) (*KernelMeta, error) {
	if name == "" {
		return nil, fmt.Errorf("kernel name is required")
	}
	if why := reservedName(name); why != "" {
		return nil, fmt.Errorf("kernel name `%s` %s", name, why)
	}
	meta := &KernelMeta{Module: module, Name: name}

	seen := make(map[string]bool)
	for i, s := range specs {
		if why := reservedName(s.Name); why != "" {
			return nil, fmt.Errorf("kernel `%s`: specialization name `%s` %s", name, s.Name, why)
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("kernel `%s`: duplicate name `%s`", name, s.Name)
		}
		if !s.ScalarType.Valid() {
			return nil, fmt.Errorf("kernel `%s`: specialization `%s` has no scalar type", name, s.Name)
		}
		seen[s.Name] = true
		s.ID = i
		meta.Specs = append(meta.Specs, s)
	}

	binding := 0
	for _, p := range params {
		arg := p.Spec
		if err := p.Validate(); err != nil {
			return nil, argError(name, arg, err)
		}
		if seen[arg.Name] {
			return nil, argError(name, arg, fmt.Errorf("duplicate name `%s`", arg.Name))
		}
		seen[arg.Name] = true
		if arg.Kind.HasBinding() {
			arg.Binding = binding
			binding++
		} else {
			arg.Binding = NoBinding
		}
		if arg.Kind == kernel.Group {
			if err := CheckLenExpr(arg.Len, meta.Specs); err != nil {
				return nil, argError(name, arg, fmt.Errorf("group argument `%s`: %w", arg.Name, err))
			}
		}
		meta.Args = append(meta.Args, arg)
	}

	// x_len is defined for every Global and Group argument x
	for _, a := range meta.Args {
		if a.Kind != kernel.Global && a.Kind != kernel.Group {
			continue
		}
		if seen[a.Name+"_len"] {
			return nil, argError(name, a, fmt.Errorf("`%s_len` is already the length of `%s`", a.Name, a.Name))
		}
	}

	meta.Features = typeFeatures(meta)
	return meta, nil
}

// argError attaches the argument's source position when it has one.
func argError(kernelName string, arg ArgMeta, err error) error {
	if arg.Pos.Line > 0 {
		return &SignatureError{Pos: arg.Pos, Msg: err.Error()}
	}
	return fmt.Errorf("kernel `%s`: %w", kernelName, err)
}

// ItemKernel reports whether the body runs under the item loop.
func (m *KernelMeta) ItemKernel() bool {
	for _, a := range m.Args {
		if a.Kind == kernel.Item {
			return true
		}
	}
	return false
}

// Slices returns the Global and Item arguments in binding order.
func (m *KernelMeta) Slices() []ArgMeta {
	var out []ArgMeta
	for _, a := range m.Args {
		if a.HasBinding() {
			out = append(out, a)
		}
	}
	return out
}

// Pushes returns the Push arguments in declaration order.
func (m *KernelMeta) Pushes() []ArgMeta {
	var out []ArgMeta
	for _, a := range m.Args {
		if a.Kind == kernel.Push {
			out = append(out, a)
		}
	}
	return out
}

// GroupArray is the shared array backing every Group argument of one
// scalar type.
type GroupArray struct {
	ScalarType scalar.ScalarType
	Args       []ArgMeta
}

// Name is the device-side array name.
func (g GroupArray) Name() string {
	return "__krnl_group_array_" + g.ScalarType.Name()
}

// GroupArrays groups the Group arguments by scalar type, in order of first
// appearance.
func (m *KernelMeta) GroupArrays() []GroupArray {
	var out []GroupArray
	index := make(map[scalar.ScalarType]int)
	for _, a := range m.Args {
		if a.Kind != kernel.Group {
			continue
		}
		i, ok := index[a.ScalarType]
		if !ok {
			i = len(out)
			index[a.ScalarType] = i
			out = append(out, GroupArray{ScalarType: a.ScalarType})
		}
		out[i].Args = append(out[i].Args, a)
	}
	return out
}

// Safe reports whether the kernel was declared without `unsafe`.
func (m *KernelMeta) Safe() bool { return m.Safety == kernel.Safe }
