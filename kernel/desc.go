// Package kernel holds the canonical description of a kernel's interface.
// The same KernelDesc drives device code generation, host code generation,
// the cache, and dispatch.
package kernel

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/notargets/krnl/device"
	"github.com/notargets/krnl/scalar"
)

// NameSeparator separates the path segments of a qualified kernel name.
const NameSeparator = "/"

// ArgKind classifies a kernel argument.
type ArgKind uint8

const (
	Push ArgKind = iota
	Global
	Item
	Group
)

// String returns the attribute spelling of k; Push has none.
func (k ArgKind) String() string {
	switch k {
	case Global:
		return "global"
	case Item:
		return "item"
	case Group:
		return "group"
	default:
		return "push"
	}
}

// HasBinding reports whether arguments of kind k are bound as storage
// buffers.
func (k ArgKind) HasBinding() bool {
	return k == Global || k == Item
}

type Safety uint8

const (
	Safe Safety = iota
	Unsafe
)

func (s Safety) String() string {
	if s == Unsafe {
		return "unsafe"
	}
	return "safe"
}

type SpecDesc struct {
	Name       string            `msgpack:"name"`
	ScalarType scalar.ScalarType `msgpack:"scalar_type"`
}

type SliceDesc struct {
	Name       string            `msgpack:"name"`
	ScalarType scalar.ScalarType `msgpack:"scalar_type"`
	Mutable    bool              `msgpack:"mutable"`
	Item       bool              `msgpack:"item"`
}

type PushDesc struct {
	Name       string            `msgpack:"name"`
	ScalarType scalar.ScalarType `msgpack:"scalar_type"`
}

// KernelDesc describes a kernel's interface and, once compiled, its SPIR-V.
type KernelDesc struct {
	Name       string          `msgpack:"name"`
	Program    []byte          `msgpack:"program"`
	Features   device.Features `msgpack:"features"`
	Safety     Safety          `msgpack:"safety"`
	SpecDescs  []SpecDesc      `msgpack:"spec_descs"`
	SliceDescs []SliceDesc     `msgpack:"slice_descs"`
	PushDescs  []PushDesc      `msgpack:"push_descs"`
}

// Completed reports whether the program bytes have been filled in.
func (d *KernelDesc) Completed() bool {
	return len(d.Program) > 0
}

// ShortName returns the last segment of the qualified name.
func (d *KernelDesc) ShortName() string {
	return d.Name[strings.LastIndex(d.Name, NameSeparator)+1:]
}

// ItemKernel reports whether any slice is item-addressed.
func (d *KernelDesc) ItemKernel() bool {
	for _, s := range d.SliceDescs {
		if s.Item {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of d.
func (d *KernelDesc) Clone() KernelDesc {
	out := KernelDesc{
		Name:     d.Name,
		Features: d.Features,
		Safety:   d.Safety,
	}
	if d.Program != nil {
		out.Program = append([]byte{}, d.Program...)
	}
	if d.SpecDescs != nil {
		out.SpecDescs = append([]SpecDesc{}, d.SpecDescs...)
	}
	if d.SliceDescs != nil {
		out.SliceDescs = append([]SliceDesc{}, d.SliceDescs...)
	}
	if d.PushDescs != nil {
		out.PushDescs = append([]PushDesc{}, d.PushDescs...)
	}
	return out
}

// Interface returns a copy of d without its program bytes.
func (d *KernelDesc) Interface() KernelDesc {
	out := d.Clone()
	out.Program = nil
	return out
}

// Equal compares every field, program bytes included. Nil and empty lists
// compare equal.
func (d *KernelDesc) Equal(o *KernelDesc) bool {
	return d.SameInterface(o) && bytes.Equal(d.Program, o.Program)
}

// SameInterface compares everything except the program bytes.
func (d *KernelDesc) SameInterface(o *KernelDesc) bool {
	if d.Name != o.Name || d.Features != o.Features || d.Safety != o.Safety {
		return false
	}
	if len(d.SpecDescs) != len(o.SpecDescs) ||
		len(d.SliceDescs) != len(o.SliceDescs) ||
		len(d.PushDescs) != len(o.PushDescs) {
		return false
	}
	for i := range d.SpecDescs {
		if d.SpecDescs[i] != o.SpecDescs[i] {
			return false
		}
	}
	for i := range d.SliceDescs {
		if d.SliceDescs[i] != o.SliceDescs[i] {
			return false
		}
	}
	for i := range d.PushDescs {
		if d.PushDescs[i] != o.PushDescs[i] {
			return false
		}
	}
	return true
}

// SortPushDescs orders pushes by descending byte size, keeping the
// declaration order of equal sizes.
func SortPushDescs(pushes []PushDesc) {
	sort.SliceStable(pushes, func(i, j int) bool {
		return pushes[i].ScalarType.Size() > pushes[j].ScalarType.Size()
	})
}

// Validate checks the structural invariants of d.
func (d *KernelDesc) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("kernel descriptor has no name")
	}
	for i := 1; i < len(d.PushDescs); i++ {
		if d.PushDescs[i].ScalarType.Size() > d.PushDescs[i-1].ScalarType.Size() {
			return fmt.Errorf("kernel `%s`: push %q is not sorted by size", d.Name, d.PushDescs[i].Name)
		}
	}
	seen := make(map[string]bool)
	check := func(name string, t scalar.ScalarType) error {
		if !t.Valid() {
			return fmt.Errorf("kernel `%s`: %q has invalid scalar type", d.Name, name)
		}
		if seen[name] {
			return fmt.Errorf("kernel `%s`: duplicate name %q", d.Name, name)
		}
		seen[name] = true
		return nil
	}
	for _, s := range d.SpecDescs {
		if err := check(s.Name, s.ScalarType); err != nil {
			return err
		}
	}
	for _, s := range d.SliceDescs {
		if err := check(s.Name, s.ScalarType); err != nil {
			return err
		}
	}
	for _, p := range d.PushDescs {
		if err := check(p.Name, p.ScalarType); err != nil {
			return err
		}
	}
	return nil
}

// Describe renders the interface on one line, e.g.
// "axpy/saxpy(x: [f32], y: &mut [f32] item, alpha: f32)".
func (d *KernelDesc) Describe() string {
	var parts []string
	for _, s := range d.SpecDescs {
		parts = append(parts, fmt.Sprintf("const %s: %s", s.Name, s.ScalarType.Name()))
	}
	for _, s := range d.SliceDescs {
		ref := "&"
		if s.Mutable {
			ref = "&mut "
		}
		part := fmt.Sprintf("%s: %s[%s]", s.Name, ref, s.ScalarType.Name())
		if s.Item {
			part += " item"
		}
		parts = append(parts, part)
	}
	for _, p := range d.PushDescs {
		parts = append(parts, fmt.Sprintf("%s: %s", p.Name, p.ScalarType.Name()))
	}
	prefix := ""
	if d.Safety == Unsafe {
		prefix = "unsafe "
	}
	return fmt.Sprintf("%s%s(%s)", prefix, d.Name, strings.Join(parts, ", "))
}
