package builder

import (
	"strings"

	"github.com/notargets/krnl/kernel"
)

// QualifiedName joins a Go import path, module name and kernel name into the
// name stored in descriptors. An empty import path is omitted.
func QualifiedName(importPath, module, name string) string {
	var parts []string
	if importPath != "" {
		parts = append(parts, strings.Trim(importPath, kernel.NameSeparator))
	}
	parts = append(parts, module, name)
	return strings.Join(parts, kernel.NameSeparator)
}

// Desc reduces m to its canonical descriptor. The program bytes are left
// empty; the offline compiler fills them in.
func (m *KernelMeta) Desc(qualifiedName string) kernel.KernelDesc {
	desc := kernel.KernelDesc{
		Name:     qualifiedName,
		Features: m.Features,
		Safety:   m.Safety,
	}
	for _, s := range m.Specs {
		desc.SpecDescs = append(desc.SpecDescs, kernel.SpecDesc{Name: s.Name, ScalarType: s.ScalarType})
	}
	for _, a := range m.Args {
		switch a.Kind {
		case kernel.Global, kernel.Item:
			desc.SliceDescs = append(desc.SliceDescs, kernel.SliceDesc{
				Name:       a.Name,
				ScalarType: a.ScalarType,
				Mutable:    a.Mutable,
				Item:       a.Kind == kernel.Item,
			})
		case kernel.Push:
			desc.PushDescs = append(desc.PushDescs, kernel.PushDesc{Name: a.Name, ScalarType: a.ScalarType})
		}
	}
	kernel.SortPushDescs(desc.PushDescs)
	return desc
}
