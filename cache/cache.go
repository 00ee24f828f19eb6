// Package cache encodes compiled kernel descriptors into text that can be
// embedded in generated Go source, and decodes it again at run time.
package cache

import (
	"slices"
	"strings"

	"github.com/notargets/krnl/kernel"
)

// Cache is the set of kernels compiled by one krnlc run.
type Cache struct {
	Version string              `msgpack:"version"`
	Kernels []kernel.KernelDesc `msgpack:"kernels"`
}

// Find returns a copy of the first compiled kernel named name whose module
// path contains module. Module paths are compared segment by segment, so
// "kernels" matches "github.com/x/kernels/y" but not "mykernels".
func (c *Cache) Find(module, name string) (kernel.KernelDesc, error) {
	var want []string
	if module != "" {
		want = strings.Split(strings.Trim(module, kernel.NameSeparator), kernel.NameSeparator)
	}
	for i := range c.Kernels {
		desc := &c.Kernels[i]
		if !desc.Completed() {
			continue
		}
		segments := strings.Split(desc.Name, kernel.NameSeparator)
		if segments[len(segments)-1] != name {
			continue
		}
		if containsRun(segments[:len(segments)-1], want) {
			return desc.Clone(), nil
		}
	}
	return kernel.KernelDesc{}, &KernelNotFoundError{Module: module, Kernel: name}
}

// containsRun reports whether run occurs as consecutive elements of path.
func containsRun(path, run []string) bool {
	for offset := 0; offset+len(run) <= len(path); offset++ {
		if slices.Equal(path[offset:offset+len(run)], run) {
			return true
		}
	}
	return false
}

// Names lists the qualified names of the cached kernels.
func (c *Cache) Names() []string {
	names := make([]string, len(c.Kernels))
	for i := range c.Kernels {
		names[i] = c.Kernels[i].Name
	}
	return names
}
