package builder

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/notargets/krnl/cache"
	"github.com/notargets/krnl/kernel"
)

// Config holds configuration for creating a Builder
type Config struct {
	// ImportPath is the Go import path of the package receiving the
	// generated bindings. It prefixes every qualified kernel name.
	ImportPath string
	// Package is the Go package name of the generated bindings.
	Package string
}

// Builder collects the kernel modules of one Go package and drives code
// generation for them.
type Builder struct {
	cfg     Config
	Modules []*ModuleMeta
}

// KernelUnit is one kernel together with the module it belongs to.
type KernelUnit struct {
	Module *ModuleMeta
	Meta   *KernelMeta
	Desc   kernel.KernelDesc
}

// NewBuilder creates a new Builder instance
func NewBuilder(cfg Config) (*Builder, error) {
	if cfg.Package == "" {
		return nil, fmt.Errorf("package name cannot be empty")
	}
	return &Builder{cfg: cfg}, nil
}

// Config returns the configuration the builder was created with.
func (b *Builder) Config() Config { return b.cfg }

// AddSource analyzes a kernel source and adds its module.
func (b *Builder) AddSource(file, src string) (*ModuleMeta, error) {
	mod, err := ParseModule(file, src)
	if err != nil {
		return nil, err
	}
	if err := checkHostFileName(mod); err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	for _, m := range b.Modules {
		if m.Name == mod.Name {
			return nil, fmt.Errorf("%s: module %s is already defined in %s", file, mod.Name, m.File)
		}
	}
	b.Modules = append(b.Modules, mod)
	return mod, nil
}

// AddFile reads and adds a kernel source file.
func (b *Builder) AddFile(path string) (*ModuleMeta, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading kernel source: %w", err)
	}
	return b.AddSource(path, string(src))
}

// AddDir adds every *.krnl file of dir in name order.
func (b *Builder) AddDir(dir string) ([]*ModuleMeta, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.krnl"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	var mods []*ModuleMeta
	for _, f := range files {
		mod, err := b.AddFile(f)
		if err != nil {
			return nil, err
		}
		mods = append(mods, mod)
	}
	return mods, nil
}

// Units lists every kernel of every module with its descriptor.
func (b *Builder) Units() []KernelUnit {
	var units []KernelUnit
	for _, mod := range b.Modules {
		for _, meta := range mod.Kernels {
			units = append(units, KernelUnit{
				Module: mod,
				Meta:   meta,
				Desc:   meta.Desc(QualifiedName(b.cfg.ImportPath, mod.Name, meta.Name)),
			})
		}
	}
	return units
}

// Device emits the GLSL of the unit's kernel.
func (u KernelUnit) Device() (string, error) {
	return GenerateDevice(u.Module, u.Meta)
}

// Stem is the file name stem used for the unit's intermediate files.
func (u KernelUnit) Stem() string {
	return u.Module.Name + "_" + u.Meta.Name
}

// HostFiles generates the Go bindings, one file per module, keyed by file
// name.
func (b *Builder) HostFiles() (map[string][]byte, error) {
	files := make(map[string][]byte, len(b.Modules))
	for _, mod := range b.Modules {
		src, err := GenerateHost(HostConfig{Package: b.cfg.Package, ImportPath: b.cfg.ImportPath}, mod)
		if err != nil {
			return nil, err
		}
		files[HostFileName(mod)] = src
	}
	return files, nil
}

// HostFileName is the name of the bindings file generated for mod.
func HostFileName(mod *ModuleMeta) string {
	return "krnl_" + mod.Name + ".go"
}

// CacheFileName is the name of the generated cache file.
const CacheFileName = "krnl_cache.go"

// Suffixes the go tool reads as build constraints in a file name.
var (
	knownOS = map[string]bool{
		"aix": true, "android": true, "darwin": true, "dragonfly": true,
		"freebsd": true, "hurd": true, "illumos": true, "ios": true,
		"js": true, "linux": true, "nacl": true, "netbsd": true,
		"openbsd": true, "plan9": true, "solaris": true, "wasip1": true,
		"windows": true, "zos": true,
	}
	knownArch = map[string]bool{
		"386": true, "amd64": true, "amd64p32": true, "arm": true,
		"armbe": true, "arm64": true, "arm64be": true, "loong64": true,
		"mips": true, "mipsle": true, "mips64": true, "mips64le": true,
		"mips64p32": true, "mips64p32le": true, "ppc": true, "ppc64": true,
		"ppc64le": true, "riscv": true, "riscv64": true, "s390": true,
		"s390x": true, "sparc": true, "sparc64": true, "wasm": true,
	}
)

// checkHostFileName rejects modules whose bindings file would replace the
// cache file or be left out of an ordinary build.
func checkHostFileName(mod *ModuleMeta) error {
	file := HostFileName(mod)
	if file == CacheFileName {
		return fmt.Errorf("module name `%s` is reserved: its bindings would overwrite %s", mod.Name, CacheFileName)
	}
	parts := strings.Split(strings.TrimSuffix(file, ".go"), "_")
	last := parts[len(parts)-1]
	switch {
	case last == "test":
		return fmt.Errorf("module name `%s` would make %s a test file", mod.Name, file)
	case knownOS[last] || knownArch[last]:
		return fmt.Errorf("module name `%s` would restrict %s to %s builds", mod.Name, file, last)
	}
	return nil
}

// Cache completes the descriptors with compiled programs, keyed by qualified
// kernel name, and collects them into a cache. Every kernel must have a
// program.
func (b *Builder) Cache(version string, programs map[string][]byte) (*cache.Cache, error) {
	c := &cache.Cache{Version: version}
	for _, u := range b.Units() {
		program, ok := programs[u.Desc.Name]
		if !ok || len(program) == 0 {
			return nil, fmt.Errorf("kernel `%s` has no compiled program", u.Desc.Name)
		}
		desc := u.Desc
		desc.Program = program
		c.Kernels = append(c.Kernels, desc)
	}
	return c, nil
}

// CacheFile encodes c into the source of krnl_cache.go.
func (b *Builder) CacheFile(c *cache.Cache) ([]byte, error) {
	data, err := cache.Encode(c)
	if err != nil {
		return nil, err
	}
	return GenerateCacheFile(b.cfg.Package, c.Version, data)
}
