package builder

import (
	"fmt"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/notargets/krnl/kernel"
	"github.com/notargets/krnl/scalar"
)

// GeneratedHeader marks files written by krnlc.
const GeneratedHeader = "// Code generated by krnlc. DO NOT EDIT.\n"

// CacheVarName is the package-level *cache.Embedded that generated bindings
// load kernels from. It is declared by GenerateCacheFile.
const CacheVarName = "krnlCache"

var titleCaser = cases.Title(language.Und, cases.NoLower)

// ExportedName converts a snake_case kernel name to an exported Go name,
// e.g. "reduce_sum" to "ReduceSum".
func ExportedName(name string) string {
	var sb strings.Builder
	for _, part := range strings.Split(name, "_") {
		sb.WriteString(titleCaser.String(part))
	}
	out := sb.String()
	if out == "" {
		return "X"
	}
	if r, _ := utf8.DecodeRuneInString(out); !unicode.IsLetter(r) {
		out = "X" + out
	}
	return out
}

func unexportedName(name string) string {
	exported := ExportedName(name)
	r, size := utf8.DecodeRuneInString(exported)
	return string(unicode.ToLower(r)) + exported[size:]
}

// goReserved are the identifiers generated method bodies refer to: the
// imported packages, the receivers and nil.
var goReserved = map[string]bool{
	"builder":  true,
	"dispatch": true,
	"dev":      true,
	"device":   true,
	"kernel":   true,
	"runner":   true,
	"scalar":   true,
	"cache":    true,
	"float16":  true,
	"nil":      true,
	"_":        true,
}

// goParamName avoids Go keywords and the identifiers in goReserved.
func goParamName(name string) string {
	if token.IsKeyword(name) || goReserved[name] {
		return name + "_"
	}
	return name
}

// goParamNames maps the spec and argument names of meta to distinct Go
// parameter names.
func goParamNames(meta *KernelMeta) map[string]string {
	names := make(map[string]string)
	used := make(map[string]bool)
	add := func(name string) {
		param := goParamName(name)
		for used[param] {
			param += "_"
		}
		used[param] = true
		names[name] = param
	}
	for _, s := range meta.Specs {
		add(s.Name)
	}
	for _, a := range meta.Args {
		add(a.Name)
	}
	return names
}

// HostConfig names the Go package the bindings are generated into.
type HostConfig struct {
	Package    string
	ImportPath string
}

// GenerateHost emits the Go bindings for every kernel of mod, formatted with
// go/format.
func GenerateHost(cfg HostConfig, mod *ModuleMeta) ([]byte, error) {
	if cfg.Package == "" {
		return nil, fmt.Errorf("package name is required")
	}
	var sb strings.Builder

	// 1. Header and imports
	sb.WriteString(generateHostHeader(cfg, mod))

	// 2. Per kernel: interface, builders, kernel, dispatch
	for _, meta := range mod.Kernels {
		desc := meta.Desc(QualifiedName(cfg.ImportPath, mod.Name, meta.Name))
		sb.WriteString(generateHostDesc(mod, meta, &desc))
		sb.WriteString(generateHostBuilders(meta))
		sb.WriteString(generateHostKernel(meta, &desc))
	}

	src, err := format.Source([]byte(sb.String()))
	if err != nil {
		return nil, fmt.Errorf("formatting bindings for module %s: %w", mod.Name, err)
	}
	return src, nil
}

func usesScalarType(mod *ModuleMeta, t scalar.ScalarType) bool {
	for _, meta := range mod.Kernels {
		for _, s := range meta.Specs {
			if s.ScalarType == t {
				return true
			}
		}
		for _, a := range meta.Args {
			if a.Kind != kernel.Group && a.ScalarType == t {
				return true
			}
		}
	}
	return false
}

func usesScalarPackage(mod *ModuleMeta) bool {
	for _, meta := range mod.Kernels {
		if len(meta.Specs) > 0 || len(meta.Slices()) > 0 || len(meta.Pushes()) > 0 {
			return true
		}
	}
	return false
}

func generateHostHeader(cfg HostConfig, mod *ModuleMeta) string {
	var sb strings.Builder
	sb.WriteString(GeneratedHeader)
	sb.WriteString(fmt.Sprintf("// Source: %s (module %s)\n\n", mod.File, mod.Name))
	sb.WriteString(fmt.Sprintf("package %s\n\n", cfg.Package))
	sb.WriteString("import (\n")
	if usesScalarType(mod, scalar.F16) {
		sb.WriteString("\t\"github.com/x448/float16\"\n\n")
	}
	sb.WriteString("\t\"github.com/notargets/krnl/device\"\n")
	sb.WriteString("\t\"github.com/notargets/krnl/kernel\"\n")
	sb.WriteString("\t\"github.com/notargets/krnl/runner\"\n")
	if usesScalarPackage(mod) {
		sb.WriteString("\t\"github.com/notargets/krnl/scalar\"\n")
	}
	sb.WriteString(")\n\n")
	return sb.String()
}

func scalarConst(t scalar.ScalarType) string {
	return "scalar." + t.String()
}

func featuresLiteral(desc *kernel.KernelDesc) string {
	names := desc.Features.Names()
	if len(names) == 0 {
		return "0"
	}
	for i, n := range names {
		names[i] = "device." + n
	}
	return strings.Join(names, " | ")
}

func generateHostDesc(mod *ModuleMeta, meta *KernelMeta, desc *kernel.KernelDesc) string {
	var sb strings.Builder
	descVar := unexportedName(meta.Name) + "Desc"
	sb.WriteString(fmt.Sprintf("// %s is the interface of kernel `%s` of module %s.\n", descVar, meta.Name, mod.Name))
	sb.WriteString(fmt.Sprintf("var %s = kernel.KernelDesc{\n", descVar))
	sb.WriteString(fmt.Sprintf("\tName: %q,\n", desc.Name))
	sb.WriteString(fmt.Sprintf("\tFeatures: %s,\n", featuresLiteral(desc)))
	if desc.Safety == kernel.Unsafe {
		sb.WriteString("\tSafety: kernel.Unsafe,\n")
	}
	if len(desc.SpecDescs) > 0 {
		sb.WriteString("\tSpecDescs: []kernel.SpecDesc{\n")
		for _, s := range desc.SpecDescs {
			sb.WriteString(fmt.Sprintf("\t\t{Name: %q, ScalarType: %s},\n", s.Name, scalarConst(s.ScalarType)))
		}
		sb.WriteString("\t},\n")
	}
	if len(desc.SliceDescs) > 0 {
		sb.WriteString("\tSliceDescs: []kernel.SliceDesc{\n")
		for _, s := range desc.SliceDescs {
			sb.WriteString(fmt.Sprintf("\t\t{Name: %q, ScalarType: %s, Mutable: %t, Item: %t},\n",
				s.Name, scalarConst(s.ScalarType), s.Mutable, s.Item))
		}
		sb.WriteString("\t},\n")
	}
	if len(desc.PushDescs) > 0 {
		sb.WriteString("\tPushDescs: []kernel.PushDesc{\n")
		for _, p := range desc.PushDescs {
			sb.WriteString(fmt.Sprintf("\t\t{Name: %q, ScalarType: %s},\n", p.Name, scalarConst(p.ScalarType)))
		}
		sb.WriteString("\t},\n")
	}
	sb.WriteString("}\n\n")
	sb.WriteString(fmt.Sprintf("var %sKernel = runner.NewLazyBuilder(%s, %q, %q, %s)\n\n",
		unexportedName(meta.Name), CacheVarName, mod.Name, meta.Name, descVar))
	return sb.String()
}

func generateHostBuilders(meta *KernelMeta) string {
	var sb strings.Builder
	name := ExportedName(meta.Name)
	builder := name + "Builder"
	lazy := unexportedName(meta.Name) + "Kernel"

	sb.WriteString(fmt.Sprintf("// %s configures and builds %sKernel.\n", builder, name))
	sb.WriteString(fmt.Sprintf("type %s struct {\n\tinner *runner.KernelBuilder\n}\n\n", builder))
	sb.WriteString(fmt.Sprintf("// New%s returns the builder of kernel `%s`. It fails if the kernel was\n", builder, meta.Name))
	sb.WriteString("// not compiled with krnlc or has changed since.\n")
	sb.WriteString(fmt.Sprintf("func New%s() (*%s, error) {\n", builder, builder))
	sb.WriteString(fmt.Sprintf("\tinner, err := %s.Get()\n", lazy))
	sb.WriteString("\tif err != nil {\n\t\treturn nil, err\n\t}\n")
	sb.WriteString(fmt.Sprintf("\treturn &%s{inner: inner}, nil\n}\n\n", builder))

	withThreads := func(typ string) {
		sb.WriteString("// WithThreads sets the threads per group. Zero selects the device default.\n")
		sb.WriteString(fmt.Sprintf("func (builder *%s) WithThreads(threads uint32) *%s {\n", typ, typ))
		sb.WriteString(fmt.Sprintf("\treturn &%s{inner: builder.inner.WithThreads(threads)}\n}\n\n", typ))
	}
	build := func(typ string) {
		sb.WriteString("// Build compiles the kernel for dev.\n")
		sb.WriteString(fmt.Sprintf("func (builder *%s) Build(dev device.Device) (*%sKernel, error) {\n", typ, name))
		sb.WriteString("\tinner, err := builder.inner.Build(dev)\n")
		sb.WriteString("\tif err != nil {\n\t\treturn nil, err\n\t}\n")
		sb.WriteString(fmt.Sprintf("\treturn &%sKernel{inner: inner}, nil\n}\n\n", name))
	}

	withThreads(builder)
	if len(meta.Specs) == 0 {
		build(builder)
		return sb.String()
	}

	specialized := name + "SpecializedBuilder"
	names := goParamNames(meta)
	var params, values []string
	for _, s := range meta.Specs {
		param := names[s.Name]
		params = append(params, fmt.Sprintf("%s %s", param, s.ScalarType.GoType()))
		values = append(values, fmt.Sprintf("scalar.ValueOf(%s)", param))
	}
	sb.WriteString("// Specialize fixes the specialization constants. Build is only available\n")
	sb.WriteString("// after Specialize.\n")
	sb.WriteString(fmt.Sprintf("func (builder *%s) Specialize(%s) *%s {\n", builder, strings.Join(params, ", "), specialized))
	sb.WriteString(fmt.Sprintf("\treturn &%s{inner: builder.inner.MustSpecialize(%s)}\n}\n\n", specialized, strings.Join(values, ", ")))

	sb.WriteString(fmt.Sprintf("// %s is a %s with specialization constants fixed.\n", specialized, builder))
	sb.WriteString(fmt.Sprintf("type %s struct {\n\tinner *runner.KernelBuilder\n}\n\n", specialized))
	withThreads(specialized)
	build(specialized)
	return sb.String()
}

// dispatchSignature returns the Go parameters of Dispatch in declaration
// order.
func dispatchSignature(meta *KernelMeta) string {
	names := goParamNames(meta)
	var params []string
	for _, a := range meta.Args {
		switch a.Kind {
		case kernel.Global, kernel.Item:
			view := "device.Slice"
			if a.Mutable {
				view = "device.SliceMut"
			}
			params = append(params, fmt.Sprintf("%s %s[%s]", names[a.Name], view, a.ScalarType.GoType()))
		case kernel.Push:
			params = append(params, fmt.Sprintf("%s %s", names[a.Name], a.ScalarType.GoType()))
		}
	}
	return strings.Join(params, ", ")
}

func generateDispatch(meta *KernelMeta, desc *kernel.KernelDesc, recv string) string {
	var sb strings.Builder
	method := "Dispatch"
	if desc.Safety == kernel.Unsafe {
		method = "UnsafeDispatch"
		sb.WriteString(fmt.Sprintf("// %s enqueues the kernel. The kernel is unsafe: the caller guarantees\n", method))
		sb.WriteString("// its body does not race on mutable slices.\n")
	} else {
		sb.WriteString(fmt.Sprintf("// %s enqueues the kernel.\n", method))
	}
	sb.WriteString(fmt.Sprintf("func (dispatch *%s) %s(%s) error {\n", recv, method, dispatchSignature(meta)))

	// Slices in binding order, pushes in push-constant order.
	names := goParamNames(meta)
	var slices, pushes []string
	for _, s := range desc.SliceDescs {
		slices = append(slices, names[s.Name]+".Arg()")
	}
	for _, p := range desc.PushDescs {
		pushes = append(pushes, fmt.Sprintf("scalar.ValueOf(%s)", names[p.Name]))
	}
	slicesExpr, pushesExpr := "nil", "nil"
	if len(slices) > 0 {
		slicesExpr = "[]device.SliceArg{" + strings.Join(slices, ", ") + "}"
	}
	if len(pushes) > 0 {
		pushesExpr = "[]scalar.Value{" + strings.Join(pushes, ", ") + "}"
	}
	sb.WriteString(fmt.Sprintf("\treturn dispatch.inner.Dispatch(%s, %s)\n}\n\n", slicesExpr, pushesExpr))
	return sb.String()
}

func generateHostKernel(meta *KernelMeta, desc *kernel.KernelDesc) string {
	var sb strings.Builder
	name := ExportedName(meta.Name)
	kernelType := name + "Kernel"

	sb.WriteString(fmt.Sprintf("// %s is kernel `%s` built for a device.\n", kernelType, meta.Name))
	sb.WriteString(fmt.Sprintf("type %s struct {\n\tinner *runner.Kernel\n}\n\n", kernelType))
	sb.WriteString("// Threads returns the threads per group.\n")
	sb.WriteString(fmt.Sprintf("func (dispatch *%s) Threads() uint32 {\n\treturn dispatch.inner.Threads()\n}\n\n", kernelType))

	target := kernelType
	if !meta.ItemKernel() {
		target = name + "Dispatcher"
	}
	sb.WriteString("// WithGlobalThreads sizes the dispatch to cover at least n threads.\n")
	sb.WriteString(fmt.Sprintf("func (dispatch *%s) WithGlobalThreads(n uint32) *%s {\n", kernelType, target))
	sb.WriteString(fmt.Sprintf("\treturn &%s{inner: dispatch.inner.WithGlobalThreads(n)}\n}\n\n", target))
	sb.WriteString("// WithGroups sets the number of groups to dispatch.\n")
	sb.WriteString(fmt.Sprintf("func (dispatch *%s) WithGroups(groups uint32) *%s {\n", kernelType, target))
	sb.WriteString(fmt.Sprintf("\treturn &%s{inner: dispatch.inner.WithGroups(groups)}\n}\n\n", target))

	if !meta.ItemKernel() {
		sb.WriteString(fmt.Sprintf("// %s is a %s with its dispatch size set.\n", target, kernelType))
		sb.WriteString(fmt.Sprintf("type %s struct {\n\tinner *runner.Kernel\n}\n\n", target))
	}
	sb.WriteString(generateDispatch(meta, desc, target))
	return sb.String()
}

// GenerateCacheFile emits the Go file embedding an encoded cache.
func GenerateCacheFile(pkg, version, data string) ([]byte, error) {
	if strings.Contains(data, "`") {
		return nil, fmt.Errorf("cache data contains a backquote")
	}
	var sb strings.Builder
	sb.WriteString(GeneratedHeader)
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("package %s\n\n", pkg))
	sb.WriteString("import \"github.com/notargets/krnl/cache\"\n\n")
	sb.WriteString(fmt.Sprintf("const krnlCacheVersion = %q\n\n", version))
	sb.WriteString("const krnlCacheData = `")
	if data != "" {
		sb.WriteString("\n" + data + "\n")
	}
	sb.WriteString("`\n\n")
	sb.WriteString(fmt.Sprintf("var %s = cache.Embed(krnlCacheVersion, krnlCacheData)\n", CacheVarName))
	return format.Source([]byte(sb.String()))
}

// ParseCacheFile extracts the version and data literals from a file written
// by GenerateCacheFile.
func ParseCacheFile(src []byte) (version, data string, err error) {
	f, err := parser.ParseFile(token.NewFileSet(), CacheFileName, src, 0)
	if err != nil {
		return "", "", err
	}
	consts := make(map[string]string)
	for _, decl := range f.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.CONST {
			continue
		}
		for _, spec := range gen.Specs {
			vs := spec.(*ast.ValueSpec)
			for i, name := range vs.Names {
				if i >= len(vs.Values) {
					break
				}
				lit, ok := vs.Values[i].(*ast.BasicLit)
				if !ok || lit.Kind != token.STRING {
					continue
				}
				if consts[name.Name], err = strconv.Unquote(lit.Value); err != nil {
					return "", "", err
				}
			}
		}
	}
	version, ok := consts["krnlCacheVersion"]
	if !ok {
		return "", "", fmt.Errorf("%s declares no krnlCacheVersion", CacheFileName)
	}
	data, ok = consts["krnlCacheData"]
	if !ok {
		return "", "", fmt.Errorf("%s declares no krnlCacheData", CacheFileName)
	}
	return version, data, nil
}
