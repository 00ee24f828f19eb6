package builder

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/krnl/device"
	"github.com/notargets/krnl/scalar"
)

func generateHost(t *testing.T, src string) string {
	t.Helper()
	mod, err := ParseModule("axpy.krnl", src)
	require.NoError(t, err)
	out, err := GenerateHost(HostConfig{Package: "kernels", ImportPath: "example.com/app/kernels"}, mod)
	require.NoError(t, err)

	_, err = parser.ParseFile(token.NewFileSet(), "krnl_axpy.go", out, parser.ParseComments)
	require.NoError(t, err)
	return string(out)
}

func TestGenerateHost(t *testing.T) {
	src := generateHost(t, axpySource)

	assert.True(t, strings.HasPrefix(src, GeneratedHeader))
	assert.NotContains(t, src, "float16")

	fragments := []string{
		"// Source: axpy.krnl (module axpy)\n",
		"package kernels\n",
		`"github.com/notargets/krnl/scalar"`,

		// saxpy: specialized item kernel
		`"example.com/app/kernels/axpy/saxpy"`,
		"var saxpyKernel = runner.NewLazyBuilder(krnlCache, \"axpy\", \"saxpy\", saxpyDesc)\n",
		"func NewSaxpyBuilder() (*SaxpyBuilder, error) {\n",
		"func (builder *SaxpyBuilder) WithThreads(threads uint32) *SaxpyBuilder {\n",
		"func (builder *SaxpyBuilder) Specialize(SCALE uint32) *SaxpySpecializedBuilder {\n",
		"return &SaxpySpecializedBuilder{inner: builder.inner.MustSpecialize(scalar.ValueOf(SCALE))}\n",
		"func (builder *SaxpySpecializedBuilder) Build(dev device.Device) (*SaxpyKernel, error) {\n",
		"func (dispatch *SaxpyKernel) WithGroups(groups uint32) *SaxpyKernel {\n",
		"func (dispatch *SaxpyKernel) Dispatch(x device.Slice[float32], y device.SliceMut[float32], alpha float32) error {\n",
		"return dispatch.inner.Dispatch([]device.SliceArg{x.Arg(), y.Arg()}, []scalar.Value{scalar.ValueOf(alpha)})\n",

		// reduce: unsafe, dispatch size required
		"kernel.Unsafe",
		"device.SUBGROUP_BASIC | device.SUBGROUP_ARITHMETIC",
		"func (dispatch *ReduceKernel) WithGlobalThreads(n uint32) *ReduceDispatcher {\n",
		"type ReduceDispatcher struct {\n",
		"func (dispatch *ReduceDispatcher) UnsafeDispatch(src device.Slice[float32], dst device.SliceMut[float32], count uint32) error {\n",

		// fill: no specialization, pushes in push-constant order
		"device.INT8 | device.INT64 | device.FLOAT64 | device.PUSH_CONSTANT8",
		"func (builder *FillBuilder) Build(dev device.Device) (*FillKernel, error) {\n",
		"func (dispatch *FillDispatcher) Dispatch(y device.SliceMut[float64], value float64, n uint8) error {\n",
		"return dispatch.inner.Dispatch([]device.SliceArg{y.Arg()}, []scalar.Value{scalar.ValueOf(value), scalar.ValueOf(n)})\n",
	}
	for _, f := range fragments {
		assert.Contains(t, src, f)
	}
	assert.NotContains(t, src, "FillSpecializedBuilder")
	assert.NotContains(t, src, "SaxpyDispatcher")
}

func TestGenerateHostNames(t *testing.T) {
	src := generateHost(t, "@kernel fn half_sum(@global type: Slice<f16>, @global dev: UnsafeSlice<u16>, range: f16) {}")

	assert.Contains(t, src, `"github.com/x448/float16"`)
	assert.Contains(t, src, "var halfSumDesc = kernel.KernelDesc{")
	assert.Contains(t, src, "func NewHalfSumBuilder() (*HalfSumBuilder, error) {")
	assert.Contains(t, src,
		"func (dispatch *HalfSumDispatcher) Dispatch(type_ device.Slice[float16.Float16], dev_ device.SliceMut[uint16], range_ float16.Float16) error {")
	assert.Contains(t, src, "[]device.SliceArg{type_.Arg(), dev_.Arg()}")
}

func TestGenerateHostEmptyKernel(t *testing.T) {
	src := generateHost(t, "@kernel fn noop() {}")

	assert.NotContains(t, src, `"github.com/notargets/krnl/scalar"`)
	assert.Contains(t, src, "Features: 0,")
	assert.Contains(t, src, "return dispatch.inner.Dispatch(nil, nil)")
}

func TestGenerateHostRequiresPackage(t *testing.T) {
	mod, err := ParseModule("m.krnl", "@kernel fn noop() {}")
	require.NoError(t, err)
	_, err = GenerateHost(HostConfig{}, mod)
	assert.Error(t, err)
}

func TestExportedName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"saxpy", "Saxpy"},
		{"reduce_sum", "ReduceSum"},
		{"_private", "Private"},
		{"x2_y", "X2Y"},
		{"alreadyCamel", "AlreadyCamel"},
		{"", "X"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ExportedName(tt.in))
		})
	}
	assert.Equal(t, "reduceSum", unexportedName("reduce_sum"))
}

func TestGoParamName(t *testing.T) {
	assert.Equal(t, "x", goParamName("x"))
	assert.Equal(t, "func_", goParamName("func"))
	assert.Equal(t, "builder_", goParamName("builder"))
	assert.Equal(t, "dispatch_", goParamName("dispatch"))
	assert.Equal(t, "device_", goParamName("device"))
	assert.Equal(t, "scalar_", goParamName("scalar"))
	assert.Equal(t, "nil_", goParamName("nil"))
}

func TestGoParamNamesDistinct(t *testing.T) {
	meta, err := DefineKernel("m", "k", []SpecMeta{{Name: "runner", ScalarType: scalar.U32}},
		Global("device").Of(scalar.F32),
		Global("device_").Of(scalar.F32),
		Push("runner_").Of(scalar.U32),
	)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"runner":  "runner_",
		"device":  "device_",
		"device_": "device__",
		"runner_": "runner__",
	}, goParamNames(meta))
}

func TestGenerateCacheFile(t *testing.T) {
	out, err := GenerateCacheFile("kernels", "0.3.0", "abc\ndef")
	require.NoError(t, err)
	src := string(out)

	_, err = parser.ParseFile(token.NewFileSet(), "krnl_cache.go", out, 0)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(src, GeneratedHeader))
	assert.Contains(t, src, "package kernels\n")
	assert.Contains(t, src, "const krnlCacheVersion = \"0.3.0\"\n")
	assert.Contains(t, src, "const krnlCacheData = `\nabc\ndef\n`\n")
	assert.Contains(t, src, "var krnlCache = cache.Embed(krnlCacheVersion, krnlCacheData)\n")

	out, err = GenerateCacheFile("kernels", "0.3.0", "")
	require.NoError(t, err)
	assert.Contains(t, string(out), "const krnlCacheData = ``\n")

	_, err = GenerateCacheFile("kernels", "0.3.0", "a`b")
	assert.Error(t, err)
}

func TestParseCacheFile(t *testing.T) {
	out, err := GenerateCacheFile("kernels", "0.3.1", "abc\ndef")
	require.NoError(t, err)

	version, data, err := ParseCacheFile(out)
	require.NoError(t, err)
	assert.Equal(t, "0.3.1", version)
	assert.Equal(t, "\nabc\ndef\n", data)

	_, _, err = ParseCacheFile([]byte("package kernels\n\nconst krnlCacheVersion = \"0.3.0\"\n"))
	assert.ErrorContains(t, err, "krnlCacheData")

	_, _, err = ParseCacheFile([]byte("not go"))
	assert.Error(t, err)
}

// apiStubs declares the parts of the krnl packages that generated bindings
// use, in dependency order, so generated files can be type-checked without
// loading the real packages.
func apiStubs() [][2]string {
	var scalars, features strings.Builder
	for _, st := range scalar.All() {
		fmt.Fprintf(&scalars, "const %s ScalarType = %d\n", st, uint8(st))
	}
	for i, name := range device.Features(^uint32(0)).Names() {
		fmt.Fprintf(&features, "const %s Features = %d\n", name, i)
	}
	return [][2]string{
		{"github.com/x448/float16", "package float16\ntype Float16 uint16\n"},
		{"github.com/notargets/krnl/scalar", `package scalar
type ScalarType uint8
` + scalars.String() + `
type BFloat16 uint16
type Value struct{ bits uint64 }
func ValueOf[T any](v T) Value { return Value{} }
`},
		{"github.com/notargets/krnl/device", `package device
type Features uint32
` + features.String() + `
type Device interface{ Features() Features }
type SliceArg struct{ Len int }
type Slice[T any] struct{ len int }
func (s Slice[T]) Arg() SliceArg { return SliceArg{} }
type SliceMut[T any] struct{ Slice[T] }
`},
		{"github.com/notargets/krnl/kernel", `package kernel
import (
	"github.com/notargets/krnl/device"
	"github.com/notargets/krnl/scalar"
)
type Safety uint8
const (
	Safe Safety = iota
	Unsafe
)
type SpecDesc struct {
	Name       string
	ScalarType scalar.ScalarType
}
type SliceDesc struct {
	Name       string
	ScalarType scalar.ScalarType
	Mutable    bool
	Item       bool
}
type PushDesc struct {
	Name       string
	ScalarType scalar.ScalarType
}
type KernelDesc struct {
	Name       string
	Program    []byte
	Features   device.Features
	Safety     Safety
	SpecDescs  []SpecDesc
	SliceDescs []SliceDesc
	PushDescs  []PushDesc
}
`},
		{"github.com/notargets/krnl/cache", `package cache
type Embedded struct{ Data string }
func Embed(version, data string) *Embedded { return &Embedded{Data: data} }
`},
		{"github.com/notargets/krnl/runner", `package runner
import (
	"github.com/notargets/krnl/cache"
	"github.com/notargets/krnl/device"
	"github.com/notargets/krnl/kernel"
	"github.com/notargets/krnl/scalar"
)
type LazyBuilder struct{ c *cache.Embedded }
func NewLazyBuilder(c *cache.Embedded, module, name string, iface kernel.KernelDesc) *LazyBuilder {
	return &LazyBuilder{c: c}
}
func (l *LazyBuilder) Get() (*KernelBuilder, error) { return &KernelBuilder{}, nil }
type KernelBuilder struct{ threads uint32 }
func (b *KernelBuilder) WithThreads(threads uint32) *KernelBuilder      { return b }
func (b *KernelBuilder) MustSpecialize(values ...scalar.Value) *KernelBuilder { return b }
func (b *KernelBuilder) Build(dev device.Device) (*Kernel, error)     { return &Kernel{}, nil }
type Kernel struct{ threads uint32 }
func (k *Kernel) Threads() uint32                  { return k.threads }
func (k *Kernel) WithGlobalThreads(n uint32) *Kernel { return k }
func (k *Kernel) WithGroups(groups uint32) *Kernel   { return k }
func (k *Kernel) Dispatch(slices []device.SliceArg, pushes []scalar.Value) error { return nil }
`},
	}
}

type stubImporter map[string]*types.Package

func (m stubImporter) Import(path string) (*types.Package, error) {
	if pkg, ok := m[path]; ok {
		return pkg, nil
	}
	return nil, fmt.Errorf("no stub for %s", path)
}

// typeCheckBindings type-checks the generated bindings of src together with
// an empty cache file as package kernels.
func typeCheckBindings(t *testing.T, src string) error {
	t.Helper()
	fset := token.NewFileSet()
	imp := stubImporter{}
	for _, stub := range apiStubs() {
		f, err := parser.ParseFile(fset, stub[0]+"/stub.go", stub[1], 0)
		require.NoError(t, err, stub[0])
		conf := types.Config{Importer: imp}
		pkg, err := conf.Check(stub[0], fset, []*ast.File{f}, nil)
		require.NoError(t, err, stub[0])
		imp[stub[0]] = pkg
	}

	bindings := generateHost(t, src)
	cacheFile, err := GenerateCacheFile("kernels", "0.3.0", "")
	require.NoError(t, err)
	var files []*ast.File
	for name, text := range map[string]string{"krnl_m.go": bindings, "krnl_cache.go": string(cacheFile)} {
		f, err := parser.ParseFile(fset, name, text, 0)
		require.NoError(t, err)
		files = append(files, f)
	}
	conf := types.Config{Importer: imp}
	_, err = conf.Check("example.com/app/kernels", fset, files, nil)
	return err
}

func TestGenerateHostTypeChecks(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"axpy", axpySource},
		{"package names as arguments",
			"@kernel fn k<const runner: u32>(@global device: Slice<f32>, @global device_: UnsafeSlice<f32>, scalar: f32, kernel_: u32, nil: i32) {}"},
		{"receivers as arguments", "@kernel fn k(@item dispatch: &mut f16, builder: f16, float16: u8) {}"},
		{"no arguments", "@kernel fn noop() {}"},
		{"bf16 push only", "@kernel fn k(v: bf16) {}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, typeCheckBindings(t, tt.src))
		})
	}
}
