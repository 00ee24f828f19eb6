package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/krnl"
	"github.com/notargets/krnl/cache"
	"github.com/notargets/krnl/runner/builder"
)

const axpyKernels = `module axpy;

@kernel fn saxpy<const SCALE: u32>(@global x: Slice<f32>, @item y: &mut f32, alpha: f32) {
    y += alpha * x(kernel.item_id) * float(SCALE);
}

@kernel unsafe fn scale(@global y: UnsafeSlice<f32>, factor: f32) {
    y(kernel.global_id) *= factor;
}
`

// fakeCompiler writes a header-only SPIR-V module to the file following -o.
const fakeCompiler = `#!/bin/sh
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "-o" ]; then out="$2"; shift; fi
  shift
done
printf '\003\002\043\007\000\000\001\000\000\000\000\000\001\000\000\000\000\000\000\000' > "$out"
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	deviceKernel = ""
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append(args, "--quiet"))
	err := rootCmd.Execute()
	return out.String(), err
}

func kernelDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "axpy.krnl"), []byte(axpyKernels), 0644))
	return dir
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "krnlc v"+krnl.Version)
}

func TestDeviceCommand(t *testing.T) {
	dir := kernelDir(t)
	file := filepath.Join(dir, "axpy.krnl")

	out, err := execute(t, "device", file)
	require.NoError(t, err)
	assert.Contains(t, out, "// axpy/saxpy: generated by krnlc, do not edit.")
	assert.Contains(t, out, "// axpy/scale: generated by krnlc, do not edit.")

	out, err = execute(t, "device", file, "--kernel", "scale")
	require.NoError(t, err)
	assert.NotContains(t, out, "axpy/saxpy")
	assert.Contains(t, out, "void scale(KernelInfo kernel, float factor)")

	_, err = execute(t, "device", file, "--kernel", "missing")
	assert.ErrorContains(t, err, "kernel `missing` not found")
}

func TestGenerateCommand(t *testing.T) {
	dir := kernelDir(t)

	_, err := execute(t, "generate", dir, "--package", "kernels", "--import-path", "")
	require.NoError(t, err)

	bindings, err := os.ReadFile(filepath.Join(dir, "krnl_axpy.go"))
	require.NoError(t, err)
	assert.Contains(t, string(bindings), "package kernels")
	assert.Contains(t, string(bindings), "func NewSaxpyBuilder()")

	src, err := os.ReadFile(filepath.Join(dir, builder.CacheFileName))
	require.NoError(t, err)
	version, data, err := builder.ParseCacheFile(src)
	require.NoError(t, err)
	assert.Equal(t, krnl.Version, version)
	assert.Empty(t, data)

	out, err := execute(t, "inspect", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "0 kernels")

	_, err = execute(t, "generate", t.TempDir(), "--package", "kernels")
	assert.ErrorContains(t, err, "no .krnl files")
}

func TestCompileCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake compiler is a shell script")
	}
	dir := kernelDir(t)
	compiler := filepath.Join(t.TempDir(), "fake-glslang")
	require.NoError(t, os.WriteFile(compiler, []byte(fakeCompiler), 0755))

	_, err := execute(t, "compile", dir, "--package", "kernels", "--import-path", "", "--glslang", compiler)
	require.NoError(t, err)

	src, err := os.ReadFile(filepath.Join(dir, builder.CacheFileName))
	require.NoError(t, err)
	_, data, err := builder.ParseCacheFile(src)
	require.NoError(t, err)
	c, err := cache.Decode(data)
	require.NoError(t, err)
	require.Len(t, c.Kernels, 2)
	desc, err := c.Find("axpy", "scale")
	require.NoError(t, err)
	assert.Len(t, desc.Program, 20)

	out, err := execute(t, "inspect", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "2 kernels")
	assert.Contains(t, out, "unsafe axpy/scale(y: &mut [f32], factor: f32)")
	assert.Contains(t, out, "20 bytes")

	_, err = execute(t, "compile", dir, "--package", "kernels", "--glslang", "false")
	assert.ErrorContains(t, err, "compiling kernel `saxpy` of module axpy")
}
