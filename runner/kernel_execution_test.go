package runner

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/krnl/device"
	"github.com/notargets/krnl/scalar"
	"github.com/notargets/krnl/utils"
)

func buildSaxpy(t *testing.T, threads uint32) (*Kernel, *utils.TestDevice) {
	t.Helper()
	dev := utils.CreateTestDevice()
	b, err := NewKernelBuilder(saxpyDesc())
	require.NoError(t, err)
	k, err := b.MustSpecialize(scalar.ValueOf(uint32(1))).WithThreads(threads).Build(dev)
	require.NoError(t, err)
	return k, dev
}

func buildFill(t *testing.T) (*Kernel, *utils.TestDevice) {
	t.Helper()
	dev := utils.CreateTestDevice()
	b, err := NewKernelBuilder(fillDesc())
	require.NoError(t, err)
	k, err := b.Build(dev)
	require.NoError(t, err)
	return k, dev
}

func saxpyArgs(t *testing.T, xLen, yLen int) []device.SliceArg {
	t.Helper()
	x, err := device.NewSlice[float32](utils.NewTestBuffer[float32](32), 2, xLen)
	require.NoError(t, err)
	y, err := device.NewSliceMut[float32](utils.NewTestBuffer[float32](32), 5, yLen)
	require.NoError(t, err)
	return []device.SliceArg{x.Arg(), y.Arg()}
}

func TestKernel_DispatchItemKernel(t *testing.T) {
	k, dev := buildSaxpy(t, 4)

	require.NoError(t, k.Dispatch(saxpyArgs(t, 7, 10), []scalar.Value{scalar.ValueOf(float32(2.5))}))

	d := dev.Programs()[0].Dispatches()
	require.Len(t, d, 1)
	assert.Equal(t, uint32(3), d[0].Groups, "ceil(10 items / 4 threads)")

	// alpha, then (offset, len) of x and y
	push := d[0].Push
	require.Len(t, push, 20)
	assert.Equal(t, float32(2.5), math.Float32frombits(binary.LittleEndian.Uint32(push[0:])))
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(push[4:]))
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(push[8:]))
	assert.Equal(t, uint32(5), binary.LittleEndian.Uint32(push[12:]))
	assert.Equal(t, uint32(10), binary.LittleEndian.Uint32(push[16:]))
}

func TestKernel_DispatchGroups(t *testing.T) {
	k, dev := buildFill(t)

	y, err := device.WholeMut[float64](utils.NewTestBuffer[float64](100))
	require.NoError(t, err)
	slices := []device.SliceArg{y.Arg()}
	pushes := []scalar.Value{scalar.ValueOf(1.5), scalar.ValueOf(uint8(3))}

	err = k.Dispatch(slices, pushes)
	assert.Error(t, err, "non-item kernels need an explicit size")

	require.NoError(t, k.WithGlobalThreads(100).Dispatch(slices, pushes))
	require.NoError(t, k.WithGroups(5).Dispatch(slices, pushes))
	require.NoError(t, k.WithGroups(0).Dispatch(slices, pushes))

	d := dev.Programs()[0].Dispatches()
	require.Len(t, d, 2, "zero groups must not dispatch")
	assert.Equal(t, uint32(2), d[0].Groups)
	assert.Equal(t, uint32(5), d[1].Groups)

	// value f64, n u8, three pad bytes, then y (offset, len)
	push := d[0].Push
	require.Len(t, push, 20)
	assert.Equal(t, 1.5, math.Float64frombits(binary.LittleEndian.Uint64(push[0:])))
	assert.Equal(t, byte(3), push[8])
	assert.Equal(t, []byte{0, 0, 0}, push[9:12])
	assert.Equal(t, uint32(100), binary.LittleEndian.Uint32(push[16:]))

	groups, set := k.Groups()
	assert.False(t, set)
	assert.Zero(t, groups)
}

func TestKernel_DispatchEmptyItems(t *testing.T) {
	k, dev := buildSaxpy(t, 4)
	require.NoError(t, k.Dispatch(saxpyArgs(t, 3, 0), []scalar.Value{scalar.ValueOf(float32(1))}))
	assert.Empty(t, dev.Programs()[0].Dispatches())
}

func TestKernel_DispatchLayoutErrors(t *testing.T) {
	k, _ := buildSaxpy(t, 4)
	alpha := []scalar.Value{scalar.ValueOf(float32(1))}

	immutableY, err := device.NewSlice[float32](utils.NewTestBuffer[float32](8), 0, 8)
	require.NoError(t, err)
	x, err := device.NewSlice[float32](utils.NewTestBuffer[float32](8), 0, 8)
	require.NoError(t, err)
	wrongType, err := device.NewSliceMut[int32](utils.NewTestBuffer[int32](8), 0, 8)
	require.NoError(t, err)

	outOfRange := saxpyArgs(t, 4, 4)
	outOfRange[1].Len = 100

	tests := []struct {
		name   string
		slices []device.SliceArg
		pushes []scalar.Value
	}{
		{"missing slice", saxpyArgs(t, 4, 4)[:1], alpha},
		{"missing push", saxpyArgs(t, 4, 4), nil},
		{"push type", saxpyArgs(t, 4, 4), []scalar.Value{scalar.ValueOf(1.0)}},
		{"immutable for mutable", []device.SliceArg{x.Arg(), immutableY.Arg()}, alpha},
		{"slice type", []device.SliceArg{x.Arg(), wrongType.Arg()}, alpha},
		{"out of range", outOfRange, alpha},
		{"nil buffer", []device.SliceArg{x.Arg(), {ScalarType: scalar.F32, Mutable: true}}, alpha},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := k.Dispatch(tt.slices, tt.pushes)
			var le *DispatchLayoutError
			require.True(t, errors.As(err, &le), "got %v", err)
			assert.Contains(t, le.Error(), "saxpy")
		})
	}
}

func TestKernel_MutableForImmutable(t *testing.T) {
	k, _ := buildSaxpy(t, 4)
	args := saxpyArgs(t, 4, 4)
	args[0].Mutable = true
	assert.NoError(t, k.Dispatch(args, []scalar.Value{scalar.ValueOf(float32(1))}))
}

func TestKernel_ItemLengthsMustMatch(t *testing.T) {
	desc := saxpyDesc()
	desc.SliceDescs[0].Item = true
	b, err := NewKernelBuilder(desc)
	require.NoError(t, err)
	dev := utils.CreateTestDevice()
	k, err := b.MustSpecialize(scalar.ValueOf(uint32(1))).WithThreads(4).Build(dev)
	require.NoError(t, err)
	alpha := []scalar.Value{scalar.ValueOf(float32(1))}

	err = k.Dispatch(saxpyArgs(t, 7, 10), alpha)
	var le *DispatchLayoutError
	require.True(t, errors.As(err, &le), "got %v", err)
	assert.Contains(t, err.Error(), "item slices x and y differ in length (7 != 10)")

	require.NoError(t, k.Dispatch(saxpyArgs(t, 10, 10), alpha))
	d := dev.Programs()[0].Dispatches()
	require.Len(t, d, 1)
	assert.Equal(t, uint32(3), d[0].Groups)
}
