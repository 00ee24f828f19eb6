package runner

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/krnl/device"
	"github.com/notargets/krnl/kernel"
	"github.com/notargets/krnl/scalar"
	"github.com/notargets/krnl/utils"
)

func TestNewKernelBuilder_RequiresProgram(t *testing.T) {
	desc := saxpyDesc()
	desc.Program = nil
	_, err := NewKernelBuilder(desc)
	assert.Error(t, err)
}

func TestKernelBuilder_Build(t *testing.T) {
	dev := utils.CreateTestDevice()
	b, err := NewKernelBuilder(saxpyDesc())
	require.NoError(t, err)

	k, err := b.MustSpecialize(scalar.ValueOf(uint32(3))).Build(dev)
	require.NoError(t, err)
	assert.Equal(t, uint32(64), k.Threads())

	programs := dev.Programs()
	require.Len(t, programs, 1)
	defaults := specDefaults(t, programs[0].SPIRV)
	assert.Equal(t, []uint32{3}, defaults[scaleResultID])
	assert.Equal(t, []uint32{64}, defaults[threadsResultID])
}

func TestKernelBuilder_WithThreads(t *testing.T) {
	dev := utils.CreateTestDevice()
	b, err := NewKernelBuilder(fillDesc())
	require.NoError(t, err)

	k, err := b.WithThreads(128).Build(dev)
	require.NoError(t, err)
	assert.Equal(t, uint32(128), k.Threads())
	assert.Equal(t, uint32(0), b.Threads(), "WithThreads must not modify the receiver")
	assert.Equal(t, []uint32{128}, specDefaults(t, dev.Programs()[0].SPIRV)[threadsResultID])
}

func TestKernelBuilder_MissingFeatures(t *testing.T) {
	dev := utils.NewTestDevice(64, device.INT8|device.PUSH_CONSTANT8)
	b, err := NewKernelBuilder(fillDesc())
	require.NoError(t, err)

	_, err = b.Build(dev)
	var ce *device.CapabilityError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, device.FLOAT64, ce.Missing())
	assert.Empty(t, dev.Programs())
}

func TestKernelBuilder_Specialize(t *testing.T) {
	b, err := NewKernelBuilder(saxpyDesc())
	require.NoError(t, err)

	tests := []struct {
		name   string
		values []scalar.Value
		ok     bool
	}{
		{"exact", []scalar.Value{scalar.ValueOf(uint32(1))}, true},
		{"too few", nil, false},
		{"too many", []scalar.Value{scalar.ValueOf(uint32(1)), scalar.ValueOf(uint32(2))}, false},
		{"wrong type", []scalar.Value{scalar.ValueOf(int32(1))}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Specialize(tt.values...)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			var se *SpecializationError
			assert.True(t, errors.As(err, &se))
		})
	}

	assert.Panics(t, func() { b.MustSpecialize() })

	_, err = b.Build(utils.CreateTestDevice())
	var se *SpecializationError
	assert.True(t, errors.As(err, &se), "building without specializing must fail")
}

func TestKernelBuilder_ProgramCache(t *testing.T) {
	dev := utils.CreateTestDevice()
	b, err := NewKernelBuilder(saxpyDesc())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := b.MustSpecialize(scalar.ValueOf(uint32(i%2))).Build(dev)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Len(t, b.programs.entries, 2)
	assert.Len(t, dev.Programs(), 8)
}

func TestKernelBuilder_ZeroThreads(t *testing.T) {
	b, err := NewKernelBuilder(fillDesc())
	require.NoError(t, err)
	_, err = b.Build(utils.NewTestDevice(0, utils.AllFeatures))
	assert.Error(t, err)
}

func TestKernelBuilder_DescIsCopy(t *testing.T) {
	b, err := NewKernelBuilder(saxpyDesc())
	require.NoError(t, err)
	d := b.Desc()
	d.SliceDescs[0].Name = "changed"
	assert.Equal(t, "x", b.Desc().SliceDescs[0].Name)
	assert.Equal(t, kernel.Safe, d.Safety)
}
