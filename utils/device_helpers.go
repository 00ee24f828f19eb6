package utils

import (
	"fmt"
	"sync"

	"github.com/notargets/krnl/device"
	"github.com/notargets/krnl/scalar"
)

// AllFeatures is every feature a TestDevice can offer.
const AllFeatures = device.INT8 | device.INT16 | device.INT64 | device.FLOAT16 | device.FLOAT64 |
	device.BUFFER8 | device.BUFFER16 | device.PUSH_CONSTANT8 | device.PUSH_CONSTANT16 |
	device.SUBGROUP_BASIC | device.SUBGROUP_VOTE | device.SUBGROUP_ARITHMETIC | device.SUBGROUP_BALLOT |
	device.SUBGROUP_SHUFFLE | device.SUBGROUP_SHUFFLE_RELATIVE | device.SUBGROUP_CLUSTERED | device.SUBGROUP_QUAD

// TestDevice is an in-memory device that records the programs it builds and
// the dispatches they receive. It executes nothing.
type TestDevice struct {
	Threads  uint32
	Offered  device.Features
	BuildErr error

	mu       sync.Mutex
	programs []*TestProgram
}

// CreateTestDevice creates a Device for testing offering every feature with
// 64 threads per group.
func CreateTestDevice() *TestDevice {
	return NewTestDevice(64, AllFeatures)
}

// NewTestDevice creates a TestDevice with the given defaults.
func NewTestDevice(threads uint32, features device.Features) *TestDevice {
	return &TestDevice{Threads: threads, Offered: features}
}

func (d *TestDevice) DefaultThreads() uint32    { return d.Threads }
func (d *TestDevice) Features() device.Features { return d.Offered }

// BuildProgram records spirv and returns a recording program.
func (d *TestDevice) BuildProgram(spirv []byte, features device.Features) (device.Program, error) {
	if d.BuildErr != nil {
		return nil, d.BuildErr
	}
	if !d.Offered.Contains(features) {
		return nil, fmt.Errorf("test device: unsupported features %s", features.Difference(d.Offered))
	}
	p := &TestProgram{SPIRV: append([]byte{}, spirv...), Features: features}
	d.mu.Lock()
	d.programs = append(d.programs, p)
	d.mu.Unlock()
	return p, nil
}

// Programs returns the programs built so far.
func (d *TestDevice) Programs() []*TestProgram {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*TestProgram{}, d.programs...)
}

// TestDispatch is one recorded Program.Dispatch call.
type TestDispatch struct {
	Groups uint32
	Slices []device.SliceArg
	Push   []byte
}

// TestProgram records dispatches.
type TestProgram struct {
	SPIRV    []byte
	Features device.Features

	mu         sync.Mutex
	dispatches []TestDispatch
}

func (p *TestProgram) Dispatch(groups uint32, slices []device.SliceArg, push []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dispatches = append(p.dispatches, TestDispatch{
		Groups: groups,
		Slices: append([]device.SliceArg{}, slices...),
		Push:   append([]byte{}, push...),
	})
	return nil
}

// Dispatches returns the recorded dispatches.
func (p *TestProgram) Dispatches() []TestDispatch {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]TestDispatch{}, p.dispatches...)
}

// TestBuffer is a Buffer with a length and an element type and no storage.
type TestBuffer struct {
	Type  scalar.ScalarType
	Elems int
}

// NewTestBuffer returns a buffer of n elements of type T.
func NewTestBuffer[T scalar.Scalar](n int) *TestBuffer {
	return &TestBuffer{Type: scalar.TypeOf[T](), Elems: n}
}

func (b *TestBuffer) Len() int                      { return b.Elems }
func (b *TestBuffer) ScalarType() scalar.ScalarType { return b.Type }
