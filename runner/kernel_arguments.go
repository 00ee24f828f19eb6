package runner

import (
	"math"

	"github.com/notargets/krnl/device"
	"github.com/notargets/krnl/kernel"
	"github.com/notargets/krnl/scalar"
)

// validateSlices checks slices against the slice descriptors and returns the
// (offset, len) pairs carried in the push-constant block.
func validateSlices(desc *kernel.KernelDesc, slices []device.SliceArg) ([][2]uint32, error) {
	if len(slices) != len(desc.SliceDescs) {
		return nil, layoutError(desc, "expected %d slices, got %d", len(desc.SliceDescs), len(slices))
	}
	bounds := make([][2]uint32, len(slices))
	for i, arg := range slices {
		sd := desc.SliceDescs[i]
		switch {
		case arg.Buffer == nil:
			return nil, layoutError(desc, "slice %s has no buffer", sd.Name)
		case arg.ScalarType != sd.ScalarType:
			return nil, layoutError(desc, "slice %s expects %s, got %s",
				sd.Name, sd.ScalarType.Name(), arg.ScalarType.Name())
		case arg.Buffer.ScalarType() != sd.ScalarType:
			return nil, layoutError(desc, "slice %s is backed by a %s buffer",
				sd.Name, arg.Buffer.ScalarType().Name())
		case sd.Mutable && !arg.Mutable:
			return nil, layoutError(desc, "slice %s must be mutable", sd.Name)
		case arg.Offset < 0 || arg.Len < 0 || arg.Offset+arg.Len > arg.Buffer.Len():
			return nil, layoutError(desc, "slice %s range [%d, %d) exceeds buffer of length %d",
				sd.Name, arg.Offset, arg.Offset+arg.Len, arg.Buffer.Len())
		case uint64(arg.Offset) > math.MaxUint32 || uint64(arg.Len) > math.MaxUint32:
			return nil, layoutError(desc, "slice %s exceeds 32-bit addressing", sd.Name)
		}
		bounds[i] = [2]uint32{uint32(arg.Offset), uint32(arg.Len)}
	}
	first := -1
	for i, sd := range desc.SliceDescs {
		if !sd.Item {
			continue
		}
		if first < 0 {
			first = i
			continue
		}
		if slices[i].Len != slices[first].Len {
			return nil, layoutError(desc, "item slices %s and %s differ in length (%d != %d)",
				desc.SliceDescs[first].Name, sd.Name, slices[first].Len, slices[i].Len)
		}
	}
	return bounds, nil
}

func validatePushes(desc *kernel.KernelDesc, pushes []scalar.Value) error {
	if len(pushes) != len(desc.PushDescs) {
		return layoutError(desc, "expected %d push constants, got %d", len(desc.PushDescs), len(pushes))
	}
	for i, v := range pushes {
		pd := desc.PushDescs[i]
		if v.Type != pd.ScalarType {
			return layoutError(desc, "push constant %s expects %s, got %s",
				pd.Name, pd.ScalarType.Name(), v.Type.Name())
		}
	}
	return nil
}

// itemCount is the number of items of an item kernel. validateSlices has
// checked that every item slice has this length.
func itemCount(desc *kernel.KernelDesc, slices []device.SliceArg) int {
	for i, sd := range desc.SliceDescs {
		if sd.Item {
			return slices[i].Len
		}
	}
	return 0
}

// buildArguments validates a dispatch and packs its push-constant block.
func buildArguments(desc *kernel.KernelDesc, layout kernel.PushLayout,
	slices []device.SliceArg, pushes []scalar.Value) ([]byte, error) {
	bounds, err := validateSlices(desc, slices)
	if err != nil {
		return nil, err
	}
	if err := validatePushes(desc, pushes); err != nil {
		return nil, err
	}
	if layout.Empty() {
		return nil, nil
	}
	push, err := layout.Pack(pushes, bounds)
	if err != nil {
		return nil, layoutError(desc, "%v", err)
	}
	return push, nil
}
