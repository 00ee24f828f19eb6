// runner/types.go
package runner

import (
	"fmt"

	"github.com/notargets/krnl/device"
	"github.com/notargets/krnl/scalar"
)

// sliceArgument is implemented by device.Slice and device.SliceMut.
type sliceArgument interface {
	Arg() device.SliceArg
}

// argumentFromInterface classifies a dynamic argument as a slice binding or
// a scalar value.
func argumentFromInterface(v interface{}) (device.SliceArg, scalar.Value, bool, error) {
	switch a := v.(type) {
	case device.SliceArg:
		return a, scalar.Value{}, true, nil
	case sliceArgument:
		return a.Arg(), scalar.Value{}, true, nil
	}
	value, err := scalar.FromInterface(v)
	if err != nil {
		return device.SliceArg{}, scalar.Value{}, false, fmt.Errorf("unsupported argument type %T", v)
	}
	return device.SliceArg{}, value, false, nil
}

// splitArguments separates dynamic arguments into slices and push values,
// each keeping its relative order.
func splitArguments(args []interface{}) ([]device.SliceArg, []scalar.Value, error) {
	var slices []device.SliceArg
	var pushes []scalar.Value
	for i, arg := range args {
		slice, value, isSlice, err := argumentFromInterface(arg)
		if err != nil {
			return nil, nil, fmt.Errorf("argument %d: %w", i, err)
		}
		if isSlice {
			slices = append(slices, slice)
		} else {
			pushes = append(pushes, value)
		}
	}
	return slices, pushes, nil
}
