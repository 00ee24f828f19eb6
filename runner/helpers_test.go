package runner

import (
	"github.com/notargets/krnl/device"
	"github.com/notargets/krnl/kernel"
	"github.com/notargets/krnl/scalar"
)

// Result ids of the spec constants in test programs.
const (
	scaleResultID   = 10
	threadsResultID = 11
)

// saxpyDesc is an item kernel
//
//	fn saxpy<const SCALE: u32>(@global x: Slice<f32>, @item y: &mut f32, alpha: f32)
func saxpyDesc() kernel.KernelDesc {
	return kernel.KernelDesc{
		Name: "github.com/acme/app/axpy/saxpy",
		Program: spirvModule(
			specConstant{specID: 0, resultID: scaleResultID, words: []uint32{0}},
			specConstant{specID: 1, resultID: threadsResultID, words: []uint32{1}},
		),
		SpecDescs: []kernel.SpecDesc{
			{Name: "SCALE", ScalarType: scalar.U32},
		},
		SliceDescs: []kernel.SliceDesc{
			{Name: "x", ScalarType: scalar.F32},
			{Name: "y", ScalarType: scalar.F32, Mutable: true, Item: true},
		},
		PushDescs: []kernel.PushDesc{
			{Name: "alpha", ScalarType: scalar.F32},
		},
	}
}

// fillDesc is a non-item kernel needing 64-bit floats
//
//	fn fill(@global y: UnsafeSlice<f64>, value: f64, n: u8)
func fillDesc() kernel.KernelDesc {
	return kernel.KernelDesc{
		Name:     "github.com/acme/app/util/fill",
		Program:  spirvModule(specConstant{specID: 0, resultID: threadsResultID, words: []uint32{1}}),
		Features: device.FLOAT64 | device.INT8 | device.PUSH_CONSTANT8,
		SliceDescs: []kernel.SliceDesc{
			{Name: "y", ScalarType: scalar.F64, Mutable: true},
		},
		PushDescs: []kernel.PushDesc{
			{Name: "value", ScalarType: scalar.F64},
			{Name: "n", ScalarType: scalar.U8},
		},
	}
}
