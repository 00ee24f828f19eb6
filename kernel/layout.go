package kernel

import (
	"encoding/binary"
	"fmt"

	"github.com/notargets/krnl/scalar"
)

// FieldRole tells what a push-constant field carries.
type FieldRole uint8

const (
	RolePush FieldRole = iota
	RolePad
	RoleSliceOffset
	RoleSliceLen
)

// PushField is one member of the push-constant block.
type PushField struct {
	Name       string
	ScalarType scalar.ScalarType
	Offset     int
	Role       FieldRole
	// Index is the position in PushDescs for RolePush and in SliceDescs for
	// the slice roles.
	Index int
}

// PushLayout is the byte layout of a kernel's push-constant block.
type PushLayout struct {
	Fields []PushField
	Size   int
}

// PadFieldName returns the name of the i-th padding byte.
func PadFieldName(i int) string { return fmt.Sprintf("__krnl_pad%d", i) }

// SliceOffsetName and SliceLenName name the per-slice fields.
func SliceOffsetName(slice string) string { return "__krnl_offset_" + slice }
func SliceLenName(slice string) string    { return "__krnl_len_" + slice }

// PushLayout computes the push-constant block of d: the push descriptors in
// their sorted order, single padding bytes up to a 4-byte boundary, then an
// (offset u32, len u32) pair per slice in declaration order.
func (d *KernelDesc) PushLayout() PushLayout {
	var layout PushLayout
	add := func(f PushField) {
		f.Offset = layout.Size
		layout.Fields = append(layout.Fields, f)
		layout.Size += f.ScalarType.Size()
	}

	for i, p := range d.PushDescs {
		add(PushField{Name: p.Name, ScalarType: p.ScalarType, Role: RolePush, Index: i})
	}
	for pad := 0; layout.Size%4 != 0; pad++ {
		add(PushField{Name: PadFieldName(pad), ScalarType: scalar.U8, Role: RolePad, Index: pad})
	}
	for i, s := range d.SliceDescs {
		add(PushField{Name: SliceOffsetName(s.Name), ScalarType: scalar.U32, Role: RoleSliceOffset, Index: i})
		add(PushField{Name: SliceLenName(s.Name), ScalarType: scalar.U32, Role: RoleSliceLen, Index: i})
	}
	return layout
}

// Empty reports whether the kernel needs no push-constant block.
func (l PushLayout) Empty() bool { return l.Size == 0 }

// Pack writes the push-constant block. pushes are in PushDescs order and
// slices supply (offset, len) pairs in SliceDescs order.
func (l PushLayout) Pack(pushes []scalar.Value, slices [][2]uint32) ([]byte, error) {
	out := make([]byte, l.Size)
	for _, f := range l.Fields {
		switch f.Role {
		case RolePush:
			if f.Index >= len(pushes) {
				return nil, fmt.Errorf("missing push constant %q", f.Name)
			}
			v := pushes[f.Index]
			if v.Type != f.ScalarType {
				return nil, fmt.Errorf("push constant %q expects %s, got %s",
					f.Name, f.ScalarType.Name(), v.Type.Name())
			}
			copy(out[f.Offset:], v.Bytes())
		case RoleSliceOffset, RoleSliceLen:
			if f.Index >= len(slices) {
				return nil, fmt.Errorf("missing slice for %q", f.Name)
			}
			word := slices[f.Index][0]
			if f.Role == RoleSliceLen {
				word = slices[f.Index][1]
			}
			binary.LittleEndian.PutUint32(out[f.Offset:], word)
		}
	}
	return out, nil
}
