package scalar

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"
)

// BFloat16 is a brain floating point number: the upper 16 bits of an IEEE
// float32.
type BFloat16 uint16

// BFloat16FromFloat32 rounds f to the nearest BFloat16, ties to even.
func BFloat16FromFloat32(f float32) BFloat16 {
	bits := math.Float32bits(f)
	if math.IsNaN(float64(f)) {
		// keep NaN a quiet NaN after truncation
		return BFloat16(bits>>16 | 0x0040)
	}
	rounding := uint32(0x7fff) + (bits>>16)&1
	return BFloat16((bits + rounding) >> 16)
}

// Float32 widens b to a float32 exactly.
func (b BFloat16) Float32() float32 {
	return math.Float32frombits(uint32(b) << 16)
}

func (b BFloat16) Bits() uint16 { return uint16(b) }

func (b BFloat16) String() string {
	return fmt.Sprintf("%g", b.Float32())
}

// Value is a scalar value tagged with its type. Spec constants and push
// constants travel as Values between generated code and the runner.
type Value struct {
	Type ScalarType
	bits uint64
}

// ValueOf tags v with the ScalarType of T.
func ValueOf[T Scalar](v T) Value {
	var bits uint64
	switch x := any(v).(type) {
	case uint8:
		bits = uint64(x)
	case int8:
		bits = uint64(uint8(x))
	case uint16:
		bits = uint64(x)
	case int16:
		bits = uint64(uint16(x))
	case float16.Float16:
		bits = uint64(x.Bits())
	case BFloat16:
		bits = uint64(x)
	case uint32:
		bits = uint64(x)
	case int32:
		bits = uint64(uint32(x))
	case float32:
		bits = uint64(math.Float32bits(x))
	case uint64:
		bits = x
	case int64:
		bits = uint64(x)
	case float64:
		bits = math.Float64bits(x)
	}
	return Value{Type: TypeOf[T](), bits: bits}
}

// FromBits builds a Value of type t from its raw little-endian bit pattern.
// Bits above t.Size() are discarded.
func FromBits(t ScalarType, bits uint64) Value {
	if t.Size() < 8 {
		bits &= 1<<(8*t.Size()) - 1
	}
	return Value{Type: t, bits: bits}
}

// FromInterface converts a Go scalar of a supported type into a Value.
func FromInterface(v interface{}) (Value, error) {
	switch x := v.(type) {
	case uint8:
		return ValueOf(x), nil
	case int8:
		return ValueOf(x), nil
	case uint16:
		return ValueOf(x), nil
	case int16:
		return ValueOf(x), nil
	case float16.Float16:
		return ValueOf(x), nil
	case BFloat16:
		return ValueOf(x), nil
	case uint32:
		return ValueOf(x), nil
	case int32:
		return ValueOf(x), nil
	case float32:
		return ValueOf(x), nil
	case uint64:
		return ValueOf(x), nil
	case int64:
		return ValueOf(x), nil
	case float64:
		return ValueOf(x), nil
	case Value:
		return x, nil
	default:
		return Value{}, fmt.Errorf("unsupported scalar value of type %T", v)
	}
}

// Bits returns the raw bit pattern, zero extended.
func (v Value) Bits() uint64 { return v.bits }

// Bytes returns the little-endian encoding of v, exactly Type.Size() bytes.
func (v Value) Bytes() []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v.bits)
	return buf[:v.Type.Size()]
}

// Words returns v as SPIR-V literal words. Literals narrower than 32 bits
// are sign extended for signed integer types and zero extended otherwise.
func (v Value) Words() []uint32 {
	switch v.Type.Size() {
	case 8:
		return []uint32{uint32(v.bits), uint32(v.bits >> 32)}
	case 4:
		return []uint32{uint32(v.bits)}
	}
	word := uint32(v.bits)
	if v.Type.IsSigned() && v.Type.IsInteger() {
		shift := 32 - 8*v.Type.Size()
		word = uint32(int32(word<<shift) >> shift)
	}
	return []uint32{word}
}

// Int returns v as a signed integer. It fails for float types.
func (v Value) Int() (int64, error) {
	if v.Type.IsFloat() {
		return 0, fmt.Errorf("%s value is not an integer", v.Type.Name())
	}
	if v.Type.IsSigned() {
		shift := 64 - 8*v.Type.Size()
		return int64(v.bits<<shift) >> shift, nil
	}
	return int64(v.bits), nil
}

// Float64 returns v converted to float64.
func (v Value) Float64() float64 {
	switch v.Type {
	case F16:
		return float64(float16.Frombits(uint16(v.bits)).Float32())
	case BF16:
		return float64(BFloat16(v.bits).Float32())
	case F32:
		return float64(math.Float32frombits(uint32(v.bits)))
	case F64:
		return math.Float64frombits(v.bits)
	}
	i, _ := v.Int()
	if v.Type == U64 {
		return float64(v.bits)
	}
	return float64(i)
}

func (v Value) String() string {
	if !v.Type.Valid() {
		return "<invalid>"
	}
	if v.Type.IsFloat() {
		return fmt.Sprintf("%g%s", v.Float64(), v.Type.Name())
	}
	if v.Type == U64 {
		return fmt.Sprintf("%d%s", v.bits, v.Type.Name())
	}
	i, _ := v.Int()
	return fmt.Sprintf("%d%s", i, v.Type.Name())
}
