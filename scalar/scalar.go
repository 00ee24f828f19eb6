// scalar/scalar.go
package scalar

import (
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/x448/float16"
)

// ScalarType enumerates the numeric element types a kernel can exchange
// with the host.
type ScalarType uint8

const (
	U8 ScalarType = iota + 1
	I8
	U16
	I16
	F16
	BF16
	U32
	I32
	F32
	U64
	I64
	F64
)

type scalarInfo struct {
	name     string
	goType   string
	glslType string
	size     int
	signed   bool
	float    bool
}

var scalarTable = [...]scalarInfo{
	U8:   {"u8", "uint8", "uint8_t", 1, false, false},
	I8:   {"i8", "int8", "int8_t", 1, true, false},
	U16:  {"u16", "uint16", "uint16_t", 2, false, false},
	I16:  {"i16", "int16", "int16_t", 2, true, false},
	F16:  {"f16", "float16.Float16", "float16_t", 2, true, true},
	BF16: {"bf16", "scalar.BFloat16", "uint16_t", 2, true, true},
	U32:  {"u32", "uint32", "uint", 4, false, false},
	I32:  {"i32", "int32", "int", 4, true, false},
	F32:  {"f32", "float32", "float", 4, true, true},
	U64:  {"u64", "uint64", "uint64_t", 8, false, false},
	I64:  {"i64", "int64", "int64_t", 8, true, false},
	F64:  {"f64", "float64", "double", 8, true, true},
}

// All returns every scalar type in declaration order.
func All() []ScalarType {
	return []ScalarType{U8, I8, U16, I16, F16, BF16, U32, I32, F32, U64, I64, F64}
}

// Valid reports whether t is one of the enumerated scalar types.
func (t ScalarType) Valid() bool {
	return t >= U8 && t <= F64
}

func (t ScalarType) info() scalarInfo {
	if !t.Valid() {
		panic(fmt.Sprintf("scalar: invalid ScalarType %d", uint8(t)))
	}
	return scalarTable[t]
}

// Name returns the lowercase source spelling, e.g. "f32".
func (t ScalarType) Name() string {
	return t.info().name
}

// String returns the uppercase name, which is also the serialized form.
func (t ScalarType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("ScalarType(%d)", uint8(t))
	}
	return strings.ToUpper(scalarTable[t].name)
}

// Size returns the size of t in bytes.
func (t ScalarType) Size() int {
	return t.info().size
}

// GoType returns the Go spelling used in generated host code.
func (t ScalarType) GoType() string {
	return t.info().goType
}

// GLSLType returns the GLSL spelling used in generated device code. BF16 is
// carried on the device as its raw 16 bits.
func (t ScalarType) GLSLType() string {
	return t.info().glslType
}

func (t ScalarType) IsSigned() bool { return t.info().signed }
func (t ScalarType) IsFloat() bool  { return t.info().float }

// IsInteger reports whether t is one of the integer types.
func (t ScalarType) IsInteger() bool { return !t.info().float }

// Parse returns the scalar type named by s. Both the source spelling ("u8")
// and the serialized spelling ("U8") are accepted.
func Parse(s string) (ScalarType, error) {
	lower := strings.ToLower(s)
	for _, t := range All() {
		if scalarTable[t].name == lower {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown scalar type %q", s)
}

// EncodeMsgpack writes t as its uppercase name.
func (t ScalarType) EncodeMsgpack(enc *msgpack.Encoder) error {
	if !t.Valid() {
		return fmt.Errorf("cannot encode invalid ScalarType %d", uint8(t))
	}
	return enc.EncodeString(t.String())
}

// DecodeMsgpack reads a name written by EncodeMsgpack.
func (t *ScalarType) DecodeMsgpack(dec *msgpack.Decoder) error {
	s, err := dec.DecodeString()
	if err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Scalar is satisfied by the Go types that map onto a ScalarType.
type Scalar interface {
	uint8 | int8 | uint16 | int16 | float16.Float16 | BFloat16 |
		uint32 | int32 | float32 | uint64 | int64 | float64
}

// TypeOf returns the ScalarType for the Go type T.
func TypeOf[T Scalar]() ScalarType {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return U8
	case int8:
		return I8
	case uint16:
		return U16
	case int16:
		return I16
	case float16.Float16:
		return F16
	case BFloat16:
		return BF16
	case uint32:
		return U32
	case int32:
		return I32
	case float32:
		return F32
	case uint64:
		return U64
	case int64:
		return I64
	default:
		return F64
	}
}
