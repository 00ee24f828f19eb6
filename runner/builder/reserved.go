package builder

import (
	"regexp"
	"strings"
)

// glslKeywords are the GLSL 4.50 keywords and the words it reserves for
// future use. None of them can be declared by generated device code.
var glslKeywords = toSet(strings.Fields(`
	const uniform buffer shared attribute varying coherent volatile restrict
	readonly writeonly atomic_uint layout centroid flat smooth noperspective
	patch sample invariant precise break continue do for while switch case
	default if else subroutine in out inout int void bool true false float
	double uint discard return lowp mediump highp precision struct
	common partition active asm class union enum typedef template this
	resource goto inline noinline public static extern external interface
	long short half fixed unsigned superp input output filter sizeof cast
	namespace using demote
`))

// glslBuiltins are the GLSL built-in functions a compute shader can call.
// A variable or accessor with one of these names would hide or overload it.
var glslBuiltins = toSet(strings.Fields(`
	radians degrees sin cos tan asin acos atan sinh cosh tanh asinh acosh atanh
	pow exp log exp2 log2 sqrt inversesqrt
	abs sign floor trunc round roundEven ceil fract mod modf min max clamp mix
	step smoothstep isnan isinf fma frexp ldexp
	floatBitsToInt floatBitsToUint intBitsToFloat uintBitsToFloat
	packUnorm2x16 packSnorm2x16 packUnorm4x8 packSnorm4x8
	unpackUnorm2x16 unpackSnorm2x16 unpackUnorm4x8 unpackSnorm4x8
	packHalf2x16 unpackHalf2x16 packDouble2x32 unpackDouble2x32
	length distance dot cross normalize faceforward reflect refract
	matrixCompMult outerProduct transpose determinant inverse
	lessThan lessThanEqual greaterThan greaterThanEqual equal notEqual any all not
	uaddCarry usubBorrow umulExtended imulExtended
	bitfieldExtract bitfieldInsert bitfieldReverse bitCount findLSB findMSB
	barrier memoryBarrier memoryBarrierAtomicCounter memoryBarrierBuffer
	memoryBarrierShared memoryBarrierImage groupMemoryBarrier
	atomicAdd atomicMin atomicMax atomicAnd atomicOr atomicXor
	atomicExchange atomicCompSwap
`))

// glslTypeName matches the vector, matrix, opaque and explicitly sized
// scalar type names.
var glslTypeName = regexp.MustCompile(`^(` +
	`([biudh]|f16|f32|f64|i8|u8|i16|u16|i32|u32|i64|u64)?vec[234]` +
	`|(d|f16|f32|f64)?mat[234](x[234])?` +
	`|[iu]?(sampler|image|texture)(1D|2D|3D|Cube|2DRect|Buffer|2DMS)(Array)?(Shadow)?` +
	`|sampler|samplerShadow` +
	`|[iu]?subpassInput(MS)?` +
	`|u?int(8|16|32|64)_t|float(16|32|64)_t|bfloat16_t` +
	`)$`)

func toSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// reservedName returns why name cannot be declared in generated device
// code, or "" when it can.
func reservedName(name string) string {
	switch {
	case strings.HasPrefix(name, "__krnl") || name == "kernel" || name == "main":
		return "is reserved"
	case strings.HasPrefix(name, "gl_") || strings.Contains(name, "__"):
		return "is reserved in GLSL"
	case glslKeywords[name] || glslTypeName.MatchString(name):
		return "is a GLSL keyword"
	case glslBuiltins[name]:
		return "is a GLSL built-in function"
	}
	return ""
}
