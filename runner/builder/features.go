package builder

import (
	"strings"

	"github.com/gogpu/naga/wgsl"

	"github.com/notargets/krnl/device"
	"github.com/notargets/krnl/kernel"
	"github.com/notargets/krnl/scalar"
)

// scalarFeatures returns the features needed to use t as an argument of the
// given kind.
func scalarFeatures(t scalar.ScalarType, kind kernel.ArgKind) device.Features {
	var f device.Features
	switch t {
	case scalar.U8, scalar.I8:
		f = device.INT8
	case scalar.U16, scalar.I16, scalar.BF16:
		f = device.INT16
	case scalar.F16:
		f = device.FLOAT16
	case scalar.U64, scalar.I64:
		return device.INT64
	case scalar.F64:
		return device.FLOAT64
	default:
		return 0
	}
	switch {
	case kind.HasBinding() && t.Size() == 1:
		f |= device.BUFFER8
	case kind.HasBinding():
		f |= device.BUFFER16
	case kind == kernel.Push && t.Size() == 1:
		f |= device.PUSH_CONSTANT8
	case kind == kernel.Push:
		f |= device.PUSH_CONSTANT16
	}
	return f
}

func typeFeatures(m *KernelMeta) device.Features {
	var f device.Features
	for _, s := range m.Specs {
		// specialization constants behave like group-local values
		f |= scalarFeatures(s.ScalarType, kernel.Group)
	}
	for _, a := range m.Args {
		f |= scalarFeatures(a.ScalarType, a.Kind)
	}
	return f
}

var subgroupOps = map[string]device.Features{
	"subgroupBarrier":                 device.SUBGROUP_BASIC,
	"subgroupMemoryBarrier":           device.SUBGROUP_BASIC,
	"subgroupMemoryBarrierBuffer":     device.SUBGROUP_BASIC,
	"subgroupMemoryBarrierShared":     device.SUBGROUP_BASIC,
	"subgroupElect":                   device.SUBGROUP_BASIC,
	"subgroupAll":                     device.SUBGROUP_VOTE,
	"subgroupAny":                     device.SUBGROUP_VOTE,
	"subgroupAllEqual":                device.SUBGROUP_VOTE,
	"subgroupAdd":                     device.SUBGROUP_ARITHMETIC,
	"subgroupMul":                     device.SUBGROUP_ARITHMETIC,
	"subgroupMin":                     device.SUBGROUP_ARITHMETIC,
	"subgroupMax":                     device.SUBGROUP_ARITHMETIC,
	"subgroupAnd":                     device.SUBGROUP_ARITHMETIC,
	"subgroupOr":                      device.SUBGROUP_ARITHMETIC,
	"subgroupXor":                     device.SUBGROUP_ARITHMETIC,
	"subgroupBroadcast":               device.SUBGROUP_BALLOT,
	"subgroupBroadcastFirst":          device.SUBGROUP_BALLOT,
	"subgroupBallot":                  device.SUBGROUP_BALLOT,
	"subgroupInverseBallot":           device.SUBGROUP_BALLOT,
	"subgroupBallotBitExtract":        device.SUBGROUP_BALLOT,
	"subgroupBallotBitCount":          device.SUBGROUP_BALLOT,
	"subgroupBallotInclusiveBitCount": device.SUBGROUP_BALLOT,
	"subgroupBallotExclusiveBitCount": device.SUBGROUP_BALLOT,
	"subgroupBallotFindLSB":           device.SUBGROUP_BALLOT,
	"subgroupBallotFindMSB":           device.SUBGROUP_BALLOT,
	"subgroupShuffle":                 device.SUBGROUP_SHUFFLE,
	"subgroupShuffleXor":              device.SUBGROUP_SHUFFLE,
	"subgroupShuffleUp":               device.SUBGROUP_SHUFFLE_RELATIVE,
	"subgroupShuffleDown":             device.SUBGROUP_SHUFFLE_RELATIVE,
}

// kernelSubgroupFields are the KernelInfo members backed by subgroup
// built-ins.
var kernelSubgroupFields = map[string]bool{
	"subgroups":          true,
	"subgroup_id":        true,
	"subgroup_thread_id": true,
}

// bodyFeatures scans the tokens of a kernel body for subgroup operations.
func bodyFeatures(toks []wgsl.Token) device.Features {
	var f device.Features
	for i, tok := range toks {
		if tok.Kind != wgsl.TokenIdent {
			continue
		}
		name := tok.Lexeme
		switch {
		case subgroupOps[name] != 0:
			f |= subgroupOps[name]
		case strings.HasPrefix(name, "subgroupInclusive"), strings.HasPrefix(name, "subgroupExclusive"):
			f |= device.SUBGROUP_ARITHMETIC
		case strings.HasPrefix(name, "subgroupClustered"):
			f |= device.SUBGROUP_CLUSTERED
		case strings.HasPrefix(name, "subgroupQuad"):
			f |= device.SUBGROUP_QUAD
		case strings.HasPrefix(name, "gl_Subgroup"), name == "gl_NumSubgroups":
			f |= device.SUBGROUP_BASIC
		case name == "kernel" && i+2 < len(toks) && toks[i+1].Kind == wgsl.TokenDot &&
			kernelSubgroupFields[toks[i+2].Lexeme]:
			f |= device.SUBGROUP_BASIC
		}
	}
	if f != 0 {
		f |= device.SUBGROUP_BASIC
	}
	return f
}

// subgroupExtensions maps subgroup features to the GLSL extensions enabling
// them, in the order they are emitted.
var subgroupExtensions = []struct {
	feature   device.Features
	extension string
}{
	{device.SUBGROUP_BASIC, "GL_KHR_shader_subgroup_basic"},
	{device.SUBGROUP_VOTE, "GL_KHR_shader_subgroup_vote"},
	{device.SUBGROUP_ARITHMETIC, "GL_KHR_shader_subgroup_arithmetic"},
	{device.SUBGROUP_BALLOT, "GL_KHR_shader_subgroup_ballot"},
	{device.SUBGROUP_SHUFFLE, "GL_KHR_shader_subgroup_shuffle"},
	{device.SUBGROUP_SHUFFLE_RELATIVE, "GL_KHR_shader_subgroup_shuffle_relative"},
	{device.SUBGROUP_CLUSTERED, "GL_KHR_shader_subgroup_clustered"},
	{device.SUBGROUP_QUAD, "GL_KHR_shader_subgroup_quad"},
}
