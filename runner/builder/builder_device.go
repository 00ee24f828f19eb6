package builder

import (
	"fmt"
	"strings"

	"github.com/notargets/krnl/device"
	"github.com/notargets/krnl/kernel"
	"github.com/notargets/krnl/scalar"
)

// Device-side names shared by the generated GLSL.
const (
	pushBlockName = "__krnl_push"
	itemIDName    = "__krnl_item_id"
	itemsName     = "__krnl_items"
	kernelVarName = "__krnl_kernel"
)

// GenerateDevice emits the GLSL compute shader for one kernel of mod. The
// shader is compiled offline to SPIR-V; the push-constant block it declares
// follows kernel.KernelDesc.PushLayout byte for byte.
func GenerateDevice(mod *ModuleMeta, meta *KernelMeta) (string, error) {
	if meta == nil {
		return "", fmt.Errorf("nil kernel")
	}
	desc := meta.Desc(meta.Name)
	if err := desc.Validate(); err != nil {
		return "", err
	}
	var sb strings.Builder

	// 1. Version, extensions
	sb.WriteString(generateDeviceHeader(mod, meta))

	// 2. Specialization constants, threads per group last
	sb.WriteString(generateSpecConstants(meta))

	// 3. Push constants carrying push arguments and slice bounds
	sb.WriteString(generatePushBlock(&desc))

	// 4. Storage buffers and slice accessors
	sb.WriteString(generateBuffers(meta))

	// 5. Group arrays, one per scalar type
	sb.WriteString(generateGroupArrays(meta))

	// 6. Kernel info and module prelude
	sb.WriteString(generateKernelInfo(meta))
	if mod != nil && strings.TrimSpace(mod.Prelude) != "" {
		sb.WriteString(strings.TrimSpace(mod.Prelude))
		sb.WriteString("\n\n")
	}

	// 7. Body and entry point
	sb.WriteString(generateBodyFunction(meta))
	sb.WriteString(generateMain(meta))

	return sb.String(), nil
}

func generateDeviceHeader(mod *ModuleMeta, meta *KernelMeta) string {
	var sb strings.Builder
	sb.WriteString("#version 450\n")
	moduleName := meta.Module
	if mod != nil {
		moduleName = mod.Name
	}
	sb.WriteString(fmt.Sprintf("// %s/%s: generated by krnlc, do not edit.\n", moduleName, meta.Name))

	f := meta.Features
	extension := func(name string) {
		sb.WriteString(fmt.Sprintf("#extension %s : require\n", name))
	}
	if f.Contains(device.INT8) {
		extension("GL_EXT_shader_explicit_arithmetic_types_int8")
	}
	if f.Contains(device.INT16) {
		extension("GL_EXT_shader_explicit_arithmetic_types_int16")
	}
	if f.Contains(device.INT64) {
		extension("GL_EXT_shader_explicit_arithmetic_types_int64")
	}
	if f.Contains(device.FLOAT16) {
		extension("GL_EXT_shader_explicit_arithmetic_types_float16")
	}
	if f&(device.BUFFER8|device.PUSH_CONSTANT8) != 0 {
		extension("GL_EXT_shader_8bit_storage")
	}
	if f&(device.BUFFER16|device.PUSH_CONSTANT16) != 0 {
		extension("GL_EXT_shader_16bit_storage")
	}
	for _, se := range subgroupExtensions {
		if f.Contains(se.feature) {
			extension(se.extension)
		}
	}
	sb.WriteString("\n")
	return sb.String()
}

// specDefault is the literal a specialization constant holds until the
// runner patches it.
func specDefault(t scalar.ScalarType) string {
	switch t {
	case scalar.U8, scalar.I8:
		return fmt.Sprintf("%s(1)", t.GLSLType())
	case scalar.U16:
		return "1us"
	case scalar.I16:
		return "1s"
	case scalar.BF16:
		return "16256us" // 1.0
	case scalar.F16:
		return "1.0hf"
	case scalar.U32:
		return "1u"
	case scalar.I32:
		return "1"
	case scalar.F32:
		return "1.0"
	case scalar.U64:
		return "1ul"
	case scalar.I64:
		return "1l"
	default:
		return "1.0lf"
	}
}

func generateSpecConstants(meta *KernelMeta) string {
	var sb strings.Builder
	for _, s := range meta.Specs {
		sb.WriteString(fmt.Sprintf("layout(constant_id = %d) const %s %s = %s;\n",
			s.ID, s.ScalarType.GLSLType(), s.Name, specDefault(s.ScalarType)))
	}
	sb.WriteString(fmt.Sprintf("layout(local_size_x_id = %d) in;\n\n", len(meta.Specs)))
	return sb.String()
}

func generatePushBlock(desc *kernel.KernelDesc) string {
	layout := desc.PushLayout()
	if layout.Empty() {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("layout(push_constant) uniform __krnl_PushConsts {\n")
	for _, f := range layout.Fields {
		if f.Role == kernel.RolePad {
			sb.WriteString(fmt.Sprintf("    // %s: 1 byte at offset %d\n", f.Name, f.Offset))
			continue
		}
		sb.WriteString(fmt.Sprintf("    layout(offset = %d) %s %s;\n", f.Offset, f.ScalarType.GLSLType(), f.Name))
	}
	sb.WriteString(fmt.Sprintf("} %s;\n\n", pushBlockName))
	return sb.String()
}

func bufferName(arg ArgMeta) string { return "__krnl_" + arg.Name }

func pushField(name string) string { return pushBlockName + "." + name }

func generateBuffers(meta *KernelMeta) string {
	var sb strings.Builder
	for _, a := range meta.Slices() {
		access := "readonly "
		if a.Mutable {
			access = ""
		}
		sb.WriteString(fmt.Sprintf("layout(set = 0, binding = %d) restrict %sbuffer __krnl_buffer_%s {\n",
			a.Binding, access, a.Name))
		sb.WriteString(fmt.Sprintf("    %s %s[];\n};\n", a.ScalarType.GLSLType(), bufferName(a)))
	}
	for _, a := range meta.Slices() {
		if a.Kind != kernel.Global {
			continue
		}
		sb.WriteString(fmt.Sprintf("#define %s_len %s\n", a.Name, pushField(kernel.SliceLenName(a.Name))))
		if a.Mutable {
			// UnsafeSlice indices are not checked
			sb.WriteString(fmt.Sprintf("#define %s(i) %s[%s + uint(i)]\n",
				a.Name, bufferName(a), pushField(kernel.SliceOffsetName(a.Name))))
			continue
		}
		// reads past the end of a Slice yield zero
		t := a.ScalarType.GLSLType()
		sb.WriteString(fmt.Sprintf("%s %s(uint i) {\n    return i < %s_len ? %s[%s + i] : %s(0);\n}\n",
			t, a.Name, a.Name, bufferName(a), pushField(kernel.SliceOffsetName(a.Name)), t))
	}
	if len(meta.Slices()) > 0 {
		sb.WriteString("\n")
	}
	return sb.String()
}

func generateGroupArrays(meta *KernelMeta) string {
	var sb strings.Builder
	for _, g := range meta.GroupArrays() {
		offset := "0u"
		for _, a := range g.Args {
			lenName := kernel.SliceLenName(a.Name)
			offName := kernel.SliceOffsetName(a.Name)
			sb.WriteString(fmt.Sprintf("const uint %s = %s;\n", lenName, a.Len.GLSL()))
			sb.WriteString(fmt.Sprintf("const uint %s = %s;\n", offName, offset))
			offset = fmt.Sprintf("(%s + %s)", offName, lenName)
		}
		sb.WriteString(fmt.Sprintf("const uint %s_len = %s;\n", g.Name(), offset))
		sb.WriteString(fmt.Sprintf("shared %s %s[%s_len];\n", g.ScalarType.GLSLType(), g.Name(), g.Name()))
		for _, a := range g.Args {
			sb.WriteString(fmt.Sprintf("#define %s(i) %s[%s + uint(i)]\n",
				a.Name, g.Name(), kernel.SliceOffsetName(a.Name)))
			sb.WriteString(fmt.Sprintf("#define %s_len %s\n", a.Name, kernel.SliceLenName(a.Name)))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// kernelInfoFields are the members of KernelInfo, in constructor order.
var kernelInfoFields = []string{
	"global_id", "global_threads", "groups", "group_id",
	"subgroups", "subgroup_id", "subgroup_thread_id", "threads", "thread_id",
}

func generateKernelInfo(meta *KernelMeta) string {
	var sb strings.Builder
	writeStruct := func(name string, fields []string) {
		sb.WriteString(fmt.Sprintf("struct %s {\n", name))
		for _, field := range fields {
			sb.WriteString(fmt.Sprintf("    uint %s;\n", field))
		}
		sb.WriteString("};\n\n")
	}
	writeStruct("KernelInfo", kernelInfoFields)
	if meta.ItemKernel() {
		writeStruct("ItemKernelInfo", append(append([]string{}, kernelInfoFields...), "item_id", "items"))
	}
	return sb.String()
}

// bodyParams lists the body function's parameters: Item arguments by value
// or inout, Push arguments by value, in declaration order.
func bodyParams(meta *KernelMeta) []string {
	info := "KernelInfo kernel"
	if meta.ItemKernel() {
		info = "ItemKernelInfo kernel"
	}
	params := []string{info}
	for _, a := range meta.Args {
		switch a.Kind {
		case kernel.Item:
			qualifier := ""
			if a.Mutable {
				qualifier = "inout "
			}
			params = append(params, fmt.Sprintf("%s%s %s", qualifier, a.ScalarType.GLSLType(), a.Name))
		case kernel.Push:
			params = append(params, fmt.Sprintf("%s %s", a.ScalarType.GLSLType(), a.Name))
		}
	}
	return params
}

func generateBodyFunction(meta *KernelMeta) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("void %s(%s) {", meta.Name, strings.Join(bodyParams(meta), ", ")))
	if meta.BodyLine > 0 {
		sb.WriteString(fmt.Sprintf("\n#line %d\n", meta.BodyLine))
	}
	sb.WriteString(meta.Body)
	sb.WriteString("}\n\n")
	return sb.String()
}

// bodyArgs lists the expressions main passes to the body function.
func bodyArgs(meta *KernelMeta, info string) []string {
	args := []string{info}
	for _, a := range meta.Args {
		switch a.Kind {
		case kernel.Item:
			args = append(args, fmt.Sprintf("%s[%s + %s]",
				bufferName(a), pushField(kernel.SliceOffsetName(a.Name)), itemIDName))
		case kernel.Push:
			args = append(args, pushField(a.Name))
		}
	}
	return args
}

func generateMain(meta *KernelMeta) string {
	var sb strings.Builder
	sb.WriteString("void main() {\n")

	subgroups, subgroupID, subgroupThreadID := "1u", "0u", "gl_LocalInvocationID.x"
	if meta.Features.Contains(device.SUBGROUP_BASIC) {
		subgroups, subgroupID, subgroupThreadID = "gl_NumSubgroups", "gl_SubgroupID", "gl_SubgroupInvocationID"
	}
	sb.WriteString(fmt.Sprintf("    KernelInfo %s = KernelInfo(\n", kernelVarName))
	fields := []string{
		"gl_GlobalInvocationID.x",
		"gl_NumWorkGroups.x * gl_WorkGroupSize.x",
		"gl_NumWorkGroups.x",
		"gl_WorkGroupID.x",
		subgroups,
		subgroupID,
		subgroupThreadID,
		"gl_WorkGroupSize.x",
		"gl_LocalInvocationID.x",
	}
	sb.WriteString("        " + strings.Join(fields, ",\n        ") + ");\n")

	// Zero the shared arrays, then a single barrier before the body runs.
	groups := meta.GroupArrays()
	for _, g := range groups {
		sb.WriteString(fmt.Sprintf("    for (uint i = gl_LocalInvocationID.x; i < %s_len; i += gl_WorkGroupSize.x) {\n", g.Name()))
		sb.WriteString(fmt.Sprintf("        %s[i] = %s(0);\n    }\n", g.Name(), g.ScalarType.GLSLType()))
	}
	if len(groups) > 0 {
		sb.WriteString("    barrier();\n    memoryBarrierShared();\n")
	}

	if !meta.ItemKernel() {
		sb.WriteString(fmt.Sprintf("    %s(%s);\n}\n", meta.Name, strings.Join(bodyArgs(meta, kernelVarName), ", ")))
		return sb.String()
	}

	// the shortest item slice bounds the loop
	first := true
	for _, a := range meta.Slices() {
		if a.Kind != kernel.Item {
			continue
		}
		lenField := pushField(kernel.SliceLenName(a.Name))
		if first {
			sb.WriteString(fmt.Sprintf("    uint %s = %s;\n", itemsName, lenField))
			first = false
			continue
		}
		sb.WriteString(fmt.Sprintf("    %s = min(%s, %s);\n", itemsName, itemsName, lenField))
	}
	sb.WriteString(fmt.Sprintf("    for (uint %s = %s.global_id; %s < %s; %s += %s.global_threads) {\n",
		itemIDName, kernelVarName, itemIDName, itemsName, itemIDName, kernelVarName))
	var infoArgs []string
	for _, field := range kernelInfoFields {
		infoArgs = append(infoArgs, kernelVarName+"."+field)
	}
	info := fmt.Sprintf("ItemKernelInfo(%s, %s, %s)", strings.Join(infoArgs, ", "), itemIDName, itemsName)
	sb.WriteString(fmt.Sprintf("        %s(%s);\n", meta.Name, strings.Join(bodyArgs(meta, info), ", ")))
	sb.WriteString("    }\n}\n")
	return sb.String()
}

// ItemIndices returns the item indices visited by one invocation of an item
// kernel: starting at its global thread id and striding by the global thread
// count, below items. Across all threads every index in [0, items) is
// visited exactly once.
func ItemIndices(items, globalThreads, threadID uint32) []uint32 {
	if globalThreads == 0 {
		return nil
	}
	var out []uint32
	for id := uint64(threadID); id < uint64(items); id += uint64(globalThreads) {
		out = append(out, uint32(id))
	}
	return out
}
