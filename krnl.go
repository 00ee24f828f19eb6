// Package krnl compiles annotated GPU kernel definitions into Vulkan compute
// programs and typed Go dispatch bindings.
//
// Kernel sources (*.krnl) are analyzed by runner/builder, compiled offline by
// cmd/krnlc, and the resulting SPIR-V is embedded in generated Go source as a
// text-encoded cache (package cache). Generated bindings consume that cache
// through package runner at run time.
package krnl

// Version is the version of this library. Caches produced by krnlc are
// accepted only when their recorded version is compatible with Version.
const Version = "0.3.0"
