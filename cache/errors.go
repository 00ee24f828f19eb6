package cache

import (
	"errors"
	"fmt"
)

// ErrCacheFormat is matched by every CacheFormatError.
var ErrCacheFormat = errors.New("invalid krnl cache")

// CacheFormatError reports a cache literal that cannot be decoded. It means
// the cache and its consumer were produced by mismatched tooling.
type CacheFormatError struct {
	Msg string
	Err error
}

func (e *CacheFormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %v", ErrCacheFormat, e.Msg, e.Err)
	}
	return fmt.Sprintf("%v: %s", ErrCacheFormat, e.Msg)
}

func (e *CacheFormatError) Unwrap() error { return e.Err }

func (e *CacheFormatError) Is(target error) bool { return target == ErrCacheFormat }

func formatError(err error, format string, args ...interface{}) *CacheFormatError {
	return &CacheFormatError{Msg: fmt.Sprintf(format, args...), Err: err}
}

// VersionIncompatibleError reports a cache produced by an incompatible krnlc.
type VersionIncompatibleError struct {
	Producer string
	Consumer string
}

func (e *VersionIncompatibleError) Error() string {
	return fmt.Sprintf("cache created by krnlc %s is not compatible with krnl %s", e.Producer, e.Consumer)
}

// KernelNotFoundError reports a kernel missing from the cache.
type KernelNotFoundError struct {
	Module string
	Kernel string
}

func (e *KernelNotFoundError) Error() string {
	return fmt.Sprintf("kernel `%s` not compiled", e.qualified())
}

func (e *KernelNotFoundError) qualified() string {
	if e.Module == "" {
		return e.Kernel
	}
	return e.Module + "/" + e.Kernel
}
