package device

import (
	"fmt"

	"github.com/notargets/krnl/scalar"
)

// Slice is an immutable view of a range of a Buffer holding T values.
type Slice[T scalar.Scalar] struct {
	buffer Buffer
	offset int
	len    int
}

// SliceMut is a mutable view of a range of a Buffer holding T values.
type SliceMut[T scalar.Scalar] struct {
	Slice[T]
}

func checkRange[T scalar.Scalar](buffer Buffer, offset, length int) error {
	if buffer == nil {
		return fmt.Errorf("nil buffer")
	}
	if want := scalar.TypeOf[T](); buffer.ScalarType() != want {
		return fmt.Errorf("buffer holds %s, view expects %s", buffer.ScalarType().Name(), want.Name())
	}
	if offset < 0 || length < 0 || offset+length > buffer.Len() {
		return fmt.Errorf("range [%d, %d) out of bounds for buffer of length %d",
			offset, offset+length, buffer.Len())
	}
	return nil
}

// NewSlice returns a view of buffer[offset : offset+length].
func NewSlice[T scalar.Scalar](buffer Buffer, offset, length int) (Slice[T], error) {
	if err := checkRange[T](buffer, offset, length); err != nil {
		return Slice[T]{}, err
	}
	return Slice[T]{buffer: buffer, offset: offset, len: length}, nil
}

// NewSliceMut returns a mutable view of buffer[offset : offset+length].
func NewSliceMut[T scalar.Scalar](buffer Buffer, offset, length int) (SliceMut[T], error) {
	s, err := NewSlice[T](buffer, offset, length)
	if err != nil {
		return SliceMut[T]{}, err
	}
	return SliceMut[T]{Slice: s}, nil
}

// Whole returns a view of all of buffer.
func Whole[T scalar.Scalar](buffer Buffer) (Slice[T], error) {
	if buffer == nil {
		return Slice[T]{}, fmt.Errorf("nil buffer")
	}
	return NewSlice[T](buffer, 0, buffer.Len())
}

// WholeMut returns a mutable view of all of buffer.
func WholeMut[T scalar.Scalar](buffer Buffer) (SliceMut[T], error) {
	if buffer == nil {
		return SliceMut[T]{}, fmt.Errorf("nil buffer")
	}
	return NewSliceMut[T](buffer, 0, buffer.Len())
}

func (s Slice[T]) Len() int       { return s.len }
func (s Slice[T]) Offset() int    { return s.offset }
func (s Slice[T]) Buffer() Buffer { return s.buffer }

// Arg converts s into a binding.
func (s Slice[T]) Arg() SliceArg {
	return SliceArg{
		Buffer:     s.buffer,
		ScalarType: scalar.TypeOf[T](),
		Offset:     s.offset,
		Len:        s.len,
	}
}

// Arg converts s into a mutable binding.
func (s SliceMut[T]) Arg() SliceArg {
	arg := s.Slice.Arg()
	arg.Mutable = true
	return arg
}

// AsSlice drops mutability.
func (s SliceMut[T]) AsSlice() Slice[T] { return s.Slice }
