// Package pod reads plain-old-data values out of another process using
// their in-memory Go layout.
package pod

import (
	"errors"
	"fmt"
	"reflect"
	"unsafe"

	"enginehook/process"
)

var ErrNotPOD = errors.New("type contains pointers")

// Reader reads raw bytes from a process.
type Reader interface {
	ReadMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error)
}

func SizeOf[T any]() process.ProcessMemorySize {
	var t T
	return process.ProcessMemorySize(unsafe.Sizeof(t))
}

// ReadT reads one T at addr.
func ReadT[T any](r Reader, addr process.ProcessMemoryAddress) (T, error) {
	var zero T
	size := SizeOf[T]()
	if size == 0 {
		return zero, errors.New("ReadT: size of T is zero")
	}

	data, err := r.ReadMemory(addr, size)
	if err != nil {
		return zero, err
	}
	return Decode[T](data)
}

// ReadSliceT reads count consecutive Ts starting at addr in one read.
func ReadSliceT[T any](r Reader, addr process.ProcessMemoryAddress, count int) ([]T, error) {
	if count < 0 {
		return nil, errors.New("ReadSliceT: count must be positive")
	}
	size := SizeOf[T]()
	if size == 0 || count == 0 {
		return []T{}, nil
	}

	data, err := r.ReadMemory(addr, size*process.ProcessMemorySize(count))
	if err != nil {
		return nil, err
	}

	result := make([]T, count)
	for i := range result {
		off := i * int(size)
		if result[i], err = Decode[T](data[off:]); err != nil {
			return nil, fmt.Errorf("ReadSliceT: element %d: %w", i, err)
		}
	}
	return result, nil
}

// Decode copies the first sizeof(T) bytes of data into a new T. T and all
// of its fields must be free of Go pointers.
func Decode[T any](data []byte) (T, error) {
	var tmp T
	if typeHasPointers(reflect.TypeOf(tmp)) {
		return tmp, fmt.Errorf("%w: %T", ErrNotPOD, tmp)
	}

	size := int(unsafe.Sizeof(tmp))
	if len(data) < size {
		return tmp, errors.New("Decode: buffer too small")
	}

	dst := unsafe.Slice((*byte)(unsafe.Pointer(&tmp)), size)
	copy(dst, data[:size])
	return tmp, nil
}

func typeHasPointers(rt reflect.Type) bool {
	switch rt.Kind() {
	case reflect.Ptr, reflect.UnsafePointer, reflect.Interface, reflect.Func, reflect.Map, reflect.Slice, reflect.String, reflect.Chan:
		return true
	case reflect.Array:
		return typeHasPointers(rt.Elem())
	case reflect.Struct:
		for i := 0; i < rt.NumField(); i++ {
			if typeHasPointers(rt.Field(i).Type) {
				return true
			}
		}
	}
	return false
}
