// Package nativemem holds the small amount of raw memory access the plugin
// needs inside the host: borrowed pointer arrays with fixed capacity,
// C string conversion, page protection and executable allocation near a
// target address.
//
// Every address handled here belongs to the host. Nothing in this package
// allocates or frees host objects.
package nativemem

import (
	"errors"
	"fmt"
	"unsafe"

	"enginehook/process/memory_map"
)

// PtrSize is the width of a host pointer.
const PtrSize = unsafe.Sizeof(uintptr(0))

var (
	ErrNullPointer   = errors.New("null pointer")
	ErrProtectFailed = errors.New("changing page protection failed")
	ErrAllocFailed   = errors.New("allocating executable memory failed")
	ErrNotMapped     = errors.New("address is not mapped")
)

// At converts a host address to an unsafe.Pointer.
func At(addr uintptr) unsafe.Pointer {
	return unsafe.Pointer(addr)
}

// ReadPtr reads one pointer-sized value at addr.
func ReadPtr(addr uintptr) uintptr {
	return *(*uintptr)(At(addr))
}

// WritePtr stores one pointer-sized value at addr. addr must be writable.
func WritePtr(addr, value uintptr) {
	*(*uintptr)(At(addr)) = value
}

// Bytes returns a view of n bytes of host memory at addr.
func Bytes(addr uintptr, n int) []byte {
	if addr == 0 || n <= 0 {
		return nil
	}
	return unsafe.Slice((*byte)(At(addr)), n)
}

// Copy returns a copy of n bytes at addr.
func Copy(addr uintptr, n int) []byte {
	out := make([]byte, n)
	copy(out, Bytes(addr, n))
	return out
}

// ReadableLen returns how many of the n bytes at addr can be read before
// the first unmapped or unreadable page.
func ReadableLen(addr uintptr, n int) (int, error) {
	mm, err := memory_map.ReadSelf()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNotMapped, err)
	}
	memory_map.Sort(mm)
	return readableSpan(uint64(addr), n, mm), nil
}

// readableSpan walks adjacent readable regions of a sorted map from addr.
func readableSpan(addr uint64, n int, mm []memory_map.MemoryMapItem) int {
	end := addr + uint64(n)
	cur := addr
	for cur < end {
		item := memory_map.IsValidAddress2(cur, mm)
		if item == nil || !item.IsReadable() {
			break
		}
		cur = item.End()
	}
	if cur > end {
		cur = end
	}
	return int(cur - addr)
}

// Patch overwrites executable code at addr with data. Protection is widened
// for the write and restored afterwards.
func Patch(addr uintptr, data []byte) error {
	if addr == 0 {
		return ErrNullPointer
	}
	if len(data) == 0 {
		return nil
	}

	restore, err := makeWritable(addr, uintptr(len(data)))
	if err != nil {
		return err
	}

	copy(Bytes(addr, len(data)), data)
	flushInstructionCache(addr, uintptr(len(data)))

	return restore()
}

func pageStart(addr uintptr) uintptr {
	return addr &^ (uintptr(pageSize()) - 1)
}

func pageSpan(addr, size uintptr) (uintptr, uintptr) {
	start := pageStart(addr)
	end := pageStart(addr+size-1) + uintptr(pageSize())
	return start, end - start
}
