package process

import "fmt"

// MemoryReader is the subset of Process needed to walk pointer chains.
type MemoryReader interface {
	IsValidAddress(addr ProcessMemoryAddress) bool
	ReadMemory(addr ProcessMemoryAddress, size ProcessMemorySize) ([]byte, error)
	ReadPOINTER(addr ProcessMemoryAddress) (ProcessMemoryAddress, error)
}

// FollowPointerChain walks pointer fields at all offsets except the last,
// which is treated as a raw byte offset into the final struct, and then
// reads `size` bytes starting there.
//
// Example:
//
//	// engine+0x12A53F90 -> [ +0 ]client0 -> [ +0x10 ]name
//	data, err := FollowPointerChain(proc, engineBase, 0x20, 0x12A53F90, 0, 0x10)
func FollowPointerChain(r MemoryReader, base ProcessMemoryAddress, size ProcessMemorySize, offsets ...ProcessMemorySize) ([]byte, error) {
	if len(offsets) == 0 {
		return r.ReadMemory(base, size)
	}

	current := base

	// Deref each offset except the last
	for i := 0; i < len(offsets)-1; i++ {
		off := offsets[i]
		addr := current + ProcessMemoryAddress(off)

		ptr, err := r.ReadPOINTER(addr)
		if err != nil {
			return nil, fmt.Errorf("pointer chain step %d (addr=%#x + off=%#x): %w", i, uint64(current), uint64(off), err)
		}
		if ptr == 0 || !r.IsValidAddress(ptr) {
			return nil, fmt.Errorf("pointer chain step %d: pointer %#x: %w", i, uint64(ptr), ErrInvalidPointer)
		}
		current = ptr
	}

	start := current + ProcessMemoryAddress(offsets[len(offsets)-1])
	data, err := r.ReadMemory(start, size)
	if err != nil {
		return nil, fmt.Errorf("pointer chain read at %#x (size=%#x): %w", uint64(start), uint64(size), err)
	}
	return data, nil
}
