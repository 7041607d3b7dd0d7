//go:build linux

package nativemem

import (
	"fmt"
	"strings"
	"unsafe"

	"enginehook/process/memory_map"

	"golang.org/x/sys/unix"
)

// userSpaceEnd bounds x86-64 user mappings with 4-level paging.
const userSpaceEnd = 0x7ffffffff000

func pageSize() int {
	return unix.Getpagesize()
}

func protFromPerms(perms string) int {
	prot := unix.PROT_NONE
	if strings.Contains(perms, "r") {
		prot |= unix.PROT_READ
	}
	if strings.Contains(perms, "w") {
		prot |= unix.PROT_WRITE
	}
	if strings.Contains(perms, "x") {
		prot |= unix.PROT_EXEC
	}
	return prot
}

// makeWritable adds PROT_WRITE to the pages covering [addr, addr+size) and
// returns a func that restores the protection recorded in /proc/self/maps.
func makeWritable(addr, size uintptr) (func() error, error) {
	mm, err := memory_map.ReadSelf()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtectFailed, err)
	}
	memory_map.Sort(mm)

	region := memory_map.IsValidAddress2(uint64(addr), mm)
	if region == nil {
		return nil, fmt.Errorf("%w: %#x", ErrNotMapped, addr)
	}
	original := protFromPerms(region.Perms)

	start, length := pageSpan(addr, size)
	pages := unsafe.Slice((*byte)(At(start)), length)

	if err := unix.Mprotect(pages, original|unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return nil, fmt.Errorf("%w: mprotect %#x: %v", ErrProtectFailed, start, err)
	}

	return func() error {
		if err := unix.Mprotect(pages, original); err != nil {
			return fmt.Errorf("%w: restore %#x: %v", ErrProtectFailed, start, err)
		}
		return nil
	}, nil
}

// x86 keeps instruction fetch coherent with stores on the same core.
func flushInstructionCache(addr, size uintptr) {}

// AllocExec maps size bytes of read/write/execute memory anywhere.
func AllocExec(size uintptr) (uintptr, error) {
	p, err := unix.MmapPtr(-1, 0, nil, size, unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrAllocFailed, err)
	}
	return uintptr(p), nil
}

// AllocNear maps size bytes of read/write/execute memory within a rel32
// displacement of target, probing free addresses outwards from it. It
// returns ErrAllocFailed when no such block can be placed.
func AllocNear(target, size uintptr) (uintptr, error) {
	mm, err := memory_map.ReadSelf()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrAllocFailed, err)
	}

	for _, hint := range nearCandidates(target, size, mm) {
		p, err := unix.MmapPtr(-1, 0, At(hint), size,
			unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC,
			unix.MAP_PRIVATE|unix.MAP_ANON|unix.MAP_FIXED_NOREPLACE)
		if err != nil {
			continue
		}
		got := uintptr(p)
		if Within32(target, got) && Within32(target, got+size) {
			return got, nil
		}
		// kernels before 4.17 treat the flag as a plain hint
		_ = unix.MunmapPtr(p, size)
	}

	return 0, fmt.Errorf("%w: no free block within 2GiB of %#x", ErrAllocFailed, target)
}

// Free unmaps a block returned by AllocExec or AllocNear.
func Free(addr, size uintptr) error {
	return unix.MunmapPtr(At(addr), size)
}

// nearCandidates lists page-aligned gaps between mappings and above the
// last one, nearest first.
func nearCandidates(target, size uintptr, mm []memory_map.MemoryMapItem) []uintptr {
	memory_map.Sort(mm)

	page := uintptr(pageSize())
	size = (size + page - 1) &^ (page - 1)

	var out []uintptr
	var prevEnd uintptr = 0x10000
	for _, item := range mm {
		start := uintptr(item.Address)
		if start > prevEnd && start-prevEnd >= size {
			// the gap edges closest to the target
			if prevEnd < target {
				out = append(out, start-size)
			} else {
				out = append(out, prevEnd)
			}
		}
		if end := uintptr(item.End()); end > prevEnd {
			prevEnd = end
		}
	}
	// the free space above the highest mapping
	if prevEnd < userSpaceEnd && userSpaceEnd-prevEnd >= size {
		out = append(out, prevEnd)
	}

	filtered := out[:0]
	for _, c := range out {
		if Within32(target, c) && Within32(target, c+size) {
			filtered = append(filtered, c)
		}
	}
	sortByDistance(filtered, target)
	return filtered
}
