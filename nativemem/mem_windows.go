//go:build windows

package nativemem

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	allocGranularity = 0x10000
	memFree          = 0x10000
)

var (
	modkernel32               = windows.NewLazySystemDLL("kernel32.dll")
	procFlushInstructionCache = modkernel32.NewProc("FlushInstructionCache")
)

func pageSize() int {
	return 0x1000
}

// makeWritable switches the pages covering [addr, addr+size) to
// PAGE_EXECUTE_READWRITE and returns a func restoring the old protection.
func makeWritable(addr, size uintptr) (func() error, error) {
	var old uint32
	if err := windows.VirtualProtect(addr, size, windows.PAGE_EXECUTE_READWRITE, &old); err != nil {
		return nil, fmt.Errorf("%w: VirtualProtect %#x: %v", ErrProtectFailed, addr, err)
	}

	return func() error {
		var ignored uint32
		if err := windows.VirtualProtect(addr, size, old, &ignored); err != nil {
			return fmt.Errorf("%w: restore %#x: %v", ErrProtectFailed, addr, err)
		}
		return nil
	}, nil
}

func flushInstructionCache(addr, size uintptr) {
	process, err := windows.GetCurrentProcess()
	if err != nil {
		return
	}
	procFlushInstructionCache.Call(uintptr(process), addr, size)
}

// AllocExec reserves and commits size bytes of executable memory anywhere.
func AllocExec(size uintptr) (uintptr, error) {
	p, err := windows.VirtualAlloc(0, size, windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_EXECUTE_READWRITE)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrAllocFailed, err)
	}
	return p, nil
}

// AllocNear walks free regions outwards from target in allocation
// granularity steps until a block within a rel32 displacement commits.
func AllocNear(target, size uintptr) (uintptr, error) {
	base := target &^ (allocGranularity - 1)

	for step := uintptr(allocGranularity); step < 1<<31-allocGranularity; step += allocGranularity {
		for _, hint := range []uintptr{base - step, base + step} {
			if !Within32(target, hint) || !Within32(target, hint+size) || hint < allocGranularity {
				continue
			}
			if !isFree(hint) {
				continue
			}
			p, err := windows.VirtualAlloc(hint, size, windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_EXECUTE_READWRITE)
			if err == nil && p != 0 {
				return p, nil
			}
		}
	}

	return 0, fmt.Errorf("%w: no free block within 2GiB of %#x", ErrAllocFailed, target)
}

func isFree(addr uintptr) bool {
	var mbi windows.MemoryBasicInformation
	if err := windows.VirtualQuery(addr, &mbi, unsafe.Sizeof(mbi)); err != nil {
		return false
	}
	return mbi.State == memFree
}

// Free releases a block returned by AllocExec or AllocNear.
func Free(addr, size uintptr) error {
	return windows.VirtualFree(addr, 0, windows.MEM_RELEASE)
}
