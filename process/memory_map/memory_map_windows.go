//go:build windows

package memory_map

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

// WindowsMemoryMap implements MemoryMap for Windows
type WindowsMemoryMap struct{}

// NewWindowsMemoryMap creates a new WindowsMemoryMap instance
func NewWindowsMemoryMap() *WindowsMemoryMap {
	return &WindowsMemoryMap{}
}

// ReadMemoryMap walks the committed regions of a process with VirtualQueryEx.
// Regions carry no Path on Windows; module images are listed through the
// toolhelp snapshot in process_windows.
func (w *WindowsMemoryMap) ReadMemoryMap(pid int) ([]MemoryMapItem, error) {
	if pid == os.Getpid() {
		return ReadSelf()
	}

	h, err := windows.OpenProcess(windows.PROCESS_QUERY_INFORMATION, false, uint32(pid))
	if err != nil {
		return nil, fmt.Errorf("OpenProcess failed: %w", err)
	}
	defer windows.CloseHandle(h)

	return walk(func(addr uintptr, mbi *windows.MemoryBasicInformation) error {
		return windows.VirtualQueryEx(h, addr, mbi, unsafe.Sizeof(*mbi))
	})
}

// ReadSelf reads the memory map of the calling process.
func ReadSelf() ([]MemoryMapItem, error) {
	return walk(func(addr uintptr, mbi *windows.MemoryBasicInformation) error {
		return windows.VirtualQuery(addr, mbi, unsafe.Sizeof(*mbi))
	})
}

// Query returns the region containing addr in the calling process.
func Query(addr uintptr) (MemoryMapItem, error) {
	var mbi windows.MemoryBasicInformation
	if err := windows.VirtualQuery(addr, &mbi, unsafe.Sizeof(mbi)); err != nil {
		return MemoryMapItem{}, err
	}
	return itemFromMBI(&mbi), nil
}

func walk(query func(addr uintptr, mbi *windows.MemoryBasicInformation) error) ([]MemoryMapItem, error) {
	var memoryMap []MemoryMapItem
	var addr uintptr
	for {
		var mbi windows.MemoryBasicInformation
		if err := query(addr, &mbi); err != nil {
			break
		}
		if mbi.State == windows.MEM_COMMIT {
			memoryMap = append(memoryMap, itemFromMBI(&mbi))
		}

		next := mbi.BaseAddress + mbi.RegionSize
		if next <= addr {
			break
		}
		addr = next
	}

	return memoryMap, nil
}

func itemFromMBI(mbi *windows.MemoryBasicInformation) MemoryMapItem {
	return MemoryMapItem{
		Address: uint64(mbi.BaseAddress),
		Size:    uint(mbi.RegionSize),
		Perms:   permsFromProtect(mbi.Protect),
	}
}

func permsFromProtect(protect uint32) string {
	if protect&windows.PAGE_GUARD != 0 {
		return "---p"
	}
	switch protect &^ (windows.PAGE_NOCACHE | windows.PAGE_WRITECOMBINE) {
	case windows.PAGE_READONLY:
		return "r--p"
	case windows.PAGE_READWRITE, windows.PAGE_WRITECOPY:
		return "rw-p"
	case windows.PAGE_EXECUTE:
		return "--xp"
	case windows.PAGE_EXECUTE_READ:
		return "r-xp"
	case windows.PAGE_EXECUTE_READWRITE, windows.PAGE_EXECUTE_WRITECOPY:
		return "rwxp"
	}
	return "---p"
}

func (w *WindowsMemoryMap) IsReadablePerms(perms string) bool {
	return len(perms) > 0 && perms[0] == 'r'
}

func (w *WindowsMemoryMap) IsWritablePerms(perms string) bool {
	return len(perms) > 1 && perms[1] == 'w'
}

func (w *WindowsMemoryMap) IsExecutablePerms(perms string) bool {
	return len(perms) > 2 && perms[2] == 'x'
}
