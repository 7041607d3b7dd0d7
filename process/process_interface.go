package process

import (
	"enginehook/process/memory_map"
)

// Process is the interface the inspection tools use to look at a running host
// from outside of it. It never writes.
type Process interface {
	// Open opens a process with the given PID for memory operations
	Open(pid ProcessID) error

	// Close closes the process and releases resources
	Close() error

	// GetPID returns the process ID
	GetPID() ProcessID

	// UpdateMemoryMap refreshes the memory map for the process
	UpdateMemoryMap() error

	// IsValidAddress checks if the given memory address is valid and readable
	IsValidAddress(addr ProcessMemoryAddress) bool

	// GetMemoryMap returns a copy of the current memory map
	GetMemoryMap() ([]memory_map.MemoryMapItem, error)

	// ReadMemory reads memory from the process at the specified address
	ReadMemory(addr ProcessMemoryAddress, size ProcessMemorySize) ([]byte, error)

	// Modules lists the module images mapped into the process
	Modules() ([]ModuleInfo, error)

	// ReadPOINTER reads a pointer value from the specified address
	ReadPOINTER(addr ProcessMemoryAddress) (ProcessMemoryAddress, error)

	// ReadPointerChain walks pointer fields at all offsets except the last and
	// reads size bytes at the final raw offset.
	ReadPointerChain(base ProcessMemoryAddress, size ProcessMemorySize, offsets ...ProcessMemorySize) ([]byte, error)
}
