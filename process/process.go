// Package process provides the address types shared by the in-process hooking
// core and the out-of-process inspection tools.
package process

import "errors"

var (
	// ErrAddressNotMapped is returned when a memory address is not found within any mapped region of a process.
	ErrAddressNotMapped = errors.New("address not mapped")

	// ErrProcessNotOpen is returned when an operation requiring an open process is attempted
	// before the process has been successfully opened or after it has been closed.
	ErrProcessNotOpen = errors.New("process not open")

	ErrInvalidPointer = errors.New("invalid pointer read")

	// ErrModuleNotMapped is returned when no mapping of the named module image exists.
	ErrModuleNotMapped = errors.New("module not mapped")
)
