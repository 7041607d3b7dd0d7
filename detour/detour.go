// Package detour installs inline function hooks inside the current process.
//
// A hook overwrites the first instructions of a target function with a jump
// to a relay that enters a Go replacement. The overwritten instructions are
// relocated into a trampoline so the replacement can call the original.
// Replacements run on whichever thread called the target.
package detour

import (
	"errors"
	"fmt"
	"sync/atomic"

	"enginehook/abi"
)

var (
	ErrInstallFailed       = errors.New("hook install failed")
	ErrEnableFailed        = errors.New("hook enable failed")
	ErrAddressAlreadyOwned = errors.New("address already owned by another hook")
	ErrNameTaken           = errors.New("hook name already registered")
	ErrHookNotFound        = errors.New("hook not found")
	ErrNoCallThrough       = errors.New("hook was registered without call-through")
	ErrNotInstalled        = errors.New("hook is not installed")
	ErrFunctionTooSmall    = errors.New("function too small to patch")
	ErrRelativeAddr        = errors.New("instruction cannot be relocated")
	ErrRelocate            = errors.New("relocating prologue failed")
)

// State is the lifecycle position of a hook.
type State int32

const (
	Uninstalled State = iota
	Installed
	Enabled
	Disabled
)

func (s State) String() string {
	switch s {
	case Uninstalled:
		return "uninstalled"
	case Installed:
		return "installed"
	case Enabled:
		return "enabled"
	case Disabled:
		return "disabled"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Descriptor describes one hook before it is installed.
type Descriptor struct {
	Name string

	// Module is informational; Target is the absolute address.
	Module string
	Target uintptr

	Signature abi.Signature

	// Replacement is a Go func matching Signature.
	Replacement any

	// CallThrough builds a trampoline so the replacement can reach the
	// original through CallOriginal.
	CallThrough bool

	// Required marks hooks whose failure must abort initialization.
	Required bool

	// Enable turns the hook on immediately after install.
	Enable bool

	// Check, when set, validates the bytes at Target before anything is
	// written. A failure aborts the install.
	Check func(code []byte) error
}

// Hook is an installed interception. It is safe for concurrent use.
type Hook struct {
	desc  Descriptor
	state atomic.Int32

	callback   uintptr
	block      uintptr
	blockSize  uintptr
	trampoline uintptr

	patch    []byte
	original []byte
}

func (h *Hook) Name() string             { return h.desc.Name }
func (h *Hook) Module() string           { return h.desc.Module }
func (h *Hook) Target() uintptr          { return h.desc.Target }
func (h *Hook) Signature() abi.Signature { return h.desc.Signature }
func (h *Hook) Required() bool           { return h.desc.Required }
func (h *Hook) State() State             { return State(h.state.Load()) }
func (h *Hook) IsEnabled() bool          { return h.State() == Enabled }
func (h *Hook) Trampoline() uintptr      { return h.trampoline }
func (h *Hook) Callback() uintptr        { return h.callback }
func (h *Hook) PatchBytes() []byte       { return append([]byte(nil), h.patch...) }
func (h *Hook) OriginalBytes() []byte    { return append([]byte(nil), h.original...) }
func (h *Hook) Descriptor() Descriptor   { return h.desc }

// CallOriginal calls the relocated original with Go values converted per
// the hook's signature. It is meant to be used from inside the
// replacement and forwards arguments unmodified.
func (h *Hook) CallOriginal(args ...any) (uintptr, error) {
	if h.trampoline == 0 {
		return 0, fmt.Errorf("%s: %w", h.desc.Name, ErrNoCallThrough)
	}
	return abi.CallValues(h.trampoline, h.desc.Signature, args...)
}

// CallOriginalRaw is CallOriginal with register values.
func (h *Hook) CallOriginalRaw(args ...uintptr) (uintptr, error) {
	if h.trampoline == 0 {
		return 0, fmt.Errorf("%s: %w", h.desc.Name, ErrNoCallThrough)
	}
	return abi.Call(h.trampoline, h.desc.Signature, args...)
}
