// Package iface resolves named interfaces through a module's
// CreateInterface export and calls their function slots.
package iface

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"enginehook/abi"
	"enginehook/coloransi"
	"enginehook/nativemem"

	"github.com/Moonlight-Companies/gologger/logger"
)

// FactorySymbol is the export every module exposes its interfaces through.
const FactorySymbol = "CreateInterface"

var (
	ErrInterfaceNotFound = errors.New("interface not found")
	ErrSlotOutOfRange    = errors.New("interface slot out of range")
)

// factorySig is void *CreateInterface(const char *name, int *returnCode).
var factorySig = abi.Sig(abi.Pointer, abi.Pointer, abi.Pointer)

// Spec declares an interface. Slots is the number of function slots known
// to be valid; the host does not report one.
type Spec struct {
	Module string
	Name   string
	Slots  int
}

// Handle is a resolved interface object and its function table.
type Handle struct {
	Module string
	Name   string
	Object uintptr
	Table  uintptr
	Slots  int
}

// Slot returns the function pointer stored in slot i.
func (h Handle) Slot(i int) (uintptr, error) {
	if i < 0 || i >= h.Slots {
		return 0, fmt.Errorf("%w: %s slot %d of %d", ErrSlotOutOfRange, h.Name, i, h.Slots)
	}
	arr := nativemem.NewArray(h.Table, h.Slots)
	fn, ok := arr.At(i)
	if !ok {
		return 0, fmt.Errorf("%s slot %d: %w", h.Name, i, nativemem.ErrNullPointer)
	}
	return fn, nil
}

// Invoke calls slot i with register arguments and the caller's signature.
func (h Handle) Invoke(i int, sig abi.Signature, args ...uintptr) (uintptr, error) {
	fn, err := h.Slot(i)
	if err != nil {
		return 0, err
	}
	return abi.Call(fn, sig, args...)
}

// SymbolSource finds exports of loaded modules.
type SymbolSource interface {
	Lookup(module, symbol string) (uintptr, error)
}

type cacheKey struct {
	module string
	name   string
}

type cacheEntry struct {
	handle Handle
	err    error
}

// Resolver resolves and caches interfaces. Resolution is attempted once
// per (module, name); a failure is cached as well.
type Resolver struct {
	src   SymbolSource
	log   *logger.Logger
	mu    sync.Mutex
	cache map[cacheKey]cacheEntry
}

// NewResolver creates a Resolver over src
func NewResolver(src SymbolSource) *Resolver {
	return &Resolver{
		src:   src,
		log:   logger.NewLogger(coloransi.Color(coloransi.Black, coloransi.Cyan, "iface")),
		cache: make(map[cacheKey]cacheEntry),
	}
}

// Resolve returns the interface named by spec. Module lookup errors are
// returned as they come from the SymbolSource.
func (r *Resolver) Resolve(spec Spec) (Handle, error) {
	key := cacheKey{spec.Module, spec.Name}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.cache[key]; ok {
		return e.handle, e.err
	}

	h, err := r.resolve(spec)
	r.cache[key] = cacheEntry{handle: h, err: err}
	if err != nil {
		r.log.Warn("failed to get interface ", spec.Name, " from ", spec.Module, ": ", err)
		return Handle{}, err
	}

	r.log.Infoln("resolved", spec.Module, spec.Name, fmt.Sprintf("object=%#x table=%#x", h.Object, h.Table))
	return h, nil
}

func (r *Resolver) resolve(spec Spec) (Handle, error) {
	factory, err := r.src.Lookup(spec.Module, FactorySymbol)
	if err != nil {
		return Handle{}, err
	}

	name := nativemem.CString(spec.Name)
	object, err := abi.Call(factory, factorySig, uintptr(unsafe.Pointer(&name[0])), 0)
	runtime.KeepAlive(name)
	if err != nil {
		return Handle{}, err
	}
	if object == 0 {
		return Handle{}, fmt.Errorf("%w: %s in %s", ErrInterfaceNotFound, spec.Name, spec.Module)
	}

	table := nativemem.ReadPtr(object)
	if table == 0 {
		return Handle{}, fmt.Errorf("%w: %s has no function table", ErrInterfaceNotFound, spec.Name)
	}

	return Handle{
		Module: spec.Module,
		Name:   spec.Name,
		Object: object,
		Table:  table,
		Slots:  spec.Slots,
	}, nil
}
