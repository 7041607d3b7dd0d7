package detour

import (
	"fmt"
	"sort"
	"sync"

	"enginehook/abi"
	"enginehook/coloransi"
	"enginehook/nativemem"

	"github.com/Moonlight-Companies/gologger/logger"
)

// blockSize holds the relay jump and the trampoline.
const (
	blockSize        = 256
	trampolineOffset = 16
	maxPrologue      = 64
)

// Registry owns every hook in the process. Each absolute address belongs
// to at most one hook.
type Registry struct {
	mu     sync.Mutex
	hooks  map[string]*Hook
	owners map[uintptr]string
	log    *logger.Logger
}

// NewRegistry creates an empty Registry
func NewRegistry() *Registry {
	return &Registry{
		hooks:  make(map[string]*Hook),
		owners: make(map[uintptr]string),
		log:    logger.NewLogger(coloransi.Color(coloransi.Black, coloransi.ColorLimeGreen, "detour")),
	}
}

// Register installs the hook described by d. With d.Enable set it is also
// enabled; an enable failure then returns the installed hook together with
// an ErrEnableFailed error.
func (r *Registry) Register(d Descriptor) (*Hook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d.Name == "" {
		return nil, fmt.Errorf("%w: empty hook name", ErrInstallFailed)
	}
	if _, ok := r.hooks[d.Name]; ok {
		return nil, fmt.Errorf("%w: %w: %s", ErrInstallFailed, ErrNameTaken, d.Name)
	}
	if owner, ok := r.owners[d.Target]; ok {
		return nil, fmt.Errorf("%s at %#x held by %s: %w", d.Name, d.Target, owner, ErrAddressAlreadyOwned)
	}
	if d.Target == 0 {
		return nil, fmt.Errorf("%w: %s: %w", ErrInstallFailed, d.Name, nativemem.ErrNullPointer)
	}
	if err := d.Signature.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInstallFailed, d.Name, err)
	}
	if err := d.Signature.CheckFunc(d.Replacement); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInstallFailed, d.Name, err)
	}
	if d.Signature.Diverges() {
		r.log.Warn("hook ", d.Name, " is declared ", d.Signature.Conv, " but the host function is ", *d.Signature.Native,
			"; accepted only because both lower to the same ABI on this platform")
	}

	h := &Hook{desc: d}
	if err := r.install(h); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInstallFailed, d.Name, err)
	}

	r.hooks[d.Name] = h
	r.owners[d.Target] = d.Name
	h.state.Store(int32(Installed))

	r.log.Infoln("installed", coloransi.Foreground(coloransi.ColorFromString(d.Name), d.Name),
		location(d), d.Signature.String())

	if d.Enable {
		if err := r.enableLocked(h); err != nil {
			return h, err
		}
	}

	return h, nil
}

// location names the absolute target of d within its module.
func location(d Descriptor) string {
	if d.Module == "" {
		return fmt.Sprintf("%#x", d.Target)
	}
	return fmt.Sprintf("%s@%#x", d.Module, d.Target)
}

func (r *Registry) install(h *Hook) error {
	d := h.desc

	// the prologue read stops where the target's mapping ends
	n, err := nativemem.ReadableLen(d.Target, maxPrologue)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %#x", nativemem.ErrNotMapped, d.Target)
	}
	code := nativemem.Copy(d.Target, n)

	if d.Check != nil {
		if err := d.Check(code); err != nil {
			return err
		}
	}

	block, err := nativemem.AllocNear(d.Target, blockSize)
	near := err == nil
	if !near {
		r.log.Warn("no block near ", fmt.Sprintf("%#x", d.Target), " for ", d.Name, ", using a 14 byte patch: ", err)
		block, err = nativemem.AllocExec(blockSize)
		if err != nil {
			return err
		}
	}

	minLen := absJmpLen
	if near {
		minLen = relJmpLen
	}
	insts, stolen, err := decodePrologue(code, minLen)
	if err != nil {
		_ = nativemem.Free(block, blockSize)
		return err
	}

	var tramp []byte
	if d.CallThrough {
		tramp, err = relocate(code, insts, d.Target, block+trampolineOffset)
		if err != nil {
			_ = nativemem.Free(block, blockSize)
			return err
		}
		if len(tramp) > blockSize-trampolineOffset {
			_ = nativemem.Free(block, blockSize)
			return fmt.Errorf("%w: trampoline of %d bytes", ErrRelocate, len(tramp))
		}
	}

	callback, err := abi.NewCallback(d.Signature, d.Replacement)
	if err != nil {
		_ = nativemem.Free(block, blockSize)
		return err
	}
	h.callback = callback

	mem := nativemem.Bytes(block, blockSize)
	for i := range mem {
		mem[i] = 0xCC
	}
	copy(mem, encodeAbsJmp(callback))
	if tramp != nil {
		copy(mem[trampolineOffset:], tramp)
		h.trampoline = block + trampolineOffset
	}

	var patch []byte
	if near {
		patch = encodeRelJmp(d.Target, block)
	} else {
		patch = encodeAbsJmp(callback)
	}
	for len(patch) < stolen {
		patch = append(patch, 0x90)
	}

	h.block = block
	h.blockSize = blockSize
	h.patch = patch
	h.original = append([]byte(nil), code[:stolen]...)
	return nil
}

// Enable writes the jump at the hook's target.
func (r *Registry) Enable(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.hooks[name]
	if !ok {
		return fmt.Errorf("%w: %w: %s", ErrEnableFailed, ErrHookNotFound, name)
	}
	return r.enableLocked(h)
}

// Internal helper function that assumes the mutex is already locked
func (r *Registry) enableLocked(h *Hook) error {
	switch h.State() {
	case Enabled:
		return nil
	case Uninstalled:
		return fmt.Errorf("%w: %s: %w", ErrEnableFailed, h.desc.Name, ErrNotInstalled)
	}

	if err := nativemem.Patch(h.desc.Target, h.patch); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrEnableFailed, h.desc.Name, err)
	}
	h.state.Store(int32(Enabled))
	r.log.Infoln("enabled", h.desc.Name)
	return nil
}

// Disable restores the original bytes at the hook's target. The hook stays
// installed and can be enabled again.
func (r *Registry) Disable(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.hooks[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrHookNotFound, name)
	}
	if h.State() != Enabled {
		return nil
	}

	if err := nativemem.Patch(h.desc.Target, h.original); err != nil {
		return fmt.Errorf("disable %s: %w", name, err)
	}
	h.state.Store(int32(Disabled))
	r.log.Infoln("disabled", name)
	return nil
}

// Get returns the named hook.
func (r *Registry) Get(name string) (*Hook, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.hooks[name]
	return h, ok
}

// Owner returns the name of the hook owning addr.
func (r *Registry) Owner(addr uintptr) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.owners[addr]
	return name, ok
}

// CallOriginal calls the original behind the named hook.
func (r *Registry) CallOriginal(name string, args ...any) (uintptr, error) {
	h, ok := r.Get(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrHookNotFound, name)
	}
	return h.CallOriginal(args...)
}

// Hooks returns all hooks sorted by name.
func (r *Registry) Hooks() []*Hook {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Hook, 0, len(r.hooks))
	for _, h := range r.hooks {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].desc.Name < out[j].desc.Name })
	return out
}
