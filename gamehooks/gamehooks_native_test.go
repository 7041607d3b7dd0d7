//go:build linux && amd64

package gamehooks

import (
	"encoding/binary"
	"testing"
	"unsafe"

	"enginehook/abi"
	"enginehook/detour"
	"enginehook/offsets"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// observed is written by the fake originals below.
var observed uint64

// storeCode builds: mov rax, &observed; <store>; ret
func storeCode(store ...byte) []byte {
	code := []byte{0x48, 0xb8}
	code = binary.LittleEndian.AppendUint64(code, uint64(uintptr(unsafe.Pointer(&observed))))
	code = append(code, store...)
	return append(code, 0xc3)
}

func newFakeModule(t *testing.T, funcs map[uintptr][]byte) uintptr {
	t.Helper()
	mem, err := unix.Mmap(-1, 0, unix.Getpagesize(), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	require.NoError(t, err)
	for i := range mem {
		mem[i] = 0xCC
	}
	for off, code := range funcs {
		copy(mem[off:], code)
	}
	require.NoError(t, unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC))
	return uintptr(unsafe.Pointer(&mem[0]))
}

func register(t *testing.T, r *detour.Registry, p *Hooks, module string, base uintptr, mo offsets.ModuleOffsets) {
	t.Helper()
	ds, err := p.Descriptors(module, base, mo)
	require.NoError(t, err)
	for _, d := range ds {
		d.Enable = false
		h, err := r.Register(d)
		require.NoError(t, err)
		p.Bind(h)
		require.NoError(t, r.Enable(d.Name))
	}
}

func TestHooksReachOriginals(t *testing.T) {
	base := newFakeModule(t, map[uintptr][]byte{
		0x40: storeCode(0x40, 0x88, 0x38), // mov [rax], dil
		0x80: storeCode(0x48, 0x89, 0x30), // mov [rax], rsi
	})

	p := New()
	r := detour.NewRegistry()
	register(t, r, p, offsets.Server, base, offsets.ModuleOffsets{Hooks: map[string]offsets.HookOffset{RunUsercmd: {Offset: 0x40}}})
	register(t, r, p, offsets.Engine, base, offsets.ModuleOffsets{Hooks: map[string]offsets.HookOffset{ConnectSubfunc: {Offset: 0x80}}})

	var order []string
	p.OnRunUsercmds(func() {
		order = append(order, "event")
		assert.NotEqual(t, uint64(7), observed)
	})
	var connected uintptr
	p.OnClientConnected(func(client uintptr) {
		connected = client
		assert.Equal(t, uint64(0xbeef), observed)
	})

	observed = 0
	_, err := abi.CallValues(base+0x40, runUsercmdSig, int8(7))
	require.NoError(t, err)
	assert.Equal(t, []string{"event"}, order)
	assert.Equal(t, uint64(7), observed&0xff)

	_, err = abi.CallValues(base+0x80, connectSubfuncSig, uintptr(0x1234), uintptr(0xbeef))
	require.NoError(t, err)
	assert.Equal(t, uintptr(0x1234), connected)
	assert.Equal(t, uint64(0xbeef), observed)
}
