//go:build linux

package nativemem

import (
	"testing"
	"unsafe"

	"enginehook/process/memory_map"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func mapCode(t *testing.T, code []byte) uintptr {
	t.Helper()
	mem, err := unix.Mmap(-1, 0, pageSize(), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	require.NoError(t, err)
	copy(mem, code)
	require.NoError(t, unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC))
	t.Cleanup(func() { _ = unix.Munmap(mem) })
	return uintptr(unsafe.Pointer(&mem[0]))
}

func regionPerms(t *testing.T, addr uintptr) string {
	t.Helper()
	mm, err := memory_map.ReadSelf()
	require.NoError(t, err)
	memory_map.Sort(mm)
	item := memory_map.IsValidAddress2(uint64(addr), mm)
	require.NotNil(t, item)
	return item.Perms
}

func TestPatchRestoresProtection(t *testing.T) {
	addr := mapCode(t, []byte{0x90, 0x90, 0x90, 0xc3})

	require.NoError(t, Patch(addr+1, []byte{0xcc, 0xcc}))

	assert.Equal(t, []byte{0x90, 0xcc, 0xcc, 0xc3}, Copy(addr, 4))
	assert.Equal(t, "r-xp", regionPerms(t, addr))
}

func TestPatchNull(t *testing.T) {
	assert.ErrorIs(t, Patch(0, []byte{0x90}), ErrNullPointer)
}

func TestAllocNear(t *testing.T) {
	target := mapCode(t, []byte{0xc3})

	block, err := AllocNear(target, 64)
	require.NoError(t, err)
	defer Free(block, 64)

	assert.True(t, Within32(target, block))

	// writable and executable
	Bytes(block, 1)[0] = 0xc3
	assert.Equal(t, "rwxp", regionPerms(t, block))
}

func TestNearCandidatesAboveLastMapping(t *testing.T) {
	const start = 0x7f0000000000
	mm := []memory_map.MemoryMapItem{{Address: start, Size: 0x10000, Perms: "r-xp"}}
	page := uintptr(pageSize())

	got := nearCandidates(start+0x1000, 0x100, mm)
	assert.Equal(t, []uintptr{start - page, start + 0x10000}, got)
}

func TestNearCandidatesOnlyAbove(t *testing.T) {
	// the target's module sits low enough that nothing below is within reach
	mm := []memory_map.MemoryMapItem{
		{Address: 0x10000, Size: 0x7fff0000, Perms: "r-xp"},
	}

	got := nearCandidates(0x10000, 0x100, mm)
	assert.Equal(t, []uintptr{0x80000000}, got)
}
