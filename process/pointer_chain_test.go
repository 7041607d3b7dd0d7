package process

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMemory is a sparse byte map starting at 0x10000.
type fakeMemory map[ProcessMemoryAddress]byte

// mapRange backs [addr, addr+size) with zero bytes.
func (m fakeMemory) mapRange(addr ProcessMemoryAddress, size int) {
	for i := 0; i < size; i++ {
		m[addr+ProcessMemoryAddress(i)] = 0
	}
}

func (m fakeMemory) putPointer(addr, value ProcessMemoryAddress) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(value))
	for i, b := range buf {
		m[addr+ProcessMemoryAddress(i)] = b
	}
}

func (m fakeMemory) IsValidAddress(addr ProcessMemoryAddress) bool {
	_, ok := m[addr]
	return ok
}

func (m fakeMemory) ReadMemory(addr ProcessMemoryAddress, size ProcessMemorySize) ([]byte, error) {
	out := make([]byte, size)
	for i := range out {
		b, ok := m[addr+ProcessMemoryAddress(i)]
		if !ok {
			return nil, ErrAddressNotMapped
		}
		out[i] = b
	}
	return out, nil
}

func (m fakeMemory) ReadPOINTER(addr ProcessMemoryAddress) (ProcessMemoryAddress, error) {
	data, err := m.ReadMemory(addr, 8)
	if err != nil {
		return 0, err
	}
	return ProcessMemoryAddress(binary.LittleEndian.Uint64(data)), nil
}

func TestFollowPointerChain(t *testing.T) {
	mem := fakeMemory{}
	mem.mapRange(0x10000, 0x10)
	mem.mapRange(0x20000, 0x18)
	mem.mapRange(0x30000, 0x08)
	mem.putPointer(0x10008, 0x20000)
	mem.putPointer(0x20010, 0x30000)
	for i, b := range []byte("bot1") {
		mem[0x30004+ProcessMemoryAddress(i)] = b
	}

	data, err := FollowPointerChain(mem, 0x10000, 4, 8, 0x10, 4)
	require.NoError(t, err)
	assert.Equal(t, "bot1", string(data))
}

func TestFollowPointerChainUnmappedTarget(t *testing.T) {
	mem := fakeMemory{}
	mem.putPointer(0x10008, 0x40000)

	_, err := FollowPointerChain(mem, 0x10000, 4, 8, 0)
	assert.ErrorIs(t, err, ErrInvalidPointer)
}

func TestFollowPointerChainNull(t *testing.T) {
	mem := fakeMemory{}
	mem.putPointer(0x10000, 0)

	_, err := FollowPointerChain(mem, 0x10000, 4, 0, 0)
	assert.True(t, errors.Is(err, ErrInvalidPointer))
}

func TestFollowPointerChainNoOffsets(t *testing.T) {
	mem := fakeMemory{0x10000: 0xAA}

	data, err := FollowPointerChain(mem, 0x10000, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA}, data)
}
