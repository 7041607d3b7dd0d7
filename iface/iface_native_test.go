//go:build linux && amd64

package iface

import (
	"testing"
	"unsafe"

	"enginehook/abi"
	"enginehook/nativemem"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeInterface is an object whose first word points at its table.
var (
	fakeTable  [4]uintptr
	fakeObject [2]uintptr
)

func newFakeFactory(t *testing.T) uintptr {
	t.Helper()

	double, err := abi.NewCallback(abi.Sig(abi.Int32, abi.Pointer, abi.Int32), func(this uintptr, x int32) int32 {
		return x * 2
	})
	require.NoError(t, err)
	fakeTable[2] = double
	fakeObject[0] = uintptr(unsafe.Pointer(&fakeTable[0]))

	factory, err := abi.NewCallback(factorySig, func(name, rc uintptr) uintptr {
		if rc != 0 {
			return 0
		}
		if nativemem.GoString(name) == "KnownInterface001" {
			return uintptr(unsafe.Pointer(&fakeObject[0]))
		}
		return 0
	})
	require.NoError(t, err)
	return factory
}

func TestResolveKnownAndBogus(t *testing.T) {
	src := &fakeSource{exports: map[string]uintptr{"engine!" + FactorySymbol: newFakeFactory(t)}}
	r := NewResolver(src)

	h, err := r.Resolve(Spec{Module: "engine", Name: "KnownInterface001", Slots: len(fakeTable)})
	require.NoError(t, err)
	assert.Equal(t, uintptr(unsafe.Pointer(&fakeObject[0])), h.Object)
	assert.Equal(t, uintptr(unsafe.Pointer(&fakeTable[0])), h.Table)

	res, err := h.Invoke(2, abi.Sig(abi.Int32, abi.Pointer, abi.Int32), h.Object, 21)
	require.NoError(t, err)
	assert.Equal(t, int32(42), int32(res))

	_, err = r.Resolve(Spec{Module: "engine", Name: "BogusInterface", Slots: 4})
	assert.ErrorIs(t, err, ErrInterfaceNotFound)

	// cached
	again, err := r.Resolve(Spec{Module: "engine", Name: "KnownInterface001", Slots: len(fakeTable)})
	require.NoError(t, err)
	assert.Equal(t, h, again)
	assert.Equal(t, 2, src.lookups)
}
