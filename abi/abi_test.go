package abi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNarrow(t *testing.T) {
	assert.Equal(t, uintptr(0x7f), Int8.Narrow(0xdead7f))
	assert.Equal(t, ^uintptr(0), Int8.Narrow(0xff))
	assert.Equal(t, uintptr(0xff), Uint8.Narrow(0x12ff))
	assert.Equal(t, ^uintptr(1), Int16.Narrow(0xabcdfffe))
	assert.Equal(t, uintptr(1), Bool.Narrow(0x100000001))
	assert.Equal(t, uintptr(0), Bool.Narrow(0x100))
	assert.Equal(t, uintptr(0), Void.Narrow(42))
	assert.Equal(t, uintptr(0xffffffff), Uint32.Narrow(0x1ffffffff))
}

func TestLower(t *testing.T) {
	assert.Equal(t, Win64, Lower(Thiscall, "windows", "amd64"))
	assert.Equal(t, Win64, Lower(C, "windows", "amd64"))
	assert.Equal(t, SysV64, Lower(Fastcall, "linux", "amd64"))
	assert.Equal(t, Thiscall32, Lower(Thiscall, "windows", "386"))
	assert.NotEqual(t, Lower(C, "windows", "386"), Lower(Thiscall, "windows", "386"))
}

func TestValidate(t *testing.T) {
	require.NoError(t, Sig(Void, Pointer, Pointer).Validate())
	require.NoError(t, Sig(Void, Int8).Validate())

	err := Sig(Void, Void).Validate()
	assert.ErrorIs(t, err, ErrSignature)

	params := make([]Kind, MaxParams+1)
	for i := range params {
		params[i] = Pointer
	}
	assert.ErrorIs(t, Sig(Void, params...).Validate(), ErrSignature)
}

func TestDivergentSignature(t *testing.T) {
	sig := Sig(Void, Pointer, Pointer).WithNative(Thiscall)
	assert.True(t, sig.Diverges())
	assert.Contains(t, sig.String(), "native thiscall")

	// 64-bit targets lower both to one convention
	if Compatible(C, Thiscall) {
		assert.NoError(t, sig.Validate())
	} else {
		assert.ErrorIs(t, sig.Validate(), ErrSignature)
	}

	same := Sig(Void).WithNative(C)
	assert.False(t, same.Diverges())
}

func TestCheckFunc(t *testing.T) {
	sig := Sig(Int16, Pointer, Int32)

	assert.NoError(t, sig.CheckFunc(func(uintptr, int32) int16 { return 0 }))
	assert.ErrorIs(t, sig.CheckFunc(func(uintptr, int64) int16 { return 0 }), ErrFuncMismatch)
	assert.ErrorIs(t, sig.CheckFunc(func(uintptr, int32) {}), ErrFuncMismatch)
	assert.ErrorIs(t, sig.CheckFunc(42), ErrFuncMismatch)

	var nilFn func(uintptr, int32) int16
	assert.ErrorIs(t, sig.CheckFunc(nilFn), ErrFuncMismatch)
}

func TestArgs(t *testing.T) {
	sig := Sig(Void, Int8, Pointer, Bool)

	args, err := sig.Args(int8(-1), uintptr(0x1000), true)
	require.NoError(t, err)
	assert.Equal(t, []uintptr{^uintptr(0), 0x1000, 1}, args)

	_, err = sig.Args(1)
	assert.ErrorIs(t, err, ErrArgCount)

	_, err = sig.Args("x", uintptr(0), false)
	assert.ErrorIs(t, err, ErrArgType)
}

func TestRawFuncNarrowsArguments(t *testing.T) {
	sig := Sig(Int16, Int8, Pointer)
	var gotA int8
	var gotP uintptr
	fn := func(a int8, p uintptr) int16 {
		gotA, gotP = a, p
		return -2
	}

	raw := rawFunc(sig, reflectValue(fn)).Interface().(func(uintptr, uintptr) uintptr)
	r := raw(0xabcdef80, 0x4000)

	assert.Equal(t, int8(-128), gotA)
	assert.Equal(t, uintptr(0x4000), gotP)
	assert.Equal(t, ^uintptr(1), r)
}

func TestCallNull(t *testing.T) {
	_, err := Call(0, Sig(Void))
	assert.ErrorIs(t, err, ErrSignature)
}
