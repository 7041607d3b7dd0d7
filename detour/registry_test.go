package detour

import (
	"testing"

	"enginehook/abi"

	"github.com/stretchr/testify/assert"
)

func TestRegisterValidation(t *testing.T) {
	r := NewRegistry()

	_, err := r.Register(Descriptor{Target: 0x1000, Signature: abi.Sig(abi.Void), Replacement: func() {}})
	assert.ErrorIs(t, err, ErrInstallFailed)

	_, err = r.Register(Descriptor{Name: "null", Signature: abi.Sig(abi.Void), Replacement: func() {}})
	assert.ErrorIs(t, err, ErrInstallFailed)

	_, err = r.Register(Descriptor{
		Name:        "mismatch",
		Target:      0x1000,
		Signature:   abi.Sig(abi.Void, abi.Pointer),
		Replacement: func(int32) {},
	})
	assert.ErrorIs(t, err, ErrInstallFailed)
	assert.ErrorIs(t, err, abi.ErrFuncMismatch)

	assert.Empty(t, r.Hooks())
}

func TestUnknownHook(t *testing.T) {
	r := NewRegistry()

	assert.ErrorIs(t, r.Enable("missing"), ErrEnableFailed)
	assert.ErrorIs(t, r.Enable("missing"), ErrHookNotFound)
	assert.ErrorIs(t, r.Disable("missing"), ErrHookNotFound)

	_, err := r.CallOriginal("missing")
	assert.ErrorIs(t, err, ErrHookNotFound)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "enabled", Enabled.String())
	assert.Equal(t, "installed", Installed.String())
}

func TestLocationShowsAbsoluteAddress(t *testing.T) {
	assert.Equal(t, "engine@0x7fb400106270", location(Descriptor{Module: "engine", Target: 0x7fb400106270}))
	assert.Equal(t, "0x1000", location(Descriptor{Target: 0x1000}))
}
