package hexdump

import (
	"testing"

	"enginehook/process"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDumpPlain(t *testing.T) {
	options := DefaultOptions()
	options.Color = false
	options.BytesPerLine = 4

	got := Dump([]byte{0x48, 0x89, 0x5c, 0x24, 0x41}, options)
	want := "00000000  48 89 5c 24  |H.\\$|\n" +
		"00000004  41           |A|\n"
	assert.Equal(t, want, got)
}

func TestDumpMarksMismatch(t *testing.T) {
	expected, err := process.ParseAOB("48 ?? 5c 25")
	require.NoError(t, err)

	options := DefaultOptions()
	options.Color = false
	options.ShowASCII = false
	options.Expected = &expected

	got := Dump([]byte{0x48, 0x89, 0x5c, 0x2a}, options)
	assert.Equal(t, "00000000  48 89 5c 2A\n", got)
}

func TestMismatch(t *testing.T) {
	expected, err := process.ParseAOB("55 ?? c3")
	require.NoError(t, err)

	assert.False(t, Mismatch(nil, 0, 0x00))
	assert.False(t, Mismatch(&expected, 0, 0x55))
	assert.False(t, Mismatch(&expected, 1, 0x12))
	assert.True(t, Mismatch(&expected, 2, 0xcc))
	assert.False(t, Mismatch(&expected, 5, 0xcc))
}
