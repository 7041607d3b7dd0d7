package nativemem

import (
	"testing"

	"enginehook/process/memory_map"

	"github.com/stretchr/testify/assert"
)

func TestReadableSpan(t *testing.T) {
	mm := []memory_map.MemoryMapItem{
		{Address: 0x1000, Size: 0x1000, Perms: "r-xp"},
		{Address: 0x2000, Size: 0x1000, Perms: "r--p"},
		{Address: 0x4000, Size: 0x1000, Perms: "r-xp"},
		{Address: 0x5000, Size: 0x1000, Perms: "---p"},
	}

	assert.Equal(t, 64, readableSpan(0x1100, 64, mm))
	assert.Equal(t, 64, readableSpan(0x1fe0, 64, mm), "adjacent regions")
	assert.Equal(t, 0x20, readableSpan(0x2fe0, 64, mm), "stops at a gap")
	assert.Equal(t, 0x10, readableSpan(0x4ff0, 64, mm), "stops at a guard page")
	assert.Zero(t, readableSpan(0x3000, 64, mm))
	assert.Zero(t, readableSpan(0x5000, 64, mm))
}
