package process

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
)

// ProcessMemoryAddress represents a memory address within a process
type ProcessMemoryAddress uint64

func (pma ProcessMemoryAddress) ToString() string {
	return fmt.Sprintf("0x%X", uint64(pma))
}

// Add returns the address offset bytes past pma.
func (pma ProcessMemoryAddress) Add(offset uint64) ProcessMemoryAddress {
	return pma + ProcessMemoryAddress(offset)
}

// ProcessMemorySize represents a size of memory region
type ProcessMemorySize uint

func (pms ProcessMemorySize) ToString() string {
	return fmt.Sprintf("%d bytes", uint(pms))
}

// AOB (Array of Bytes) represents an expected byte pattern, e.g. the first
// bytes of a function the offsets table points at.
type AOB struct {
	Pattern []byte // The byte pattern to match
	Mask    []byte // 0xFF means exact match and 0x00 means wildcard
}

// IsValid checks if the AOB pattern is valid
func (aob AOB) IsValid() bool {
	return len(aob.Pattern) == len(aob.Mask)
}

// IsEmpty reports whether the pattern has no bytes to compare.
func (aob AOB) IsEmpty() bool {
	return len(aob.Pattern) == 0
}

func NewAOB(pattern, mask []byte) (AOB, error) {
	if len(pattern) != len(mask) {
		return AOB{}, fmt.Errorf("pattern and mask must be of the same length")
	}
	return AOB{Pattern: pattern, Mask: mask}, nil
}

// ParseAOB parses a space or comma separated byte pattern such as
// "48 89 5C 24 ?? 57". "??" and "?" are wildcards.
func ParseAOB(s string) (AOB, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t'
	})

	aob := AOB{
		Pattern: make([]byte, 0, len(fields)),
		Mask:    make([]byte, 0, len(fields)),
	}

	for _, f := range fields {
		if f == "??" || f == "?" {
			aob.Pattern = append(aob.Pattern, 0)
			aob.Mask = append(aob.Mask, 0x00)
			continue
		}

		if len(f) != 2 {
			return AOB{}, fmt.Errorf("invalid byte %q in pattern", f)
		}

		b, err := hex.DecodeString(f)
		if err != nil {
			return AOB{}, fmt.Errorf("invalid byte %q in pattern: %w", f, err)
		}

		aob.Pattern = append(aob.Pattern, b[0])
		aob.Mask = append(aob.Mask, 0xFF)
	}

	return aob, nil
}

// Match reports whether data starts with the pattern.
func (aob AOB) Match(data []byte) bool {
	if len(data) < len(aob.Pattern) {
		return false
	}

	if len(aob.Mask) == 0 {
		return bytes.HasPrefix(data, aob.Pattern)
	}

	for i := range aob.Pattern {
		if aob.Mask[i] != 0 && data[i]&aob.Mask[i] != aob.Pattern[i]&aob.Mask[i] {
			return false
		}
	}
	return true
}

// String formats the pattern the way ParseAOB reads it.
func (aob AOB) String() string {
	parts := make([]string, len(aob.Pattern))
	for i, b := range aob.Pattern {
		if len(aob.Mask) > i && aob.Mask[i] == 0 {
			parts[i] = "??"
			continue
		}
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, " ")
}
