package nativemem

import "bytes"

// MaxCStringLen bounds GoString so a missing terminator cannot run off
// into unmapped memory forever.
const MaxCStringLen = 4096

// CString returns s as a NUL-terminated byte slice. Callers pass
// &b[0] to native code and keep b alive across the call.
func CString(s string) []byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return b
}

// GoString copies a NUL-terminated string out of host memory.
func GoString(addr uintptr) string {
	if addr == 0 {
		return ""
	}
	for n := 0; n < MaxCStringLen; n++ {
		if *(*byte)(At(addr + uintptr(n))) == 0 {
			return string(Bytes(addr, n))
		}
	}
	return string(Bytes(addr, MaxCStringLen))
}

// SetCharArray overwrites a fixed-size char buffer with s. The buffer is
// zeroed first and the last byte is always NUL, truncating s if needed.
func SetCharArray(buf []byte, s string) {
	if len(buf) == 0 {
		return
	}
	for i := range buf {
		buf[i] = 0
	}
	copy(buf[:len(buf)-1], s)
}

// CharArrayString reads a fixed-size char buffer up to its first NUL.
func CharArrayString(buf []byte) string {
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		return string(buf[:i])
	}
	return string(buf)
}
