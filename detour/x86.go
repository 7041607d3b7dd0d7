package detour

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

const (
	relJmpLen  = 5
	absJmpLen  = 14
	absCallLen = 16
)

// encodeRelJmp encodes jmp rel32 from a 5-byte instruction at from to to.
func encodeRelJmp(from, to uintptr) []byte {
	b := make([]byte, relJmpLen)
	b[0] = 0xE9
	binary.LittleEndian.PutUint32(b[1:], uint32(int32(int64(to)-int64(from+relJmpLen))))
	return b
}

// encodeAbsJmp encodes jmp qword ptr [rip+0] followed by the target.
func encodeAbsJmp(to uintptr) []byte {
	b := make([]byte, absJmpLen)
	b[0], b[1] = 0xFF, 0x25
	binary.LittleEndian.PutUint64(b[6:], uint64(to))
	return b
}

// encodeAbsCall encodes call qword ptr [rip+2]; jmp +8; followed by the
// target, so the call returns to the byte after the address.
func encodeAbsCall(to uintptr) []byte {
	b := make([]byte, absCallLen)
	copy(b, []byte{0xFF, 0x15, 0x02, 0x00, 0x00, 0x00, 0xEB, 0x08})
	binary.LittleEndian.PutUint64(b[8:], uint64(to))
	return b
}

func fitsRel32(d int64) bool {
	return d >= -(1<<31) && d <= 1<<31-1
}

// decodePrologue decodes whole instructions from code until at least
// minLen bytes are covered. An instruction that ends control flow before
// that point means the function is too small to patch.
func decodePrologue(code []byte, minLen int) ([]x86asm.Inst, int, error) {
	var insts []x86asm.Inst
	n := 0
	for n < minLen {
		inst, err := x86asm.Decode(code[n:], 64)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: decode at +%#x: %v", ErrRelocate, n, err)
		}
		insts = append(insts, inst)
		n += inst.Len

		if n < minLen && endsFlow(inst) {
			return nil, 0, fmt.Errorf("%w: %s at +%#x", ErrFunctionTooSmall, inst.Op, n-inst.Len)
		}
	}
	return insts, n, nil
}

func endsFlow(inst x86asm.Inst) bool {
	switch inst.Op {
	case x86asm.RET, x86asm.LRET, x86asm.IRETQ, x86asm.JMP, x86asm.UD2, x86asm.INT:
		return true
	}
	return false
}

func isCondJump(op x86asm.Op) bool {
	switch op {
	case x86asm.JA, x86asm.JAE, x86asm.JB, x86asm.JBE, x86asm.JE, x86asm.JNE,
		x86asm.JG, x86asm.JGE, x86asm.JL, x86asm.JLE, x86asm.JO, x86asm.JNO,
		x86asm.JP, x86asm.JNP, x86asm.JS, x86asm.JNS:
		return true
	}
	return false
}

// relocate copies the stolen instructions from src so they run correctly
// at dst, and appends an absolute jump back to src+stolen.
func relocate(code []byte, insts []x86asm.Inst, src, dst uintptr) ([]byte, error) {
	stolen := 0
	for _, inst := range insts {
		stolen += inst.Len
	}

	var out []byte
	off := 0
	for _, inst := range insts {
		raw := code[off : off+inst.Len]
		pc := src + uintptr(off)
		at := dst + uintptr(len(out))
		off += inst.Len

		if inst.PCRel == 0 {
			out = append(out, raw...)
			continue
		}

		switch inst.Op {
		case x86asm.LOOP, x86asm.LOOPE, x86asm.LOOPNE, x86asm.JCXZ, x86asm.JECXZ, x86asm.JRCXZ:
			return nil, fmt.Errorf("%w: %s at %#x", ErrRelativeAddr, inst.Op, pc)
		}
		if inst.PCRel != 1 && inst.PCRel != 4 {
			return nil, fmt.Errorf("%w: %d-byte displacement at %#x", ErrRelativeAddr, inst.PCRel, pc)
		}

		var disp int64
		if inst.PCRel == 1 {
			disp = int64(int8(raw[inst.PCRelOff]))
		} else {
			disp = int64(int32(binary.LittleEndian.Uint32(raw[inst.PCRelOff:])))
		}
		target := uintptr(int64(pc) + int64(inst.Len) + disp)

		// jmp/call through a rip-relative pointer are memory operands, not branches
		_, direct := inst.Args[0].(x86asm.Rel)
		if direct && target > src && target < src+uintptr(stolen) {
			return nil, fmt.Errorf("%w: branch at %#x lands inside the patched bytes", ErrRelativeAddr, pc)
		}

		switch {
		case direct && inst.Op == x86asm.JMP:
			if d := int64(target) - int64(at+relJmpLen); fitsRel32(d) {
				out = append(out, encodeRelJmp(at, target)...)
			} else {
				out = append(out, encodeAbsJmp(target)...)
			}

		case direct && inst.Op == x86asm.CALL && inst.PCRel == 4:
			if d := int64(target) - int64(at+relJmpLen); fitsRel32(d) {
				b := encodeRelJmp(at, target)
				b[0] = 0xE8
				out = append(out, b...)
			} else {
				out = append(out, encodeAbsCall(target)...)
			}

		case direct && isCondJump(inst.Op):
			cc := conditionCode(raw, inst)
			if d := int64(target) - int64(at+6); fitsRel32(d) {
				b := []byte{0x0F, 0x80 | cc, 0, 0, 0, 0}
				binary.LittleEndian.PutUint32(b[2:], uint32(int32(d)))
				out = append(out, b...)
			} else {
				// inverted short jcc skips over the absolute jump
				out = append(out, 0x70|(cc^1), absJmpLen)
				out = append(out, encodeAbsJmp(target)...)
			}

		case inst.PCRel == 4:
			// rip-relative memory operand or other rel32 form
			d := int64(target) - int64(at+uintptr(inst.Len))
			if !fitsRel32(d) {
				return nil, fmt.Errorf("%w: %s at %#x cannot reach %#x from %#x", ErrRelativeAddr, inst.Op, pc, target, at)
			}
			b := append([]byte(nil), raw...)
			binary.LittleEndian.PutUint32(b[inst.PCRelOff:], uint32(int32(d)))
			out = append(out, b...)

		default:
			return nil, fmt.Errorf("%w: %s at %#x", ErrRelativeAddr, inst.Op, pc)
		}
	}

	out = append(out, encodeAbsJmp(src+uintptr(stolen))...)
	return out, nil
}

// conditionCode extracts the 4-bit condition from a short (7x) or near
// (0F 8x) conditional jump.
func conditionCode(raw []byte, inst x86asm.Inst) byte {
	return raw[inst.PCRelOff-1] & 0x0F
}
