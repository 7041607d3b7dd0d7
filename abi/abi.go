// Package abi describes native function signatures as data and bridges Go
// code to and from native code with them.
//
// Only integer-class parameters are modelled: every argument and result
// travels in a general purpose register or a stack slot of pointer width.
package abi

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"unsafe"
)

// MaxParams bounds the parameter count of a signature.
const MaxParams = 15

var (
	ErrSignature    = errors.New("invalid signature")
	ErrFuncMismatch = errors.New("function does not match signature")
	ErrArgCount     = errors.New("wrong number of arguments")
	ErrArgType      = errors.New("unsupported argument type")
)

// Kind is the declared type of one parameter or result.
type Kind uint8

const (
	Void Kind = iota
	Bool
	Int8
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Int64
	Uint64
	Pointer
)

var kindNames = [...]string{"void", "bool", "int8", "uint8", "int16", "uint16", "int32", "uint32", "int64", "uint64", "ptr"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// GoType returns the Go type a replacement func uses for k.
func (k Kind) GoType() reflect.Type {
	switch k {
	case Bool:
		return reflect.TypeOf(false)
	case Int8:
		return reflect.TypeOf(int8(0))
	case Uint8:
		return reflect.TypeOf(uint8(0))
	case Int16:
		return reflect.TypeOf(int16(0))
	case Uint16:
		return reflect.TypeOf(uint16(0))
	case Int32:
		return reflect.TypeOf(int32(0))
	case Uint32:
		return reflect.TypeOf(uint32(0))
	case Int64:
		return reflect.TypeOf(int64(0))
	case Uint64:
		return reflect.TypeOf(uint64(0))
	case Pointer:
		return reflect.TypeOf(uintptr(0))
	}
	return nil
}

// Narrow keeps only the bits of a register value that belong to k,
// sign-extending signed kinds back to pointer width.
func (k Kind) Narrow(v uintptr) uintptr {
	switch k {
	case Void:
		return 0
	case Bool:
		if uint8(v) != 0 {
			return 1
		}
		return 0
	case Int8:
		return uintptr(int64(int8(v)))
	case Uint8:
		return uintptr(uint8(v))
	case Int16:
		return uintptr(int64(int16(v)))
	case Uint16:
		return uintptr(uint16(v))
	case Int32:
		return uintptr(int64(int32(v)))
	case Uint32:
		return uintptr(uint32(v))
	}
	return v
}

// CallConv is a declared calling convention.
type CallConv uint8

const (
	C CallConv = iota
	Stdcall
	Fastcall
	Thiscall
)

func (c CallConv) String() string {
	switch c {
	case C:
		return "C"
	case Stdcall:
		return "stdcall"
	case Fastcall:
		return "fastcall"
	case Thiscall:
		return "thiscall"
	}
	return fmt.Sprintf("conv(%d)", c)
}

// MachineABI is what a declared convention lowers to on a platform.
type MachineABI string

const (
	Win64      MachineABI = "win64"
	SysV64     MachineABI = "sysv64"
	AAPCS64    MachineABI = "aapcs64"
	Cdecl32    MachineABI = "cdecl32"
	Stdcall32  MachineABI = "stdcall32"
	Fastcall32 MachineABI = "fastcall32"
	Thiscall32 MachineABI = "thiscall32"
)

// Lower maps a declared convention to the machine ABI used on goos/goarch.
// On 64-bit targets every declared convention collapses to the single
// platform convention.
func Lower(c CallConv, goos, goarch string) MachineABI {
	switch goarch {
	case "amd64":
		if goos == "windows" {
			return Win64
		}
		return SysV64
	case "arm64":
		return AAPCS64
	}
	switch c {
	case Stdcall:
		return Stdcall32
	case Fastcall:
		return Fastcall32
	case Thiscall:
		return Thiscall32
	}
	return Cdecl32
}

// Compatible reports whether two conventions lower to the same machine ABI
// on the running platform.
func Compatible(a, b CallConv) bool {
	return Lower(a, runtime.GOOS, runtime.GOARCH) == Lower(b, runtime.GOOS, runtime.GOARCH)
}

// Signature is the declared shape of a native function.
type Signature struct {
	// Conv is the convention the function is declared with.
	Conv CallConv
	// Native is the convention the host actually compiled the function
	// with, when known to differ from Conv.
	Native *CallConv
	Params []Kind
	Result Kind
}

// Sig builds a C signature.
func Sig(result Kind, params ...Kind) Signature {
	return Signature{Conv: C, Params: params, Result: result}
}

// WithNative records the host's real convention for a function declared
// with a different one.
func (s Signature) WithNative(c CallConv) Signature {
	s.Native = &c
	return s
}

// Diverges reports whether the declared convention differs from the
// host's real one.
func (s Signature) Diverges() bool {
	return s.Native != nil && *s.Native != s.Conv
}

func (s Signature) String() string {
	params := make([]string, len(s.Params))
	for i, p := range s.Params {
		params[i] = p.String()
	}
	out := fmt.Sprintf("%s %s(%s)", s.Conv, s.Result, strings.Join(params, ", "))
	if s.Diverges() {
		out += fmt.Sprintf(" [native %s]", *s.Native)
	}
	return out
}

// Validate checks the signature itself and, for divergent signatures, that
// both conventions lower to the same machine ABI here.
func (s Signature) Validate() error {
	if len(s.Params) > MaxParams {
		return fmt.Errorf("%w: %d params, max %d", ErrSignature, len(s.Params), MaxParams)
	}
	for i, p := range s.Params {
		if p == Void || p > Pointer {
			return fmt.Errorf("%w: param %d has kind %s", ErrSignature, i, p)
		}
	}
	if s.Result > Pointer {
		return fmt.Errorf("%w: result kind %s", ErrSignature, s.Result)
	}
	if s.Diverges() && !Compatible(s.Conv, *s.Native) {
		return fmt.Errorf("%w: declared %s but native %s on %s/%s", ErrSignature, s.Conv, *s.Native, runtime.GOOS, runtime.GOARCH)
	}
	return nil
}

// FuncType returns the Go func type that implements s.
func (s Signature) FuncType() reflect.Type {
	in := make([]reflect.Type, len(s.Params))
	for i, p := range s.Params {
		in[i] = p.GoType()
	}
	var out []reflect.Type
	if s.Result != Void {
		out = []reflect.Type{s.Result.GoType()}
	}
	return reflect.FuncOf(in, out, false)
}

// CheckFunc verifies that fn is a non-nil Go func whose parameters and
// result match s exactly.
func (s Signature) CheckFunc(fn any) error {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return fmt.Errorf("%w: %T is not a func", ErrFuncMismatch, fn)
	}
	if want := s.FuncType(); v.Type() != want {
		return fmt.Errorf("%w: have %s, want %s", ErrFuncMismatch, v.Type(), want)
	}
	return nil
}

// Args converts Go values into register values for a call with s.
func (s Signature) Args(vals ...any) ([]uintptr, error) {
	if len(vals) != len(s.Params) {
		return nil, fmt.Errorf("%w: have %d, want %d", ErrArgCount, len(vals), len(s.Params))
	}
	out := make([]uintptr, len(vals))
	for i, v := range vals {
		raw, err := ToUintptr(v)
		if err != nil {
			return nil, fmt.Errorf("arg %d: %w", i, err)
		}
		out[i] = s.Params[i].Narrow(raw)
	}
	return out, nil
}

// ToUintptr converts an integer-class Go value into a register value.
func ToUintptr(v any) (uintptr, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case uintptr:
		return x, nil
	case unsafe.Pointer:
		return uintptr(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case int:
		return uintptr(x), nil
	case int8:
		return uintptr(x), nil
	case int16:
		return uintptr(x), nil
	case int32:
		return uintptr(x), nil
	case int64:
		return uintptr(x), nil
	case uint:
		return uintptr(x), nil
	case uint8:
		return uintptr(x), nil
	case uint16:
		return uintptr(x), nil
	case uint32:
		return uintptr(x), nil
	case uint64:
		return uintptr(x), nil
	}
	return 0, fmt.Errorf("%w: %T", ErrArgType, v)
}

// FromUintptr converts a register value into the Go value for k.
func FromUintptr(k Kind, v uintptr) reflect.Value {
	v = k.Narrow(v)
	switch k {
	case Bool:
		return reflect.ValueOf(v != 0)
	case Int8:
		return reflect.ValueOf(int8(v))
	case Uint8:
		return reflect.ValueOf(uint8(v))
	case Int16:
		return reflect.ValueOf(int16(v))
	case Uint16:
		return reflect.ValueOf(uint16(v))
	case Int32:
		return reflect.ValueOf(int32(v))
	case Uint32:
		return reflect.ValueOf(uint32(v))
	case Int64:
		return reflect.ValueOf(int64(v))
	case Uint64:
		return reflect.ValueOf(uint64(v))
	}
	return reflect.ValueOf(v)
}

func toRaw(v reflect.Value) uintptr {
	switch v.Kind() {
	case reflect.Bool:
		if v.Bool() {
			return 1
		}
		return 0
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int:
		return uintptr(v.Int())
	}
	return uintptr(v.Uint())
}
