package abi

import (
	"fmt"
	"reflect"

	"github.com/ebitengine/purego"
)

// Call invokes the native function at fn with register arguments and
// returns the result narrowed to the declared kind.
func Call(fn uintptr, sig Signature, args ...uintptr) (uintptr, error) {
	if fn == 0 {
		return 0, fmt.Errorf("%w: call through null function", ErrSignature)
	}
	if len(args) != len(sig.Params) {
		return 0, fmt.Errorf("%w: have %d, want %d", ErrArgCount, len(args), len(sig.Params))
	}
	for i := range args {
		args[i] = sig.Params[i].Narrow(args[i])
	}
	r1, _, _ := purego.SyscallN(fn, args...)
	return sig.Result.Narrow(r1), nil
}

// CallValues converts Go values with sig.Args and calls fn.
func CallValues(fn uintptr, sig Signature, vals ...any) (uintptr, error) {
	args, err := sig.Args(vals...)
	if err != nil {
		return 0, err
	}
	return Call(fn, sig, args...)
}

// NewCallback returns a native entry point that calls fn, a Go func that
// matches sig. Native arguments are narrowed to their declared kinds before
// fn sees them.
//
// Callbacks are never released; the number a process can create is
// limited.
func NewCallback(sig Signature, fn any) (uintptr, error) {
	if err := sig.Validate(); err != nil {
		return 0, err
	}
	if err := sig.CheckFunc(fn); err != nil {
		return 0, err
	}

	target := reflect.ValueOf(fn)
	return purego.NewCallback(rawFunc(sig, target).Interface()), nil
}

// rawFunc builds func(uintptr...) [uintptr] forwarding to target.
func rawFunc(sig Signature, target reflect.Value) reflect.Value {
	uptr := reflect.TypeOf(uintptr(0))
	in := make([]reflect.Type, len(sig.Params))
	for i := range in {
		in[i] = uptr
	}
	var out []reflect.Type
	if sig.Result != Void {
		out = []reflect.Type{uptr}
	}

	return reflect.MakeFunc(reflect.FuncOf(in, out, false), func(raw []reflect.Value) []reflect.Value {
		args := make([]reflect.Value, len(raw))
		for i, r := range raw {
			args[i] = FromUintptr(sig.Params[i], uintptr(r.Uint()))
		}
		results := target.Call(args)
		if sig.Result == Void {
			return nil
		}
		return []reflect.Value{reflect.ValueOf(sig.Result.Narrow(toRaw(results[0])))}
	})
}
