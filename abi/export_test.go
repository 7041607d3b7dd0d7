package abi

import "reflect"

func reflectValue(fn any) reflect.Value { return reflect.ValueOf(fn) }
