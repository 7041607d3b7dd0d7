//go:build !linux && !windows

package main

import (
	"errors"
	"runtime"

	"enginehook/process"
)

func openTarget(pid int, name string) (process.Process, error) {
	return nil, errors.New("attaching to a host is not supported on " + runtime.GOOS)
}
