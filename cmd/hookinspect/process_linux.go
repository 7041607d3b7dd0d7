package main

import (
	"fmt"

	"enginehook/process"
	"enginehook/process_linux"
)

func openTarget(pid int, name string) (process.Process, error) {
	if name != "" {
		p, err := process_linux.OneByName(name)
		if err != nil {
			return nil, fmt.Errorf("find %s: %w", name, err)
		}
		pid = p.PID
	}
	return process_linux.NewWithPID(process.ProcessID(pid))
}
