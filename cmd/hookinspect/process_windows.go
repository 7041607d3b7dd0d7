package main

import (
	"fmt"

	"enginehook/process"
	"enginehook/process_windows"
)

func openTarget(pid int, name string) (process.Process, error) {
	if name != "" {
		p, err := process_windows.OneByName(name)
		if err != nil {
			return nil, fmt.Errorf("find %s: %w", name, err)
		}
		pid = p.PID
	}
	return process_windows.NewWithPID(process.ProcessID(pid))
}
