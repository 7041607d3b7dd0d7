//go:build windows

package process_windows

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
)

type Process struct {
	PID  int
	Name string
}

// ListByName returns all processes whose executable name equals name,
// ignoring case as Windows does.
func ListByName(name string) ([]*Process, error) {
	if name == "" {
		return nil, errors.New("empty name")
	}

	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil, fmt.Errorf("CreateToolhelp32Snapshot failed: %w", err)
	}
	defer windows.CloseHandle(snapshot)

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	selfPID := os.Getpid()
	var out []*Process
	for err = windows.Process32First(snapshot, &entry); err == nil; err = windows.Process32Next(snapshot, &entry) {
		exe := windows.UTF16ToString(entry.ExeFile[:])
		if int(entry.ProcessID) == selfPID {
			continue
		}
		if strings.EqualFold(exe, name) || strings.EqualFold(strings.TrimSuffix(exe, ".exe"), name) {
			out = append(out, &Process{PID: int(entry.ProcessID), Name: exe})
		}
	}
	return out, nil
}

// OneByName returns the match with the lowest PID, or os.ErrNotExist.
func OneByName(name string) (*Process, error) {
	ps, err := ListByName(name)
	if err != nil {
		return nil, err
	}
	if len(ps) == 0 {
		return nil, os.ErrNotExist
	}
	minIdx := 0
	for i := 1; i < len(ps); i++ {
		if ps[i].PID < ps[minIdx].PID {
			minIdx = i
		}
	}
	return ps[minIdx], nil
}
