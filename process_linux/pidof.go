//go:build linux

package process_linux

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

type Process struct {
	PID  int
	Name string
}

// matchesName compares process names the way the inspector expects: case
// is ignored and a trailing .exe is optional, so hosts running under Wine
// are found by the same name as on Windows.
func matchesName(have, want string) bool {
	have = strings.TrimSpace(have)
	if have == "" {
		return false
	}
	return strings.EqualFold(have, want) || strings.EqualFold(strings.TrimSuffix(strings.ToLower(have), ".exe"), want)
}

// ListByName returns every process whose comm or executable base name
// matches name, ordered by PID.
func ListByName(name string) ([]*Process, error) {
	if name == "" {
		return nil, errors.New("empty name")
	}

	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, fmt.Errorf("read /proc: %w", err)
	}

	self := os.Getpid()
	var out []*Process
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil || pid <= 0 || pid == self || !e.IsDir() {
			continue
		}
		dir := filepath.Join("/proc", e.Name())

		// comm and exe may vanish or be unreadable; both are best effort
		comm, _ := os.ReadFile(filepath.Join(dir, "comm"))
		if matchesName(string(comm), name) {
			out = append(out, &Process{PID: pid, Name: strings.TrimSpace(string(comm))})
			continue
		}
		if exe, _ := os.Readlink(filepath.Join(dir, "exe")); exe != "" && matchesName(filepath.Base(exe), name) {
			out = append(out, &Process{PID: pid, Name: filepath.Base(exe)})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
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
	return ps[0], nil
}
