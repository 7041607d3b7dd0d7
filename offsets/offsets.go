// Package offsets holds the fixed module offsets of the one supported host
// build, optionally overridden from a YAML file.
//
// Offsets are only valid for the exact build they were taken from. Nothing
// here can tell whether they still point at the intended code, except the
// optional prologue patterns checked before a hook is written.
package offsets

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"enginehook/hexdump"
	"enginehook/process"

	"gopkg.in/yaml.v2"
)

// Module names.
const (
	Engine         = "engine"
	Server         = "server"
	Client         = "client"
	MaterialSystem = "materialsystem"
)

// Order lists the known modules. Engine loads first; the others depend
// only on it and may arrive in any order.
var Order = []string{Engine, Server, Client, MaterialSystem}

var (
	ErrZeroOffset       = errors.New("zero offset")
	ErrDuplicateOffset  = errors.New("two hooks share one offset")
	ErrPrologueMismatch = errors.New("prologue does not match")
	ErrUnknownModule    = errors.New("unknown module")
)

// HookOffset places one hook.
type HookOffset struct {
	Offset uint64 `yaml:"offset"`

	// Prologue is an optional AOB pattern ("48 89 5c 24 ?? 57") the first
	// bytes at Offset must match.
	Prologue string `yaml:"prologue,omitempty"`
}

// ModuleOffsets are the offsets of one module.
type ModuleOffsets struct {
	File      string                `yaml:"file,omitempty"`
	Subdir    string                `yaml:"subdir,omitempty"`
	Pointers  map[string]uint64     `yaml:"pointers,omitempty"`
	Functions map[string]uint64     `yaml:"functions,omitempty"`
	Hooks     map[string]HookOffset `yaml:"hooks,omitempty"`
}

// Table is the offsets of every module for one build.
type Table struct {
	Build   string                   `yaml:"build"`
	Modules map[string]ModuleOffsets `yaml:"modules"`
}

// Default returns the offsets of the supported build.
func Default() Table {
	return Table{
		Build: "titanfall2-retail",
		Modules: map[string]ModuleOffsets{
			Engine: {
				Subdir: "bin/x64_retail",
				Pointers: map[string]uint64{
					"server":       0x12A53D40,
					"game_clients": 0x13F0AAA8,
					"client_array": 0x12A53F90,
				},
				Functions: map[string]uint64{
					"create_fake_client": 0x114C60,
				},
				Hooks: map[string]HookOffset{
					"connect_subfunc": {Offset: 0x106270},
				},
			},
			Server: {
				Functions: map[string]uint64{
					"client_fully_connected": 0x153B70,
					"run_null_command":       0x5A9FD0,
					"player_by_index":        0x26AA10,
				},
				Hooks: map[string]HookOffset{
					"run_usercmd":      {Offset: 0x483A50},
					"process_usercmds": {Offset: 0x159E50},
				},
			},
			Client: {
				Subdir: "bin/x64_retail",
			},
			MaterialSystem: {
				File:   "materialsystem_dx11.dll",
				Subdir: "bin/x64_retail",
				Functions: map[string]uint64{
					"texture_func": 0x79E80,
				},
			},
		},
	}
}

// Load reads a YAML file and overlays it on Default.
func Load(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("read offsets file: %w", err)
	}
	return Parse(data)
}

// Parse overlays YAML data on Default and validates the result.
func Parse(data []byte) (Table, error) {
	var file Table
	if err := yaml.UnmarshalStrict(data, &file); err != nil {
		return Table{}, fmt.Errorf("decode offsets: %w", err)
	}

	t := Default().Overlay(file)
	if err := t.Validate(); err != nil {
		return Table{}, err
	}
	return t, nil
}

// Marshal encodes t as YAML.
func (t Table) Marshal() ([]byte, error) {
	return yaml.Marshal(t)
}

// Overlay returns t with every value set in o replacing its counterpart.
func (t Table) Overlay(o Table) Table {
	out := Table{Build: t.Build, Modules: make(map[string]ModuleOffsets)}
	if o.Build != "" {
		out.Build = o.Build
	}
	for name, m := range t.Modules {
		out.Modules[name] = m.clone()
	}
	for name, om := range o.Modules {
		m := out.Modules[name].clone()
		if om.File != "" {
			m.File = om.File
		}
		if om.Subdir != "" {
			m.Subdir = om.Subdir
		}
		for k, v := range om.Pointers {
			m.Pointers[k] = v
		}
		for k, v := range om.Functions {
			m.Functions[k] = v
		}
		for k, v := range om.Hooks {
			m.Hooks[k] = v
		}
		out.Modules[name] = m
	}
	return out
}

func (m ModuleOffsets) clone() ModuleOffsets {
	out := ModuleOffsets{
		File:      m.File,
		Subdir:    m.Subdir,
		Pointers:  make(map[string]uint64, len(m.Pointers)),
		Functions: make(map[string]uint64, len(m.Functions)),
		Hooks:     make(map[string]HookOffset, len(m.Hooks)),
	}
	for k, v := range m.Pointers {
		out.Pointers[k] = v
	}
	for k, v := range m.Functions {
		out.Functions[k] = v
	}
	for k, v := range m.Hooks {
		out.Hooks[k] = v
	}
	return out
}

// Validate rejects zero offsets, two hooks on one offset within a module
// and prologue patterns that do not parse.
func (t Table) Validate() error {
	for _, name := range sortedKeys(t.Modules) {
		if !known(name) {
			return fmt.Errorf("%w: %s", ErrUnknownModule, name)
		}
		m := t.Modules[name]
		for k, v := range m.Pointers {
			if v == 0 {
				return fmt.Errorf("%w: %s pointer %s", ErrZeroOffset, name, k)
			}
		}
		for k, v := range m.Functions {
			if v == 0 {
				return fmt.Errorf("%w: %s function %s", ErrZeroOffset, name, k)
			}
		}

		owners := make(map[uint64]string)
		for _, hook := range sortedKeys(m.Hooks) {
			h := m.Hooks[hook]
			if h.Offset == 0 {
				return fmt.Errorf("%w: %s hook %s", ErrZeroOffset, name, hook)
			}
			if prev, ok := owners[h.Offset]; ok {
				return fmt.Errorf("%w: %s %s and %s at %#x", ErrDuplicateOffset, name, prev, hook, h.Offset)
			}
			owners[h.Offset] = hook
			if _, err := h.Pattern(); err != nil {
				return fmt.Errorf("%s hook %s: %w", name, hook, err)
			}
		}
	}
	return nil
}

func known(name string) bool {
	for _, n := range Order {
		if n == name {
			return true
		}
	}
	return false
}

// Module returns the offsets of one module.
func (t Table) Module(name string) (ModuleOffsets, bool) {
	m, ok := t.Modules[name]
	return m, ok
}

// Pattern parses the prologue, returning nil when none is set.
func (h HookOffset) Pattern() (*process.AOB, error) {
	if h.Prologue == "" {
		return nil, nil
	}
	return ParsePrologue(h.Prologue)
}

// ParsePrologue parses an AOB pattern with ?? wildcards.
func ParsePrologue(s string) (*process.AOB, error) {
	aob, err := process.ParseAOB(s)
	if err != nil {
		return nil, fmt.Errorf("prologue %q: %w", s, err)
	}
	return &aob, nil
}

// Check compares code against the prologue. Hooks without a prologue
// always pass.
func (h HookOffset) Check(code []byte) error {
	aob, err := h.Pattern()
	if err != nil || aob == nil {
		return err
	}
	if aob.Match(code) {
		return nil
	}

	options := hexdump.DefaultOptions()
	options.Color = false
	options.ShowASCII = false
	options.Expected = aob
	n := len(aob.Pattern)
	if n > len(code) {
		n = len(code)
	}
	return fmt.Errorf("%w at %#x: want %s, have %s", ErrPrologueMismatch, h.Offset, aob.String(), strings.TrimSpace(hexdump.Dump(code[:n], options)))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
