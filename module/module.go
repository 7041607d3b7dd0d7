// Package module resolves the base addresses of host modules that are, or
// are about to be, mapped into the current process.
//
// Handles are only held long enough to read an address; the images
// themselves belong to the host and are never unmapped here.
package module

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"enginehook/coloransi"

	"github.com/Moonlight-Companies/gologger/logger"
)

var (
	ErrModuleNotFound = errors.New("module not found")
	ErrLoadFailed     = errors.New("module load failed")
	ErrSymbolNotFound = errors.New("symbol not found")
)

// State is the residency of a module.
type State int

const (
	Unresolved State = iota
	Resident
	Failed
)

func (s State) String() string {
	switch s {
	case Resident:
		return "resident"
	case Failed:
		return "failed"
	}
	return "unresolved"
}

// Spec names a module and where its image lives relative to the game
// directory.
type Spec struct {
	Name string
	// File overrides the conventional library file name.
	File string
	// Subdir is a path below the game directory, e.g. bin/x64_retail.
	Subdir string
}

// Module is a resolved host module.
type Module struct {
	Name  string
	Path  string
	Base  uintptr
	State State
	Err   error
}

// Addr returns the absolute address of a fixed offset into the module.
func (m *Module) Addr(offset uint64) uintptr {
	return m.Base + uintptr(offset)
}

// Loader resolves each module once per process.
type Loader struct {
	dir     string
	log     *logger.Logger
	mu      sync.Mutex
	modules map[string]*Module
}

// NewLoader creates a Loader rooted at gameDir, or at the directory of
// the host executable when gameDir is empty.
func NewLoader(gameDir string) (*Loader, error) {
	if gameDir == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate host executable: %w", err)
		}
		gameDir = filepath.Dir(exe)
	}

	return &Loader{
		dir:     gameDir,
		log:     logger.NewLogger(coloransi.Color(coloransi.White, coloransi.Blue, "module")),
		modules: make(map[string]*Module),
	}, nil
}

// Dir returns the directory modules are resolved against.
func (l *Loader) Dir() string {
	return l.dir
}

// LibraryFilename returns the platform's file name for a library.
func LibraryFilename(name string) string {
	return libraryPrefix + name + librarySuffix
}

// Path returns the image path for spec.
func (l *Loader) Path(spec Spec) string {
	file := spec.File
	if file == "" {
		file = LibraryFilename(spec.Name)
	}
	return filepath.Join(l.dir, filepath.FromSlash(spec.Subdir), file)
}

// Load resolves the base address of a module. The result, success or
// failure, is cached for the life of the process.
func (l *Loader) Load(spec Spec) (*Module, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if m, ok := l.modules[spec.Name]; ok {
		return m, m.Err
	}

	m := &Module{Name: spec.Name, Path: l.Path(spec)}
	l.modules[spec.Name] = m

	l.log.Infoln("loading", spec.Name, "from path", m.Path)

	base, err := resolve(m.Path)
	if err != nil {
		m.State = Failed
		m.Err = err
		l.log.Warn("failed to load ", spec.Name, ": ", err)
		return m, err
	}

	m.Base = base
	m.State = Resident
	l.log.Infoln("base", spec.Name, fmt.Sprintf("%#x", base))
	return m, nil
}

// Get returns a previously loaded module.
func (l *Loader) Get(name string) (*Module, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.modules[name]
	return m, ok
}

// Symbol resolves an exported symbol of a resident module.
func (l *Loader) Symbol(m *Module, symbol string) (uintptr, error) {
	if m == nil || m.State != Resident {
		return 0, fmt.Errorf("%w: not resident", ErrModuleNotFound)
	}
	addr, err := lookup(m.Path, symbol)
	if err != nil {
		return 0, err
	}
	l.log.Debugln("symbol", m.Name, symbol, fmt.Sprintf("%#x", addr))
	return addr, nil
}

func statImage(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrModuleNotFound, path)
		}
		return fmt.Errorf("%w: %s: %v", ErrLoadFailed, path, err)
	}
	return nil
}

// Lookup resolves symbol in the named module, which must have been loaded.
func (l *Loader) Lookup(name, symbol string) (uintptr, error) {
	m, ok := l.Get(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s was never loaded", ErrModuleNotFound, name)
	}
	return l.Symbol(m, symbol)
}
