//go:build linux

package module

import (
	"fmt"
	"path/filepath"

	"enginehook/process/memory_map"

	"github.com/ebitengine/purego"
)

const (
	libraryPrefix = "lib"
	librarySuffix = ".so"
)

// resolve dlopens the image, finds its lowest mapping in /proc/self/maps
// and drops the handle again. The extra reference is released without
// unmapping because the host holds its own.
func resolve(path string) (uintptr, error) {
	if err := statImage(path); err != nil {
		return 0, err
	}

	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return 0, fmt.Errorf("%w: dlopen %s: %v", ErrLoadFailed, path, err)
	}
	defer purego.Dlclose(handle)

	mm, err := memory_map.ReadSelf()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}

	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		resolved = path
	}

	base, _, ok := memory_map.FindModule(resolved, mm)
	if !ok {
		return 0, fmt.Errorf("%w: %s loaded but not mapped", ErrLoadFailed, resolved)
	}
	return uintptr(base), nil
}

func lookup(path, symbol string) (uintptr, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return 0, fmt.Errorf("%w: dlopen %s: %v", ErrLoadFailed, path, err)
	}
	defer purego.Dlclose(handle)

	addr, err := purego.Dlsym(handle, symbol)
	if err != nil || addr == 0 {
		return 0, fmt.Errorf("%w: %s in %s", ErrSymbolNotFound, symbol, filepath.Base(path))
	}
	return addr, nil
}
