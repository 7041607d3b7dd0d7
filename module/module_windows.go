//go:build windows

package module

import (
	"fmt"
	"path/filepath"

	"golang.org/x/sys/windows"
)

const (
	libraryPrefix = ""
	librarySuffix = ".dll"
)

// resolve loads the image with its own directory on the search path. The
// returned HMODULE is the image base. FreeLibrary drops the reference
// taken here; the host's reference keeps the image mapped.
func resolve(path string) (uintptr, error) {
	if err := statImage(path); err != nil {
		return 0, err
	}

	handle, err := windows.LoadLibraryEx(path, 0, windows.LOAD_WITH_ALTERED_SEARCH_PATH)
	if err != nil {
		return 0, fmt.Errorf("%w: LoadLibraryEx %s: %v", ErrLoadFailed, path, err)
	}
	defer windows.FreeLibrary(handle)

	return uintptr(handle), nil
}

func lookup(path, symbol string) (uintptr, error) {
	handle, err := windows.LoadLibraryEx(path, 0, windows.LOAD_WITH_ALTERED_SEARCH_PATH)
	if err != nil {
		return 0, fmt.Errorf("%w: LoadLibraryEx %s: %v", ErrLoadFailed, path, err)
	}
	defer windows.FreeLibrary(handle)

	addr, err := windows.GetProcAddress(handle, symbol)
	if err != nil || addr == 0 {
		return 0, fmt.Errorf("%w: %s in %s", ErrSymbolNotFound, symbol, filepath.Base(path))
	}
	return addr, nil
}
