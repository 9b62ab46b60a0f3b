//go:build windows

package native

import (
	"fmt"

	"golang.org/x/sys/windows"

	"github.com/steambridge/steambridge/pkg/errors"
)

// openLibrary loads steam_api64.dll. LOAD_WITH_ALTERED_SEARCH_PATH lets the
// DLL resolve its own dependencies relative to its location rather than the
// process working directory.
func openLibrary(path string) (uintptr, error) {
	handle, err := windows.LoadLibraryEx(path, 0, windows.LOAD_WITH_ALTERED_SEARCH_PATH)
	if err != nil || handle == 0 {
		return 0, errors.NewError(errors.ErrCodeLibraryLoad,
			fmt.Sprintf("LoadLibrary %s failed", path)).
			WithComponent("native").
			WithCause(err)
	}
	return uintptr(handle), nil
}

// lookupSymbol resolves one exported symbol from the loaded library.
func lookupSymbol(handle uintptr, name string) (uintptr, error) {
	addr, err := windows.GetProcAddress(windows.Handle(handle), name)
	if err != nil || addr == 0 {
		return 0, errors.NewError(errors.ErrCodeSymbolMissing,
			fmt.Sprintf("symbol %s not found; SDK version mismatch?", name)).
			WithComponent("native").
			WithContext("symbol", name).
			WithCause(err)
	}
	return addr, nil
}

// closeLibrary releases the library handle.
func closeLibrary(handle uintptr) error {
	if handle == 0 {
		return nil
	}
	return windows.FreeLibrary(windows.Handle(handle))
}
