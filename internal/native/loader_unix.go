//go:build !windows

package native

import (
	"fmt"

	"github.com/ebitengine/purego"

	"github.com/steambridge/steambridge/pkg/errors"
)

// openLibrary loads the steam_api shared object. RTLD_GLOBAL matches how the
// Steam overlay expects the symbols to be visible.
func openLibrary(path string) (uintptr, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil || handle == 0 {
		return 0, errors.NewError(errors.ErrCodeLibraryLoad,
			fmt.Sprintf("dlopen %s failed", path)).
			WithComponent("native").
			WithCause(err)
	}
	return handle, nil
}

// lookupSymbol resolves one exported symbol from the loaded library.
func lookupSymbol(handle uintptr, name string) (uintptr, error) {
	addr, err := purego.Dlsym(handle, name)
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
	return purego.Dlclose(handle)
}
