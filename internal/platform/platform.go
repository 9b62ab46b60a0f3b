// Package platform resolves the Steamworks redistributable for the running
// operating system and architecture, and implements the SDK's application-id
// discovery contract (steam_appid.txt plus environment variables).
package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"unsafe"

	"github.com/steambridge/steambridge/pkg/errors"
)

// Is64Bit indicates whether the process is 64-bit. The binding layer only
// supports 64-bit processes; the 32-bit redistributables are resolved for
// completeness but cannot be loaded.
const Is64Bit = unsafe.Sizeof(uintptr(0)) == 8

// DefaultSDKRoot is the conventional location of the Steamworks SDK relative
// to the working directory.
const DefaultSDKRoot = "sdk"

// libraryPaths maps "GOOS/GOARCH" to the redistributable's path relative to
// the SDK root. The vendor's directory layout is fixed; these entries mirror
// it exactly.
var libraryPaths = map[string]string{
	"windows/amd64": filepath.Join("redistributable_bin", "win64", "steam_api64.dll"),
	"windows/386":   filepath.Join("redistributable_bin", "steam_api.dll"),
	"linux/amd64":   filepath.Join("redistributable_bin", "linux64", "libsteam_api.so"),
	"linux/386":     filepath.Join("redistributable_bin", "linux32", "libsteam_api.so"),
	"darwin/amd64":  filepath.Join("redistributable_bin", "osx", "libsteam_api.dylib"),
	"darwin/arm64":  filepath.Join("redistributable_bin", "osx", "libsteam_api.dylib"),
}

// LibraryName returns the platform's steam_api file name, e.g.
// "steam_api64.dll" on 64-bit Windows.
func LibraryName() string {
	if rel, ok := libraryPaths[runtime.GOOS+"/"+runtime.GOARCH]; ok {
		return filepath.Base(rel)
	}
	return ""
}

// RelativeLibraryPath returns the redistributable path for (goos, goarch)
// relative to the SDK root, or false when the pair is unsupported.
func RelativeLibraryPath(goos, goarch string) (string, bool) {
	rel, ok := libraryPaths[goos+"/"+goarch]
	return rel, ok
}

// Resolve locates the native library for the current platform beneath
// sdkRoot. It fails with UNSUPPORTED_PLATFORM when no mapping exists for the
// platform/arch pair, and with LIBRARY_NOT_FOUND when the mapped file is
// absent on disk. Both are fatal to initialization.
func Resolve(sdkRoot string) (string, error) {
	if sdkRoot == "" {
		sdkRoot = DefaultSDKRoot
	}

	rel, ok := RelativeLibraryPath(runtime.GOOS, runtime.GOARCH)
	if !ok {
		return "", errors.NewError(errors.ErrCodeUnsupportedPlatform,
			fmt.Sprintf("no Steamworks redistributable for %s/%s", runtime.GOOS, runtime.GOARCH)).
			WithComponent("platform")
	}

	path := filepath.Join(sdkRoot, rel)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", errors.NewError(errors.ErrCodeLibraryNotFound,
				fmt.Sprintf("steam_api library not found at %s; fetch the Steamworks SDK", path)).
				WithComponent("platform").
				WithDetail("path", path)
		}
		return "", errors.NewError(errors.ErrCodeLibraryNotFound, err.Error()).
			WithComponent("platform").
			WithCause(err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return path, nil
	}
	return abs, nil
}

// VerifyOverride checks a caller-supplied library path the same way Resolve
// checks a resolved one.
func VerifyOverride(path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", errors.NewError(errors.ErrCodeLibraryNotFound,
			fmt.Sprintf("steam_api library override not found at %s", path)).
			WithComponent("platform").
			WithCause(err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path, nil
	}
	return abs, nil
}

// Supported reports whether the current platform has a redistributable
// mapping at all.
func Supported() bool {
	_, ok := libraryPaths[runtime.GOOS+"/"+runtime.GOARCH]
	return ok
}

// requireID guards against the zero app id sneaking into the discovery
// contract.
func requireID(appID uint32) error {
	if appID == 0 {
		return errors.NewError(errors.ErrCodeMissingAppID, "application id must be positive").
			WithComponent("platform")
	}
	return nil
}

// formatID renders the app id the way the SDK expects it in both the marker
// file and the environment.
func formatID(appID uint32) string {
	return strconv.FormatUint(uint64(appID), 10)
}
