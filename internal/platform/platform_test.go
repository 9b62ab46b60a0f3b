package platform

import (
	stderr "errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steambridge/steambridge/pkg/errors"
)

func TestRelativeLibraryPath(t *testing.T) {
	cases := []struct {
		goos, goarch string
		want         string
	}{
		{"windows", "amd64", filepath.Join("redistributable_bin", "win64", "steam_api64.dll")},
		{"windows", "386", filepath.Join("redistributable_bin", "steam_api.dll")},
		{"linux", "amd64", filepath.Join("redistributable_bin", "linux64", "libsteam_api.so")},
		{"linux", "386", filepath.Join("redistributable_bin", "linux32", "libsteam_api.so")},
		{"darwin", "amd64", filepath.Join("redistributable_bin", "osx", "libsteam_api.dylib")},
		{"darwin", "arm64", filepath.Join("redistributable_bin", "osx", "libsteam_api.dylib")},
	}

	for _, tc := range cases {
		rel, ok := RelativeLibraryPath(tc.goos, tc.goarch)
		require.True(t, ok, "%s/%s should be mapped", tc.goos, tc.goarch)
		assert.Equal(t, tc.want, rel)
	}

	_, ok := RelativeLibraryPath("plan9", "amd64")
	assert.False(t, ok)
	_, ok = RelativeLibraryPath("linux", "mips")
	assert.False(t, ok)
}

func TestResolveMissingBinary(t *testing.T) {
	if !Supported() {
		t.Skipf("no redistributable mapping for %s/%s", runtime.GOOS, runtime.GOARCH)
	}

	_, err := Resolve(t.TempDir())
	require.Error(t, err)

	var bridgeErr *errors.BridgeError
	require.True(t, stderr.As(err, &bridgeErr))
	assert.Equal(t, errors.ErrCodeLibraryNotFound, bridgeErr.Code)
}

func TestResolveFindsBinary(t *testing.T) {
	if !Supported() {
		t.Skipf("no redistributable mapping for %s/%s", runtime.GOOS, runtime.GOARCH)
	}

	sdkRoot := t.TempDir()
	rel, _ := RelativeLibraryPath(runtime.GOOS, runtime.GOARCH)
	full := filepath.Join(sdkRoot, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(t, os.WriteFile(full, []byte("not a real library"), 0644))

	got, err := Resolve(sdkRoot)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
	assert.True(t, strings.HasSuffix(got, rel))
}

func TestVerifyOverride(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := VerifyOverride(filepath.Join(t.TempDir(), "libsteam_api.so"))
		require.Error(t, err)

		var bridgeErr *errors.BridgeError
		require.True(t, stderr.As(err, &bridgeErr))
		assert.Equal(t, errors.ErrCodeLibraryNotFound, bridgeErr.Code)
	})

	t.Run("existing file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "libsteam_api.so")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

		got, err := VerifyOverride(path)
		require.NoError(t, err)
		assert.True(t, filepath.IsAbs(got))
	})
}

func TestWriteMarker(t *testing.T) {
	t.Run("writes the app id", func(t *testing.T) {
		dir := t.TempDir()
		path, err := WriteMarker(dir, 480)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, MarkerFileName), path)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "480\n", string(data))
	})

	t.Run("rejects zero app id", func(t *testing.T) {
		_, err := WriteMarker(t.TempDir(), 0)
		require.Error(t, err)

		var bridgeErr *errors.BridgeError
		require.True(t, stderr.As(err, &bridgeErr))
		assert.Equal(t, errors.ErrCodeMissingAppID, bridgeErr.Code)
	})
}

func TestSetEnvironmentAndDiscover(t *testing.T) {
	t.Setenv(EnvAppID, "")
	t.Setenv(EnvGameID, "")

	require.NoError(t, SetEnvironment(480))
	assert.Equal(t, "480", os.Getenv(EnvAppID))
	assert.Equal(t, "480", os.Getenv(EnvGameID))

	assert.Equal(t, uint32(480), DiscoverAppID())
}

func TestDiscoverAppIDIgnoresGarbage(t *testing.T) {
	t.Setenv(EnvAppID, "spacewar")
	t.Setenv(EnvGameID, "0")
	assert.Equal(t, uint32(0), DiscoverAppID())
}
