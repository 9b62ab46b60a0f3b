package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandPath(t *testing.T) {
	t.Run("empty path rejected", func(t *testing.T) {
		_, err := ExpandPath("")
		assert.Error(t, err)
	})

	t.Run("tilde expands to home", func(t *testing.T) {
		home, err := os.UserHomeDir()
		require.NoError(t, err)

		got, err := ExpandPath("~/steambridge/state.db")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(home, "steambridge", "state.db"), got)
	})

	t.Run("relative becomes absolute", func(t *testing.T) {
		got, err := ExpandPath("sdk/redistributable_bin")
		require.NoError(t, err)
		assert.True(t, filepath.IsAbs(got))
	})
}

func TestEnsureDir(t *testing.T) {
	t.Run("creates missing directories", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "a", "b", "c")
		require.NoError(t, EnsureDir(dir))

		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("existing directory is fine", func(t *testing.T) {
		dir := t.TempDir()
		assert.NoError(t, EnsureDir(dir))
	})

	t.Run("file in the way is an error", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "occupied")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
		assert.Error(t, EnsureDir(file))
	})
}
