package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.hcl", "a.hcl", "nested/c.hcl", "nested/readme.md", ".git/ignored.hcl"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, nil, 0o644))
	}

	files, err := FindFiles([]string{
		filepath.Join(dir, "b.hcl"),
		dir,
		filepath.Join(dir, "missing"),
		filepath.Join(dir, "nested", "readme.md"),
	}, ".hcl")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "b.hcl"),
		filepath.Join(dir, "a.hcl"),
		filepath.Join(dir, "nested", "c.hcl"),
	}, files)
}

func TestFindFiles_EmptyExtensionPanics(t *testing.T) {
	assert.Panics(t, func() { _, _ = FindFiles([]string{"."}, "") })
}
