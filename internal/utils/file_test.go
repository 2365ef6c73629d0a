package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetFileExtension(t *testing.T) {
	assert.Equal(t, "jpg", GetFileExtension("photo.JPG"))
	assert.Equal(t, "", GetFileExtension("README"))
}

func TestIsImageFile(t *testing.T) {
	assert.True(t, IsImageFile("a.webp"))
	assert.True(t, IsImageFile("dir/b.jpeg"))
	assert.False(t, IsImageFile("c.gif"))
	assert.False(t, IsImageFile("notes.txt"))
}

func TestGenerateOutputFilename(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "can_annotated.png"), GenerateOutputFilename("in/can.jpg", "out", "_annotated", "png"))
	assert.Equal(t, filepath.Join("out", "can_x.jpg"), GenerateOutputFilename("can.jpg", "out", "_x", ""))
	assert.Equal(t, filepath.Join("out", "can_x.jpg"), GenerateOutputFilename("can", "out", "_x", ""))
}

func TestListImageFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	for _, f := range []string{"a.jpg", "sub/b.png", "c.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, filepath.FromSlash(f)), []byte("x"), 0o644))
	}

	files, err := ListImageFiles(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{filepath.Join(dir, "a.jpg"), filepath.Join(dir, "sub", "b.png")}, files)
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(f, nil, 0o644))

	assert.True(t, FileExists(f))
	assert.False(t, FileExists(dir))
	assert.True(t, DirExists(dir))
	assert.False(t, DirExists(f))
	assert.False(t, FileExists(filepath.Join(dir, "missing")))

	nested := filepath.Join(dir, "a", "b")
	require.NoError(t, EnsureDir(nested))
	assert.True(t, DirExists(nested))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "a_b_c", SanitizeFilename(" a/b:c. "))
}
