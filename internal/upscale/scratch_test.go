package upscale

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScratch(t *testing.T) {
	dir := t.TempDir()

	s, err := NewScratch(dir, ".JPG", []byte("original"))
	require.NoError(t, err)

	assert.Equal(t, dir, filepath.Dir(s.Input))
	assert.True(t, strings.HasPrefix(filepath.Base(s.Input), scratchPrefix))
	assert.Equal(t, ".JPG", filepath.Ext(s.Input))
	assert.Equal(t, ".png", filepath.Ext(s.Output))

	data, err := os.ReadFile(s.Input)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))

	out, err := s.ReadOutput()
	require.NoError(t, err)
	assert.Empty(t, out)

	require.NoError(t, s.Close())
	assert.NoFileExists(t, s.Input)
	assert.NoFileExists(t, s.Output)
}

func TestNewScratchWithoutDot(t *testing.T) {
	s, err := NewScratch(t.TempDir(), "webp", nil)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, ".webp", filepath.Ext(s.Input))
}

func TestNewScratchRejectsPathInExtension(t *testing.T) {
	dir := t.TempDir()

	_, err := NewScratch(dir, "../evil", []byte("x"))
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNewScratchCleansUpOnFailure(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing")

	_, err := NewScratch(missing, "png", []byte("x"))
	require.Error(t, err)
	assert.NoDirExists(t, missing)
}

func TestScratchCloseTwice(t *testing.T) {
	s, err := NewScratch(t.TempDir(), "png", []byte("x"))
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	var nilScratch *Scratch
	assert.NoError(t, nilScratch.Close())
}
