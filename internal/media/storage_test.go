package media_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accounts-api/internal/media"
)

// Minimal valid PNG header, enough for content sniffing.
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 13, 'I', 'H', 'D', 'R'}

type memFile struct {
	*bytes.Reader
}

func (memFile) Close() error { return nil }

func newMemFile(data []byte) memFile {
	return memFile{Reader: bytes.NewReader(data)}
}

func TestSaveAndDeletePNG(t *testing.T) {
	storage, err := media.NewStorage(t.TempDir())
	require.NoError(t, err)

	data := append(append([]byte(nil), pngHeader...), bytes.Repeat([]byte{0}, 1024)...)
	name, err := storage.Save(newMemFile(data))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(name, ".png"), "name %q should carry the sniffed extension", name)

	stored, err := os.ReadFile(filepath.Join(storage.Dir(), name))
	require.NoError(t, err)
	assert.Equal(t, data, stored)

	require.NoError(t, storage.Delete(name))
	_, err = os.Stat(filepath.Join(storage.Dir(), name))
	assert.True(t, os.IsNotExist(err))

	// Deleting a name that is already gone is not an error.
	assert.NoError(t, storage.Delete(name))
}

func TestSaveRejectsNonImages(t *testing.T) {
	storage, err := media.NewStorage(t.TempDir())
	require.NoError(t, err)

	_, err = storage.Save(newMemFile([]byte("#!/bin/sh\nrm -rf /\n")))
	assert.ErrorIs(t, err, media.ErrUnsupportedType)

	entries, err := os.ReadDir(storage.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected uploads must leave nothing on disk")
}

func TestDeleteRejectsPathTraversal(t *testing.T) {
	storage, err := media.NewStorage(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, storage.Delete("../escape.png"))
	assert.Error(t, storage.Delete("nested/escape.png"))
	assert.Error(t, storage.Delete(""))
}
