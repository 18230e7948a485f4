package hash

import (
	"crypto/sha512"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSumMatchesKnownDigest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	want := sha512.Sum512([]byte("hello"))
	digest, err := Sum(path)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(want[:]), digest)
}

func TestSumLargerThanOneChunk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big")
	data := make([]byte, readChunk*3+17)
	for i := range data {
		data[i] = byte(i % 251)
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))

	want := sha512.Sum512(data)
	digest, err := Sum(path)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(want[:]), digest)
}

func TestSumMissingFile(t *testing.T) {
	_, err := Sum("/nonexistent/path/to/file")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrPermissionDenied)
}

func TestSumPermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores file permissions")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "locked")
	require.NoError(t, os.WriteFile(path, []byte("secret"), 0o000))

	_, err := Sum(path)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}
