package walk

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeResolvesDirectoryButNotLeaf(t *testing.T) {
	base := t.TempDir()
	real := filepath.Join(base, "real")
	require.NoError(t, os.MkdirAll(real, 0o755))
	link := filepath.Join(base, "link")
	require.NoError(t, os.Symlink(real, link))

	leaf := filepath.Join(link, "leaf.txt")
	require.NoError(t, os.WriteFile(filepath.Join(real, "leaf.txt"), []byte("x"), 0o644))

	got, err := Canonicalize(leaf)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(real, "leaf.txt"), got)
}
