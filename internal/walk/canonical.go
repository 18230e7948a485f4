package walk

import "path/filepath"

// Canonicalize returns path's canonical form: an absolute path with
// symlinks resolved in its directory components, "." and ".." removed,
// and the trailing component left exactly as it appeared. Resolving only
// the containing directory (never the leaf) keeps distinct symlinks that
// point at the same target from collapsing into one catalog record.
func Canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(abs)
	base := filepath.Base(abs)

	resolvedDir, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedDir, base), nil
}
