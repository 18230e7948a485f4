//go:build !windows

package catalog

import "os"

func chmodReadOnly(dir string) error {
	return os.Chmod(dir, 0o555)
}

func chmodWritable(dir string) error {
	return os.Chmod(dir, 0o755)
}
