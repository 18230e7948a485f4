// Package hash streams a file's bytes through the catalog's content digest
// algorithm. It does not stat, lock, or retry; retry is the caller's
// concern (see internal/pipeline's settle protocol).
package hash

import (
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"io"
	"os"
)

// readChunk matches the spec's 128 KiB read size.
const readChunk = 128 * 1024

// ErrPermissionDenied signals that the file could not be read because of
// filesystem permissions, distinct from other I/O failures.
var ErrPermissionDenied = errors.New("hash: permission denied")

// Sum returns the lowercase hex SHA-512 digest of path's contents. If the
// file cannot be opened or read because of permissions, it returns
// ErrPermissionDenied. Other I/O errors propagate unwrapped beyond that.
func Sum(path string) (digest string, err error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsPermission(err) {
			return "", ErrPermissionDenied
		}
		return "", err
	}
	defer f.Close()

	h := sha512.New()
	buf := make([]byte, readChunk)
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			if _, err := h.Write(buf[:n]); err != nil {
				return "", err
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if os.IsPermission(readErr) {
				return "", ErrPermissionDenied
			}
			return "", readErr
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
