//go:build !unix

package walk

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/filer/filer/internal/exclude"
	"github.com/filer/filer/internal/logging"
)

// Entry is a single surviving regular file or symlink encountered during a
// walk, canonical path plus the stat fields needed to seed an observation.
type Entry struct {
	Path      string
	IsSymlink bool
	Mtime     int64
	Size      int64
}

// EmitFunc receives one surviving regular file or symlink.
type EmitFunc func(Entry)

// WatchFunc registers a change-notification watch on a surviving directory.
type WatchFunc func(path string) error

// Walker traverses one root at a time. This build lacks dirfd-relative
// syscalls, so it falls back to plain Lstat by path; a rename racing the
// traversal can in principle misdirect a read, a gap the unix build closes.
type Walker struct {
	filter *exclude.Filter
	log    *logging.Logger
}

// New constructs a Walker bound to filter, logging through log.
func New(filter *exclude.Filter, log *logging.Logger) *Walker {
	return &Walker{filter: filter, log: log}
}

// WalkRoot traverses root without following symlinks.
func (w *Walker) WalkRoot(root string, emit EmitFunc, watch WatchFunc) {
	canonicalRoot, err := Canonicalize(root)
	if err != nil {
		w.log.Printf("root %s: %v", root, err)
		return
	}
	if _, err := os.Lstat(canonicalRoot); err != nil {
		w.log.Printf("root %s: %v", canonicalRoot, err)
		return
	}
	if err := watch(canonicalRoot); err != nil {
		w.log.Printf("watch %s: %v", canonicalRoot, err)
	}
	w.walkDir(canonicalRoot, emit, watch)
}

func (w *Walker) walkDir(dirPath string, emit EmitFunc, watch WatchFunc) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		w.log.Printf("readdir %s: %v", dirPath, err)
		return
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		childPath := filepath.Join(dirPath, name)
		st, err := os.Lstat(childPath)
		if err != nil {
			w.log.Printf("stat %s: %v", childPath, err)
			continue
		}

		isDir := st.IsDir()
		isSymlink := st.Mode()&os.ModeSymlink != 0
		isRegular := st.Mode().IsRegular()

		if w.filter.Excluded(childPath, name, isDir) {
			continue
		}

		if isDir {
			if err := watch(childPath); err != nil {
				w.log.Printf("watch %s: %v", childPath, err)
			}
			w.walkDir(childPath, emit, watch)
			continue
		}

		if isRegular || isSymlink {
			emit(Entry{
				Path:      childPath,
				IsSymlink: isSymlink,
				Mtime:     st.ModTime().Unix(),
				Size:      st.Size(),
			})
		}
	}
}
