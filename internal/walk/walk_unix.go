//go:build unix

// Package walk performs the one-shot bulk traversal of each configured
// root. On unix platforms it reads directories through dirfd-relative
// syscalls (openat/fstatat) so that a rename racing the traversal cannot
// redirect a later stat or open onto the wrong target.
package walk

import (
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sys/unix"

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

// Walker traverses one root at a time.
type Walker struct {
	filter *exclude.Filter
	log    *logging.Logger
}

// New constructs a Walker bound to filter, logging through log.
func New(filter *exclude.Filter, log *logging.Logger) *Walker {
	return &Walker{filter: filter, log: log}
}

// WalkRoot traverses root without following symlinks, pruning subtrees the
// filter excludes, registering watch for every surviving directory
// (including root itself), and calling emit for every surviving regular
// file or symlink. If root cannot be opened, it is logged and skipped.
func (w *Walker) WalkRoot(root string, emit EmitFunc, watch WatchFunc) {
	canonicalRoot, err := Canonicalize(root)
	if err != nil {
		w.log.Printf("root %s: %v", root, err)
		return
	}

	fd, err := unix.Open(canonicalRoot, unix.O_DIRECTORY|unix.O_NOFOLLOW|unix.O_RDONLY, 0)
	if err != nil {
		w.log.Printf("root %s: open: %v", canonicalRoot, err)
		return
	}
	defer unix.Close(fd)

	if err := watch(canonicalRoot); err != nil {
		w.log.Printf("watch %s: %v", canonicalRoot, err)
	}

	w.walkDir(fd, canonicalRoot, emit, watch)
}

func (w *Walker) walkDir(dirFD int, dirPath string, emit EmitFunc, watch WatchFunc) {
	names, err := readDirNames(dirFD, dirPath)
	if err != nil {
		w.log.Printf("readdir %s: %v", dirPath, err)
		return
	}
	sort.Strings(names)

	for _, name := range names {
		childPath := filepath.Join(dirPath, name)

		var st unix.Stat_t
		if err := unix.Fstatat(dirFD, name, &st, unix.AT_SYMLINK_NOFOLLOW); err != nil {
			w.log.Printf("stat %s: %v", childPath, err)
			continue
		}

		ifmt := st.Mode & unix.S_IFMT
		isDir := ifmt == unix.S_IFDIR
		isSymlink := ifmt == unix.S_IFLNK
		isRegular := ifmt == unix.S_IFREG

		if w.filter.Excluded(childPath, name, isDir) {
			continue
		}

		if isDir {
			if err := watch(childPath); err != nil {
				w.log.Printf("watch %s: %v", childPath, err)
			}
			childFD, err := unix.Openat(dirFD, name, unix.O_DIRECTORY|unix.O_NOFOLLOW|unix.O_RDONLY, 0)
			if err != nil {
				w.log.Printf("openat %s: %v", childPath, err)
				continue
			}
			w.walkDir(childFD, childPath, emit, watch)
			unix.Close(childFD)
			continue
		}

		if isRegular || isSymlink {
			emit(Entry{
				Path:      childPath,
				IsSymlink: isSymlink,
				Mtime:     int64(st.Mtim.Sec),
				Size:      st.Size,
			})
		}
	}
}

// readDirNames lists a directory's entries via a dup'd file descriptor, so
// the caller's dirFD keeps its position and ownership intact for the
// Fstatat/Openat calls that follow.
func readDirNames(dirFD int, dirPath string) ([]string, error) {
	dup, err := unix.Dup(dirFD)
	if err != nil {
		return nil, err
	}
	f := os.NewFile(uintptr(dup), dirPath)
	defer f.Close()

	names, err := f.Readdirnames(-1)
	if err != nil {
		return nil, err
	}
	out := names[:0]
	for _, n := range names {
		if n == "." || n == ".." {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}
