// Package notify is the continuous source of kernel-level path-change
// events. It wraps github.com/fsnotify/fsnotify and translates each raw
// event into a (path, stat-or-none) observation.
package notify

import (
	"context"
	"os"

	"github.com/fsnotify/fsnotify"

	"github.com/filer/filer/internal/logging"
)

// Stat is the surviving subset of os.FileInfo the pipeline needs. A nil
// *Stat encodes "entry missing" — fed into the pipeline as a deletion
// candidate.
type Stat struct {
	Mtime     int64
	Size      int64
	IsDir     bool
	IsSymlink bool
}

// Handler is called once per translated event. path is always the absolute
// path fsnotify reported (already canonical, since only canonical
// directories are ever registered via Add).
type Handler func(path string, stat *Stat)

// Notifier subscribes known directories to create/write/remove/rename/chmod
// events — the closest the Go fsnotify package gets to the attribute
// change, creation, deletion, modification, and move coverage called for.
type Notifier struct {
	watcher *fsnotify.Watcher
	log     *logging.Logger
}

// New creates the underlying fsnotify watcher.
func New(log *logging.Logger) (*Notifier, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Notifier{watcher: w, log: log}, nil
}

// Add subscribes dir to change events. dir must already be canonical.
func (n *Notifier) Add(dir string) error {
	return n.watcher.Add(dir)
}

// Close stops the watcher, unblocking Run.
func (n *Notifier) Close() error {
	return n.watcher.Close()
}

// Run drains events until ctx is done or the watcher is closed, invoking
// handle for each. An entry-missing stat result (os.Lstat failing with
// "not exist") is translated to stat = nil; other stat errors are logged
// and the event is dropped (the path remains reachable through the normal
// revisit or notification path, per the TransientIO error policy).
func (n *Notifier) Run(ctx context.Context, handle Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-n.watcher.Events:
			if !ok {
				return
			}
			n.translate(ev, handle)
		case err, ok := <-n.watcher.Errors:
			if !ok {
				return
			}
			n.log.Printf("watcher error: %v", err)
		}
	}
}

func (n *Notifier) translate(ev fsnotify.Event, handle Handler) {
	info, err := os.Lstat(ev.Name)
	if err != nil {
		if os.IsNotExist(err) {
			handle(ev.Name, nil)
			return
		}
		n.log.Printf("stat %s: %v", ev.Name, err)
		return
	}
	handle(ev.Name, &Stat{
		Mtime:     info.ModTime().Unix(),
		Size:      info.Size(),
		IsDir:     info.IsDir(),
		IsSymlink: info.Mode()&os.ModeSymlink != 0,
	})
}
