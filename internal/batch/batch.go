// Package batch implements the three parallel debounced queues described in
// the core design: regular files, symlinks, and deletions. Each is a
// mapping from path to mtime (or to "no mtime" for deletions) combined
// with a size trigger and a time trigger, whichever fires first. Flushing
// atomically swaps the pending mapping for an empty one and hands the old
// mapping to the caller sorted for processing.
package batch

import (
	"sort"
	"sync"
	"time"
)

// Kind names the three queues. It labels FlushedBatch values and picks the
// flush sort order (by path for deletions, by (mtime, path) otherwise); the
// three Batch instances are otherwise identical machinery.
type Kind string

const (
	KindFiles     Kind = "files"
	KindSymlinks  Kind = "symlinks"
	KindDeletions Kind = "deletions"
)

// Defaults match the spec's static, unexposed batcher configuration.
const (
	DefaultBatchSize    = 1000
	DefaultBatchTimeout = 5 * time.Second
)

// Entry is one path's pending observation. HasMtime is false for
// deletions, which carry the sentinel "no mtime".
type Entry struct {
	Path     string
	Mtime    int64
	HasMtime bool
}

// FlushedBatch is one kind's pending map, swapped out and sorted: by
// (mtime, path) for files and symlinks so chronologically related changes
// cluster, by path for deletions.
type FlushedBatch struct {
	Kind    Kind
	Entries []Entry
}

// Batch is a single debounced queue. The newest observation for a path
// always overwrites any prior pending one.
type Batch struct {
	mu      sync.Mutex
	pending map[string]*int64
	timer   *time.Timer
	kind    Kind
	size    int
	timeout time.Duration
	out     chan<- FlushedBatch
}

// New constructs a Batch that flushes at size entries or after timeout
// since its first pending arrival, sending each flush to out.
func New(kind Kind, size int, timeout time.Duration, out chan<- FlushedBatch) *Batch {
	return &Batch{
		kind:    kind,
		size:    size,
		timeout: timeout,
		out:     out,
		pending: make(map[string]*int64),
	}
}

// Put inserts or overwrites the pending entry for path. mtime is nil for a
// deletion candidate.
func (b *Batch) Put(path string, mtime *int64) {
	b.mu.Lock()
	first := len(b.pending) == 0
	b.pending[path] = mtime

	var flushed []Entry
	switch {
	case len(b.pending) >= b.size:
		flushed = b.swapLocked()
	case first:
		b.armLocked()
	}
	b.mu.Unlock()

	if flushed != nil {
		b.out <- FlushedBatch{Kind: b.kind, Entries: flushed}
	}
}

// Len reports the number of pending entries, for diagnostics and tests.
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *Batch) armLocked() {
	b.timer = time.AfterFunc(b.timeout, b.fireTimer)
}

func (b *Batch) fireTimer() {
	b.mu.Lock()
	flushed := b.swapLocked()
	b.mu.Unlock()
	if flushed != nil {
		b.out <- FlushedBatch{Kind: b.kind, Entries: flushed}
	}
}

// swapLocked must be called with b.mu held. It stops any pending timer,
// swaps the map for an empty one, and returns the old entries sorted for
// the worker.
func (b *Batch) swapLocked() []Entry {
	if len(b.pending) == 0 {
		return nil
	}
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	pending := b.pending
	b.pending = make(map[string]*int64)

	entries := make([]Entry, 0, len(pending))
	for path, mtime := range pending {
		e := Entry{Path: path}
		if mtime != nil {
			e.Mtime = *mtime
			e.HasMtime = true
		}
		entries = append(entries, e)
	}
	if b.kind == KindDeletions {
		sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	} else {
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].Mtime != entries[j].Mtime {
				return entries[i].Mtime < entries[j].Mtime
			}
			return entries[i].Path < entries[j].Path
		})
	}
	return entries
}

// Batcher owns the three independent queues and their output channels.
type Batcher struct {
	Files     *Batch
	Symlinks  *Batch
	Deletions *Batch

	FilesOut     chan FlushedBatch
	SymlinksOut  chan FlushedBatch
	DeletionsOut chan FlushedBatch
}

// NewBatcher constructs a Batcher with the given size/timeout applied to
// all three queues.
func NewBatcher(size int, timeout time.Duration) *Batcher {
	filesOut := make(chan FlushedBatch, 1)
	symlinksOut := make(chan FlushedBatch, 1)
	deletionsOut := make(chan FlushedBatch, 1)
	return &Batcher{
		Files:        New(KindFiles, size, timeout, filesOut),
		Symlinks:     New(KindSymlinks, size, timeout, symlinksOut),
		Deletions:    New(KindDeletions, size, timeout, deletionsOut),
		FilesOut:     filesOut,
		SymlinksOut:  symlinksOut,
		DeletionsOut: deletionsOut,
	}
}
