// Package pipeline is the core's settle protocol: it consumes path
// observations from the Bulk Walker, the Change Notifier, and its own
// Revisit Scheduler, debounces them through internal/batch, and drives the
// single catalog writer that decides whether a file is quiet enough to
// hash yet.
package pipeline

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/filer/filer/internal/batch"
	"github.com/filer/filer/internal/catalog"
	"github.com/filer/filer/internal/hash"
	"github.com/filer/filer/internal/logging"
)

// stat is the re-sampled filesystem state for a path, independent of
// whoever is asking (walker, notifier, or revisit scheduler).
type stat struct {
	exists    bool
	mtime     int64
	size      int64
	isDir     bool
	isSymlink bool
}

func lstatPath(path string) (stat, error) {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return stat{}, nil
		}
		return stat{}, err
	}
	return stat{
		exists:    true,
		mtime:     info.ModTime().Unix(),
		size:      info.Size(),
		isDir:     info.IsDir(),
		isSymlink: info.Mode()&os.ModeSymlink != 0,
	}, nil
}

// Engine wires the batcher to the catalog and runs the visit workers and
// revisit scheduler. All catalog writes happen from the three worker
// goroutines started by Run, one per kind, so only one of them is ever
// inside a transaction against the single writer connection at a time.
type Engine struct {
	cat        *catalog.Catalog
	log        *logging.Logger
	batcher    *batch.Batcher
	settle     time.Duration
	now        func() time.Time
	hashFile   func(path string) (string, error)
	revisitNow chan struct{}
}

// New constructs an Engine using the default batch size and timeout.
func New(cat *catalog.Catalog, settle time.Duration, log *logging.Logger) *Engine {
	return &Engine{
		cat:        cat,
		log:        log,
		batcher:    batch.NewBatcher(batch.DefaultBatchSize, batch.DefaultBatchTimeout),
		settle:     settle,
		now:        time.Now,
		hashFile:   hash.Sum,
		revisitNow: make(chan struct{}, 1),
	}
}

// Dispatch implements process_change: routes one observation into the
// batch for its kind. exists=false models a deletion candidate (stat
// failed with "not exist"); isSymlink routes to the light-touch symlink
// queue; everything else is a regular file.
func (e *Engine) Dispatch(path string, exists bool, mtime int64, isSymlink bool) {
	switch {
	case !exists:
		e.batcher.Deletions.Put(path, nil)
	case isSymlink:
		m := mtime
		e.batcher.Symlinks.Put(path, &m)
	default:
		m := mtime
		e.batcher.Files.Put(path, &m)
	}
}

// WalkEmit adapts a walk.Entry-shaped callback to Dispatch, for use as the
// Bulk Walker's emit function.
func (e *Engine) WalkEmit(path string, mtime int64, isSymlink bool) {
	e.Dispatch(path, true, mtime, isSymlink)
}

// NotifyHandle is the Change Notifier's entry point into Dispatch.
// exists=false means the path was found missing.
func (e *Engine) NotifyHandle(path string, exists bool, mtime int64, isSymlink bool) {
	e.Dispatch(path, exists, mtime, isSymlink)
}

// signalRevisits wakes the Revisit Scheduler's condition variable;
// non-blocking, since a pending signal already covers any new one.
func (e *Engine) signalRevisits() {
	select {
	case e.revisitNow <- struct{}{}:
	default:
	}
}

// Run starts the three visit workers and the revisit scheduler, blocking
// until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	go e.runFilesWorker(ctx)
	go e.runSymlinksWorker(ctx)
	go e.runDeletionsWorker(ctx)
	e.runRevisitScheduler(ctx)
}

func (e *Engine) runFilesWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fb := <-e.batcher.FilesOut:
			e.processFilesBatch(ctx, fb)
		}
	}
}

func (e *Engine) runSymlinksWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fb := <-e.batcher.SymlinksOut:
			e.processSymlinksBatch(ctx, fb)
		}
	}
}

func (e *Engine) runDeletionsWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fb := <-e.batcher.DeletionsOut:
			e.processDeletionsBatch(ctx, fb)
		}
	}
}

// processFilesBatch runs the settle protocol decision table against every
// entry in the batch, then resolves any paths that turned into deletion
// candidates along the way, all inside one catalog transaction.
func (e *Engine) processFilesBatch(ctx context.Context, fb batch.FlushedBatch) {
	tx, err := e.cat.Begin(ctx)
	if err != nil {
		e.log.Printf("begin files batch: %v", err)
		return
	}
	defer tx.Rollback()

	var deletionCandidates []string
	nowUnix := e.now().Unix()

	for _, entry := range fb.Entries {
		candidate, err := e.visitFile(ctx, tx, entry.Path, entry.Mtime, nowUnix)
		if err != nil {
			e.log.Printf("visit %s: %v", entry.Path, err)
			continue
		}
		if candidate {
			deletionCandidates = append(deletionCandidates, entry.Path)
		}
	}

	for _, path := range deletionCandidates {
		if err := e.resolveDeletionCandidate(ctx, tx, path, nowUnix); err != nil {
			e.log.Printf("resolve deletion %s: %v", path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		e.log.Printf("commit files batch: %v", err)
	}
}

// visitFile runs one row of the settle protocol's decision table. It
// returns candidate=true when path should be handed to the deletion
// resolution pass instead of being finished here.
func (e *Engine) visitFile(ctx context.Context, tx *catalog.Tx, path string, mtime, nowUnix int64) (candidate bool, err error) {
	existing, ok, err := tx.CurrentObservation(ctx, path)
	if err != nil {
		return false, err
	}
	if ok && existing.Mtime == mtime {
		return false, tx.RecordVisit(ctx, path, nil)
	}

	settleSeconds := int64(e.settle / time.Second)
	if nowUnix < mtime+settleSeconds {
		revisitAt := mtime + settleSeconds
		e.signalRevisits()
		return false, tx.RecordVisit(ctx, path, &revisitAt)
	}

	st, err := lstatPath(path)
	if err != nil {
		// TransientIO: log and leave the path for the next notification
		// or revisit to pick back up.
		return false, err
	}
	if !st.exists {
		return true, nil
	}
	if st.mtime != mtime {
		revisitAt := st.mtime + settleSeconds
		e.signalRevisits()
		return false, tx.RecordVisit(ctx, path, &revisitAt)
	}

	digest, err := e.hashFile(path)
	if err != nil {
		if errors.Is(err, hash.ErrPermissionDenied) {
			return true, nil
		}
		return false, err
	}

	// Re-stat after hashing: the file may have moved while we read it.
	after, err := lstatPath(path)
	if err != nil {
		return false, err
	}
	if !after.exists {
		return true, nil
	}
	if after.mtime != mtime {
		revisitAt := after.mtime + settleSeconds
		e.signalRevisits()
		return false, tx.RecordVisit(ctx, path, &revisitAt)
	}

	if err := tx.RecordObservation(ctx, digest, path, mtime, after.size, nowUnix); err != nil {
		return false, err
	}
	return false, tx.RecordVisit(ctx, path, nil)
}

// resolveDeletionCandidate takes the final stat on a path that looked
// gone partway through the settle protocol. If it has reappeared, a fresh
// revisit is scheduled; otherwise it is marked deleted and forgotten from
// the revisit queue.
func (e *Engine) resolveDeletionCandidate(ctx context.Context, tx *catalog.Tx, path string, nowUnix int64) error {
	st, err := lstatPath(path)
	if err != nil {
		return err
	}
	if st.exists {
		settleSeconds := int64(e.settle / time.Second)
		revisitAt := st.mtime + settleSeconds
		e.signalRevisits()
		return tx.RecordVisit(ctx, path, &revisitAt)
	}
	if err := tx.MarkDeleted(ctx, path, nowUnix); err != nil {
		return err
	}
	return tx.ForgetVisit(ctx, path)
}

// processSymlinksBatch logs each symlink observation and records a
// settled visit; symlink targets are not recorded (see design notes).
func (e *Engine) processSymlinksBatch(ctx context.Context, fb batch.FlushedBatch) {
	tx, err := e.cat.Begin(ctx)
	if err != nil {
		e.log.Printf("begin symlinks batch: %v", err)
		return
	}
	defer tx.Rollback()

	for _, entry := range fb.Entries {
		e.log.Printf("symlink observed: %s", entry.Path)
		if err := tx.RecordVisit(ctx, entry.Path, nil); err != nil {
			e.log.Printf("visit symlink %s: %v", entry.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		e.log.Printf("commit symlinks batch: %v", err)
	}
}

// processDeletionsBatch resolves paths that arrived as direct deletion
// observations (the notifier or walker saw them missing outright).
func (e *Engine) processDeletionsBatch(ctx context.Context, fb batch.FlushedBatch) {
	tx, err := e.cat.Begin(ctx)
	if err != nil {
		e.log.Printf("begin deletions batch: %v", err)
		return
	}
	defer tx.Rollback()

	nowUnix := e.now().Unix()
	for _, entry := range fb.Entries {
		if err := e.resolveDeletionCandidate(ctx, tx, entry.Path, nowUnix); err != nil {
			e.log.Printf("resolve deletion %s: %v", entry.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		e.log.Printf("commit deletions batch: %v", err)
	}
}

// runRevisitScheduler is the liveness loop: it repeatedly asks the catalog
// for due paths and feeds each one back through Dispatch via a fresh stat.
func (e *Engine) runRevisitScheduler(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		nextTime, paths, err := e.cat.DueForRevisit(ctx, e.now().Unix())
		if err != nil {
			e.log.Printf("due for revisit: %v", err)
			if !e.sleepOrDone(ctx, time.Second) {
				return
			}
			continue
		}

		if len(paths) == 0 {
			var wait time.Duration
			if nextTime != nil {
				wait = time.Second
			}
			if !e.waitForRevisitSignal(ctx, wait) {
				return
			}
			continue
		}

		for _, path := range paths {
			st, err := lstatPath(path)
			if err != nil {
				e.log.Printf("revisit stat %s: %v", path, err)
				continue
			}
			e.Dispatch(path, st.exists, st.mtime, st.isSymlink)
		}
	}
}

// waitForRevisitSignal blocks until either the revisit condition variable
// fires, wait elapses (if non-zero), or ctx is cancelled. It returns false
// only when ctx is done.
func (e *Engine) waitForRevisitSignal(ctx context.Context, wait time.Duration) bool {
	var timeout <-chan time.Time
	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case <-ctx.Done():
		return false
	case <-e.revisitNow:
		return true
	case <-timeout:
		return true
	}
}

func (e *Engine) sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
