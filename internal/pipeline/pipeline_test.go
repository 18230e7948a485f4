package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filer/filer/internal/batch"
	"github.com/filer/filer/internal/catalog"
	"github.com/filer/filer/internal/hash"
	"github.com/filer/filer/internal/logging"
)

func newEngine(t *testing.T, settle time.Duration) (*Engine, *catalog.Catalog) {
	t.Helper()
	cat, err := catalog.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })
	return New(cat, settle, logging.New("test")), cat
}

func writeFile(t *testing.T, path string, data []byte) int64 {
	t.Helper()
	require.NoError(t, os.WriteFile(path, data, 0o644))
	info, err := os.Stat(path)
	require.NoError(t, err)
	return info.ModTime().Unix()
}

func TestDispatchRoutesByKind(t *testing.T) {
	e, _ := newEngine(t, 0)

	e.Dispatch("/a/regular", true, 100, false)
	e.Dispatch("/a/link", true, 100, true)
	e.Dispatch("/a/gone", false, 0, false)

	assert.Equal(t, 1, e.batcher.Files.Len())
	assert.Equal(t, 1, e.batcher.Symlinks.Len())
	assert.Equal(t, 1, e.batcher.Deletions.Len())
}

func TestVisitFileSettledImmediatelyRecordsObservation(t *testing.T) {
	e, cat := newEngine(t, 0)
	dir := t.TempDir()
	path := filepath.Join(dir, "x")
	mtime := writeFile(t, path, []byte("hello"))

	ctx := context.Background()
	e.processFilesBatch(ctx, batch.FlushedBatch{
		Kind:    batch.KindFiles,
		Entries: []batch.Entry{{Path: path, Mtime: mtime, HasMtime: true}},
	})

	obs, err := cat.CurrentObservations(ctx, []string{path})
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, mtime, obs[0].Mtime)
}

func TestVisitFileUnsettledIsDeferred(t *testing.T) {
	e, cat := newEngine(t, 30*time.Second)
	dir := t.TempDir()
	path := filepath.Join(dir, "x")
	mtime := writeFile(t, path, []byte("hello"))

	ctx := context.Background()
	e.processFilesBatch(ctx, batch.FlushedBatch{
		Kind:    batch.KindFiles,
		Entries: []batch.Entry{{Path: path, Mtime: mtime, HasMtime: true}},
	})

	obs, err := cat.CurrentObservations(ctx, []string{path})
	require.NoError(t, err)
	assert.Empty(t, obs, "unsettled file must not produce a FileObservation")

	_, due, err := cat.DueForRevisit(ctx, mtime+31)
	require.NoError(t, err)
	assert.Contains(t, due, path)
}

func TestVisitFileReobservationSameMtimeIsVisitOnly(t *testing.T) {
	e, cat := newEngine(t, 0)
	dir := t.TempDir()
	path := filepath.Join(dir, "x")
	mtime := writeFile(t, path, []byte("hello"))

	ctx := context.Background()
	fb := batch.FlushedBatch{Kind: batch.KindFiles, Entries: []batch.Entry{{Path: path, Mtime: mtime, HasMtime: true}}}
	e.processFilesBatch(ctx, fb)

	obsBefore, err := cat.CurrentObservations(ctx, []string{path})
	require.NoError(t, err)
	require.Len(t, obsBefore, 1)
	firstObserved := obsBefore[0].FirstObserved

	e.processFilesBatch(ctx, fb)

	obsAfter, err := cat.CurrentObservations(ctx, []string{path})
	require.NoError(t, err)
	require.Len(t, obsAfter, 1)
	assert.Equal(t, firstObserved, obsAfter[0].FirstObserved)
}

func TestVisitFileMissingMarksDeleted(t *testing.T) {
	e, cat := newEngine(t, 0)
	path := "/does/not/exist/x"

	ctx := context.Background()
	e.processFilesBatch(ctx, batch.FlushedBatch{
		Kind:    batch.KindFiles,
		Entries: []batch.Entry{{Path: path, Mtime: 12345, HasMtime: true}},
	})

	obs, err := cat.CurrentObservations(ctx, []string{path})
	require.NoError(t, err)
	assert.Empty(t, obs)

	_, due, err := cat.DueForRevisit(ctx, time.Now().Unix()+1000000)
	require.NoError(t, err)
	assert.NotContains(t, due, path)
}

func TestProcessDeletionsBatchMarksDeletedAndForgetsVisit(t *testing.T) {
	e, cat := newEngine(t, 0)
	dir := t.TempDir()
	path := filepath.Join(dir, "x")
	mtime := writeFile(t, path, []byte("hello"))

	ctx := context.Background()
	e.processFilesBatch(ctx, batch.FlushedBatch{
		Kind:    batch.KindFiles,
		Entries: []batch.Entry{{Path: path, Mtime: mtime, HasMtime: true}},
	})
	require.NoError(t, os.Remove(path))

	e.processDeletionsBatch(ctx, batch.FlushedBatch{
		Kind:    batch.KindDeletions,
		Entries: []batch.Entry{{Path: path}},
	})

	obs, err := cat.CurrentObservations(ctx, []string{path})
	require.NoError(t, err)
	assert.Empty(t, obs)
}

func TestProcessDeletionsBatchReappearedFileGetsRevisit(t *testing.T) {
	e, cat := newEngine(t, 30*time.Second)
	dir := t.TempDir()
	path := filepath.Join(dir, "x")
	writeFile(t, path, []byte("hello"))

	ctx := context.Background()
	e.processDeletionsBatch(ctx, batch.FlushedBatch{
		Kind:    batch.KindDeletions,
		Entries: []batch.Entry{{Path: path}},
	})

	_, due, err := cat.DueForRevisit(ctx, time.Now().Unix()+1000000)
	require.NoError(t, err)
	assert.Contains(t, due, path)
}

// TestVisitFileMidHashMtimeChangeDefersRevisit exercises scenario S3: the
// file is written to again while hash.Sum is reading it. The post-hash
// re-stat must see the new mtime and schedule a revisit instead of
// recording a FileObservation keyed to stale content.
func TestVisitFileMidHashMtimeChangeDefersRevisit(t *testing.T) {
	e, cat := newEngine(t, 0)
	dir := t.TempDir()
	path := filepath.Join(dir, "x")
	mtime := writeFile(t, path, []byte("hello"))

	racedMtime := mtime + 100
	e.hashFile = func(path string) (string, error) {
		digest, err := hash.Sum(path)
		if err != nil {
			return "", err
		}
		if err := os.Chtimes(path, time.Unix(racedMtime, 0), time.Unix(racedMtime, 0)); err != nil {
			return "", err
		}
		return digest, nil
	}

	ctx := context.Background()
	e.processFilesBatch(ctx, batch.FlushedBatch{
		Kind:    batch.KindFiles,
		Entries: []batch.Entry{{Path: path, Mtime: mtime, HasMtime: true}},
	})

	obs, err := cat.CurrentObservations(ctx, []string{path})
	require.NoError(t, err)
	assert.Empty(t, obs, "a mid-hash mtime change must not produce a FileObservation for the stale read")

	_, due, err := cat.DueForRevisit(ctx, racedMtime+1000000)
	require.NoError(t, err)
	assert.Contains(t, due, path, "the path must be rescheduled for revisit against its new mtime")
}

// TestRevisitSchedulerDispatchesDuePathIntoFilesBatch exercises the Revisit
// Scheduler's own loop (its liveness feedback path): given a visit record already
// due, the scheduler must re-stat it and dispatch it into the files batch
// without waiting for a notification or a fresh walk.
func TestRevisitSchedulerDispatchesDuePathIntoFilesBatch(t *testing.T) {
	e, cat := newEngine(t, 0)
	dir := t.TempDir()
	path := filepath.Join(dir, "x")
	writeFile(t, path, []byte("hello"))

	ctx := context.Background()
	tx, err := cat.Begin(ctx)
	require.NoError(t, err)
	past := time.Now().Unix() - 100
	require.NoError(t, tx.RecordVisit(ctx, path, &past))
	require.NoError(t, tx.Commit())

	schedCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		e.runRevisitScheduler(schedCtx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return e.batcher.Files.Len() == 1
	}, 400*time.Millisecond, 5*time.Millisecond, "revisit scheduler must dispatch the due path into the files batch")

	cancel()
	<-done
}

func TestProcessSymlinksBatchRecordsSettledVisitOnly(t *testing.T) {
	e, cat := newEngine(t, 0)
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(target, link))

	ctx := context.Background()
	e.processSymlinksBatch(ctx, batch.FlushedBatch{
		Kind:    batch.KindSymlinks,
		Entries: []batch.Entry{{Path: link, Mtime: time.Now().Unix(), HasMtime: true}},
	})

	obs, err := cat.CurrentObservations(ctx, []string{link})
	require.NoError(t, err)
	assert.Empty(t, obs, "symlinks never produce a FileObservation")

	_, due, err := cat.DueForRevisit(ctx, time.Now().Unix()+1000000)
	require.NoError(t, err)
	assert.NotContains(t, due, link)
}
