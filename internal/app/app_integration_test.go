//go:build integration

package app

// Integration tests exercise Run end-to-end against a real catalog and a
// real fsnotify watcher. Run with: go test -tags=integration ./internal/app/...
//
// These are slower and timing-sensitive; they earn their keep by catching
// wiring mistakes between the walker, notifier, and pipeline that unit
// tests of each package in isolation cannot see.

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filer/filer/internal/catalog"
	"github.com/filer/filer/internal/config"
	"github.com/filer/filer/internal/logging"
)

const (
	eventDelay = 100 * time.Millisecond
	maxWait    = 3 * time.Second
)

func waitForCondition(t *testing.T, condition func() bool, timeout time.Duration, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for: %s", msg)
}

func TestRunObservesExistingAndNewFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "existing.txt"), []byte("hi"), 0o644))

	cfg := config.Config{
		Roots:         []string{root},
		DBDir:         t.TempDir(),
		SettleSeconds: 0,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg, logging.New("test")) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	cat, err := catalog.Open(cfg.DBDir)
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })

	existingPath := filepath.Join(root, "existing.txt")
	waitForCondition(t, func() bool {
		obs, err := cat.CurrentObservations(context.Background(), []string{existingPath})
		return err == nil && len(obs) == 1
	}, maxWait, "initial bulk walk to observe existing.txt")

	newPath := filepath.Join(root, "newfile.txt")
	require.NoError(t, os.WriteFile(newPath, []byte("new"), 0o644))
	time.Sleep(eventDelay)

	waitForCondition(t, func() bool {
		obs, err := cat.CurrentObservations(context.Background(), []string{newPath})
		return err == nil && len(obs) == 1
	}, maxWait, "notifier to observe newfile.txt")

	require.NoError(t, os.Remove(newPath))
	time.Sleep(eventDelay)

	waitForCondition(t, func() bool {
		obs, err := cat.CurrentObservations(context.Background(), []string{newPath})
		return err == nil && len(obs) == 0
	}, maxWait, "notifier to observe newfile.txt removal")

	snap, err := cat.Snapshot(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, snap.CurrentObservations, int64(1))
}
