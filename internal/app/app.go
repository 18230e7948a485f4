// Package app wires the core's components into one running instance:
// catalog, exclusion filter, bulk walker, change notifier, and the
// settle-protocol pipeline. Run is the single entry point cmd calls.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/filer/filer/internal/catalog"
	"github.com/filer/filer/internal/config"
	"github.com/filer/filer/internal/exclude"
	"github.com/filer/filer/internal/logging"
	"github.com/filer/filer/internal/notify"
	"github.com/filer/filer/internal/pipeline"
	"github.com/filer/filer/internal/walk"
)

// Run opens the catalog, performs the initial bulk walk of every
// configured root, and then serves change notifications until ctx is
// cancelled (typically by a signal the caller installed on ctx).
//
// Operational story:
//  1. Open the catalog and clear its visit queue — the bulk walk about to
//     run is the authoritative pass; a path that has no VisitRecord once
//     the walk completes no longer exists under the configured roots.
//  2. Start the pipeline engine's workers and revisit scheduler; they sit
//     idle on their batch channels until the walk or the notifier feeds
//     them.
//  3. Walk every root, registering a change-notification watch on every
//     surviving directory and dispatching every surviving file/symlink
//     into the pipeline.
//  4. Start the change notifier and block until ctx is done.
func Run(ctx context.Context, cfg config.Config, log *logging.Logger) error {
	cat, err := catalog.Open(cfg.DBDir)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer cat.Close()

	if err := cat.ClearVisits(ctx); err != nil {
		return fmt.Errorf("clear visits: %w", err)
	}

	filter, err := exclude.New(cfg, log.With("exclude"))
	if err != nil {
		return fmt.Errorf("build exclusion filter: %w", err)
	}

	settle := time.Duration(cfg.SettleSeconds * float64(time.Second))
	engine := pipeline.New(cat, settle, log.With("pipeline"))

	notifier, err := notify.New(log.With("notify"))
	if err != nil {
		return fmt.Errorf("create notifier: %w", err)
	}
	defer notifier.Close()

	go engine.Run(ctx)

	w := walk.New(filter, log.With("walk"))
	emit := func(e walk.Entry) {
		engine.WalkEmit(e.Path, e.Mtime, e.IsSymlink)
	}
	watchDir := func(path string) error {
		return notifier.Add(path)
	}
	for _, root := range cfg.Roots {
		log.Printf("walking root %s", root)
		w.WalkRoot(root, emit, watchDir)
	}

	log.Printf("initial walk complete, serving notifications")
	notifier.Run(ctx, func(path string, stat *notify.Stat) {
		if filter.Excluded(path, filepath.Base(path), stat != nil && stat.IsDir) {
			return
		}
		if stat == nil {
			engine.NotifyHandle(path, false, 0, false)
			return
		}
		if stat.IsDir {
			return
		}
		engine.NotifyHandle(path, true, stat.Mtime, stat.IsSymlink)
	})

	return nil
}

// Stats is a read-only summary of the catalog's current state, used by the
// --stats CLI flag. It opens its own short-lived connection rather than
// reusing a running instance's, since --stats is meant to be run against
// an idle catalog.
func Stats(ctx context.Context, cfg config.Config) (catalog.Stats, error) {
	cat, err := catalog.Open(cfg.DBDir)
	if err != nil {
		return catalog.Stats{}, fmt.Errorf("open catalog: %w", err)
	}
	defer cat.Close()
	return cat.Snapshot(ctx)
}
