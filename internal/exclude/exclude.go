// Package exclude implements the exclusion filter: a pure predicate over
// (canonical path, basename) driven by configuration. It is consulted both
// while the bulk walker decides which subtrees to descend and when the
// change pipeline decides whether to act on a notifier event.
package exclude

import (
	"regexp"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/filer/filer/internal/config"
	"github.com/filer/filer/internal/logging"
)

// Filter holds the compiled exclusion rules for one run. It is immutable
// once built and safe for concurrent use by any number of readers.
type Filter struct {
	paths     map[string]struct{}
	dirNames  map[string]struct{}
	patterns  []*regexp.Regexp
	globs     []string
	swapFiles map[string]struct{}
}

// New compiles cfg's exclusion rules and samples the host's swap file list
// once. A malformed regex is a startup error (ErrConfigMalformed territory
// for the caller); swap enumeration failure is never fatal.
func New(cfg config.Config, log *logging.Logger) (*Filter, error) {
	f := &Filter{
		paths:    toSet(cfg.ExcludePaths),
		dirNames: toSet(cfg.ExcludeDirectories),
		globs:    cfg.ExcludeGlobs,
	}
	for _, pat := range cfg.ExcludePatterns {
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, err
		}
		f.patterns = append(f.patterns, re)
	}
	f.swapFiles = activeSwapFiles(log)
	return f, nil
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}

// Excluded reports whether canonicalPath should be pruned (if isDir) or
// skipped (if a file/symlink).
func (f *Filter) Excluded(canonicalPath, basename string, isDir bool) bool {
	if _, ok := f.paths[canonicalPath]; ok {
		return true
	}
	if isDir {
		if _, ok := f.dirNames[basename]; ok {
			return true
		}
		for _, g := range f.globs {
			if ok, _ := doublestar.Match(g, basename); ok {
				return true
			}
		}
	}
	for _, re := range f.patterns {
		if re.MatchString(canonicalPath) {
			return true
		}
	}
	if !isDir {
		if _, ok := f.swapFiles[canonicalPath]; ok {
			return true
		}
	}
	return false
}
