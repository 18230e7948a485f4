// Package logging provides a minimal, subsystem-tagged wrapper around the
// standard library logger. The core pipeline runs several long-lived tasks
// (notifier, batchers, revisit scheduler) and a plain log.Printf quickly
// becomes hard to read once they interleave; Logger just prefixes each line
// with the subsystem that emitted it.
package logging

import (
	"log"
	"os"
)

// Logger writes tagged lines to an underlying *log.Logger. It is safe for
// concurrent use because *log.Logger already serializes writes.
type Logger struct {
	tag   string
	inner *log.Logger
}

// New returns a Logger that writes to stderr with the given subsystem tag.
func New(tag string) *Logger {
	return &Logger{
		tag:   tag,
		inner: log.New(os.Stderr, "", log.LstdFlags),
	}
}

// With returns a Logger for a child subsystem, e.g. base.With("walk") on a
// Logger tagged "filer" produces lines prefixed "filer.walk".
func (l *Logger) With(sub string) *Logger {
	tag := sub
	if l.tag != "" {
		tag = l.tag + "." + sub
	}
	return &Logger{tag: tag, inner: l.inner}
}

func (l *Logger) Printf(format string, args ...any) {
	l.inner.Printf("["+l.tag+"] "+format, args...)
}

func (l *Logger) Println(args ...any) {
	l.inner.Println(append([]any{"[" + l.tag + "]"}, args...)...)
}
