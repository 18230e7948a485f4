// Package config loads the JSON configuration file that drives the filer
// core: roots to walk, exclusion rules, the catalog directory, and the
// settle-time grace window. Loading happens once at startup; the resulting
// Config is treated as immutable afterward.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config is the effective, fully-defaulted configuration.
type Config struct {
	Roots               []string `json:"roots"`
	ExcludePaths        []string `json:"-"`
	ExcludeDirectories  []string `json:"-"`
	ExcludePatterns     []string `json:"-"`
	ExcludeGlobs        []string `json:"-"`
	DBDir               string   `json:"-"`
	SettleSeconds       float64  `json:"-"`

	// SourcePath is the config file that was actually loaded, or "" if none
	// existed and defaults were used throughout.
	SourcePath string `json:"-"`
}

// raw mirrors the on-disk JSON shape so we can unmarshal it and separately
// detect unknown keys (which warn but never fail startup).
type raw struct {
	Roots   []string `json:"roots"`
	Exclude *struct {
		Paths       []string `json:"paths"`
		Directories []string `json:"directories"`
		Patterns    []string `json:"patterns"`
		Globs       []string `json:"globs"`
	} `json:"exclude"`
	DB *struct {
		Dir string `json:"dir"`
	} `json:"db"`
	Times *struct {
		Settle *float64 `json:"settle"`
	} `json:"times"`
}

const defaultSettleSeconds = 30

var defaultRoots = []string{"/"}

// Paths returns the ordered list of paths the loader consults, first
// existing file wins. A bundled default beside the running executable is
// the last resort, matched against whatever directory the binary lives in.
func Paths() []string {
	home, _ := os.UserHomeDir()
	exeDir := ""
	if exe, err := os.Executable(); err == nil {
		exeDir = filepath.Dir(exe)
	}

	paths := []string{"./local_filer_config.json"}
	if home != "" {
		paths = append(paths,
			filepath.Join(home, ".filer_config.json"),
			filepath.Join(home, ".config", "filer", "config.json"),
		)
	}
	paths = append(paths, "/etc/filer/config.json")
	if exeDir != "" {
		paths = append(paths, filepath.Join(exeDir, "filer_config.default.json"))
	}
	return paths
}

// ErrConfigMalformed is returned when an existing config file cannot be
// parsed as JSON. It always carries the offending path and parse error.
type ErrConfigMalformed struct {
	Path string
	Err  error
}

func (e *ErrConfigMalformed) Error() string {
	return fmt.Sprintf("config %s is malformed: %v", e.Path, e.Err)
}

func (e *ErrConfigMalformed) Unwrap() error { return e.Err }

// Load consults Paths() in order and parses the first file that exists. If
// none exist, defaults are returned with SourcePath == "".
func Load() (Config, error) {
	for _, p := range Paths() {
		content, err := os.ReadFile(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return Config{}, fmt.Errorf("read config %s: %w", p, err)
		}
		cfg, err := parse(content)
		if err != nil {
			return Config{}, &ErrConfigMalformed{Path: p, Err: err}
		}
		cfg.SourcePath = p
		return cfg, nil
	}
	return defaults(), nil
}

func defaults() Config {
	return Config{
		Roots:         append([]string(nil), defaultRoots...),
		DBDir:         defaultDBDir(),
		SettleSeconds: defaultSettleSeconds,
	}
}

func defaultDBDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".filer"
	}
	return filepath.Join(home, ".filer")
}

func parse(content []byte) (Config, error) {
	var known map[string]json.RawMessage
	if err := json.Unmarshal(content, &known); err != nil {
		return Config{}, err
	}
	warnUnknownKeys("", known, map[string]bool{"roots": true, "exclude": true, "db": true, "times": true})
	if ex, ok := known["exclude"]; ok {
		var sub map[string]json.RawMessage
		if json.Unmarshal(ex, &sub) == nil {
			warnUnknownKeys("exclude.", sub, map[string]bool{"paths": true, "directories": true, "patterns": true, "globs": true})
		}
	}
	if db, ok := known["db"]; ok {
		var sub map[string]json.RawMessage
		if json.Unmarshal(db, &sub) == nil {
			warnUnknownKeys("db.", sub, map[string]bool{"dir": true})
		}
	}
	if t, ok := known["times"]; ok {
		var sub map[string]json.RawMessage
		if json.Unmarshal(t, &sub) == nil {
			warnUnknownKeys("times.", sub, map[string]bool{"settle": true})
		}
	}

	var r raw
	if err := json.Unmarshal(content, &r); err != nil {
		return Config{}, err
	}

	cfg := defaults()
	if len(r.Roots) > 0 {
		cfg.Roots = r.Roots
	}
	if r.Exclude != nil {
		cfg.ExcludePaths = r.Exclude.Paths
		cfg.ExcludeDirectories = r.Exclude.Directories
		cfg.ExcludePatterns = r.Exclude.Patterns
		cfg.ExcludeGlobs = r.Exclude.Globs
	}
	if r.DB != nil && r.DB.Dir != "" {
		cfg.DBDir = r.DB.Dir
	}
	if r.Times != nil && r.Times.Settle != nil {
		cfg.SettleSeconds = *r.Times.Settle
	}
	if cfg.SettleSeconds < 0 {
		cfg.SettleSeconds = 0
	}
	return cfg, nil
}

func warnUnknownKeys(prefix string, m map[string]json.RawMessage, known map[string]bool) {
	for k := range m {
		if !known[k] {
			fmt.Fprintf(os.Stderr, "filer: warning: unrecognized config key %q\n", prefix+k)
		}
	}
}
