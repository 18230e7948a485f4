package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/filer/filer/internal/config"
)

// displayConfig mirrors the on-disk nested JSON shape; config.Config itself
// is flattened for convenient field access and isn't meant to round-trip.
type displayConfig struct {
	Roots   []string `json:"roots"`
	Exclude struct {
		Paths       []string `json:"paths"`
		Directories []string `json:"directories"`
		Patterns    []string `json:"patterns"`
		Globs       []string `json:"globs"`
	} `json:"exclude"`
	DB struct {
		Dir string `json:"dir"`
	} `json:"db"`
	Times struct {
		Settle float64 `json:"settle"`
	} `json:"times"`
	SourcePath string `json:"source_path"`
}

func runShowConfig() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	d := displayConfig{Roots: cfg.Roots, SourcePath: cfg.SourcePath}
	d.Exclude.Paths = cfg.ExcludePaths
	d.Exclude.Directories = cfg.ExcludeDirectories
	d.Exclude.Patterns = cfg.ExcludePatterns
	d.Exclude.Globs = cfg.ExcludeGlobs
	d.DB.Dir = cfg.DBDir
	d.Times.Settle = cfg.SettleSeconds

	out, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
