/*
 * config.go, part of remdio.
 *
 * Copyright 2026 The remdio Authors
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License as
 * published by the Free Software Foundation; either version 2.1 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU Lesser General
 * Public License along with this program.  If not, see
 * <http://www.gnu.org/licenses/>.
 *
 */

// Package config reads the job description of remdsort, from a TOML or a
// YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gochem/remdio/ensemble"
	"github.com/gochem/remdio/trajfile"
	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

// EnsembleConfig describes the member trajectories.
type EnsembleConfig struct {
	Files  []string `toml:"files" yaml:"files"`
	Format string   `toml:"format" yaml:"format"`
	Atoms  int      `toml:"atoms" yaml:"atoms"`
	Names  []string `toml:"names" yaml:"names"`
	Target string   `toml:"target" yaml:"target"`
	Runner string   `toml:"runner" yaml:"runner"`
	//Start, Stop and Offset select the steps processed. A negative Stop
	//means up to the last step.
	Start  int `toml:"start" yaml:"start"`
	Stop   int `toml:"stop" yaml:"stop"`
	Offset int `toml:"offset" yaml:"offset"`
}

// OutputConfig describes the trajectories written, one per logical
// replica, named Prefix.r.Ext.
type OutputConfig struct {
	Prefix string            `toml:"prefix" yaml:"prefix"`
	Format string            `toml:"format" yaml:"format"`
	Ext    string            `toml:"ext" yaml:"ext"`
	Args   map[string]string `toml:"args" yaml:"args"`
}

// AnalysisConfig holds the per-replica analyses.
type AnalysisConfig struct {
	RadGyr bool   `toml:"radgyr" yaml:"radgyr"`
	Mask   []int  `toml:"mask" yaml:"mask"`
	Mass   bool   `toml:"mass" yaml:"mass"`
	File   string `toml:"file" yaml:"file"`
}

// PlotConfig holds the replica walk plot. No plot is made if File is
// empty.
type PlotConfig struct {
	File  string `toml:"file" yaml:"file"`
	Title string `toml:"title" yaml:"title"`
}

// MetricsConfig holds the metrics dump, in Prometheus text format.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	File    string `toml:"file" yaml:"file"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// Config is a remdsort job.
type Config struct {
	Ensemble EnsembleConfig `toml:"ensemble" yaml:"ensemble"`
	Output   OutputConfig   `toml:"output" yaml:"output"`
	Analysis AnalysisConfig `toml:"analysis" yaml:"analysis"`
	Plot     PlotConfig     `toml:"plot" yaml:"plot"`
	Metrics  MetricsConfig  `toml:"metrics" yaml:"metrics"`
	Logging  LoggingConfig  `toml:"logging" yaml:"logging"`
}

// Load reads the configuration in path. Files ending in .yaml or .yml are
// YAML, anything else is TOML.
func Load(path string) (*Config, error) {
	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		defer f.Close()
		if err := toml.NewDecoder(f).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	setDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default values for unspecified configuration
func setDefaults(cfg *Config) {
	if cfg.Ensemble.Target == "" {
		cfg.Ensemble.Target = ensemble.ByTemperature.String()
	}
	if cfg.Ensemble.Runner == "" {
		cfg.Ensemble.Runner = "parallel"
	}
	if cfg.Ensemble.Stop == 0 {
		cfg.Ensemble.Stop = -1
	}
	if cfg.Ensemble.Offset == 0 {
		cfg.Ensemble.Offset = 1
	}
	if cfg.Output.Prefix == "" {
		cfg.Output.Prefix = "remd"
	}
	if cfg.Output.Ext == "" {
		if cfg.Output.Format != "" {
			cfg.Output.Ext = cfg.Output.Format
		} else {
			cfg.Output.Ext = "stf"
		}
	}
	if cfg.Analysis.RadGyr && cfg.Analysis.File == "" {
		cfg.Analysis.File = cfg.Output.Prefix + ".rg.dat"
	}
	if cfg.Plot.File != "" && cfg.Plot.Title == "" {
		cfg.Plot.Title = "Replica walk"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	e := c.Ensemble
	if len(e.Files) == 0 {
		return errors.New("ensemble.files: at least one member trajectory is required")
	}
	if e.Atoms <= 0 {
		return fmt.Errorf("ensemble.atoms must be positive, got %d", e.Atoms)
	}
	if e.Names != nil && len(e.Names) != e.Atoms {
		return fmt.Errorf("ensemble.names has %d names for %d atoms", len(e.Names), e.Atoms)
	}
	if e.Format != "" {
		if _, err := trajfile.New(e.Format); err != nil {
			return fmt.Errorf("ensemble.format: %w", err)
		}
	}
	if _, err := ensemble.ParseTarget(e.Target); err != nil {
		return fmt.Errorf("ensemble.target: %w", err)
	}
	if e.Runner != "parallel" && e.Runner != "serial" {
		return fmt.Errorf("ensemble.runner must be parallel or serial, got '%s'", e.Runner)
	}
	if e.Start < 0 || e.Offset < 1 || (e.Stop >= 0 && e.Stop < e.Start) {
		return fmt.Errorf("invalid step range start=%d stop=%d offset=%d", e.Start, e.Stop, e.Offset)
	}
	if c.Output.Format != "" {
		if _, err := trajfile.New(c.Output.Format); err != nil {
			return fmt.Errorf("output.format: %w", err)
		}
	} else if trajfile.FormatFromName("x."+c.Output.Ext) == "" {
		return fmt.Errorf("output.ext: can't guess a format from '%s'", c.Output.Ext)
	}
	if c.Analysis.Mass && e.Names == nil {
		return errors.New("analysis.mass needs ensemble.names")
	}
	for _, i := range c.Analysis.Mask {
		if i < 0 || i >= e.Atoms {
			return fmt.Errorf("analysis.mask: atom %d out of range", i)
		}
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unknown level '%s'", c.Logging.Level)
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be console or json, got '%s'", c.Logging.Format)
	}
	return nil
}

// Target returns the ensemble target.
func (c *Config) Target() ensemble.Target {
	t, _ := ensemble.ParseTarget(c.Ensemble.Target)
	return t
}

// Runner returns the runner for ensemble steps.
func (c *Config) Runner() ensemble.Runner {
	if c.Ensemble.Runner == "serial" {
		return ensemble.Serial{}
	}
	return ensemble.Parallel{}
}
