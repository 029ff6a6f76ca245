package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Parse overlays shdc.json bytes onto the defaults and validates the result.
// Keys present in data win, including explicit empty strings; a Vertex or
// Fragment list replaces the default list wholesale.
func Parse(data []byte) (*Config, error) {
	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg := Default()
	setString(&cfg.Compiler, fc.Compiler)
	setString(&cfg.SrcDir, fc.SrcDir)
	setString(&cfg.DstDir, fc.DstDir)
	setString(&cfg.Lang, fc.Lang)
	setString(&cfg.Prefix, fc.Prefix)
	setString(&cfg.Suffix, fc.Suffix)
	if fc.EnsureDstDir != nil {
		cfg.EnsureDstDir = *fc.EnsureDstDir
	}
	if fc.Vertex != nil {
		cfg.Vertex = fc.Vertex
	}
	if fc.Fragment != nil {
		cfg.Fragment = fc.Fragment
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseFile reads and parses a config file
func ParseFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

func (c *Config) Validate() error {
	if c.Compiler == "" {
		return fmt.Errorf("config: Compiler is required")
	}
	if len(c.Vertex)+len(c.Fragment) == 0 {
		return fmt.Errorf("config: at least one Vertex or Fragment variant is required")
	}
	for i, v := range c.Vertex {
		if v.Source == "" {
			return fmt.Errorf("config: Vertex[%d].Source is required", i)
		}
	}
	for i, v := range c.Fragment {
		if v.Source == "" {
			return fmt.Errorf("config: Fragment[%d].Source is required", i)
		}
	}
	return nil
}

// normalize gives non-empty directories a trailing slash; paths are built by
// plain concatenation.
func (c *Config) normalize() {
	c.SrcDir = withSlash(c.SrcDir)
	c.DstDir = withSlash(c.DstDir)
}

func withSlash(dir string) string {
	if dir == "" || strings.HasSuffix(dir, "/") {
		return dir
	}
	return dir + "/"
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
