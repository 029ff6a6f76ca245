// Package config loads the shdc build configuration: compiler location,
// path conventions and the variant table. Every field has a built-in default,
// so running without a config file reproduces the stock sweep.
package config

import (
	"github.com/gviegas/yf-x/internal/shdc"
)

// Config is the parsed and validated shdc.json.
type Config struct {
	Compiler string `json:"Compiler"`
	SrcDir   string `json:"SrcDir"`
	DstDir   string `json:"DstDir"`
	Lang     string `json:"Lang"`
	Prefix   string `json:"Prefix"`
	Suffix   string `json:"Suffix"`

	// EnsureDstDir creates DstDir before the first invocation.
	EnsureDstDir bool `json:"EnsureDstDir,omitempty"`

	Vertex   []shdc.Variant `json:"Vertex"`
	Fragment []shdc.Variant `json:"Fragment"`
}

// fileConfig distinguishes absent keys from explicit empty values.
type fileConfig struct {
	Compiler     *string        `json:"Compiler"`
	SrcDir       *string        `json:"SrcDir"`
	DstDir       *string        `json:"DstDir"`
	Lang         *string        `json:"Lang"`
	Prefix       *string        `json:"Prefix"`
	Suffix       *string        `json:"Suffix"`
	EnsureDstDir *bool          `json:"EnsureDstDir"`
	Vertex       []shdc.Variant `json:"Vertex"`
	Fragment     []shdc.Variant `json:"Fragment"`
}

func Default() *Config {
	p := shdc.DefaultPaths()
	t := shdc.DefaultTable()
	return &Config{
		Compiler: p.Compiler,
		SrcDir:   p.SrcDir,
		DstDir:   p.DstDir,
		Lang:     p.Lang,
		Prefix:   p.Prefix,
		Suffix:   p.Suffix,
		Vertex:   t.Vertex,
		Fragment: t.Fragment,
	}
}

func (c *Config) Paths() shdc.Paths {
	return shdc.Paths{
		Compiler: c.Compiler,
		SrcDir:   c.SrcDir,
		DstDir:   c.DstDir,
		Lang:     c.Lang,
		Prefix:   c.Prefix,
		Suffix:   c.Suffix,
	}
}

func (c *Config) Table() shdc.Table {
	return shdc.Table{Vertex: c.Vertex, Fragment: c.Fragment}.Clone()
}
