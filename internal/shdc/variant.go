package shdc

import (
	"fmt"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
)

// Stage is the file-extension marker of a shader pipeline stage.
type Stage string

const (
	StageVertex   Stage = ".vert"
	StageFragment Stage = ".frag"
)

func (s Stage) Valid() bool {
	return s == StageVertex || s == StageFragment
}

func (s Stage) String() string { return string(s) }

// Variant is one shader file to compile.
type Variant struct {
	Source string   `json:"Source"`
	Output string   `json:"Output,omitempty"` // empty = Source
	Extra  []string `json:"Extra,omitempty"`
}

func (v Variant) OutputName() string {
	if v.Output == "" {
		return v.Source
	}
	return v.Output
}

// Paths holds the directory and naming conventions shared by every
// invocation. Directories are plain prefixes and must carry their own
// trailing separator.
type Paths struct {
	Compiler string
	SrcDir   string
	DstDir   string
	Lang     string // source-language suffix
	Prefix   string // output filename prefix
	Suffix   string // output filename suffix
}

func DefaultPaths() Paths {
	return Paths{
		Compiler: "tmp/shdc",
		SrcDir:   "tmp/shd/",
		DstDir:   "bin/",
		Lang:     "",
		Prefix:   "",
		Suffix:   ".bin",
	}
}

func (p Paths) Input(v Variant, s Stage) string {
	return p.SrcDir + v.Source + string(s) + p.Lang
}

func (p Paths) Output(v Variant, s Stage) string {
	return p.DstDir + p.Prefix + v.OutputName() + string(s) + p.Suffix
}

// Args returns the compiler arguments for v, excluding the compiler itself.
func (p Paths) Args(v Variant, s Stage) []string {
	args := make([]string, 0, 4+len(v.Extra))
	args = append(args, "-V", p.Input(v, s), "-o", p.Output(v, s))
	return append(args, v.Extra...)
}

// Table lists the variants of each stage in build order.
type Table struct {
	Vertex   []Variant `json:"Vertex"`
	Fragment []Variant `json:"Fragment"`
}

func DefaultTable() Table {
	const joints = "-DJOINT_N=64"
	vert := []Variant{{Source: "Model", Extra: []string{"-DINSTANCE_N=1", joints}}}
	for _, n := range []int{2, 4, 8, 16, 32} {
		vert = append(vert, Variant{
			Source: "Model",
			Output: fmt.Sprintf("Model%d", n),
			Extra:  []string{fmt.Sprintf("-DINSTANCE_N=%d", n), joints},
		})
	}
	return Table{
		Vertex:   vert,
		Fragment: []Variant{{Source: "Model"}},
	}
}

func (t Table) Len() int { return len(t.Vertex) + len(t.Fragment) }

// Filter keeps the variants whose "<output name><stage>" matches the
// doublestar pattern, e.g. "{Model,Model2}.vert". Order is preserved.
func (t Table) Filter(pattern string) (Table, error) {
	if !doublestar.ValidatePattern(pattern) {
		return Table{}, fmt.Errorf("shdc: invalid filter pattern %q", pattern)
	}
	keep := func(vs []Variant, s Stage) []Variant {
		var out []Variant
		for _, v := range vs {
			if ok, _ := doublestar.Match(pattern, v.OutputName()+string(s)); ok {
				out = append(out, v)
			}
		}
		return out
	}
	return Table{
		Vertex:   keep(t.Vertex, StageVertex),
		Fragment: keep(t.Fragment, StageFragment),
	}, nil
}

// Clone returns a deep copy so callers can't mutate a shared table.
func (t Table) Clone() Table {
	cp := func(vs []Variant) []Variant {
		if vs == nil {
			return nil
		}
		out := make([]Variant, len(vs))
		for i, v := range vs {
			v.Extra = slices.Clone(v.Extra)
			out[i] = v
		}
		return out
	}
	return Table{Vertex: cp(t.Vertex), Fragment: cp(t.Fragment)}
}
