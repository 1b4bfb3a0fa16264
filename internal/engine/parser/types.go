package parser

import (
	"github.com/Asdf0717/Py4A/internal/engine/api"
)

type Location struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// ModuleResult is the raw static view of one parsed module, before alias
// resolution and visibility filtering by the static extractor.
type ModuleResult struct {
	Module   string // qualified module name, e.g. "pkg.sub.mod"
	Path     string
	Entities []api.Entity
	// Aliases are import bindings local to this module: name -> full dotted
	// target ("from pkg.sub import f as g" yields g -> pkg.sub.f).
	Aliases []AliasBinding
	// StarImports holds the full dotted targets of "from X import *".
	StarImports []string
	// ExportList is the module's declared __all__, when present.
	ExportList    []string
	HasExportList bool
}

type AliasBinding struct {
	Name   string
	Target string
}

// ClientFile is the extracted view of one client source file: its import
// bindings plus every dotted reference that could point into a package.
type ClientFile struct {
	Path        string
	Bindings    []ClientBinding
	StarImports []string
	Refs        []Ref
}

// ClientBinding maps a local name to the dotted path it was imported as.
// Hops counts "as" renames so the matcher can report aliasResolved.
type ClientBinding struct {
	Name   string
	Target string
	Hops   int
}

// Ref is one attribute access, call expression, or import-bound name use.
type Ref struct {
	Chain    string // dotted access chain, e.g. "pd.DataFrame.head"
	Location Location
	Call     *CallInfo // nil when the reference is not a call
}

// CallInfo captures the shape of a call site for arity checking.
type CallInfo struct {
	Positional  int
	Keywords    []string
	HasStarArgs bool
	HasKwArgs   bool
}

// Arity is the number of resolved positional and keyword arguments.
func (c *CallInfo) Arity() int {
	if c == nil {
		return 0
	}
	return c.Positional + len(c.Keywords)
}
