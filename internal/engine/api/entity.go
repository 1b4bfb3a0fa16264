package api

import (
	"fmt"
	"strings"
)

// Kind classifies an API entity within a package summary.
type Kind string

const (
	KindModule    Kind = "module"
	KindClass     Kind = "class"
	KindFunction  Kind = "function"
	KindMethod    Kind = "method"
	KindProperty  Kind = "property"
	KindAttribute Kind = "attribute"
	// KindUnknown marks entities that raised during runtime introspection.
	KindUnknown Kind = "unknown"
)

type Visibility string

const (
	Public  Visibility = "public"
	Private Visibility = "private"
)

// Origin records which extraction pass produced an entity.
type Origin string

const (
	OriginStatic  Origin = "static"
	OriginDynamic Origin = "dynamic"
	OriginBoth    Origin = "both"
)

// Parameter is one formal parameter of a callable entity.
// A bare *args parameter has IsVariadic set; a **kwargs parameter has both
// IsVariadic and IsKeywordOnly set.
type Parameter struct {
	Name             string `json:"name"`
	Position         int    `json:"position"`
	HasDefault       bool   `json:"hasDefault"`
	DefaultValueRepr string `json:"defaultValueRepr,omitempty"`
	IsVariadic       bool   `json:"isVariadic,omitempty"`
	IsKeywordOnly    bool   `json:"isKeywordOnly,omitempty"`
	IsPositionalOnly bool   `json:"isPositionalOnly,omitempty"`
	TypeHint         string `json:"typeHint,omitempty"`
}

// Entity is the canonical representation of one API surface member.
type Entity struct {
	QualifiedName    string      `json:"qualifiedName"`
	Kind             Kind        `json:"kind"`
	Signature        []Parameter `json:"signature,omitempty"`
	ReturnsHint      string      `json:"returnsHint,omitempty"`
	Visibility       Visibility  `json:"visibility"`
	SourceOrigin     Origin      `json:"sourceOrigin"`
	DocSignatureText string      `json:"docSignatureText,omitempty"`
	// Conflict is set by the merger when static and dynamic views disagree.
	Conflict bool `json:"conflict,omitempty"`
	// ExtractionFailed marks entities that raised during introspection.
	ExtractionFailed bool `json:"extractionFailed,omitempty"`
}

// Callable reports whether call sites against this entity make sense.
func (e Entity) Callable() bool {
	switch e.Kind {
	case KindFunction, KindMethod, KindClass:
		return true
	}
	return false
}

// CompareKey builds the structural identity of an entity. DocSignatureText
// and SourceOrigin are deliberately excluded so that static and dynamic views
// of the same true entity compare equal for merge purposes.
func (e Entity) CompareKey() string {
	var b strings.Builder
	b.WriteString(e.QualifiedName)
	b.WriteByte('|')
	b.WriteString(string(e.Kind))
	b.WriteByte('|')
	b.WriteString(e.ReturnsHint)
	for _, p := range e.Signature {
		fmt.Fprintf(&b, "|%s,%d,%t,%s,%t,%t,%t",
			p.Name, p.Position, p.HasDefault, p.DefaultValueRepr,
			p.IsVariadic, p.IsKeywordOnly, p.IsPositionalOnly)
	}
	return b.String()
}

// StructuralEqual compares two entities ignoring presentation fields.
func StructuralEqual(a, b Entity) bool {
	return a.CompareKey() == b.CompareKey()
}

// Render produces a human-readable signature line, e.g.
// "def f(a, /, b, *args, c=1, **kwargs) -> int".
func (e Entity) Render() string {
	switch e.Kind {
	case KindFunction, KindMethod:
		return "def " + shortName(e.QualifiedName) + renderParams(e.Signature) + renderReturns(e.ReturnsHint)
	case KindClass:
		return "class " + shortName(e.QualifiedName) + renderParams(e.Signature)
	case KindProperty:
		return shortName(e.QualifiedName) + renderReturns(e.ReturnsHint)
	default:
		return shortName(e.QualifiedName)
	}
}

func shortName(qualified string) string {
	if i := strings.LastIndex(qualified, "."); i >= 0 {
		return qualified[i+1:]
	}
	return qualified
}

func renderReturns(hint string) string {
	if hint == "" {
		return ""
	}
	return " -> " + hint
}

func renderParams(params []Parameter) string {
	items := make([]string, 0, len(params)+2)
	sawStar := false
	for i, p := range params {
		if i >= 1 && params[i-1].IsPositionalOnly && !p.IsPositionalOnly {
			items = append(items, "/")
		}
		if p.IsKeywordOnly && !p.IsVariadic && !sawStar {
			items = append(items, "*")
			sawStar = true
		}
		base := p.Name
		if p.TypeHint != "" {
			base += ": " + p.TypeHint
		}
		if p.IsVariadic {
			if p.IsKeywordOnly {
				base = "**" + base
			} else {
				base = "*" + base
				sawStar = true
			}
		}
		if p.HasDefault {
			base += "=" + p.DefaultValueRepr
		}
		items = append(items, base)
	}
	if len(params) > 0 && params[len(params)-1].IsPositionalOnly {
		items = append(items, "/")
	}
	return "(" + strings.Join(items, ", ") + ")"
}

// IsPublicName applies the implementation-private naming convention to every
// dotted segment of a qualified name.
func IsPublicName(qualified string) bool {
	for _, seg := range strings.Split(qualified, ".") {
		if strings.HasPrefix(seg, "_") && !isDunder(seg) {
			return false
		}
	}
	return true
}

func isDunder(name string) bool {
	return strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__")
}
