package parser

import (
	sitter "github.com/tree-sitter/go-tree-sitter"
)

// clientExtractor collects the import bindings and dotted reference chains of
// one client source file. Chains that cannot be reduced to plain
// identifier/attribute paths (subscripts, calls-of-calls) are cut at the
// last resolvable segment; fully dynamic expressions are dropped.
type clientExtractor struct {
	extractionContext
	file *ClientFile
}

func (e *clientExtractor) walk(node *sitter.Node) {
	switch node.Kind() {
	case "import_statement":
		e.extractImport(node)
	case "import_from_statement":
		e.extractFromImport(node)
	case "call":
		e.extractCall(node)
	case "attribute":
		if chain, ok := e.dottedChain(node); ok {
			e.file.Refs = append(e.file.Refs, Ref{Chain: chain, Location: e.Location(node)})
		}
	}

	for i := uint(0); i < node.ChildCount(); i++ {
		e.walk(node.Child(i))
	}
}

func (e *clientExtractor) extractImport(node *sitter.Node) {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		switch child.Kind() {
		case "dotted_name":
			module := e.Text(child)
			e.file.Bindings = append(e.file.Bindings, ClientBinding{Name: module, Target: module})
		case "aliased_import":
			module := e.ChildText(child, "dotted_name")
			alias := e.Text(child.ChildByFieldName("alias"))
			if module != "" && alias != "" {
				e.file.Bindings = append(e.file.Bindings, ClientBinding{Name: alias, Target: module, Hops: 1})
			}
		}
	}
}

func (e *clientExtractor) extractFromImport(node *sitter.Node) {
	var module string
	sawImport := false

	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		switch child.Kind() {
		case "import":
			sawImport = true
		case "relative_import":
			// References into the client's own modules, not the package.
			return
		case "dotted_name":
			if !sawImport {
				module = e.Text(child)
			} else {
				name := e.Text(child)
				e.file.Bindings = append(e.file.Bindings, ClientBinding{Name: name, Target: module + "." + name})
			}
		case "aliased_import":
			name := e.ChildText(child, "dotted_name")
			alias := e.Text(child.ChildByFieldName("alias"))
			if name != "" && alias != "" {
				e.file.Bindings = append(e.file.Bindings, ClientBinding{Name: alias, Target: module + "." + name, Hops: 1})
			}
		case "wildcard_import":
			if module != "" {
				e.file.StarImports = append(e.file.StarImports, module)
			}
		}
	}
}

func (e *clientExtractor) extractCall(node *sitter.Node) {
	fn := node.ChildByFieldName("function")
	if fn == nil {
		return
	}
	chain, ok := e.dottedChain(fn)
	if !ok {
		return
	}

	call := &CallInfo{}
	if args := node.ChildByFieldName("arguments"); args != nil {
		for i := uint(0); i < args.ChildCount(); i++ {
			child := args.Child(i)
			switch child.Kind() {
			case "keyword_argument":
				call.Keywords = append(call.Keywords, e.Text(child.ChildByFieldName("name")))
			case "list_splat":
				call.HasStarArgs = true
			case "dictionary_splat":
				call.HasKwArgs = true
			case "(", ")", ",", "comment":
				// punctuation
			default:
				call.Positional++
			}
		}
	}

	e.file.Refs = append(e.file.Refs, Ref{
		Chain:    chain,
		Location: e.Location(fn),
		Call:     call,
	})
}

// dedupeRefs collapses the duplicate that arises when a call's function
// expression is also visited as a plain attribute node: the call-shaped ref
// wins for the same chain and location.
func dedupeRefs(refs []Ref) []Ref {
	type key struct {
		chain string
		loc   Location
	}
	index := make(map[key]int, len(refs))
	out := make([]Ref, 0, len(refs))
	for _, r := range refs {
		k := key{chain: r.Chain, loc: r.Location}
		if i, seen := index[k]; seen {
			if out[i].Call == nil && r.Call != nil {
				out[i] = r
			}
			continue
		}
		index[k] = len(out)
		out = append(out, r)
	}
	return out
}

// dottedChain reduces an expression to a dotted identifier path when it is
// built purely from identifiers and attribute accesses.
func (e *clientExtractor) dottedChain(node *sitter.Node) (string, bool) {
	switch node.Kind() {
	case "identifier":
		return e.Text(node), true
	case "attribute":
		obj := node.ChildByFieldName("object")
		attr := node.ChildByFieldName("attribute")
		if obj == nil || attr == nil {
			return "", false
		}
		prefix, ok := e.dottedChain(obj)
		if !ok {
			return "", false
		}
		return prefix + "." + e.Text(attr), true
	}
	return "", false
}
