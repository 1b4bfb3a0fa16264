package parser

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/Asdf0717/Py4A/internal/engine/api"
)

// moduleExtractor builds the raw static API view of one Python module.
//
// Definitions are collected in top-to-bottom, outer-to-inner order, including
// those nested in if/try/with blocks; the static extractor applies
// last-write-wins per qualified name, which models override and monkey-patch
// patterns without control-flow evaluation.
type moduleExtractor struct {
	extractionContext
	result    *ModuleResult
	isPackage bool
}

func (e *moduleExtractor) walkModule(root *sitter.Node) {
	e.walkBody(root, "")
}

// walkBody visits the statements of a module-level scope. It descends into
// branching and exception-handling blocks but never into function bodies.
func (e *moduleExtractor) walkBody(node *sitter.Node, classPath string) {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		switch child.Kind() {
		case "function_definition":
			e.extractFunction(child, classPath, nil)
		case "class_definition":
			e.extractClass(child, classPath, nil)
		case "decorated_definition":
			e.extractDecorated(child, classPath)
		case "import_statement":
			e.extractImport(child)
		case "import_from_statement":
			e.extractFromImport(child)
		case "expression_statement":
			for j := uint(0); j < child.ChildCount(); j++ {
				if sub := child.Child(j); sub.Kind() == "assignment" {
					e.extractAssignment(sub, classPath)
				}
			}
		case "if_statement", "try_statement", "with_statement",
			"for_statement", "while_statement", "block",
			"else_clause", "elif_clause", "except_clause", "finally_clause":
			e.walkBody(child, classPath)
		}
	}
}

func (e *moduleExtractor) extractDecorated(node *sitter.Node, classPath string) {
	var decorators []string
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child.Kind() == "decorator" {
			decorators = append(decorators, strings.TrimPrefix(e.Text(child), "@"))
		}
	}
	def := node.ChildByFieldName("definition")
	if def == nil {
		return
	}
	switch def.Kind() {
	case "function_definition":
		e.extractFunction(def, classPath, decorators)
	case "class_definition":
		e.extractClass(def, classPath, decorators)
	}
}

func (e *moduleExtractor) extractFunction(node *sitter.Node, classPath string, decorators []string) {
	name := e.Text(node.ChildByFieldName("name"))
	if name == "" {
		return
	}
	// Dunder members other than the constructor are implementation surface.
	if strings.HasPrefix(name, "__") && name != "__init__" {
		return
	}

	kind := api.KindFunction
	if classPath != "" {
		kind = api.KindMethod
		for _, d := range decorators {
			if d == "property" || strings.HasSuffix(d, ".setter") || strings.HasSuffix(d, ".getter") {
				kind = api.KindProperty
			}
		}
	}

	entity := api.Entity{
		QualifiedName: e.qualify(classPath, name),
		Kind:          kind,
		Signature:     e.extractParameters(node.ChildByFieldName("parameters")),
		ReturnsHint:   e.Text(node.ChildByFieldName("return_type")),
		SourceOrigin:  api.OriginStatic,
	}
	if kind == api.KindProperty {
		entity.Signature = nil
	}
	entity.DocSignatureText = e.renderDoc(node, entity, decorators)
	e.result.Entities = append(e.result.Entities, entity)

	if classPath != "" && name == "__init__" {
		e.extractInstanceFields(node.ChildByFieldName("body"), classPath)
	}
}

func (e *moduleExtractor) renderDoc(node *sitter.Node, entity api.Entity, decorators []string) string {
	doc := entity.Render()
	if e.HasChildOfKind(node, "async") {
		doc = "async " + doc
	}
	for i := len(decorators) - 1; i >= 0; i-- {
		doc = "@" + decorators[i] + " " + doc
	}
	return doc
}

func (e *moduleExtractor) extractParameters(params *sitter.Node) []api.Parameter {
	if params == nil {
		return nil
	}
	var out []api.Parameter
	keywordOnly := false
	pos := 0

	addParam := func(p api.Parameter) {
		p.Position = pos
		pos++
		out = append(out, p)
	}

	for i := uint(0); i < params.ChildCount(); i++ {
		child := params.Child(i)
		switch child.Kind() {
		case "identifier":
			addParam(api.Parameter{Name: e.Text(child), IsKeywordOnly: keywordOnly})

		case "typed_parameter":
			p := api.Parameter{IsKeywordOnly: keywordOnly, TypeHint: e.Text(child.ChildByFieldName("type"))}
			if id := e.ChildOfKind(child, "identifier"); id != nil {
				p.Name = e.Text(id)
			}
			if splat := e.ChildOfKind(child, "list_splat_pattern"); splat != nil {
				p.Name = e.ChildText(splat, "identifier")
				p.IsVariadic = true
				keywordOnly = true
			}
			if splat := e.ChildOfKind(child, "dictionary_splat_pattern"); splat != nil {
				p.Name = e.ChildText(splat, "identifier")
				p.IsVariadic = true
				p.IsKeywordOnly = true
			}
			addParam(p)

		case "default_parameter", "typed_default_parameter":
			addParam(api.Parameter{
				Name:             e.Text(child.ChildByFieldName("name")),
				HasDefault:       true,
				DefaultValueRepr: e.Text(child.ChildByFieldName("value")),
				IsKeywordOnly:    keywordOnly,
				TypeHint:         e.Text(child.ChildByFieldName("type")),
			})

		case "list_splat_pattern":
			addParam(api.Parameter{Name: e.ChildText(child, "identifier"), IsVariadic: true})
			keywordOnly = true

		case "dictionary_splat_pattern":
			addParam(api.Parameter{
				Name:          e.ChildText(child, "identifier"),
				IsVariadic:    true,
				IsKeywordOnly: true,
			})

		case "keyword_separator": // bare *
			keywordOnly = true

		case "positional_separator": // bare /
			for j := range out {
				if !out[j].IsVariadic {
					out[j].IsPositionalOnly = true
				}
			}
		}
	}
	return out
}

func (e *moduleExtractor) extractClass(node *sitter.Node, classPath string, decorators []string) {
	name := e.Text(node.ChildByFieldName("name"))
	if name == "" {
		return
	}

	path := name
	if classPath != "" {
		path = classPath + "." + name
	}

	classEntity := api.Entity{
		QualifiedName: e.qualify(classPath, name),
		Kind:          api.KindClass,
		SourceOrigin:  api.OriginStatic,
	}

	bases := ""
	if sup := node.ChildByFieldName("superclasses"); sup != nil {
		bases = strings.Trim(e.Text(sup), "()")
	}
	classEntity.DocSignatureText = "class " + name + "(" + bases + ")"

	body := node.ChildByFieldName("body")
	if body != nil {
		e.walkBody(body, path)
	}

	// The constructor's parameters (minus self) define the class call shape.
	ctorName := e.qualify(classPath, name) + ".__init__"
	for _, ent := range e.result.Entities {
		if ent.QualifiedName == ctorName {
			sig := ent.Signature
			if len(sig) > 0 && sig[0].Name == "self" {
				sig = reposition(sig[1:])
			}
			classEntity.Signature = sig
			break
		}
	}

	e.result.Entities = append(e.result.Entities, classEntity)
}

func reposition(params []api.Parameter) []api.Parameter {
	out := make([]api.Parameter, len(params))
	for i, p := range params {
		p.Position = i
		out[i] = p
	}
	return out
}

// extractInstanceFields records "self.x = ..." targets in a constructor body.
func (e *moduleExtractor) extractInstanceFields(body *sitter.Node, classPath string) {
	if body == nil {
		return
	}
	var visit func(node *sitter.Node)
	visit = func(node *sitter.Node) {
		if node.Kind() == "assignment" {
			if left := node.ChildByFieldName("left"); left != nil && left.Kind() == "attribute" {
				obj := left.ChildByFieldName("object")
				attr := left.ChildByFieldName("attribute")
				if obj != nil && attr != nil && e.Text(obj) == "self" {
					fieldName := e.Text(attr)
					if !strings.HasPrefix(fieldName, "__") {
						e.result.Entities = append(e.result.Entities, api.Entity{
							QualifiedName:    e.qualify(classPath, fieldName),
							Kind:             api.KindAttribute,
							SourceOrigin:     api.OriginStatic,
							DocSignatureText: fieldName + " = " + e.Text(node.ChildByFieldName("right")),
						})
					}
				}
			}
		}
		for i := uint(0); i < node.ChildCount(); i++ {
			visit(node.Child(i))
		}
	}
	visit(body)
}

func (e *moduleExtractor) extractAssignment(node *sitter.Node, classPath string) {
	left := node.ChildByFieldName("left")
	right := node.ChildByFieldName("right")
	if left == nil || right == nil {
		return
	}
	typeHint := e.Text(node.ChildByFieldName("type"))

	switch left.Kind() {
	case "identifier":
		name := e.Text(left)
		if classPath == "" && name == "__all__" {
			e.extractExportList(right)
			return
		}
		e.putAttribute(classPath, name, typeHint, e.Text(right))

	case "pattern_list", "tuple_pattern":
		for i := uint(0); i < left.ChildCount(); i++ {
			if id := left.Child(i); id.Kind() == "identifier" {
				e.putAttribute(classPath, e.Text(id), "", e.Text(right))
			}
		}
	}
}

func (e *moduleExtractor) putAttribute(classPath, name, typeHint, valueRepr string) {
	if strings.HasPrefix(name, "__") {
		return
	}
	doc := name + " = " + valueRepr
	if typeHint != "" {
		doc = name + ": " + typeHint + " = " + valueRepr
	}
	e.result.Entities = append(e.result.Entities, api.Entity{
		QualifiedName:    e.qualify(classPath, name),
		Kind:             api.KindAttribute,
		ReturnsHint:      typeHint,
		SourceOrigin:     api.OriginStatic,
		DocSignatureText: doc,
	})
}

func (e *moduleExtractor) extractExportList(right *sitter.Node) {
	if right.Kind() != "list" && right.Kind() != "tuple" {
		return
	}
	e.result.HasExportList = true
	e.result.ExportList = e.result.ExportList[:0]
	for i := uint(0); i < right.ChildCount(); i++ {
		child := right.Child(i)
		if child.Kind() != "string" {
			continue
		}
		if content := e.ChildOfKind(child, "string_content"); content != nil {
			e.result.ExportList = append(e.result.ExportList, e.Text(content))
		}
	}
}

func (e *moduleExtractor) extractImport(node *sitter.Node) {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		switch child.Kind() {
		case "dotted_name":
			module := e.Text(child)
			e.result.Aliases = append(e.result.Aliases, AliasBinding{Name: module, Target: module})
		case "aliased_import":
			module := e.ChildText(child, "dotted_name")
			alias := e.Text(child.ChildByFieldName("alias"))
			if module != "" && alias != "" {
				e.result.Aliases = append(e.result.Aliases, AliasBinding{Name: alias, Target: module})
			}
		}
	}
}

func (e *moduleExtractor) extractFromImport(node *sitter.Node) {
	var base string
	sawImport := false
	resolved := true

	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		switch child.Kind() {
		case "import":
			sawImport = true

		case "relative_import":
			prefix := e.ChildText(child, "import_prefix")
			sub := e.ChildText(child, "dotted_name")
			base = e.relativeBase(len(prefix))
			if base == "" {
				resolved = false
			}
			if sub != "" && base != "" {
				base = base + "." + sub
			}

		case "dotted_name":
			if !sawImport {
				base = e.Text(child)
			} else if resolved {
				name := e.Text(child)
				e.result.Aliases = append(e.result.Aliases, AliasBinding{Name: name, Target: base + "." + name})
			}

		case "aliased_import":
			if resolved {
				name := e.ChildText(child, "dotted_name")
				alias := e.Text(child.ChildByFieldName("alias"))
				if name != "" && alias != "" {
					e.result.Aliases = append(e.result.Aliases, AliasBinding{Name: alias, Target: base + "." + name})
				}
			}

		case "wildcard_import":
			if resolved && base != "" {
				e.result.StarImports = append(e.result.StarImports, base)
			}
		}
	}
}

// relativeBase resolves a relative import level against this module's
// position in the package tree. Level 1 is the containing package.
func (e *moduleExtractor) relativeBase(level int) string {
	parts := strings.Split(e.result.Module, ".")
	if !e.isPackage {
		parts = parts[:len(parts)-1]
	}
	drop := level - 1
	if drop < 0 || drop >= len(parts) {
		return ""
	}
	parts = parts[:len(parts)-drop]
	return strings.Join(parts, ".")
}

func (e *moduleExtractor) qualify(classPath, name string) string {
	qname := e.result.Module
	if classPath != "" {
		qname += "." + classPath
	}
	return qname + "." + name
}
