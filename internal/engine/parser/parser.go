package parser

import (
	"github.com/Asdf0717/Py4A/internal/core/errors"
)

// Parser turns Python source into module API views or client reference
// views. It owns a parser pool; tree lifetimes never escape this package.
type Parser struct {
	pool *Pool
}

func New() *Parser {
	return &Parser{pool: NewPool(PythonLanguage())}
}

// ParseModule extracts the API surface of one module. The module's qualified
// name and whether the file is a package __init__ must be resolved by the
// caller from the tree layout.
func (p *Parser) ParseModule(path string, content []byte, module string, isPackage bool) (*ModuleResult, error) {
	sp := p.pool.Get()
	defer p.pool.Put(sp)

	tree := sp.Parse(content, nil)
	if tree == nil {
		return nil, errors.New(errors.CodeParseError, "parse returned no tree")
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, errors.New(errors.CodeParseError, "syntax error")
	}

	e := &moduleExtractor{
		extractionContext: extractionContext{source: content, path: path},
		result: &ModuleResult{
			Module: module,
			Path:   path,
		},
		isPackage: isPackage,
	}
	e.walkModule(root)
	return e.result, nil
}

// ParseClient extracts import bindings and references from one client file.
func (p *Parser) ParseClient(path string, content []byte) (*ClientFile, error) {
	sp := p.pool.Get()
	defer p.pool.Put(sp)

	tree := sp.Parse(content, nil)
	if tree == nil {
		return nil, errors.New(errors.CodeParseError, "parse returned no tree")
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, errors.New(errors.CodeParseError, "syntax error")
	}

	e := &clientExtractor{
		extractionContext: extractionContext{source: content, path: path},
		file:              &ClientFile{Path: path},
	}
	e.walk(root)
	e.file.Refs = dedupeRefs(e.file.Refs)
	return e.file, nil
}
