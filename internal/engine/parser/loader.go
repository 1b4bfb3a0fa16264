package parser

import (
	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
)

// Python is the only grammar this engine carries. Non-Python source is out
// of scope and is filtered out before parsing.
var pythonLanguage = sitter.NewLanguage(tree_sitter_python.Language())

func PythonLanguage() *sitter.Language {
	return pythonLanguage
}
