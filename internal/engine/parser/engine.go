package parser

import (
	sitter "github.com/tree-sitter/go-tree-sitter"
)

// extractionContext carries the shared state and node helpers used by the
// module and client extractors.
type extractionContext struct {
	source []byte
	path   string
}

func (c *extractionContext) Text(node *sitter.Node) string {
	if node == nil {
		return ""
	}
	return string(c.source[node.StartByte():node.EndByte()])
}

func (c *extractionContext) Location(node *sitter.Node) Location {
	return Location{
		File:   c.path,
		Line:   int(node.StartPosition().Row) + 1,
		Column: int(node.StartPosition().Column) + 1,
	}
}

func (c *extractionContext) ChildOfKind(node *sitter.Node, kind string) *sitter.Node {
	if node == nil {
		return nil
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child.Kind() == kind {
			return child
		}
	}
	return nil
}

func (c *extractionContext) ChildText(node *sitter.Node, kind string) string {
	return c.Text(c.ChildOfKind(node, kind))
}

func (c *extractionContext) HasChildOfKind(node *sitter.Node, kind string) bool {
	return c.ChildOfKind(node, kind) != nil
}
