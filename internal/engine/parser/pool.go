package parser

import (
	"sync"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// Pool recycles tree-sitter parser instances to avoid the per-file cost of
// sitter.NewParser() / parser.Close(). Each pool is tied to one grammar.
//
// Safe for concurrent use; the static extractor parses one file per worker
// goroutine against a shared pool.
type Pool struct {
	lang *sitter.Language
	pool sync.Pool
}

func NewPool(lang *sitter.Language) *Pool {
	p := &Pool{lang: lang}
	p.pool = sync.Pool{
		New: func() any {
			sp := sitter.NewParser()
			sp.SetLanguage(lang)
			return sp
		},
	}
	return p
}

func (p *Pool) Get() *sitter.Parser {
	sp := p.pool.Get().(*sitter.Parser)
	// The language survives Reset, but guard against external SetLanguage.
	sp.SetLanguage(p.lang)
	return sp
}

// Put resets the parser so no references to previous parse trees are
// retained. Callers must not use sp after Put.
func (p *Pool) Put(sp *sitter.Parser) {
	if sp == nil {
		return
	}
	sp.Reset()
	p.pool.Put(sp)
}
