package usage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Asdf0717/Py4A/internal/engine/api"
	"github.com/Asdf0717/Py4A/internal/engine/parser"
	"github.com/Asdf0717/Py4A/internal/engine/static"
)

func pkgSummary(name string, entities ...api.Entity) *api.Summary {
	s := api.NewSummary(name, "1.0.0")
	for _, e := range entities {
		s.Put(e)
	}
	return s
}

func publicFn(qname string, params ...api.Parameter) api.Entity {
	return api.Entity{
		QualifiedName: qname,
		Kind:          api.KindFunction,
		Signature:     params,
		Visibility:    api.Public,
	}
}

func TestMatchFileDirectImport(t *testing.T) {
	summary := pkgSummary("pkg", publicFn("pkg.read", api.Parameter{Name: "path"}))
	m := NewMatcher(summary)

	records, err := m.MatchFile("client.py", []byte(`
from pkg import read

read("data.csv")
`))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "pkg.read", records[0].QualifiedName)
	assert.Equal(t, Exact, records[0].ResolutionConfidence)
	assert.Equal(t, 1, records[0].CallArity)
	assert.Empty(t, records[0].CallIssue)
	assert.Equal(t, 4, records[0].ClientLocation.Line)
}

func TestMatchFileAliasResolved(t *testing.T) {
	summary := pkgSummary("pkg", publicFn("pkg.read", api.Parameter{Name: "path"}))
	m := NewMatcher(summary)

	records, err := m.MatchFile("client.py", []byte(`
import pkg as p
from pkg import read as load

p.read("a")
load("b")
`))
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.Equal(t, "pkg.read", rec.QualifiedName)
		assert.Equal(t, AliasResolved, rec.ResolutionConfidence)
	}
}

func TestMatchFileStarImportAmbiguous(t *testing.T) {
	a := pkgSummary("pkga", publicFn("pkga.f"))
	b := pkgSummary("pkgb", publicFn("pkgb.f"))
	m := NewMatcher(a, b)

	records, err := m.MatchFile("client.py", []byte(`
from pkga import *
from pkgb import *

f()
`))
	require.NoError(t, err)
	require.Len(t, records, 2)
	names := map[string]bool{}
	for _, rec := range records {
		assert.Equal(t, Ambiguous, rec.ResolutionConfidence)
		names[rec.QualifiedName] = true
	}
	assert.True(t, names["pkga.f"])
	assert.True(t, names["pkgb.f"])
}

func TestMatchFileRepeatedImportStaysExact(t *testing.T) {
	summary := pkgSummary("pkg", publicFn("pkg.read", api.Parameter{Name: "path"}))
	m := NewMatcher(summary)

	records, err := m.MatchFile("client.py", []byte(`
import pkg

def lazy():
    import pkg
    return pkg.read("x")
`))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "pkg.read", records[0].QualifiedName)
	assert.Equal(t, Exact, records[0].ResolutionConfidence)
}

func TestMatchFileRepeatedStarImportStaysExact(t *testing.T) {
	m := NewMatcher(pkgSummary("pkg", publicFn("pkg.f")))

	records, err := m.MatchFile("client.py", []byte("from pkg import *\nfrom pkg import *\n\nf()\n"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "pkg.f", records[0].QualifiedName)
	assert.Equal(t, Exact, records[0].ResolutionConfidence)
}

func TestMatchFileAliasAndDirectImportStaysSingle(t *testing.T) {
	summary := pkgSummary("pkg", publicFn("pkg.read", api.Parameter{Name: "path"}))
	m := NewMatcher(summary)

	// Both bindings reach the same entity; the plain import's confidence wins.
	records, err := m.MatchFile("client.py", []byte(`
from pkg import read
from pkg import read as read

read("x")
`))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, Exact, records[0].ResolutionConfidence)
}

func TestMatchFileStarImportSingleCandidate(t *testing.T) {
	m := NewMatcher(pkgSummary("pkg", publicFn("pkg.f")))

	records, err := m.MatchFile("client.py", []byte("from pkg import *\n\nf()\n"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "pkg.f", records[0].QualifiedName)
	assert.Equal(t, Exact, records[0].ResolutionConfidence)
}

func TestMatchFileStarImportSkipsPrivate(t *testing.T) {
	hidden := publicFn("pkg._secret")
	hidden.Visibility = api.Private
	m := NewMatcher(pkgSummary("pkg", hidden))

	records, err := m.MatchFile("client.py", []byte("from pkg import *\n\n_secret()\n"))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestMatchFileUnresolvableDropped(t *testing.T) {
	m := NewMatcher(pkgSummary("pkg", publicFn("pkg.read")))

	records, err := m.MatchFile("client.py", []byte(`
import other

other.do_thing()
local_helper()
`))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestMatchFileCallIssueRecorded(t *testing.T) {
	summary := pkgSummary("pkg", publicFn("pkg.read", api.Parameter{Name: "path"}))
	m := NewMatcher(summary)

	records, err := m.MatchFile("client.py", []byte("from pkg import read\n\nread()\n"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Contains(t, records[0].CallIssue, "path")
}

func TestMatchFileMethodChain(t *testing.T) {
	summary := pkgSummary("pkg",
		api.Entity{QualifiedName: "pkg.Frame", Kind: api.KindClass, Visibility: api.Public},
		api.Entity{
			QualifiedName: "pkg.Frame.head",
			Kind:          api.KindMethod,
			Visibility:    api.Public,
			Signature: []api.Parameter{
				{Name: "self"},
				{Name: "n", Position: 1, HasDefault: true, DefaultValueRepr: "5"},
			},
		},
	)
	m := NewMatcher(summary)

	records, err := m.MatchFile("client.py", []byte("import pkg\n\npkg.Frame.head\n"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "pkg.Frame.head", records[0].QualifiedName)
	assert.Equal(t, 0, records[0].CallArity)
}

func TestMatchTree(t *testing.T) {
	m := NewMatcher(pkgSummary("pkg", publicFn("pkg.read", api.Parameter{Name: "path"})))
	tree := static.MapTree{
		"good.py":  "from pkg import read\n\nread(\"x\")\n",
		"bad.py":   "def broken(:\n",
		"notes.md": "not python",
	}

	records, diags, err := m.MatchTree(tree)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Len(t, diags, 1)
	assert.Equal(t, "bad.py", diags[0].Path)
}

func call(positional int, keywords ...string) *parser.CallInfo {
	return &parser.CallInfo{Positional: positional, Keywords: keywords}
}

func TestCheckCall(t *testing.T) {
	read := publicFn("pkg.read",
		api.Parameter{Name: "path", Position: 0},
		api.Parameter{Name: "mode", Position: 1, HasDefault: true, DefaultValueRepr: "'r'"},
		api.Parameter{Name: "encoding", Position: 2, HasDefault: true, IsKeywordOnly: true},
	)

	cases := []struct {
		name string
		call *parser.CallInfo
		ok   bool
	}{
		{"AllPositional", call(2), true},
		{"RequiredOnly", call(1), true},
		{"MissingRequired", call(0), false},
		{"TooManyPositional", call(3), false},
		{"KeywordForPositional", &parser.CallInfo{Keywords: []string{"path"}}, true},
		{"UnknownKeyword", &parser.CallInfo{Positional: 1, Keywords: []string{"sep"}}, false},
		{"KeywordOnlyByKeyword", &parser.CallInfo{Positional: 1, Keywords: []string{"encoding"}}, true},
		{"StarArgsCoverRequired", &parser.CallInfo{HasStarArgs: true}, true},
		{"NotACall", nil, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, issue := CheckCall(tc.call, read)
			assert.Equal(t, tc.ok, ok, issue)
			if !tc.ok {
				assert.NotEmpty(t, issue)
			}
		})
	}
}

func TestCheckCallVariadic(t *testing.T) {
	logf := publicFn("pkg.logf",
		api.Parameter{Name: "format", Position: 0},
		api.Parameter{Name: "args", Position: 1, IsVariadic: true},
		api.Parameter{Name: "opts", Position: 2, IsVariadic: true, IsKeywordOnly: true},
	)

	ok, _ := CheckCall(call(5), logf)
	assert.True(t, ok)
	ok, _ = CheckCall(&parser.CallInfo{Positional: 1, Keywords: []string{"anything"}}, logf)
	assert.True(t, ok)
}

func TestCheckCallPositionalOnly(t *testing.T) {
	f := publicFn("pkg.f", api.Parameter{Name: "a", Position: 0, IsPositionalOnly: true})

	ok, issue := CheckCall(&parser.CallInfo{Keywords: []string{"a"}}, f)
	assert.False(t, ok)
	assert.Contains(t, issue, "positional-only")
}

func TestCheckCallMethodSelfSkipped(t *testing.T) {
	head := api.Entity{
		QualifiedName: "pkg.Frame.head",
		Kind:          api.KindMethod,
		Visibility:    api.Public,
		Signature: []api.Parameter{
			{Name: "self"},
			{Name: "n", Position: 1, HasDefault: true},
		},
	}
	ok, _ := CheckCall(call(1), head)
	assert.True(t, ok)
	ok, _ = CheckCall(call(2), head)
	assert.False(t, ok)
}
