package usage

import (
	"strings"

	"github.com/Asdf0717/Py4A/internal/core/errors"
	"github.com/Asdf0717/Py4A/internal/engine/api"
	"github.com/Asdf0717/Py4A/internal/engine/parser"
	"github.com/Asdf0717/Py4A/internal/engine/static"
	"github.com/Asdf0717/Py4A/internal/shared/observability"
)

// Confidence grades how a client reference was resolved to a summary entity.
type Confidence string

const (
	// Exact means the import chain led to exactly one entity with no renames.
	Exact Confidence = "exact"
	// AliasResolved means one or more "as" renames were followed.
	AliasResolved Confidence = "aliasResolved"
	// Ambiguous means several entities could satisfy the reference, typically
	// through star imports. One record is emitted per candidate.
	Ambiguous Confidence = "ambiguous"
)

// Record is one resolved client reference.
type Record struct {
	QualifiedName        string          `json:"qualifiedName"`
	ClientLocation       parser.Location `json:"clientLocation"`
	CallArity            int             `json:"callArity"`
	ResolutionConfidence Confidence      `json:"resolutionConfidence"`
	// CallIssue describes why a call site does not fit the matched entity's
	// signature. Empty when the call fits or the reference is not a call.
	CallIssue string `json:"callIssue,omitempty"`
}

// Matcher resolves references in client source against one or more package
// summaries. It only reads the summaries.
type Matcher struct {
	parser    *parser.Parser
	summaries []*api.Summary
}

func NewMatcher(summaries ...*api.Summary) *Matcher {
	return &Matcher{parser: parser.New(), summaries: summaries}
}

// MatchTree resolves every .py file in the client tree. Unparsable files
// become diagnostics; unresolvable references are dropped silently.
func (m *Matcher) MatchTree(tree static.Tree) ([]Record, []api.Diagnostic, error) {
	var records []Record
	var diags []api.Diagnostic
	for _, path := range tree.Files() {
		if !strings.HasSuffix(path, ".py") {
			continue
		}
		content, err := tree.Read(path)
		if err == nil {
			var fileRecords []Record
			fileRecords, err = m.MatchFile(path, content)
			records = append(records, fileRecords...)
		}
		if err != nil {
			diags = append(diags, api.Diagnostic{
				Code:   string(errors.CodeParseError),
				Path:   path,
				Detail: err.Error(),
			})
		}
	}
	return records, diags, nil
}

// MatchFile resolves the references of a single client source file.
func (m *Matcher) MatchFile(path string, content []byte) ([]Record, error) {
	file, err := m.parser.ParseClient(path, content)
	if err != nil {
		return nil, err
	}

	var records []Record
	for _, ref := range file.Refs {
		for _, c := range m.resolve(file, ref.Chain) {
			rec := Record{
				QualifiedName:        c.qualifiedName,
				ClientLocation:       ref.Location,
				CallArity:            ref.Call.Arity(),
				ResolutionConfidence: c.confidence,
			}
			if ref.Call != nil {
				if entity, ok := c.summary.Get(c.qualifiedName); ok && entity.Callable() {
					if ok, issue := CheckCall(ref.Call, entity); !ok {
						rec.CallIssue = issue
					}
				}
			}
			observability.UsageRecordsTotal.WithLabelValues(string(rec.ResolutionConfidence)).Inc()
			records = append(records, rec)
		}
	}
	return records, nil
}

type candidate struct {
	qualifiedName string
	summary       *api.Summary
	confidence    Confidence
}

// resolve maps a dotted reference chain to summary entities via direct import
// bindings, alias chains and star imports. Several distinct candidates mean
// the reference is ambiguous; zero means it is dropped. Reimporting the same
// module (top level plus inside a function is common) must not manufacture
// ambiguity, so candidates are deduplicated per (entity, summary) and only a
// repeated entity's best confidence survives.
func (m *Matcher) resolve(file *parser.ClientFile, chain string) []candidate {
	head, rest, _ := strings.Cut(chain, ".")

	var candidates []candidate
	index := make(map[*api.Summary]map[string]int)
	add := func(qname string, s *api.Summary, confidence Confidence) {
		byName := index[s]
		if byName == nil {
			byName = make(map[string]int)
			index[s] = byName
		}
		if i, seen := byName[qname]; seen {
			if confidence == Exact {
				candidates[i].confidence = Exact
			}
			return
		}
		byName[qname] = len(candidates)
		candidates = append(candidates, candidate{qname, s, confidence})
	}

	for _, b := range file.Bindings {
		if b.Name != head {
			continue
		}
		qname := b.Target
		if rest != "" {
			qname += "." + rest
		}
		confidence := Exact
		if b.Hops > 0 {
			confidence = AliasResolved
		}
		for _, s := range m.summaries {
			if _, ok := s.Get(qname); ok {
				add(qname, s, confidence)
			}
		}
	}

	for _, star := range file.StarImports {
		qname := star + "." + chain
		top := star + "." + head
		for _, s := range m.summaries {
			topEntity, ok := s.Get(top)
			if !ok || topEntity.Visibility != api.Public {
				continue
			}
			if _, ok := s.Get(qname); ok {
				add(qname, s, Exact)
			}
		}
	}

	if len(candidates) > 1 {
		for i := range candidates {
			candidates[i].confidence = Ambiguous
		}
	}
	return candidates
}
