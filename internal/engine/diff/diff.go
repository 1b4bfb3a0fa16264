package diff

import (
	"strings"

	"github.com/Asdf0717/Py4A/internal/engine/api"
	"github.com/Asdf0717/Py4A/internal/shared/observability"
)

// ChangeKind classifies one entry of a change set.
type ChangeKind string

const (
	Added             ChangeKind = "added"
	Removed           ChangeKind = "removed"
	SignatureChanged  ChangeKind = "signatureChanged"
	KindChanged       ChangeKind = "kindChanged"
	VisibilityChanged ChangeKind = "visibilityChanged"
)

// Record is one classified difference between two versions of an entity.
// Before and After carry entity snapshots where they exist.
type Record struct {
	QualifiedName string      `json:"qualifiedName"`
	ChangeKind    ChangeKind  `json:"changeKind"`
	IsBreaking    bool        `json:"isBreaking"`
	Before        *api.Entity `json:"before,omitempty"`
	After         *api.Entity `json:"after,omitempty"`
}

// Detect classifies every qualified name in the union of both summaries.
// At most one record is emitted per name; when several classifications apply,
// kindChanged wins over signatureChanged, which wins over visibilityChanged.
// Unchanged entities produce no record.
func Detect(oldSum, newSum *api.Summary) []Record {
	var records []Record

	seen := make(map[string]bool)
	for _, qname := range oldSum.Keys() {
		seen[qname] = true
		before, _ := oldSum.Get(qname)
		after, inNew := newSum.Get(qname)
		if !inNew {
			records = append(records, Record{
				QualifiedName: qname,
				ChangeKind:    Removed,
				IsBreaking:    before.Visibility == api.Public,
				Before:        snapshot(before),
			})
			continue
		}
		if rec, changed := classifyPair(qname, before, after); changed {
			records = append(records, rec)
		}
	}
	for _, qname := range newSum.Keys() {
		if seen[qname] {
			continue
		}
		after, _ := newSum.Get(qname)
		records = append(records, Record{
			QualifiedName: qname,
			ChangeKind:    Added,
			After:         snapshot(after),
		})
	}

	for _, rec := range records {
		severity := "nonBreaking"
		if rec.IsBreaking {
			severity = "breaking"
		}
		observability.ChangeRecordsTotal.WithLabelValues(severity).Inc()
	}
	return records
}

func classifyPair(qname string, before, after api.Entity) (Record, bool) {
	rec := Record{QualifiedName: qname, Before: snapshot(before), After: snapshot(after)}
	narrowed := before.Visibility == api.Public && after.Visibility == api.Private

	switch {
	case before.Kind != after.Kind:
		rec.ChangeKind = KindChanged
		rec.IsBreaking = true
	case !api.StructuralEqual(before, after):
		rec.ChangeKind = SignatureChanged
		rec.IsBreaking = signatureBreaking(before.Signature, after.Signature) || narrowed
	case before.Visibility != after.Visibility:
		rec.ChangeKind = VisibilityChanged
		rec.IsBreaking = narrowed
	default:
		return Record{}, false
	}
	return rec, true
}

// signatureBreaking reports whether the parameter change narrows caller
// compatibility: a required parameter appears, a parameter disappears without
// ever having had a default, a positional-capable parameter moves, a default
// is dropped, a positional parameter becomes keyword-only, or a default value
// genuinely changes.
func signatureBreaking(before, after []api.Parameter) bool {
	oldParams := indexParams(before)
	newParams := indexParams(after)

	for name, np := range newParams {
		if _, ok := oldParams[name]; ok {
			continue
		}
		if !np.HasDefault && !np.IsVariadic {
			return true
		}
	}
	for name, op := range oldParams {
		if _, ok := newParams[name]; ok {
			continue
		}
		if !op.HasDefault && !op.IsVariadic {
			return true
		}
	}
	for name, op := range oldParams {
		np, ok := newParams[name]
		if !ok {
			continue
		}
		if op.Position != np.Position && !op.IsKeywordOnly && !op.IsVariadic {
			return true
		}
		if op.HasDefault && !np.HasDefault {
			return true
		}
		if !op.IsKeywordOnly && np.IsKeywordOnly && !np.IsVariadic {
			return true
		}
		if op.HasDefault && np.HasDefault &&
			!sameDefaultValue(op.DefaultValueRepr, np.DefaultValueRepr) {
			return true
		}
	}
	return false
}

func indexParams(params []api.Parameter) map[string]api.Parameter {
	m := make(map[string]api.Parameter, len(params))
	for _, p := range params {
		m[p.Name] = p
	}
	return m
}

// sameDefaultValue decides whether two default value representations denote
// the same value. Runtime reprs of objects ("<object at 0x...>") and
// constructor expressions are compared loosely, since their text varies
// between runs and between source and runtime views.
func sameDefaultValue(v1, v2 string) bool {
	v1, v2 = unquote(v1), unquote(v2)
	if v1 == v2 {
		return true
	}
	if strings.HasPrefix(v1, "<") && strings.HasPrefix(v2, "<") {
		return true
	}
	h1, _, ok1 := strings.Cut(v1, "(")
	h2, _, ok2 := strings.Cut(v2, "(")
	if ok1 && ok2 && h1 == h2 {
		return true
	}
	return false
}

// unquote strips one layer of matching string quotes so that the source form
// "r" and the runtime repr 'r' compare equal.
func unquote(v string) string {
	if len(v) >= 2 {
		first, last := v[0], v[len(v)-1]
		if first == last && (first == '\'' || first == '"') {
			return v[1 : len(v)-1]
		}
	}
	return v
}

func snapshot(e api.Entity) *api.Entity {
	c := e
	return &c
}
