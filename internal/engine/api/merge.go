package api

import (
	"fmt"

	"github.com/Asdf0717/Py4A/internal/core/errors"
)

// Merge reconciles the static and dynamic views of one package version into
// a single authoritative Summary. Either input may be nil (e.g. the dynamic
// pass timed out and the caller falls back to static-only data).
//
// The merged key set is always the union of both inputs, so the merge is
// commutative in the union-of-keys sense. Value resolution is not symmetric:
// when both sides contain a qualified name but disagree structurally, the
// dynamic signature wins because it reflects actual runtime behavior, while
// the static DocSignatureText is retained for readability and the entity is
// flagged as a conflict.
func Merge(static, dynamic *Summary) (*Summary, []Diagnostic) {
	var diags []Diagnostic

	switch {
	case static == nil && dynamic == nil:
		return nil, nil
	case static == nil:
		return withOrigin(dynamic, OriginDynamic), nil
	case dynamic == nil:
		return withOrigin(static, OriginStatic), nil
	}

	merged := NewSummary(static.PackageName, static.Version)

	for name, se := range static.Entities {
		de, inDynamic := dynamic.Entities[name]
		if !inDynamic {
			se.SourceOrigin = OriginStatic
			merged.Put(se)
			continue
		}
		if StructuralEqual(se, de) {
			se.SourceOrigin = OriginBoth
			merged.Put(se)
			continue
		}
		// Disagreement: dynamic is ground truth, static keeps readability.
		de.SourceOrigin = OriginBoth
		de.Conflict = true
		if se.DocSignatureText != "" {
			de.DocSignatureText = se.DocSignatureText
		}
		merged.Put(de)
		diags = append(diags, Diagnostic{
			Code:   string(errors.CodeMergeConflict),
			Detail: fmt.Sprintf("%s: static and dynamic signatures disagree, dynamic wins", name),
		})
	}

	for name, de := range dynamic.Entities {
		if _, inStatic := static.Entities[name]; inStatic {
			continue
		}
		// Exists at runtime with no discoverable static declaration.
		de.SourceOrigin = OriginDynamic
		merged.Put(de)
	}

	return merged, diags
}

func withOrigin(in *Summary, origin Origin) *Summary {
	out := NewSummary(in.PackageName, in.Version)
	for _, e := range in.Entities {
		e.SourceOrigin = origin
		out.Put(e)
	}
	return out
}
