package api

import "sort"

// Summary is the canonical map of qualified API names to entities for one
// package version. A Summary is never mutated after it is produced; a new
// version of the package gets a new Summary.
type Summary struct {
	PackageName string            `json:"packageName"`
	Version     string            `json:"version"`
	Entities    map[string]Entity `json:"entities"`
}

func NewSummary(packageName, version string) *Summary {
	return &Summary{
		PackageName: packageName,
		Version:     version,
		Entities:    make(map[string]Entity),
	}
}

// Put records an entity under its qualified name. Later writes for the same
// name overwrite earlier ones, which is what models redefinition and
// monkey-patch patterns during extraction.
func (s *Summary) Put(e Entity) {
	s.Entities[e.QualifiedName] = e
}

func (s *Summary) Get(qualifiedName string) (Entity, bool) {
	e, ok := s.Entities[qualifiedName]
	return e, ok
}

// Keys returns all qualified names in sorted order.
func (s *Summary) Keys() []string {
	keys := make([]string, 0, len(s.Entities))
	for k := range s.Entities {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// PublicNames returns the sorted qualified names of public entities,
// used for star-import expansion by the usage matcher.
func (s *Summary) PublicNames() []string {
	keys := make([]string, 0, len(s.Entities))
	for k, e := range s.Entities {
		if e.Visibility == Public {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Stats summarizes entity counts by kind for one Summary.
type Stats struct {
	Total      int `json:"total"`
	Modules    int `json:"modules"`
	Classes    int `json:"classes"`
	Functions  int `json:"functions"`
	Methods    int `json:"methods"`
	Properties int `json:"properties"`
	Attributes int `json:"attributes"`
	Unknown    int `json:"unknown"`
	Conflicts  int `json:"conflicts"`
}

func (s *Summary) Stats() Stats {
	var st Stats
	for _, e := range s.Entities {
		st.Total++
		switch e.Kind {
		case KindModule:
			st.Modules++
		case KindClass:
			st.Classes++
		case KindFunction:
			st.Functions++
		case KindMethod:
			st.Methods++
		case KindProperty:
			st.Properties++
		case KindAttribute:
			st.Attributes++
		case KindUnknown:
			st.Unknown++
		}
		if e.Conflict {
			st.Conflicts++
		}
	}
	return st
}

// Diagnostic is one non-fatal extraction problem, reported alongside (not
// inside) the Summary payload so callers can tell a best-effort result from
// a total failure.
type Diagnostic struct {
	Code   string `json:"code"`
	Path   string `json:"path,omitempty"`
	Detail string `json:"detail"`
}
