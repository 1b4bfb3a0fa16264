package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Asdf0717/Py4A/internal/engine/api"
)

func summaryOf(version string, entities ...api.Entity) *api.Summary {
	s := api.NewSummary("pkg", version)
	for _, e := range entities {
		s.Put(e)
	}
	return s
}

func fn(qname string, params ...api.Parameter) api.Entity {
	return api.Entity{
		QualifiedName: qname,
		Kind:          api.KindFunction,
		Signature:     params,
		Visibility:    api.Public,
	}
}

func param(name string, position int) api.Parameter {
	return api.Parameter{Name: name, Position: position}
}

func optParam(name string, position int, def string) api.Parameter {
	return api.Parameter{Name: name, Position: position, HasDefault: true, DefaultValueRepr: def}
}

func single(t *testing.T, records []Record) Record {
	t.Helper()
	require.Len(t, records, 1)
	return records[0]
}

func TestDetectIdenticalSummaries(t *testing.T) {
	s := summaryOf("1.0.0",
		fn("pkg.f", param("a", 0)),
		api.Entity{QualifiedName: "pkg.Frame", Kind: api.KindClass, Visibility: api.Public},
	)
	assert.Empty(t, Detect(s, s))
}

func TestDetectOptionalParamAddedNonBreaking(t *testing.T) {
	before := summaryOf("1.0.0", fn("pkg.f", param("a", 0)))
	after := summaryOf("2.0.0", fn("pkg.f", param("a", 0), optParam("b", 1, "1")))

	rec := single(t, Detect(before, after))
	assert.Equal(t, "pkg.f", rec.QualifiedName)
	assert.Equal(t, SignatureChanged, rec.ChangeKind)
	assert.False(t, rec.IsBreaking)
}

func TestDetectRequiredParamRemovedBreaking(t *testing.T) {
	before := summaryOf("1.0.0", fn("pkg.f", param("a", 0), param("b", 1)))
	after := summaryOf("2.0.0", fn("pkg.f", param("a", 0)))

	rec := single(t, Detect(before, after))
	assert.Equal(t, SignatureChanged, rec.ChangeKind)
	assert.True(t, rec.IsBreaking)
}

func TestDetectRequiredParamAddedBreaking(t *testing.T) {
	before := summaryOf("1.0.0", fn("pkg.f", param("a", 0)))
	after := summaryOf("2.0.0", fn("pkg.f", param("a", 0), param("b", 1)))

	rec := single(t, Detect(before, after))
	assert.Equal(t, SignatureChanged, rec.ChangeKind)
	assert.True(t, rec.IsBreaking)
}

func TestDetectOptionalParamRemovedNonBreaking(t *testing.T) {
	before := summaryOf("1.0.0", fn("pkg.f", param("a", 0), optParam("b", 1, "1")))
	after := summaryOf("2.0.0", fn("pkg.f", param("a", 0)))

	rec := single(t, Detect(before, after))
	assert.Equal(t, SignatureChanged, rec.ChangeKind)
	assert.False(t, rec.IsBreaking)
}

func TestDetectParamReorderBreaking(t *testing.T) {
	before := summaryOf("1.0.0", fn("pkg.f", param("a", 0), param("b", 1)))
	after := summaryOf("2.0.0", fn("pkg.f", param("b", 0), param("a", 1)))

	rec := single(t, Detect(before, after))
	assert.True(t, rec.IsBreaking)
}

func TestDetectRequiredToOptionalNonBreaking(t *testing.T) {
	before := summaryOf("1.0.0", fn("pkg.f", param("a", 0)))
	after := summaryOf("2.0.0", fn("pkg.f", optParam("a", 0, "None")))

	rec := single(t, Detect(before, after))
	assert.False(t, rec.IsBreaking)
}

func TestDetectDefaultRemovedBreaking(t *testing.T) {
	before := summaryOf("1.0.0", fn("pkg.f", optParam("a", 0, "1")))
	after := summaryOf("2.0.0", fn("pkg.f", param("a", 0)))

	rec := single(t, Detect(before, after))
	assert.True(t, rec.IsBreaking)
}

func TestDetectPositionalBecomesKeywordOnlyBreaking(t *testing.T) {
	before := summaryOf("1.0.0", fn("pkg.f", optParam("a", 0, "1")))
	kwOnly := optParam("a", 0, "1")
	kwOnly.IsKeywordOnly = true
	after := summaryOf("2.0.0", fn("pkg.f", kwOnly))

	rec := single(t, Detect(before, after))
	assert.True(t, rec.IsBreaking)
}

func TestDetectDefaultValueChangeBreaking(t *testing.T) {
	before := summaryOf("1.0.0", fn("pkg.f", optParam("a", 0, "1")))
	after := summaryOf("2.0.0", fn("pkg.f", optParam("a", 0, "2")))

	rec := single(t, Detect(before, after))
	assert.True(t, rec.IsBreaking)
}

func TestSameDefaultValue(t *testing.T) {
	cases := []struct {
		v1, v2 string
		same   bool
	}{
		{"1", "1", true},
		{"1", "2", false},
		{`"r"`, "'r'", true},
		{"<object object at 0x7f>", "<object object at 0x10>", true},
		{"dict()", "dict(a=1)", true},
		{"dict()", "list()", false},
		{"None", "()", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.same, sameDefaultValue(tc.v1, tc.v2), "%s vs %s", tc.v1, tc.v2)
	}
}

func TestDetectKindChangedTakesPrecedence(t *testing.T) {
	before := summaryOf("1.0.0", fn("pkg.thing", param("a", 0)))
	after := summaryOf("2.0.0", api.Entity{
		QualifiedName: "pkg.thing",
		Kind:          api.KindAttribute,
		Visibility:    api.Public,
	})

	rec := single(t, Detect(before, after))
	assert.Equal(t, KindChanged, rec.ChangeKind)
	assert.True(t, rec.IsBreaking)
}

func TestDetectRemovedVisibilityGatesBreaking(t *testing.T) {
	private := fn("pkg._hidden")
	private.Visibility = api.Private
	before := summaryOf("1.0.0", fn("pkg.f"), private)
	after := summaryOf("2.0.0")

	records := Detect(before, after)
	require.Len(t, records, 2)
	byName := map[string]Record{}
	for _, r := range records {
		byName[r.QualifiedName] = r
	}
	assert.True(t, byName["pkg.f"].IsBreaking)
	assert.Equal(t, Removed, byName["pkg.f"].ChangeKind)
	assert.False(t, byName["pkg._hidden"].IsBreaking)
}

func TestDetectAddedNonBreaking(t *testing.T) {
	before := summaryOf("1.0.0")
	after := summaryOf("2.0.0", fn("pkg.g", param("x", 0)))

	rec := single(t, Detect(before, after))
	assert.Equal(t, Added, rec.ChangeKind)
	assert.False(t, rec.IsBreaking)
	require.NotNil(t, rec.After)
	assert.Nil(t, rec.Before)
}

func TestDetectVisibilityChanged(t *testing.T) {
	pub := fn("pkg.f", param("a", 0))
	priv := pub
	priv.Visibility = api.Private

	rec := single(t, Detect(summaryOf("1.0.0", pub), summaryOf("2.0.0", priv)))
	assert.Equal(t, VisibilityChanged, rec.ChangeKind)
	assert.True(t, rec.IsBreaking)

	rec = single(t, Detect(summaryOf("1.0.0", priv), summaryOf("2.0.0", pub)))
	assert.Equal(t, VisibilityChanged, rec.ChangeKind)
	assert.False(t, rec.IsBreaking)
}
