package api

import "testing"

func TestCompareKeyIgnoresPresentationFields(t *testing.T) {
	a := Entity{
		QualifiedName:    "pkg.f",
		Kind:             KindFunction,
		Signature:        []Parameter{{Name: "x", Position: 0}},
		SourceOrigin:     OriginStatic,
		DocSignatureText: "def f(x)",
	}
	b := a
	b.SourceOrigin = OriginDynamic
	b.DocSignatureText = "f(x) at 0xdeadbeef"

	if !StructuralEqual(a, b) {
		t.Errorf("entities differing only in origin/doc text should be structurally equal")
	}

	c := a
	c.Signature = []Parameter{{Name: "x", Position: 0, HasDefault: true, DefaultValueRepr: "1"}}
	if StructuralEqual(a, c) {
		t.Errorf("adding a default must change the structural key")
	}

	d := a
	d.Kind = KindMethod
	if StructuralEqual(a, d) {
		t.Errorf("kind participates in structural equality")
	}
}

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		in   Entity
		want string
	}{
		{
			name: "plain function",
			in: Entity{
				QualifiedName: "pkg.f",
				Kind:          KindFunction,
				Signature: []Parameter{
					{Name: "a", Position: 0},
					{Name: "b", Position: 1, HasDefault: true, DefaultValueRepr: "1"},
				},
			},
			want: "def f(a, b=1)",
		},
		{
			name: "varargs and kwargs",
			in: Entity{
				QualifiedName: "pkg.g",
				Kind:          KindFunction,
				Signature: []Parameter{
					{Name: "a", Position: 0},
					{Name: "args", Position: 1, IsVariadic: true},
					{Name: "c", Position: 2, IsKeywordOnly: true, HasDefault: true, DefaultValueRepr: "None"},
					{Name: "kwargs", Position: 3, IsVariadic: true, IsKeywordOnly: true},
				},
				ReturnsHint: "int",
			},
			want: "def g(a, *args, c=None, **kwargs) -> int",
		},
		{
			name: "keyword only without varargs",
			in: Entity{
				QualifiedName: "pkg.h",
				Kind:          KindFunction,
				Signature: []Parameter{
					{Name: "a", Position: 0},
					{Name: "b", Position: 1, IsKeywordOnly: true},
				},
			},
			want: "def h(a, *, b)",
		},
		{
			name: "positional only marker",
			in: Entity{
				QualifiedName: "pkg.p",
				Kind:          KindFunction,
				Signature: []Parameter{
					{Name: "a", Position: 0, IsPositionalOnly: true},
					{Name: "b", Position: 1},
				},
			},
			want: "def p(a, /, b)",
		},
		{
			name: "class",
			in: Entity{
				QualifiedName: "pkg.C",
				Kind:          KindClass,
				Signature:     []Parameter{{Name: "x", Position: 0}},
			},
			want: "class C(x)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.Render(); got != tt.want {
				t.Errorf("Render() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsPublicName(t *testing.T) {
	tests := []struct {
		name   string
		public bool
	}{
		{"pkg.mod.func", true},
		{"pkg._internal.func", false},
		{"pkg.mod._helper", false},
		{"pkg.Cls.__init__", true},
		{"pkg.Cls._private", false},
	}
	for _, tt := range tests {
		if got := IsPublicName(tt.name); got != tt.public {
			t.Errorf("IsPublicName(%q) = %t, want %t", tt.name, got, tt.public)
		}
	}
}
