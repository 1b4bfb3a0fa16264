package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Asdf0717/Py4A/internal/core/config"
	"github.com/Asdf0717/Py4A/internal/engine/diff"
	"github.com/Asdf0717/Py4A/internal/engine/static"
	"github.com/Asdf0717/Py4A/internal/engine/usage"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg := config.Default()
	cfg.DB.Path = filepath.Join(t.TempDir(), "py4a.db")
	cfg.Sandbox.Enabled = false

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(func() { a.Close(context.Background()) })
	return a
}

func extractFixture(t *testing.T, a *App, version string, tree static.Tree) {
	t.Helper()
	summary, report, err := a.ExtractVersion(context.Background(), ExtractRequest{
		Package: "pkg",
		Version: version,
		Tree:    tree,
	})
	if err != nil {
		t.Fatalf("extract %s: %v", version, err)
	}
	if summary == nil || report == nil {
		t.Fatalf("extract %s returned nil result", version)
	}
}

func TestExtractVersionStaticOnly(t *testing.T) {
	a := newTestApp(t)

	tree := static.MapTree{
		"pkg/__init__.py": "from pkg.io import read\n",
		"pkg/io.py":       "def read(path, mode=\"r\"):\n    return open(path, mode)\n",
	}
	summary, report, err := a.ExtractVersion(context.Background(), ExtractRequest{
		Package: "pkg",
		Version: "1.0.0",
		Tree:    tree,
	})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	if report.RunID == "" {
		t.Error("report should carry a run id")
	}
	if report.DynamicFallback {
		t.Error("no sandbox configured, fallback flag should stay unset")
	}
	if _, ok := summary.Entities["pkg.io.read"]; !ok {
		t.Error("pkg.io.read missing from summary")
	}
	if _, ok := summary.Entities["pkg.read"]; !ok {
		t.Error("re-exported pkg.read missing from summary")
	}

	stored, err := a.Store.LoadSummary("pkg", "1.0.0")
	if err != nil {
		t.Fatalf("load persisted summary: %v", err)
	}
	if len(stored.Entities) != len(summary.Entities) {
		t.Errorf("persisted %d entities, extracted %d", len(stored.Entities), len(summary.Entities))
	}
}

func TestDiffVersionsEndToEnd(t *testing.T) {
	a := newTestApp(t)

	extractFixture(t, a, "1.0.0", static.MapTree{
		"pkg/__init__.py": "",
		"pkg/io.py":       "def read(path):\n    pass\n",
	})
	extractFixture(t, a, "2.0.0", static.MapTree{
		"pkg/__init__.py": "",
		"pkg/io.py":       "def read(path, encoding):\n    pass\n",
	})

	records, err := a.DiffVersions(context.Background(), "pkg", "1.0.0", "2.0.0")
	if err != nil {
		t.Fatalf("diff: %v", err)
	}

	var found *diff.Record
	for i := range records {
		if records[i].QualifiedName == "pkg.io.read" {
			found = &records[i]
		}
	}
	if found == nil {
		t.Fatalf("no record for pkg.io.read in %+v", records)
	}
	if found.ChangeKind != diff.SignatureChanged || !found.IsBreaking {
		t.Errorf("expected breaking signatureChanged, got %+v", *found)
	}

	persisted, err := a.Store.LoadChangeSet("pkg", "1.0.0", "2.0.0")
	if err != nil {
		t.Fatalf("load change set: %v", err)
	}
	if len(persisted) != len(records) {
		t.Errorf("persisted %d records, detected %d", len(persisted), len(records))
	}
}

func TestDiffVersionsUnknownVersion(t *testing.T) {
	a := newTestApp(t)
	if _, err := a.DiffVersions(context.Background(), "pkg", "1.0.0", "2.0.0"); err == nil {
		t.Fatal("expected error for versions never extracted")
	}
}

func TestMatchUsageEndToEnd(t *testing.T) {
	a := newTestApp(t)

	extractFixture(t, a, "1.0.0", static.MapTree{
		"pkg/__init__.py": "def read(path, mode=\"r\"):\n    pass\n",
	})

	clientDir := t.TempDir()
	client := "import pkg\n\npkg.read(\"notes.txt\")\n"
	if err := os.WriteFile(filepath.Join(clientDir, "client.py"), []byte(client), 0o644); err != nil {
		t.Fatal(err)
	}

	records, diags, err := a.MatchUsage(context.Background(), clientDir, []PackageRef{
		{Package: "pkg", Version: "1.0.0"},
	})
	if err != nil {
		t.Fatalf("match usage: %v", err)
	}
	if len(diags) != 0 {
		t.Errorf("unexpected diagnostics: %+v", diags)
	}
	if len(records) != 1 {
		t.Fatalf("expected one record, got %+v", records)
	}
	if records[0].QualifiedName != "pkg.read" || records[0].ResolutionConfidence != usage.Exact {
		t.Errorf("unexpected record: %+v", records[0])
	}

	persisted, err := a.Store.LoadUsage("pkg", "1.0.0")
	if err != nil {
		t.Fatalf("load usage: %v", err)
	}
	if len(persisted) != 1 {
		t.Errorf("persisted %d usage records, want 1", len(persisted))
	}
}
