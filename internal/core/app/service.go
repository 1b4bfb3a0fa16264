package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Asdf0717/Py4A/internal/core/errors"
	"github.com/Asdf0717/Py4A/internal/engine/api"
	"github.com/Asdf0717/Py4A/internal/engine/diff"
	"github.com/Asdf0717/Py4A/internal/engine/static"
	"github.com/Asdf0717/Py4A/internal/engine/usage"
	"github.com/Asdf0717/Py4A/internal/shared/observability"
	"github.com/Asdf0717/Py4A/internal/shared/util"
)

// ExtractRequest names one package version and where its source lives. Tree
// overrides SourceDir when set, which is how tests and archive-backed callers
// feed sources directly.
type ExtractRequest struct {
	Package   string
	Version   string
	SourceDir string
	Tree      static.Tree
	// TopLevels are the importable top-level modules for the dynamic pass.
	// Defaults to the package name.
	TopLevels []string
}

// ExtractReport is the per-run report handed back next to the Summary, so
// callers can tell a best-effort result from a total failure.
type ExtractReport struct {
	RunID           string           `json:"runId"`
	Package         string           `json:"package"`
	Version         string           `json:"version"`
	StartedAt       time.Time        `json:"startedAt"`
	Duration        time.Duration    `json:"duration"`
	Stats           api.Stats        `json:"stats"`
	DynamicFallback bool             `json:"dynamicFallback"`
	Diagnostics     []api.Diagnostic `json:"diagnostics"`
}

// ExtractVersion runs the static pass, the dynamic pass when a sandbox is
// configured, and merges both views into one Summary. A failed dynamic pass
// degrades to static-only data and is reported, never fatal. The Summary is
// persisted when a store is configured.
func (a *App) ExtractVersion(ctx context.Context, req ExtractRequest) (*api.Summary, *ExtractReport, error) {
	ctx, span := observability.Tracer.Start(ctx, "app.ExtractVersion", trace.WithAttributes(
		attribute.String("package", req.Package),
		attribute.String("version", req.Version),
	))
	defer span.End()

	report := &ExtractReport{
		RunID:     uuid.NewString(),
		Package:   req.Package,
		Version:   req.Version,
		StartedAt: time.Now().UTC(),
	}
	defer func() { report.Duration = time.Since(report.StartedAt) }()

	tree := req.Tree
	if tree == nil {
		if req.SourceDir == "" {
			return nil, nil, errors.New(errors.CodeValidationError, "extract request needs a source dir or tree")
		}
		var err error
		tree, err = static.NewDirTree(req.SourceDir, a.Config.Extract.Excludes)
		if err != nil {
			return nil, nil, fmt.Errorf("open source tree %q: %w", req.SourceDir, err)
		}
	}

	staticStart := time.Now()
	staticSum, staticDiags, err := a.Static.Extract(ctx, tree, req.Package, req.Version)
	if err != nil {
		return nil, nil, err
	}
	observability.ExtractionDuration.WithLabelValues("static").Observe(time.Since(staticStart).Seconds())
	report.Diagnostics = append(report.Diagnostics, staticDiags...)

	var dynamicSum *api.Summary
	if a.Dynamic != nil {
		var dynDiags []api.Diagnostic
		dynamicSum, dynDiags, err = a.Dynamic.Extract(ctx, req.Package, req.Version, req.TopLevels)
		report.Diagnostics = append(report.Diagnostics, dynDiags...)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, err
			}
			slog.Warn("dynamic pass failed, falling back to static-only summary",
				"package", req.Package, "version", req.Version, "error", err)
			report.DynamicFallback = true
			dynamicSum = nil
		}
	}

	merged, mergeDiags := api.Merge(staticSum, dynamicSum)
	report.Diagnostics = append(report.Diagnostics, mergeDiags...)
	for range mergeDiags {
		observability.MergeConflictsTotal.Inc()
	}
	report.Stats = merged.Stats()

	if a.Store != nil {
		if err := a.Store.SaveSummary(merged); err != nil {
			return nil, nil, fmt.Errorf("persist summary %s@%s: %w", req.Package, req.Version, err)
		}
	}

	slog.Info("extraction finished",
		"runId", report.RunID,
		"package", req.Package,
		"version", req.Version,
		"entities", report.Stats.Total,
		"conflicts", report.Stats.Conflicts,
		"diagnostics", len(report.Diagnostics),
		"dynamicFallback", report.DynamicFallback,
	)
	return merged, report, nil
}

// DiffVersions loads two persisted summaries and produces their change set,
// persisting it alongside.
func (a *App) DiffVersions(ctx context.Context, pkg, oldVersion, newVersion string) ([]diff.Record, error) {
	ctx, span := observability.Tracer.Start(ctx, "app.DiffVersions", trace.WithAttributes(
		attribute.String("package", pkg),
		attribute.String("oldVersion", oldVersion),
		attribute.String("newVersion", newVersion),
	))
	defer span.End()

	if a.Store == nil {
		return nil, errors.New(errors.CodeValidationError, "diff requires a configured store")
	}
	oldSum, err := a.Store.LoadSummary(pkg, oldVersion)
	if err != nil {
		return nil, err
	}
	newSum, err := a.Store.LoadSummary(pkg, newVersion)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	records := diff.Detect(oldSum, newSum)
	if err := a.Store.SaveChangeSet(pkg, oldVersion, newVersion, records); err != nil {
		return nil, fmt.Errorf("persist change set: %w", err)
	}
	return records, nil
}

// PackageRef names one persisted summary for usage matching.
type PackageRef struct {
	Package string
	Version string
}

// MatchUsage resolves a client source tree against one or more persisted
// summaries and persists the records per package.
func (a *App) MatchUsage(ctx context.Context, clientDir string, refs []PackageRef) ([]usage.Record, []api.Diagnostic, error) {
	ctx, span := observability.Tracer.Start(ctx, "app.MatchUsage", trace.WithAttributes(
		attribute.String("clientDir", clientDir),
		attribute.Int("packages", len(refs)),
	))
	defer span.End()

	if a.Store == nil {
		return nil, nil, errors.New(errors.CodeValidationError, "usage matching requires a configured store")
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	summaries := make([]*api.Summary, 0, len(refs))
	for _, ref := range refs {
		sum, err := a.Store.LoadSummary(ref.Package, ref.Version)
		if err != nil {
			return nil, nil, err
		}
		summaries = append(summaries, sum)
	}

	tree, err := static.NewDirTree(clientDir, a.Config.Extract.Excludes)
	if err != nil {
		return nil, nil, fmt.Errorf("open client tree %q: %w", clientDir, err)
	}
	records, diags, err := usage.NewMatcher(summaries...).MatchTree(tree)
	if err != nil {
		return nil, nil, err
	}

	for _, ref := range refs {
		var scoped []usage.Record
		for _, rec := range records {
			if util.HasDottedPrefix(rec.QualifiedName, ref.Package) {
				scoped = append(scoped, rec)
			}
		}
		if err := a.Store.SaveUsage(ref.Package, ref.Version, scoped); err != nil {
			return nil, nil, fmt.Errorf("persist usage records for %s@%s: %w", ref.Package, ref.Version, err)
		}
	}
	return records, diags, nil
}
