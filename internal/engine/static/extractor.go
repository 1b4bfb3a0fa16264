package static

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Asdf0717/Py4A/internal/core/errors"
	"github.com/Asdf0717/Py4A/internal/engine/api"
	"github.com/Asdf0717/Py4A/internal/engine/parser"
	"github.com/Asdf0717/Py4A/internal/shared/observability"
	"github.com/Asdf0717/Py4A/internal/shared/util"
)

// aliasPasses bounds re-export chain resolution. Chains deeper than this
// occur only in pathological trees; py4a used the same bound.
const aliasPasses = 5

// Extractor builds a Summary from a source tree without executing any code.
type Extractor struct {
	parser  *parser.Parser
	workers int
}

func New(workers int) *Extractor {
	if workers <= 0 {
		workers = 4
	}
	return &Extractor{parser: parser.New(), workers: workers}
}

type moduleMeta struct {
	aliases     []parser.AliasBinding
	starImports []string
	exports     map[string]bool
	hasExports  bool
}

// Extract parses every module in the tree and folds the results into one
// static Summary. Files that fail to parse are skipped and reported as
// diagnostics; the Summary covers the rest of the tree.
func (x *Extractor) Extract(ctx context.Context, tree Tree, pkgName, version string) (*api.Summary, []api.Diagnostic, error) {
	files := tree.Files()
	fileSet := make(map[string]bool, len(files))
	for _, f := range files {
		fileSet[f] = true
	}
	isPackageDir := func(dir string) bool {
		return fileSet[dir+"/__init__.py"] || fileSet[dir+"/__init__.pyi"]
	}

	type job struct {
		path      string
		module    string
		isPackage bool
	}
	var jobs []job
	for _, f := range files {
		module, isPkg := moduleName(pkgName, f, isPackageDir)
		if module == "" {
			continue
		}
		jobs = append(jobs, job{path: f, module: module, isPackage: isPkg})
	}

	// One task per source file; results land in job order so the fold below
	// stays deterministic regardless of scheduling.
	results := make([]*parser.ModuleResult, len(jobs))
	diags := make([]api.Diagnostic, 0)
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		sem = make(chan struct{}, x.workers)
	)
	for i, j := range jobs {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, j job) {
			defer wg.Done()
			defer func() { <-sem }()

			start := time.Now()
			content, err := tree.Read(j.path)
			if err == nil {
				results[i], err = x.parser.ParseModule(j.path, content, j.module, j.isPackage)
			}
			observability.ParseDuration.WithLabelValues("static").Observe(time.Since(start).Seconds())
			if err != nil {
				slog.Warn("skipping unparsable file", "path", j.path, "error", err)
				mu.Lock()
				diags = append(diags, api.Diagnostic{
					Code:   string(errors.CodeParseError),
					Path:   j.path,
					Detail: err.Error(),
				})
				mu.Unlock()
			}
		}(i, j)
	}
	wg.Wait()

	summary := api.NewSummary(pkgName, version)
	entityModule := make(map[string]string)
	metas := make(map[string]*moduleMeta)

	for i := range results {
		res := results[i]
		if res == nil {
			continue
		}
		meta := metas[res.Module]
		if meta == nil {
			meta = &moduleMeta{exports: make(map[string]bool)}
			metas[res.Module] = meta

			summary.Put(api.Entity{
				QualifiedName:    res.Module,
				Kind:             api.KindModule,
				SourceOrigin:     api.OriginStatic,
				DocSignatureText: "module " + res.Module,
			})
			entityModule[res.Module] = res.Module
		}

		// Later definitions of the same qualified name overwrite earlier
		// ones, within a file and across .py/.pyi pairs.
		for _, e := range res.Entities {
			summary.Put(e)
			entityModule[e.QualifiedName] = res.Module
		}
		meta.aliases = append(meta.aliases, res.Aliases...)
		meta.starImports = append(meta.starImports, res.StarImports...)
		if res.HasExportList {
			meta.hasExports = true
			for _, name := range res.ExportList {
				meta.exports[name] = true
			}
		}
	}

	x.resolveReexports(summary, metas, entityModule, pkgName)

	for qname, e := range summary.Entities {
		e.Visibility = visibility(qname, entityModule[qname], metas)
		summary.Entities[qname] = e
	}

	observability.EntitiesExtracted.WithLabelValues("static").Add(float64(len(summary.Entities)))
	return summary, diags, nil
}

// resolveReexports registers import bindings and star imports that point at
// package-internal entities under the importing module's namespace, so that
// names like pkg.Frame exist when pkg/__init__.py re-exports them. Members of
// a re-exported entity travel with it (pkg.Frame.head next to pkg.Frame), so
// usage chains through the re-export resolve on static data alone. Chains of
// re-exports settle over multiple passes.
func (x *Extractor) resolveReexports(summary *api.Summary, metas map[string]*moduleMeta, entityModule map[string]string, pkgName string) {
	modules := make([]string, 0, len(metas))
	for m := range metas {
		modules = append(modules, m)
	}
	sort.Strings(modules)

	internal := func(target string) bool {
		return util.HasDottedPrefix(target, pkgName)
	}

	// Names created by re-export, as opposed to defined locally. A local
	// definition always shadows an import of the same name and never has
	// foreign members grafted under it.
	created := make(map[string]bool)

	copyEntity := func(src, dest, m string) bool {
		if _, exists := summary.Get(dest); exists {
			return false
		}
		target, ok := summary.Get(src)
		if !ok {
			return false
		}
		target.QualifiedName = dest
		summary.Put(target)
		entityModule[dest] = m
		return true
	}
	copyMembers := func(src, dest, m string) bool {
		changed := false
		for _, qname := range summary.Keys() {
			if qname == src || !util.HasDottedPrefix(qname, src) {
				continue
			}
			if copyEntity(qname, dest+strings.TrimPrefix(qname, src), m) {
				changed = true
			}
		}
		return changed
	}

	for pass := 0; pass < aliasPasses; pass++ {
		changed := false
		for _, m := range modules {
			meta := metas[m]
			for _, a := range meta.aliases {
				if !internal(a.Target) {
					continue
				}
				// Importing an enclosing package would graft it under itself.
				if util.HasDottedPrefix(m, a.Target) {
					continue
				}
				reexported := m + "." + a.Name
				if copyEntity(a.Target, reexported, m) {
					created[reexported] = true
					changed = true
				}
				if created[reexported] && copyMembers(a.Target, reexported, m) {
					changed = true
				}
			}

			for _, star := range meta.starImports {
				if !internal(star) || util.HasDottedPrefix(m, star) {
					continue
				}
				for _, qname := range summary.Keys() {
					rest := strings.TrimPrefix(qname, star+".")
					if rest == qname || strings.Contains(rest, ".") {
						continue
					}
					if !api.IsPublicName(rest) {
						continue
					}
					if srcMeta := metas[star]; srcMeta != nil && srcMeta.hasExports && !srcMeta.exports[rest] {
						continue
					}
					reexported := m + "." + rest
					if copyEntity(qname, reexported, m) {
						created[reexported] = true
						changed = true
					}
					if created[reexported] && copyMembers(qname, reexported, m) {
						changed = true
					}
				}
			}
		}
		if !changed {
			break
		}
	}
}

// visibility applies the two-part rule: no implementation-private segment
// anywhere in the name, and membership in the module's export list when one
// is declared.
func visibility(qname, module string, metas map[string]*moduleMeta) api.Visibility {
	if !api.IsPublicName(qname) {
		return api.Private
	}
	if module == "" || qname == module {
		return api.Public
	}
	rest := strings.TrimPrefix(qname, module+".")
	meta := metas[module]
	if meta != nil && meta.hasExports {
		head := rest
		if i := strings.Index(rest, "."); i >= 0 {
			head = rest[:i]
		}
		if !meta.exports[head] {
			return api.Private
		}
	}
	return api.Public
}
