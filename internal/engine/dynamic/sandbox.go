package dynamic

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Asdf0717/Py4A/internal/core/errors"
	"github.com/Asdf0717/Py4A/internal/engine/api"
	"github.com/Asdf0717/Py4A/internal/shared/observability"
	"github.com/Asdf0717/Py4A/internal/shared/util"
)

//go:embed introspect.py
var introspectScript string

const stderrExcerptLimit = 2000

type Options struct {
	// PythonBin is the interpreter of the environment holding the installed
	// package version.
	PythonBin string
	// Timeout bounds one interpreter run.
	Timeout time.Duration
	// MaxSandboxes caps concurrently running interpreters.
	MaxSandboxes int
	// LaunchesPerSecond paces interpreter starts.
	LaunchesPerSecond float64
}

func (o *Options) withDefaults() {
	if o.PythonBin == "" {
		o.PythonBin = "python3"
	}
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
	if o.MaxSandboxes <= 0 {
		o.MaxSandboxes = 4
	}
	if o.LaunchesPerSecond <= 0 {
		o.LaunchesPerSecond = 2
	}
}

// Runner extracts the runtime view of a package by importing it inside
// isolated interpreter subprocesses. Identical package@version runs are
// coalesced so concurrent callers share one extraction.
type Runner struct {
	opts    Options
	sem     chan struct{}
	limiter *util.Limiter

	mu       sync.Mutex
	inflight map[string]*inflightRun

	// runFn launches one introspection subprocess; swapped in tests.
	runFn func(ctx context.Context, topLevel string) (*payload, error)
}

type inflightRun struct {
	done    chan struct{}
	summary *api.Summary
	diags   []api.Diagnostic
	err     error
}

func NewRunner(opts Options) *Runner {
	opts.withDefaults()
	r := &Runner{
		opts:     opts,
		sem:      make(chan struct{}, opts.MaxSandboxes),
		limiter:  util.NewLimiter(opts.LaunchesPerSecond, opts.MaxSandboxes),
		inflight: make(map[string]*inflightRun),
	}
	r.runFn = r.run
	return r
}

// Extract imports each top-level module of the installed package and folds
// the reported members into a runtime Summary. A crashing top-level module
// becomes a diagnostic and the rest of the pass continues; a timeout fails
// the whole pass, since a partial timeout means the environment cannot be
// trusted to finish. An error is also returned when no module could be
// introspected at all.
func (r *Runner) Extract(ctx context.Context, pkgName, version string, topLevels []string) (*api.Summary, []api.Diagnostic, error) {
	key := pkgName + "@" + version

	r.mu.Lock()
	if run, ok := r.inflight[key]; ok {
		r.mu.Unlock()
		select {
		case <-run.done:
			return run.summary, run.diags, run.err
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
	run := &inflightRun{done: make(chan struct{})}
	r.inflight[key] = run
	r.mu.Unlock()

	run.summary, run.diags, run.err = r.extract(ctx, pkgName, version, topLevels)
	close(run.done)

	r.mu.Lock()
	delete(r.inflight, key)
	r.mu.Unlock()
	return run.summary, run.diags, run.err
}

func (r *Runner) extract(ctx context.Context, pkgName, version string, topLevels []string) (*api.Summary, []api.Diagnostic, error) {
	if len(topLevels) == 0 {
		topLevels = []string{pkgName}
	}

	summary := api.NewSummary(pkgName, version)
	var diags []api.Diagnostic
	var firstErr error
	failed := 0
	for _, top := range topLevels {
		p, err := r.runFn(ctx, top)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			slog.Warn("dynamic extraction failed for top-level module",
				"package", pkgName, "version", version, "module", top, "error", err)
			diags = append(diags, api.Diagnostic{Code: string(codeOf(err)), Path: top, Detail: err.Error()})
			if errors.IsCode(err, errors.CodeImportTimeout) {
				return nil, diags, errors.AddContext(
					errors.AddContext(err, errors.CtxPackage, pkgName),
					errors.CtxVersion, version)
			}
			failed++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		diags = append(diags, foldPayload(summary, p)...)
	}
	if failed == len(topLevels) {
		return nil, diags, errors.AddContext(
			errors.AddContext(firstErr, errors.CtxPackage, pkgName),
			errors.CtxVersion, version)
	}

	observability.EntitiesExtracted.WithLabelValues("dynamic").Add(float64(len(summary.Entities)))
	return summary, diags, nil
}

func (r *Runner) run(ctx context.Context, topLevel string) (*payload, error) {
	if err := r.limiter.Wait(ctx, 1); err != nil {
		return nil, err
	}
	select {
	case r.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-r.sem }()

	runCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	observability.SandboxLaunchesTotal.Inc()
	observability.SandboxesActive.Inc()
	defer observability.SandboxesActive.Dec()

	cmd := exec.CommandContext(runCtx, r.opts.PythonBin, "-I", "-c", introspectScript, topLevel)
	// The interpreter may fork (import-time side effects); kill the whole
	// process group on timeout so nothing outlives the run.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	observability.ExtractionDuration.WithLabelValues("dynamic").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, classifyRunError(runCtx, topLevel, err, stderr.Bytes())
	}

	var p payload
	if err := json.Unmarshal(stdout.Bytes(), &p); err != nil {
		return nil, errors.AddContext(
			errors.Wrap(err, errors.CodeImportCrash, "malformed introspection output"),
			errors.CtxSymbol, topLevel)
	}
	return &p, nil
}

func classifyRunError(runCtx context.Context, topLevel string, err error, stderr []byte) error {
	if runCtx.Err() == context.DeadlineExceeded {
		observability.SandboxFailuresTotal.WithLabelValues("timeout").Inc()
		return errors.AddContext(
			errors.New(errors.CodeImportTimeout, "interpreter did not finish in time"),
			errors.CtxSymbol, topLevel)
	}
	observability.SandboxFailuresTotal.WithLabelValues("crash").Inc()

	detail := strings.TrimSpace(string(stderr))
	if len(detail) > stderrExcerptLimit {
		detail = detail[:stderrExcerptLimit]
	}
	if detail == "" {
		detail = err.Error()
	}
	return errors.AddContext(
		errors.New(errors.CodeImportCrash, detail),
		errors.CtxSymbol, topLevel)
}

func codeOf(err error) errors.ErrorCode {
	if errors.IsCode(err, errors.CodeImportTimeout) {
		return errors.CodeImportTimeout
	}
	return errors.CodeImportCrash
}

// payload mirrors the JSON document printed by introspect.py.
type payload struct {
	Entities []api.Entity      `json:"entities"`
	Failures map[string]string `json:"failures"`
}

// foldPayload stamps origin and visibility on the reported entities and puts
// them into the summary. Per-module import failures become diagnostics.
func foldPayload(summary *api.Summary, p *payload) []api.Diagnostic {
	for _, e := range p.Entities {
		e.SourceOrigin = api.OriginDynamic
		if e.Visibility == "" {
			if api.IsPublicName(e.QualifiedName) {
				e.Visibility = api.Public
			} else {
				e.Visibility = api.Private
			}
		}
		summary.Put(e)
	}

	var diags []api.Diagnostic
	for _, module := range util.SortedStringKeys(p.Failures) {
		diags = append(diags, api.Diagnostic{
			Code:   string(errors.CodeImportCrash),
			Path:   module,
			Detail: p.Failures[module],
		})
	}
	return diags
}
