package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Asdf0717/Py4A/internal/core/app"
	"github.com/Asdf0717/Py4A/internal/core/config"
	"github.com/Asdf0717/Py4A/internal/shared/observability"
	"github.com/Asdf0717/Py4A/internal/shared/util"
)

var (
	configPath = flag.String("config", "./py4a.toml", "Path to config file")
	extract    = flag.Bool("extract", false, "Extract API surface: py4a --extract <package> <version> <source-dir>")
	diffMode   = flag.Bool("diff", false, "Diff two extracted versions: py4a --diff <package> <old-version> <new-version>")
	usageMode  = flag.Bool("usage", false, "Match client usage: py4a --usage <client-dir> <package@version> [<package@version>...]")
	topLevels  = flag.String("top-levels", "", "Comma-separated importable top-level modules for the dynamic pass")
	outPath    = flag.String("out", "", "Write JSON results to this file instead of stdout")
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	version    = flag.Bool("version", false, "Print version and exit")
)

const VERSION = "1.0.0"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("py4a v%s\n", VERSION)
		os.Exit(0)
	}

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		if *configPath == "./py4a.toml" && os.IsNotExist(err) {
			slog.Debug("no config file found, using defaults")
			cfg = config.Default()
		} else {
			slog.Error("failed to load config", "error", err)
			os.Exit(1)
		}
	}

	modes := 0
	for _, on := range []bool{*extract, *diffMode, *usageMode} {
		if on {
			modes++
		}
	}
	if modes != 1 {
		fmt.Fprintln(os.Stderr, "exactly one of --extract, --diff, --usage is required")
		flag.Usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Observability.TraceEnabled {
		shutdown, err := observability.SetupTracing(ctx, cfg.Observability.ServiceName, cfg.Observability.OTLPEndpoint)
		if err != nil {
			slog.Error("failed to set up tracing", "error", err)
			os.Exit(1)
		}
		defer shutdown(context.Background())
	}

	if cfg.Observability.MetricsAddr != "" {
		srv := observability.NewServer(cfg.Observability.MetricsAddr)
		if err := srv.Start(ctx); err != nil {
			slog.Error("failed to start observability server", "error", err)
			os.Exit(1)
		}
		defer srv.Stop(context.Background())
	}

	a, err := app.New(cfg)
	if err != nil {
		slog.Error("failed to initialize app", "error", err)
		os.Exit(1)
	}
	defer a.Close(context.Background())

	switch {
	case *extract:
		err = runExtract(ctx, a)
	case *diffMode:
		err = runDiff(ctx, a)
	case *usageMode:
		err = runUsage(ctx, a)
	}
	if err != nil {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func runExtract(ctx context.Context, a *app.App) error {
	if flag.NArg() != 3 {
		return fmt.Errorf("extract mode requires three arguments: <package> <version> <source-dir>")
	}
	req := app.ExtractRequest{
		Package:   flag.Arg(0),
		Version:   flag.Arg(1),
		SourceDir: flag.Arg(2),
	}
	if *topLevels != "" {
		req.TopLevels = strings.Split(*topLevels, ",")
	}

	summary, report, err := a.ExtractVersion(ctx, req)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"report":  report,
		"summary": summary,
	})
}

func runDiff(ctx context.Context, a *app.App) error {
	if flag.NArg() != 3 {
		return fmt.Errorf("diff mode requires three arguments: <package> <old-version> <new-version>")
	}
	records, err := a.DiffVersions(ctx, flag.Arg(0), flag.Arg(1), flag.Arg(2))
	if err != nil {
		return err
	}
	return printJSON(records)
}

func runUsage(ctx context.Context, a *app.App) error {
	if flag.NArg() < 2 {
		return fmt.Errorf("usage mode requires arguments: <client-dir> <package@version> [<package@version>...]")
	}
	clientDir := flag.Arg(0)
	var refs []app.PackageRef
	for _, arg := range flag.Args()[1:] {
		pkg, ver, ok := strings.Cut(arg, "@")
		if !ok || pkg == "" || ver == "" {
			return fmt.Errorf("malformed package reference %q, want <package>@<version>", arg)
		}
		refs = append(refs, app.PackageRef{Package: pkg, Version: ver})
	}

	records, diags, err := a.MatchUsage(ctx, clientDir, refs)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"records":     records,
		"diagnostics": diags,
	})
}

func printJSON(v any) error {
	if *outPath != "" {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		return util.WriteFileWithDirs(*outPath, append(data, '\n'), 0o644)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
