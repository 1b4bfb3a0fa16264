package app

import (
	"context"

	"github.com/Asdf0717/Py4A/internal/core/config"
	"github.com/Asdf0717/Py4A/internal/data/store"
	"github.com/Asdf0717/Py4A/internal/engine/dynamic"
	"github.com/Asdf0717/Py4A/internal/engine/static"
)

// App wires the extraction engines to the configuration and the knowledge
// base. It holds no per-run state; every operation takes its inputs and
// returns its outputs explicitly.
type App struct {
	Config  *config.Config
	Static  *static.Extractor
	Dynamic *dynamic.Runner
	Store   *store.Store
}

func New(cfg *config.Config) (*App, error) {
	a := &App{
		Config: cfg,
		Static: static.New(cfg.Extract.Workers),
	}

	if cfg.Sandbox.Enabled {
		a.Dynamic = dynamic.NewRunner(dynamic.Options{
			PythonBin:         cfg.Sandbox.PythonBin,
			Timeout:           cfg.Sandbox.ImportTimeout,
			MaxSandboxes:      cfg.Sandbox.MaxSandboxes,
			LaunchesPerSecond: cfg.Sandbox.LaunchesPerSecond,
		})
	}

	if cfg.DB.Enabled {
		st, err := store.Open(cfg.DB.Path)
		if err != nil {
			return nil, err
		}
		a.Store = st
	}

	return a, nil
}

func (a *App) Close(ctx context.Context) error {
	if a == nil || a.Store == nil {
		return nil
	}
	return a.Store.Close()
}
