// Package app implements the application layer for tern.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"go.trai.ch/tern/internal/adapters/telemetry"
	ternprogrock "go.trai.ch/tern/internal/adapters/telemetry/progrock"
	"go.trai.ch/tern/internal/adapters/tui"
	"go.trai.ch/tern/internal/core/domain"
	"go.trai.ch/tern/internal/core/ports"
	"go.trai.ch/tern/internal/engine"
	"go.trai.ch/zerr"
)

// App represents the main application logic.
type App struct {
	loader     ports.CatalogLoader
	engine     *engine.Engine
	history    ports.HistoryStore
	console    ports.ResultSink
	logger     ports.Logger
	stdout     io.Writer
	teaOptions []tea.ProgramOption
}

// New creates a new App instance. console receives the result stream unless the TUI is enabled.
func New(
	loader ports.CatalogLoader,
	eng *engine.Engine,
	history ports.HistoryStore,
	console ports.ResultSink,
	log ports.Logger,
) *App {
	return &App{
		loader:  loader,
		engine:  eng,
		history: history,
		console: console,
		logger:  log,
		stdout:  os.Stdout,
	}
}

// WithTeaOptions adds bubbletea program options to the App.
// This is primarily used for testing to disable input/output.
func (a *App) WithTeaOptions(opts ...tea.ProgramOption) *App {
	a.teaOptions = append(a.teaOptions, opts...)
	return a
}

// WithOutput redirects the plan printed by List.
func (a *App) WithOutput(w io.Writer) *App {
	a.stdout = w
	return a
}

// Options are shared by every command.
type Options struct {
	// ConfigPath is the suite file. Empty searches the working directory and its parents.
	ConfigPath string
	Verbose    bool
	JSON       bool
}

// RunOptions configuration for the Run method.
type RunOptions struct {
	Options
	// Patterns select tests by glob over their ids. Empty selects everything.
	Patterns []string
	// OnlyFailed keeps the tests whose last recorded run did not pass.
	OnlyFailed bool
	// Workers overrides the suite's worker limit when positive.
	Workers  int
	FailFast bool
	// TracePath receives OpenTelemetry spans as JSON lines.
	TracePath string
	// JournalPath receives progrock status updates as JSON lines.
	JournalPath string
	// TUI replaces the console output with the interactive interface.
	TUI bool
	// Inspect keeps the interface open after the session until the user quits.
	Inspect bool
}

// ListOptions configuration for the List method.
type ListOptions struct {
	Options
	Patterns []string
}

type logSettings interface {
	SetVerbose(verbose bool)
	SetJSON(enabled bool)
}

func (a *App) configureLogger(opts Options) {
	if s, ok := a.logger.(logSettings); ok {
		s.SetVerbose(opts.Verbose)
		s.SetJSON(opts.JSON)
	}
}

// Run executes the selected tests and records their outcomes.
// It returns an error wrapping domain.ErrTestsFailed when any test failed or was cancelled.
func (a *App) Run(ctx context.Context, opts RunOptions) error {
	a.configureLogger(opts.Options)

	// 1. Load and select
	suite, err := a.load(opts.ConfigPath, opts.Patterns)
	if err != nil {
		return err
	}

	if opts.OnlyFailed {
		suite.Catalog, err = a.previouslyFailed(suite.Catalog)
		if err != nil {
			return err
		}
	}
	if suite.Catalog.Len() == 0 {
		a.logger.Warn("no tests selected")
		return nil
	}

	// 2. Apply overrides
	if opts.Workers > 0 {
		suite.Config.Workers = opts.Workers
	}
	if opts.FailFast {
		suite.Config.FailFast = true
	}

	// 3. Open sinks
	extra, closeSinks, err := openSinks(ctx, opts)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	console := a.console
	var ui *tui.Sink
	if opts.TUI {
		ui = tui.NewSink(opts.Inspect, append([]tea.ProgramOption{tea.WithOutput(os.Stderr)}, a.teaOptions...)...)
		ui.Start()
		// Quitting the interface stops the session.
		go func() {
			select {
			case <-ui.Done():
				cancel()
			case <-runCtx.Done():
			}
		}()
		console = ui
	}

	// 4. Run the engine
	report, runErr := a.engine.Run(runCtx, suite, append([]ports.ResultSink{console}, extra...)...)
	if ui != nil {
		if err := ui.Close(); err != nil {
			a.logger.Error(zerr.Wrap(err, "terminal interface failed"))
		}
	}
	if err := closeSinks(); err != nil {
		a.logger.Error(zerr.Wrap(err, "failed to close telemetry sinks"))
	}
	if report == nil {
		return runErr
	}

	// 5. Record history
	if err := a.history.Put(report.Records()...); err != nil {
		a.logger.Warn(fmt.Sprintf("run history not saved: %v", err))
	}

	if runErr != nil {
		return runErr
	}
	if report.Failed() {
		return errors.Join(append([]error{domain.ErrTestsFailed}, failures(report)...)...)
	}
	return nil
}

func failures(report *engine.Report) []error {
	var errs []error
	for _, res := range report.Results() {
		o := res.Outcome
		if o.Status != domain.StatusFailed && o.Status != domain.StatusCancelled {
			continue
		}
		err := o.Err()
		if err == nil {
			err = zerr.New(string(o.Status))
		}
		errs = append(errs, zerr.With(err, "test", res.Test.ID.String()))
	}
	return errs
}

func (a *App) load(path string, patterns []string) (*domain.Suite, error) {
	suite, err := a.loader.Load(path)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to load suite")
	}

	selected, err := suite.Catalog.Select(patterns)
	if err != nil {
		return nil, err
	}
	return &domain.Suite{Catalog: selected, Hooks: suite.Hooks, Config: suite.Config}, nil
}

// previouslyFailed narrows c to the tests whose last recorded run did not pass,
// together with their dependencies.
func (a *App) previouslyFailed(c *domain.Catalog) (*domain.Catalog, error) {
	var patterns []string
	for _, d := range c.All() {
		rec, err := a.history.Get(d.ID.String())
		if err != nil {
			return nil, err
		}
		if rec != nil && !rec.Passed() {
			patterns = append(patterns, escapePattern(d.ID.String()))
		}
	}
	if len(patterns) == 0 {
		a.logger.Info("no previously failed tests")
		return domain.NewCatalog(), nil
	}
	return c.Select(patterns)
}

var patternMeta = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`)

func escapePattern(id string) string {
	return patternMeta.Replace(id)
}

func openSinks(ctx context.Context, opts RunOptions) ([]ports.ResultSink, func() error, error) {
	var (
		sinks   []ports.ResultSink
		closers []func() error
	)
	closeAll := func() error {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c())
		}
		return errors.Join(errs...)
	}

	if opts.TracePath != "" {
		f, err := create(opts.TracePath)
		if err != nil {
			return nil, nil, err
		}
		tp := telemetry.NewProvider(f)
		sinks = append(sinks, telemetry.NewSpanSink(tp))
		closers = append(closers, func() error {
			return errors.Join(tp.Shutdown(context.WithoutCancel(ctx)), f.Close())
		})
	}

	if opts.JournalPath != "" {
		f, err := create(opts.JournalPath)
		if err != nil {
			_ = closeAll()
			return nil, nil, err
		}
		sink := ternprogrock.New(ternprogrock.NewJournal(f))
		sinks = append(sinks, sink)
		closers = append(closers, sink.Close)
	}

	return sinks, closeAll, nil
}

func create(path string) (*os.File, error) {
	// #nosec G304 -- path is chosen by the user
	f, err := os.Create(path)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to create output file"), "path", path)
	}
	return f, nil
}
