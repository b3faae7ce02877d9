// Package engine is the caller-facing API: it owns the manager registry,
// the cache, the aggregator and the operation queue, and wires them from
// one configuration.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/charmbracelet/log"

	"omnipkg/internal/config"
	"omnipkg/internal/executor"
	"omnipkg/pkg/aggregate"
	"omnipkg/pkg/cache"
	"omnipkg/pkg/classify"
	"omnipkg/pkg/manager"
	"omnipkg/pkg/manager/language"
	"omnipkg/pkg/manager/native"
	"omnipkg/pkg/manager/universal"
	"omnipkg/pkg/operation"
)

// Options configures an Engine.
type Options struct {
	// Config defaults to config.Default().
	Config *config.Config
	// Executor runs every tool. Defaults to one built from the config.
	Executor *executor.Executor
	// CacheDir defaults to config.CacheDir().
	CacheDir string
	// Recorder receives finished operations. Optional.
	Recorder operation.Recorder
	Logger   *log.Logger
	// Managers replaces the built-in manager variants.
	Managers []manager.Manager
}

// Engine aggregates package managers.
type Engine struct {
	cfg      *config.Config
	registry *manager.Registry
	exec     *executor.Executor
	cache    *cache.Store
	agg      *aggregate.Aggregator
	queue    *operation.Queue
	logger   *log.Logger
}

// Builtin returns every manager variant this build knows.
func Builtin(cfg *config.Config) ([]manager.Manager, error) {
	var all []manager.Manager
	for _, build := range []func(*config.Config) ([]manager.Manager, error){native.All, universal.All, language.All} {
		ms, err := build(cfg)
		if err != nil {
			return nil, err
		}
		all = append(all, ms...)
	}
	return all, nil
}

// New builds an engine.
func New(opts Options) (*Engine, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	managers := opts.Managers
	if managers == nil {
		var err error
		if managers, err = Builtin(cfg); err != nil {
			return nil, fmt.Errorf("configuring managers: %w", err)
		}
	}
	registry := manager.NewRegistry(cfg)
	for _, m := range managers {
		registry.Register(m)
	}
	if err := registry.Detect(); err != nil {
		logger.Warn("system detection failed", "err", err)
	}

	exec := opts.Executor
	if exec == nil {
		exec = executor.New(cfg.General.DryRun, false)
		exec.SetLogger(logger.WithPrefix("exec"))
	}
	dir := opts.CacheDir
	if dir == "" {
		dir = config.CacheDir()
	}
	store := cache.New(dir, logger.WithPrefix("cache"))

	e := &Engine{
		cfg:      cfg,
		registry: registry,
		exec:     exec,
		cache:    store,
		agg: aggregate.New(aggregate.Options{
			Runner:  exec,
			Cache:   store,
			Retries: cfg.General.SearchRetries,
			Limit:   cfg.General.MaxParallelQueries,
			Logger:  logger.WithPrefix("aggregate"),
		}),
		logger: logger,
	}
	e.queue = operation.New(operation.Options{
		Runner:      exec,
		Managers:    registry,
		MaxParallel: cfg.General.MaxParallelOperations,
		OutputLines: cfg.General.OutputLines,
		Recorder:    opts.Recorder,
		OnFinish:    e.afterOperation,
		Logger:      logger.WithPrefix("operation"),
	})
	return e, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// Registry returns the manager registry.
func (e *Engine) Registry() *manager.Registry {
	return e.registry
}

// Managers returns the descriptor of every known manager in priority
// order, enabled or not.
func (e *Engine) Managers() []*manager.Descriptor {
	all := e.registry.All()
	out := make([]*manager.Descriptor, len(all))
	for i, m := range all {
		out[i] = m.Descriptor()
	}
	return out
}

// Rank orders manager names by the configured priority.
func (e *Engine) Rank(name string) int {
	return e.registry.Rank(name)
}

// selectManagers returns the enabled managers named by sources, each a
// manager name or type. No sources selects every enabled manager.
func (e *Engine) selectManagers(sources []string) ([]manager.Manager, error) {
	if len(sources) == 0 {
		return e.registry.Enabled(), nil
	}
	var out []manager.Manager
	add := func(m manager.Manager) {
		if !slices.Contains(out, m) {
			out = append(out, m)
		}
	}
	for _, s := range sources {
		if m, ok := e.registry.Get(s); ok {
			if !m.Descriptor().Enabled {
				return nil, fmt.Errorf("%s: %w", s, operation.ErrDisabled)
			}
			add(m)
			continue
		}
		switch t := manager.ManagerType(s); t {
		case manager.TypeNative, manager.TypeUniversal, manager.TypeLanguage:
			for _, m := range e.registry.Enabled() {
				if m.Descriptor().Type == t {
					add(m)
				}
			}
		default:
			return nil, fmt.Errorf("%s: %w", s, manager.ErrUnknownManager)
		}
	}
	return out, nil
}

// Dispatch runs a query against the selected managers. See
// aggregate.Aggregator.Dispatch for the stream's contract.
func (e *Engine) Dispatch(ctx context.Context, q aggregate.Query, sources ...string) (<-chan aggregate.Event, error) {
	managers, err := e.selectManagers(sources)
	if err != nil {
		return nil, err
	}
	return e.agg.Dispatch(ctx, managers, q), nil
}

// Search looks query up in every selected manager.
func (e *Engine) Search(ctx context.Context, query string, sources ...string) (<-chan aggregate.Event, error) {
	if query == "" {
		return nil, errors.New("search query is required")
	}
	return e.Dispatch(ctx, aggregate.Query{Kind: manager.QuerySearch, Text: query}, sources...)
}

// ListInstalled lists installed packages, served from the cache where the
// managers' policies allow.
func (e *Engine) ListInstalled(ctx context.Context, sources ...string) (<-chan aggregate.Event, error) {
	return e.Dispatch(ctx, aggregate.Query{Kind: manager.QueryInstalled}, sources...)
}

// ListUpgradable lists packages with a newer version available. Events
// carry the new version.
func (e *Engine) ListUpgradable(ctx context.Context, sources ...string) (<-chan aggregate.Event, error) {
	return e.Dispatch(ctx, aggregate.Query{Kind: manager.QueryUpdates}, sources...)
}

// GetInfo returns what a manager knows about a package. Details are best
// effort: fields the tool did not print are "unknown". Only a tool that
// cannot run at all is an error.
func (e *Engine) GetInfo(ctx context.Context, id, managerName string) (*manager.PackageDetails, error) {
	m, err := e.lookup(managerName)
	if err != nil {
		return nil, err
	}
	id = e.cfg.ResolveAlias(id)
	inv, err := m.Info(id)
	if err != nil {
		return nil, fmt.Errorf("info on %s: %w", managerName, err)
	}
	d := m.Descriptor()
	lines, res, err := e.exec.Output(ctx, d.QueryCommand(inv))
	if err != nil {
		return nil, fmt.Errorf("info on %s: %w", managerName, err)
	}
	details := m.ParseInfo(id, lines)
	if details.Source == nil {
		details.Source = d
	}
	if res.ExitCode != 0 {
		e.logger.Info("info exited nonzero", "manager", d.Name, "id", id, "exit", res.ExitCode)
	}
	return details, nil
}

// Execute submits an operation. The handle streams its events; the
// cache is adjusted before Done when it succeeds.
func (e *Engine) Execute(ctx context.Context, kind manager.OperationKind, id, managerName string, opts manager.Options) (*operation.Handle, error) {
	h, err := e.queue.Submit(ctx, operation.Request{
		Kind:      kind,
		PackageID: e.cfg.ResolveAlias(id),
		Manager:   managerName,
		Options:   opts,
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

// afterOperation keeps the installed listing in step with a successful
// operation: an uninstalled package is dropped, and a TTL cache that would
// hide the change until it expires is discarded. The queue calls it before
// the operation's Done event.
func (e *Engine) afterOperation(op operation.Operation) {
	res := op.Result
	if !res.Success() || res.Reason == operation.ReasonDryRun {
		return
	}
	m, ok := e.registry.Get(op.Manager)
	if !ok {
		return
	}
	var err error
	switch {
	case op.Kind == manager.Uninstall:
		err = e.cache.Forget(op.Manager, op.PackageID)
	case m.CachePolicy().Mode == cache.TTL && res.Outcome != classify.NoApplicableUpdate:
		err = e.cache.Clear(op.Manager)
	}
	if err != nil {
		e.logger.Warn("cache maintenance failed", "manager", op.Manager, "err", err)
	}
}

// Cancel stops an operation by id.
func (e *Engine) Cancel(id string) error {
	return e.queue.Cancel(id)
}

// Active returns the queued and running operations.
func (e *Engine) Active() []operation.Operation {
	return e.queue.Active()
}

// RebuildCache relists the installed packages of one manager, or of every
// enabled manager when name is empty, and merges them into the cache.
func (e *Engine) RebuildCache(ctx context.Context, name string) (map[string]int, error) {
	var managers []manager.Manager
	if name == "" {
		managers = e.registry.Available()
	} else {
		m, err := e.lookup(name)
		if err != nil {
			return nil, err
		}
		managers = []manager.Manager{m}
	}

	counts := make(map[string]int, len(managers))
	var errs []error
	for _, m := range managers {
		n, err := e.agg.Refresh(ctx, m)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		counts[m.Descriptor().Name] = n
	}
	return counts, errors.Join(errs...)
}

// ClearCache deletes one manager's cached listing, or all of them when
// name is empty.
func (e *Engine) ClearCache(name string) error {
	if name == "" {
		return e.cache.ClearAll()
	}
	if _, ok := e.registry.Get(name); !ok {
		return fmt.Errorf("%s: %w", name, manager.ErrUnknownManager)
	}
	return e.cache.Clear(name)
}

// Cached returns a manager's cached installed listing.
func (e *Engine) Cached(name string) cache.Entry {
	return e.cache.Load(name)
}

// Close cancels pending operations and waits for running ones.
func (e *Engine) Close() error {
	e.queue.Close()
	return nil
}

func (e *Engine) lookup(name string) (manager.Manager, error) {
	m, ok := e.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, manager.ErrUnknownManager)
	}
	if !m.Descriptor().Enabled {
		return nil, fmt.Errorf("%s: %w", name, operation.ErrDisabled)
	}
	return m, nil
}
