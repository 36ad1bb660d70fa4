package modhost

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"sync"
	"time"
)

// DefaultPackagePattern is the file-name glob of module packages.
const DefaultPackagePattern = "*.module.*"

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithCatalog sets the catalog entry points are resolved against.
func WithCatalog(c *Catalog) LoaderOption {
	return func(l *Loader) {
		if c != nil {
			l.catalog = c
		}
	}
}

// WithPackagePattern sets the file-name glob used by DiscoverModules.
func WithPackagePattern(pattern string) LoaderOption {
	return func(l *Loader) {
		if pattern != "" {
			l.pattern = pattern
		}
	}
}

// WithCycleDetection toggles the cycle check over required dependencies.
// When off, modules in a cycle are still skipped, each failing its own
// dependency check because the other never loads.
func WithCycleDetection(enabled bool) LoaderOption {
	return func(l *Loader) {
		l.detectCycles = enabled
	}
}

// WithStartupTimeout bounds each OnStartup call. Zero means no bound.
func WithStartupTimeout(d time.Duration) LoaderOption {
	return func(l *Loader) {
		l.startupTimeout = d
	}
}

// WithShutdownTimeout bounds each OnShutdown call. Zero means no bound.
func WithShutdownTimeout(d time.Duration) LoaderOption {
	return func(l *Loader) {
		l.shutdownTimeout = d
	}
}

// Loader discovers module packages, checks dependencies and drives modules
// through startup and shutdown. It owns the set of loaded modules and the
// package handles they were built from. Errors raised by modules never
// escape its methods; they are logged, published to observers and the
// module is left out of the loaded set.
type Loader struct {
	observers

	logger          Logger
	catalog         *Catalog
	pattern         string
	detectCycles    bool
	startupTimeout  time.Duration
	shutdownTimeout time.Duration

	mu       sync.RWMutex
	loaded   map[string]Module
	order    []string
	packages map[string]*Package
}

// NewLoader creates a loader. A nil logger discards output.
func NewLoader(logger Logger, opts ...LoaderOption) *Loader {
	l := &Loader{
		logger:       loggerOrNop(logger),
		catalog:      NewCatalog(),
		pattern:      DefaultPackagePattern,
		detectCycles: true,
		loaded:       make(map[string]Module),
		packages:     make(map[string]*Package),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Catalog returns the catalog entry points are resolved against.
func (l *Loader) Catalog() *Catalog {
	return l.catalog
}

// InitializeModules starts modules in load order, each after its
// dependencies were checked against the modules already started. A module
// that fails its check or its startup is skipped and the batch continues.
// The returned error only reports a cancelled context or skipped duplicate
// IDs.
func (l *Loader) InitializeModules(ctx context.Context, services ServiceProvider, modules []Module) error {
	sorted := LoadOrder(modules)

	var cycles map[string][]string
	if l.detectCycles {
		cycles = findCycles(sorted)
	}

	var errs []error
	for _, m := range sorted {
		if err := ctx.Err(); err != nil {
			l.logger.Error("Module initialization cancelled", "error", err)
			return errors.Join(append(errs, err)...)
		}

		id := m.ID()
		if l.IsModuleLoaded(id) {
			err := fmt.Errorf("%w: %s", ErrDuplicateModuleID, id)
			l.logger.Error("Duplicate module ID, skipping module", "module", m.Name(), "id", id)
			l.emitSkipped(ctx, m, PhaseDependency, err)
			errs = append(errs, err)
			continue
		}

		if path, ok := cycles[id]; ok {
			err := &DependencyError{Kind: DependencyCycle, ModuleID: id, Cycle: path}
			l.logger.Error("Module is part of a dependency cycle, skipping", "module", m.Name(), "cycle", err.Error())
			l.emitSkipped(ctx, m, PhaseDependency, err)
			continue
		}

		if err := guard(func() error { return l.CheckDependencies(m) }); err != nil {
			l.logger.Error("Module dependencies not satisfied, skipping", "module", m.Name(), "error", err)
			l.emitSkipped(ctx, m, PhaseDependency, err)
			continue
		}

		err := callWithTimeout(ctx, l.startupTimeout, func(ctx context.Context) error {
			return m.OnStartup(ctx, services)
		})
		if errors.Is(err, ErrModuleDisabled) {
			l.logger.Info("Module is disabled, not loading", "module", m.Name())
			l.emit(ctx, EventTypeModuleDisabled, moduleEventData(m))
			continue
		}
		if err != nil {
			lerr := &LifecycleError{ModuleID: id, Phase: PhaseStartup, Err: err}
			l.logger.Error("Failed to initialize module", "module", m.Name(), "error", lerr)
			data := moduleEventData(m)
			data.Phase = PhaseStartup
			data.Error = err.Error()
			l.emit(ctx, EventTypeModuleFailed, data)
			continue
		}

		l.mu.Lock()
		l.loaded[id] = m
		l.order = append(l.order, id)
		l.mu.Unlock()

		l.logger.Info("Module initialized", "module", m.Name(), "version", m.Version(), "priority", m.Priority())
		l.emit(ctx, EventTypeModuleStarted, moduleEventData(m))
	}

	loaded := l.Len()
	l.logger.Info("Module initialization complete", "loaded", loaded, "total", len(sorted))
	l.emit(ctx, EventTypeLoaderInitialized, ModuleEventData{Loaded: loaded})
	return errors.Join(errs...)
}

// ShutdownModules stops loaded modules in the reverse of load order, logging
// and continuing past failures, then forgets every module and package.
func (l *Loader) ShutdownModules(ctx context.Context) {
	l.mu.RLock()
	modules := make([]Module, 0, len(l.loaded))
	for _, m := range l.loaded {
		modules = append(modules, m)
	}
	l.mu.RUnlock()

	sorted := LoadOrder(modules)
	for _, m := range slices.Backward(sorted) {
		err := callWithTimeout(ctx, l.shutdownTimeout, m.OnShutdown)
		data := moduleEventData(m)
		if err != nil {
			lerr := &LifecycleError{ModuleID: m.ID(), Phase: PhaseShutdown, Err: err}
			l.logger.Error("Error shutting down module", "module", m.Name(), "error", lerr)
			data.Phase = PhaseShutdown
			data.Error = err.Error()
			l.emit(ctx, EventTypeModuleStopFailed, data)
			continue
		}
		l.logger.Info("Module shut down", "module", m.Name())
		l.emit(ctx, EventTypeModuleStopped, data)
	}

	l.mu.Lock()
	clear(l.loaded)
	clear(l.packages)
	l.order = nil
	l.mu.Unlock()

	l.logger.Info("All modules shut down", "count", len(sorted))
	l.emit(ctx, EventTypeLoaderShutdown, ModuleEventData{Loaded: 0})
}

// GetModule returns a started module by ID.
func (l *Loader) GetModule(id string) (Module, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	m, ok := l.loaded[id]
	return m, ok
}

// IsModuleLoaded reports whether the module with id completed startup.
func (l *Loader) IsModuleLoaded(id string) bool {
	_, ok := l.GetModule(id)
	return ok
}

// LoadedModules returns a copy of the loaded-module map.
func (l *Loader) LoadedModules() map[string]Module {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]Module, len(l.loaded))
	for id, m := range l.loaded {
		out[id] = m
	}
	return out
}

// Modules returns the loaded modules in load order.
func (l *Loader) Modules() []Module {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Module, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.loaded[id])
	}
	return out
}

// Len returns the number of loaded modules.
func (l *Loader) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.loaded)
}

// Package returns the package handle a module was built from.
func (l *Loader) Package(id string) (*Package, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.packages[id]
	return p, ok
}

// FindExporter returns the first loaded module, in load order, that lists t
// among its exported types.
func (l *Loader) FindExporter(t reflect.Type) (Module, bool) {
	for _, m := range l.Modules() {
		if slices.Contains(m.ExportedTypes(), t) {
			return m, true
		}
	}
	return nil, false
}

func (l *Loader) emit(ctx context.Context, eventType string, data ModuleEventData) {
	var ext map[string]any
	if data.ModuleID != "" {
		ext = map[string]any{"moduleid": data.ModuleID}
	}
	l.notify(ctx, l.logger, NewCloudEvent(eventType, EventSource, data, ext))
}

func (l *Loader) emitSkipped(ctx context.Context, m Module, phase LifecyclePhase, err error) {
	data := moduleEventData(m)
	data.Phase = phase
	data.Error = err.Error()
	l.emit(ctx, EventTypeModuleSkipped, data)
}

// LoadOrder returns a copy of modules ordered by priority, then name, then
// ID. Shutdown runs in the exact reverse. Nil entries are dropped.
func LoadOrder(modules []Module) []Module {
	out := make([]Module, 0, len(modules))
	for _, m := range modules {
		if m != nil {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Priority() != b.Priority() {
			return a.Priority() < b.Priority()
		}
		if a.Name() != b.Name() {
			return a.Name() < b.Name()
		}
		return a.ID() < b.ID()
	})
	return out
}

// guard converts a panic in fn into an ErrModulePanic error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrModulePanic, r)
		}
	}()
	return fn()
}

// callWithTimeout runs fn under guard. With a positive timeout fn receives a
// context carrying the deadline and is abandoned when the deadline passes.
func callWithTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	if timeout <= 0 {
		return guard(func() error { return fn(ctx) })
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- guard(func() error { return fn(callCtx) })
	}()

	select {
	case err := <-done:
		return err
	case <-callCtx.Done():
		if err := ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("%w after %s", ErrModuleTimeout, timeout)
	}
}
