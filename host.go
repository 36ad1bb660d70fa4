package modhost

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/GoCodeAlone/modhost/schema"
)

// HostOption configures a Host.
type HostOption func(*Host)

// WithDB sets the database the collected schema is applied to. The handle
// is also registered as the "modhost.db" service.
func WithDB(db *sql.DB) HostOption {
	return func(h *Host) {
		h.db = db
	}
}

// WithRouter replaces the default chi mux.
func WithRouter(r chi.Router) HostOption {
	return func(h *Host) {
		if r != nil {
			h.router = r
		}
	}
}

// WithServiceRegistry replaces the default service registry, for hosts that
// register their own services before booting.
func WithServiceRegistry(reg *ServiceRegistry) HostOption {
	return func(h *Host) {
		if reg != nil {
			h.services = reg
		}
	}
}

// Host runs the configuration phases of discovered modules before handing
// them to the loader:
//
//	Configure -> ConfigureServices -> ConfigureSchema -> schema apply -> ConfigureMiddleware -> startup
//
// A module failing one of these phases is dropped and the others continue.
type Host struct {
	logger   Logger
	loader   *Loader
	services *ServiceRegistry
	schema   *schema.Builder
	router   chi.Router
	db       *sql.DB

	// registered holds the service names each module added, so a dropped
	// module takes its services with it.
	registered map[string][]string

	mu     sync.Mutex
	booted bool
}

// NewHost creates a host around loader and registers the built-in services.
func NewHost(logger Logger, loader *Loader, opts ...HostOption) (*Host, error) {
	logger = loggerOrNop(logger)
	if loader == nil {
		loader = NewLoader(logger)
	}
	h := &Host{
		logger:     logger,
		loader:     loader,
		schema:     schema.NewBuilder(),
		router:     chi.NewRouter(),
		registered: make(map[string][]string),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.services == nil {
		h.services = NewServiceRegistry(logger)
	}

	builtins := map[string]any{
		ServiceLogger: logger,
		ServiceHost:   h,
		ServiceLoader: loader,
		ServiceSchema: h.schema,
	}
	if h.db != nil {
		builtins[ServiceDB] = h.db
	}
	for name, svc := range builtins {
		if h.services.HasService(name) {
			continue
		}
		if err := h.services.RegisterService(name, svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", name, err)
		}
	}
	return h, nil
}

func (h *Host) Loader() *Loader            { return h.loader }
func (h *Host) Services() *ServiceRegistry { return h.services }
func (h *Host) Schema() *schema.Builder    { return h.schema }
func (h *Host) Router() chi.Router         { return h.router }

// Boot discovers the modules under path and starts them.
func (h *Host) Boot(ctx context.Context, path string) error {
	modules, err := h.loader.DiscoverModules(ctx, path)
	if err != nil {
		return fmt.Errorf("discover modules: %w", err)
	}
	return h.Start(ctx, modules)
}

// Start configures and starts modules that were built elsewhere, for
// example directly from a catalog. It may only run once per host.
func (h *Host) Start(ctx context.Context, modules []Module) error {
	h.mu.Lock()
	if h.booted {
		h.mu.Unlock()
		return ErrHostAlreadyBooted
	}
	h.booted = true
	h.mu.Unlock()

	var configured []Module
	for _, m := range LoadOrder(modules) {
		if err := h.configure(m); err != nil {
			h.drop(m, err)
			continue
		}
		configured = append(configured, m)
	}

	if h.db != nil {
		configured = h.applySchema(ctx, configured)
	}

	var ready []Module
	for _, m := range configured {
		err := guard(func() error { return m.ConfigureMiddleware(h.router) })
		if err != nil {
			h.drop(m, &LifecycleError{ModuleID: m.ID(), Phase: PhaseMiddleware, Err: err})
			continue
		}
		ready = append(ready, m)
	}

	return h.loader.InitializeModules(ctx, h.services, ready)
}

// Shutdown stops every loaded module in reverse load order.
func (h *Host) Shutdown(ctx context.Context) {
	h.loader.ShutdownModules(ctx)
}

func (h *Host) configure(m Module) error {
	if c, ok := m.(Configurable); ok {
		settings := NewSettings(nil)
		if pkg, found := h.loader.Package(m.ID()); found {
			settings = NewSettings(pkg.Manifest.Settings)
		}
		if err := guard(func() error { return c.Configure(settings) }); err != nil {
			return &LifecycleError{ModuleID: m.ID(), Phase: PhaseConfigure, Err: err}
		}
	}
	services := &moduleServices{ServiceRegistry: h.services}
	err := guard(func() error { return m.ConfigureServices(services) })
	h.registered[m.ID()] = services.names
	if err != nil {
		return &LifecycleError{ModuleID: m.ID(), Phase: PhaseServices, Err: err}
	}
	if err := guard(func() error { return m.ConfigureSchema(h.schema.Owner(m.ID())) }); err != nil {
		return &LifecycleError{ModuleID: m.ID(), Phase: PhaseSchema, Err: err}
	}
	return nil
}

// applySchema creates each module's tables in its own transaction and
// returns the modules whose schema applied.
func (h *Host) applySchema(ctx context.Context, modules []Module) []Module {
	var applied []Module
	for _, m := range modules {
		n := len(h.schema.OwnedBy(m.ID()))
		if n == 0 {
			applied = append(applied, m)
			continue
		}
		if err := h.schema.ApplyOwner(ctx, h.db, m.ID()); err != nil {
			h.drop(m, &LifecycleError{ModuleID: m.ID(), Phase: PhaseSchema, Err: err})
			continue
		}
		h.logger.Info("Applied module schema", "module", m.ID(), "entities", n)
		applied = append(applied, m)
	}
	return applied
}

func (h *Host) drop(m Module, err error) {
	if n := h.schema.RemoveOwner(m.ID()); n > 0 {
		h.logger.Debug("Removed schema entities of dropped module", "module", m.ID(), "entities", n)
	}
	for _, name := range h.registered[m.ID()] {
		h.services.Unregister(name)
	}
	delete(h.registered, m.ID())
	h.logger.Error("Module configuration failed, dropping module", "module", m.Name(), "error", err)
	data := moduleEventData(m)
	data.Error = err.Error()
	if lerr, ok := err.(*LifecycleError); ok {
		data.Phase = lerr.Phase
	}
	h.loader.emit(context.Background(), EventTypeModuleSkipped, data)
}

// moduleServices records the names one module registers.
type moduleServices struct {
	*ServiceRegistry
	names []string
}

func (s *moduleServices) RegisterService(name string, service any) error {
	if err := s.ServiceRegistry.RegisterService(name, service); err != nil {
		return err
	}
	s.names = append(s.names, name)
	return nil
}
