// Package modhost provides a module runtime for Go host applications.
// It discovers independently packaged feature units ("modules"), checks their
// declared dependencies and version ranges, starts them in a deterministic
// priority order and stops them in exactly the reverse order.
//
// A failing module never takes the host down: discovery errors, unmet
// dependencies, invalid configuration and startup errors only remove the
// offending module from the loaded set, and everything is reported through
// the Logger and lifecycle events.
//
// Basic usage:
//
//	catalog := modhost.NewCatalog()
//	catalog.MustRegister("audit", audit.New)
//
//	loader := modhost.NewLoader(logger, modhost.WithCatalog(catalog))
//	modules, _ := loader.DiscoverModules(ctx, "./modules")
//	_ = loader.InitializeModules(ctx, services, modules)
//	defer loader.ShutdownModules(context.Background())
package modhost

import (
	"context"
	"reflect"

	"github.com/go-chi/chi/v5"

	"github.com/GoCodeAlone/modhost/schema"
)

// Module is the contract every feature unit implements. Most modules embed
// *BaseModule and override only the hooks they need.
type Module interface {
	// ID returns the stable identity of the module. No two loaded modules
	// may share an ID; dependencies refer to modules by ID.
	ID() string

	// Name returns the display name. It is also the tie-breaker for modules
	// that share a priority.
	Name() string

	// Version returns the module version, e.g. "1.4.0".
	Version() string

	// Description returns a human readable summary.
	Description() string

	// Author returns the author or vendor.
	Author() string

	// Priority returns the load-order bucket.
	Priority() Priority

	// Status returns the current lifecycle state. Only the module itself
	// changes it, during its own lifecycle callbacks.
	Status() Status

	// ConfigureServices registers the module's bindings in the shared
	// service container. It is called at most once per module instance.
	ConfigureServices(services ServiceCollection) error

	// ConfigureMiddleware inserts request-handling middleware. Ordering
	// across modules follows load order and is otherwise undefined.
	ConfigureMiddleware(router chi.Router) error

	// ConfigureSchema registers the persistence entities owned by the module.
	ConfigureSchema(builder *schema.Builder) error

	// OnStartup initializes the module with the fully built service
	// container. On success the module is Running; on error it is Failed and
	// the error is returned so the loader can log and skip it.
	//
	// The context carries the startup deadline when the loader was given one.
	OnStartup(ctx context.Context, services ServiceProvider) error

	// OnShutdown releases resources and leaves the module Stopped.
	OnShutdown(ctx context.Context) error

	// Dependencies returns the declared dependencies. It must return the same
	// result on every call; the loader may call it more than once.
	Dependencies() []Dependency

	// ExportedTypes returns the types the module makes discoverable to the
	// host for later service lookup.
	ExportedTypes() []reflect.Type

	// ValidateConfiguration is a side-effect free self-check run before
	// startup. An invalid result fails only this module.
	ValidateConfiguration() ValidationResult

	// Capabilities returns advertised features. Informational only.
	Capabilities() []Capability
}

// Configurable is implemented by modules that accept the settings block of
// their package manifest. Configure is called before any Configure* hook.
type Configurable interface {
	Configure(settings Settings) error
}

// Disabler is implemented by modules that can be switched off before their
// startup ever runs. BaseModule implements it.
type Disabler interface {
	Disable(reason string)
}

// StartupHook carries a module's own startup logic. BaseModule.OnStartup
// calls it between validation and the transition to Running.
type StartupHook interface {
	OnModuleStartup(ctx context.Context, services ServiceProvider) error
}

// ShutdownHook carries a module's own shutdown logic.
type ShutdownHook interface {
	OnModuleShutdown(ctx context.Context) error
}

// Factory is the well-known entry point a module package exposes. It returns
// a freshly constructed module in the Loaded state.
type Factory func() (Module, error)
