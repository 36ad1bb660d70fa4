package modhost

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/GoCodeAlone/modhost/schema"
)

// ModuleInfo is the static metadata of a module built on BaseModule.
type ModuleInfo struct {
	ID          string
	Name        string
	Version     string
	Description string
	Author      string

	// Priority is the load-order bucket. The zero value is PriorityCritical,
	// so feature modules usually set PriorityNormal explicitly.
	Priority Priority

	Dependencies  []Dependency
	Capabilities  []Capability
	ExportedTypes []reflect.Type
}

// BaseModule implements Module with state tracking, lifecycle logging and
// no-op defaults. Embed it and pass the embedding module as self so the
// lifecycle templates reach its overrides:
//
//	type AuditModule struct {
//	    *modhost.BaseModule
//	}
//
//	func New() (modhost.Module, error) {
//	    m := &AuditModule{}
//	    m.BaseModule = modhost.NewBaseModule(modhost.ModuleInfo{
//	        ID: "audit", Name: "Audit", Version: "1.0.0", Priority: modhost.PriorityHigh,
//	    }, m)
//	    return m, nil
//	}
//
//	func (m *AuditModule) OnModuleStartup(ctx context.Context, sp modhost.ServiceProvider) error {
//	    return nil
//	}
type BaseModule struct {
	info ModuleInfo
	self Module

	mu             sync.RWMutex
	status         Status
	disabledReason string
	logger         Logger
	settings       any
}

// NewBaseModule creates a base in the Loaded state. self may be nil for a
// module that has no overrides.
func NewBaseModule(info ModuleInfo, self Module) *BaseModule {
	b := &BaseModule{
		info:   info,
		status: StatusLoaded,
		logger: NopLogger{},
	}
	b.self = self
	if b.self == nil {
		b.self = b
	}
	return b
}

func (b *BaseModule) ID() string          { return b.info.ID }
func (b *BaseModule) Name() string        { return b.info.Name }
func (b *BaseModule) Version() string     { return b.info.Version }
func (b *BaseModule) Description() string { return b.info.Description }
func (b *BaseModule) Author() string      { return b.info.Author }
func (b *BaseModule) Priority() Priority  { return b.info.Priority }

// Status returns the current lifecycle state.
func (b *BaseModule) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

func (b *BaseModule) setStatus(s Status) {
	b.mu.Lock()
	b.status = s
	b.mu.Unlock()
}

// Logger returns the module logger. Before startup it is the logger given
// to SetLogger, or a no-op logger.
func (b *BaseModule) Logger() Logger {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.logger
}

// SetLogger replaces the module logger.
func (b *BaseModule) SetLogger(logger Logger) {
	b.mu.Lock()
	b.logger = loggerOrNop(logger)
	b.mu.Unlock()
}

// BindSettings registers a settings struct pointer. The default Configure
// decodes the manifest settings into it and the default
// ValidateConfiguration checks its `required:"true"` fields.
func (b *BaseModule) BindSettings(target any) {
	b.mu.Lock()
	b.settings = target
	b.mu.Unlock()
}

// Disable moves a module that has not started yet to Disabled. Startup
// then short-circuits with ErrModuleDisabled.
func (b *BaseModule) Disable(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.status {
	case StatusNotLoaded, StatusLoading, StatusLoaded:
		b.status = StatusDisabled
		b.disabledReason = reason
	}
}

// DisabledReason returns the reason given to Disable.
func (b *BaseModule) DisabledReason() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.disabledReason
}

// Configure decodes settings into the struct bound with BindSettings.
func (b *BaseModule) Configure(settings Settings) error {
	b.mu.RLock()
	target := b.settings
	b.mu.RUnlock()
	if target == nil {
		return nil
	}
	if err := settings.Decode(target); err != nil {
		return fmt.Errorf("decode settings for %s: %w", b.info.ID, err)
	}
	return nil
}

func (b *BaseModule) ConfigureServices(ServiceCollection) error { return nil }
func (b *BaseModule) ConfigureMiddleware(chi.Router) error      { return nil }
func (b *BaseModule) ConfigureSchema(*schema.Builder) error     { return nil }

// Dependencies returns ModuleInfo.Dependencies.
func (b *BaseModule) Dependencies() []Dependency {
	return append([]Dependency(nil), b.info.Dependencies...)
}

// Capabilities returns ModuleInfo.Capabilities.
func (b *BaseModule) Capabilities() []Capability {
	return append([]Capability(nil), b.info.Capabilities...)
}

// ExportedTypes returns ModuleInfo.ExportedTypes.
func (b *BaseModule) ExportedTypes() []reflect.Type {
	return append([]reflect.Type(nil), b.info.ExportedTypes...)
}

// ValidateConfiguration checks the required fields of the bound settings
// struct and, when it implements Validate() error, its own validation.
func (b *BaseModule) ValidateConfiguration() ValidationResult {
	b.mu.RLock()
	target := b.settings
	b.mu.RUnlock()
	if target == nil {
		return ValidationSuccess()
	}

	result := ValidationSuccess()
	missing, err := MissingRequiredFields(target)
	if err != nil {
		return ValidationFailure(err.Error())
	}
	for _, field := range missing {
		result = result.Merge(ValidationFailure("missing required setting: " + field))
	}
	if v, ok := target.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			result = result.Merge(ValidationFailure(err.Error()))
		}
	}
	return result
}

// OnStartup validates the configuration, logs declared dependencies and runs
// the module's StartupHook. The status ends Running on success and Failed
// on any error or panic, and the error is always returned.
func (b *BaseModule) OnStartup(ctx context.Context, services ServiceProvider) error {
	switch b.Status() {
	case StatusDisabled:
		b.Logger().Info("Module disabled, skipping startup", "module", b.info.Name, "reason", b.DisabledReason())
		return fmt.Errorf("%w: %s", ErrModuleDisabled, b.info.ID)
	case StatusStarting, StatusRunning:
		return fmt.Errorf("%w: %s", ErrModuleAlreadyReady, b.info.ID)
	}

	b.resolveLogger(services)
	logger := b.Logger()

	b.setStatus(StatusStarting)
	logger.Info("Starting module", "module", b.info.Name, "version", b.info.Version)

	defer func() {
		if r := recover(); r != nil {
			b.setStatus(StatusFailed)
			logger.Error("Module startup panicked", "module", b.info.Name, "panic", r)
			panic(r)
		}
	}()

	result := b.self.ValidateConfiguration()
	for _, w := range result.Warnings {
		logger.Warn("Module configuration warning", "module", b.info.Name, "warning", w)
	}
	if !result.Valid {
		b.setStatus(StatusFailed)
		verr := &ValidationError{ModuleID: b.info.ID, Errors: result.Errors}
		logger.Error("Module validation failed", "module", b.info.Name, "error", verr)
		return verr
	}

	for _, dep := range b.self.Dependencies() {
		logger.Debug("Declared dependency", "module", b.info.Name, "dependency", dep.ModuleID,
			"required", dep.Required, "minVersion", dep.MinVersion, "maxVersion", dep.MaxVersion)
	}

	if hook, ok := b.self.(StartupHook); ok {
		if err := hook.OnModuleStartup(ctx, services); err != nil {
			b.setStatus(StatusFailed)
			logger.Error("Failed to start module", "module", b.info.Name, "error", err)
			return err
		}
	}

	b.setStatus(StatusRunning)
	logger.Info("Module started successfully", "module", b.info.Name)
	return nil
}

// OnShutdown runs the module's ShutdownHook. The status ends Stopped on
// success and Failed on error or panic.
func (b *BaseModule) OnShutdown(ctx context.Context) error {
	logger := b.Logger()
	b.setStatus(StatusStopping)
	logger.Info("Stopping module", "module", b.info.Name)

	defer func() {
		if r := recover(); r != nil {
			b.setStatus(StatusFailed)
			logger.Error("Module shutdown panicked", "module", b.info.Name, "panic", r)
			panic(r)
		}
	}()

	if hook, ok := b.self.(ShutdownHook); ok {
		if err := hook.OnModuleShutdown(ctx); err != nil {
			b.setStatus(StatusFailed)
			logger.Error("Error stopping module", "module", b.info.Name, "error", err)
			return err
		}
	}

	b.setStatus(StatusStopped)
	logger.Info("Module stopped successfully", "module", b.info.Name)
	return nil
}

// RegisterService registers svc and logs the binding at debug level.
func (b *BaseModule) RegisterService(services ServiceCollection, name string, svc any) error {
	if err := services.RegisterService(name, svc); err != nil {
		return fmt.Errorf("module %s: %w", b.info.ID, err)
	}
	b.Logger().Debug("Registered service", "module", b.info.ID, "name", name, "type", reflect.TypeOf(svc))
	return nil
}

func (b *BaseModule) resolveLogger(services ServiceProvider) {
	if services == nil || !services.HasService(ServiceLogger) {
		return
	}
	var logger Logger
	if err := services.GetService(ServiceLogger, &logger); err == nil && logger != nil {
		b.SetLogger(logger)
	}
}
