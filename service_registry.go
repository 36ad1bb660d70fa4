package modhost

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// ServiceCollection is the write side of the service container, handed to
// ConfigureServices.
type ServiceCollection interface {
	RegisterService(name string, service any) error
}

// ServiceProvider is the read side of the service container, handed to
// OnStartup. The loader passes it through unchanged and never inspects it.
type ServiceProvider interface {
	GetService(name string, target any) error
	HasService(name string) bool
}

// Well-known service names registered by the Host.
const (
	ServiceLogger = "logger"
	ServiceHost   = "modhost.host"
	ServiceLoader = "modhost.loader"
	ServiceSchema = "modhost.schema"
	ServiceDB     = "modhost.db"
)

// ServiceRegistry is the default container implementing both
// ServiceCollection and ServiceProvider.
type ServiceRegistry struct {
	mu       sync.RWMutex
	services map[string]any
	logger   Logger
}

// NewServiceRegistry creates an empty registry.
func NewServiceRegistry(logger Logger) *ServiceRegistry {
	return &ServiceRegistry{
		services: make(map[string]any),
		logger:   loggerOrNop(logger),
	}
}

// RegisterService adds a service under a unique name.
func (r *ServiceRegistry) RegisterService(name string, service any) error {
	if service == nil {
		return fmt.Errorf("%w: %s", ErrServiceNil, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.services[name]; exists {
		return fmt.Errorf("%w: %s", ErrServiceAlreadyRegistered, name)
	}
	r.services[name] = service
	r.logger.Debug("Registered service", "name", name, "type", reflect.TypeOf(service))
	return nil
}

// Unregister removes name and reports whether it was registered.
func (r *ServiceRegistry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.services[name]; !exists {
		return false
	}
	delete(r.services, name)
	r.logger.Debug("Unregistered service", "name", name)
	return true
}

// HasService reports whether name is registered.
func (r *ServiceRegistry) HasService(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.services[name]
	return ok
}

// Names returns the registered service names in sorted order.
func (r *ServiceRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetService assigns the named service to target, which must be a non-nil
// pointer. The service is assigned when target points to an interface it
// implements, to a struct with a settable field of such an interface, or to
// a type the service (or the value it points to) is assignable to.
func (r *ServiceRegistry) GetService(name string, target any) error {
	r.mu.RLock()
	service, exists := r.services[name]
	r.mu.RUnlock()
	if !exists {
		return fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}

	targetValue := reflect.ValueOf(target)
	if targetValue.Kind() != reflect.Ptr || targetValue.IsNil() {
		return ErrTargetNotPointer
	}

	serviceType := reflect.TypeOf(service)
	targetType := targetValue.Elem().Type()

	if targetType.Kind() == reflect.Interface && serviceType.Implements(targetType) {
		targetValue.Elem().Set(reflect.ValueOf(service))
		return nil
	}

	if targetType.Kind() == reflect.Struct {
		for i := 0; i < targetType.NumField(); i++ {
			field := targetType.Field(i)
			if field.Type.Kind() == reflect.Interface && serviceType.Implements(field.Type) {
				fieldValue := targetValue.Elem().Field(i)
				if fieldValue.CanSet() {
					fieldValue.Set(reflect.ValueOf(service))
					return nil
				}
			}
		}
	}

	if serviceType.AssignableTo(targetType) {
		targetValue.Elem().Set(reflect.ValueOf(service))
		return nil
	} else if serviceType.Kind() == reflect.Ptr && serviceType.Elem().AssignableTo(targetType) {
		targetValue.Elem().Set(reflect.ValueOf(service).Elem())
		return nil
	}

	return fmt.Errorf("%w: service '%s' of type %s cannot be assigned to %s",
		ErrServiceIncompatible, name, serviceType, targetType)
}

// GetServiceAs is a typed convenience wrapper around GetService.
func GetServiceAs[T any](sp ServiceProvider, name string) (T, error) {
	var out T
	if err := sp.GetService(name, &out); err != nil {
		return out, err
	}
	return out, nil
}
