package modhost

import (
	"errors"
	"fmt"
	"strings"
)

// Runtime errors
var (
	// Discovery errors
	ErrPackageFormatUnsupported = errors.New("unsupported module package format")
	ErrPackageDecode            = errors.New("failed to decode module package")
	ErrNoEntryPoint             = errors.New("module package declares no resolvable entry point")
	ErrEntryPointExists         = errors.New("entry point already registered")
	ErrEntryPointNotFound       = errors.New("entry point not found in catalog")
	ErrFactoryReturnedNil       = errors.New("module factory returned nil")
	ErrPackageIDMismatch        = errors.New("module id does not match package manifest")
	ErrPackageVersionMismatch   = errors.New("module version does not match package manifest")

	// Lifecycle errors
	ErrModuleDisabled     = errors.New("module is disabled")
	ErrModuleTimeout      = errors.New("module lifecycle call timed out")
	ErrModulePanic        = errors.New("module lifecycle call panicked")
	ErrDuplicateModuleID  = errors.New("module id already loaded")
	ErrModuleAlreadyReady = errors.New("module has already been started")
	ErrHostAlreadyBooted  = errors.New("host has already been booted")

	// Dependency errors
	ErrDependencyMissing    = errors.New("required dependency not loaded")
	ErrDependencyVersion    = errors.New("dependency version out of range")
	ErrDependencyInvalidVer = errors.New("dependency version is not a valid version")
	ErrDependencyCycle      = errors.New("circular dependency detected")

	// Version errors
	ErrInvalidVersion = errors.New("invalid version format")

	// Service container errors
	ErrServiceAlreadyRegistered = errors.New("service already registered")
	ErrServiceNotFound          = errors.New("service not found")
	ErrTargetNotPointer         = errors.New("target must be a non-nil pointer")
	ErrServiceIncompatible      = errors.New("service cannot be assigned to target")
	ErrServiceNil               = errors.New("service is nil")

	// Configuration errors
	ErrConfigNil                  = errors.New("config is nil")
	ErrConfigNotPointer           = errors.New("config must be a pointer")
	ErrConfigNotStruct            = errors.New("config must be a struct")
	ErrConfigRequiredFieldMissing = errors.New("required field is missing")
	ErrUnsupportedTypeForDefault  = errors.New("unsupported type for default value")
	ErrUnsupportedConfigFormat    = errors.New("unsupported config file format")
	ErrInvalidPriority            = errors.New("invalid priority")
	ErrInvalidConfig              = errors.New("invalid configuration")
)

// DependencyErrorKind classifies a failed dependency check.
type DependencyErrorKind string

const (
	DependencyMissing         DependencyErrorKind = "missing"
	DependencyVersionMismatch DependencyErrorKind = "version_mismatch"
	DependencyInvalidVersion  DependencyErrorKind = "invalid_version"
	DependencyCycle           DependencyErrorKind = "cycle"
)

// DependencyError is returned by CheckDependencies when a module cannot be
// started because of one of its declared dependencies.
type DependencyError struct {
	Kind       DependencyErrorKind
	ModuleID   string
	Dependency string
	MinVersion string
	MaxVersion string
	Actual     string
	Cycle      []string
}

func (e *DependencyError) Error() string {
	switch e.Kind {
	case DependencyMissing:
		return fmt.Sprintf("module %s requires %s which is not loaded", e.ModuleID, e.Dependency)
	case DependencyVersionMismatch:
		return fmt.Sprintf("module %s requires %s version %s, but %s is loaded",
			e.ModuleID, e.Dependency, formatRange(e.MinVersion, e.MaxVersion), e.Actual)
	case DependencyInvalidVersion:
		return fmt.Sprintf("module %s cannot compare %s version %q against %s",
			e.ModuleID, e.Dependency, e.Actual, formatRange(e.MinVersion, e.MaxVersion))
	case DependencyCycle:
		return fmt.Sprintf("module %s is part of a dependency cycle: %s", e.ModuleID, strings.Join(e.Cycle, " -> "))
	default:
		return fmt.Sprintf("module %s has an unmet dependency on %s", e.ModuleID, e.Dependency)
	}
}

// Unwrap maps the kind onto the matching sentinel so callers can use errors.Is.
func (e *DependencyError) Unwrap() error {
	switch e.Kind {
	case DependencyMissing:
		return ErrDependencyMissing
	case DependencyVersionMismatch:
		return ErrDependencyVersion
	case DependencyInvalidVersion:
		return ErrDependencyInvalidVer
	case DependencyCycle:
		return ErrDependencyCycle
	default:
		return nil
	}
}

func formatRange(minVersion, maxVersion string) string {
	switch {
	case minVersion == "" && maxVersion == "":
		return "any"
	case maxVersion == "":
		return ">= " + minVersion
	case minVersion == "":
		return "<= " + maxVersion
	default:
		return "between " + minVersion + " and " + maxVersion
	}
}

// ValidationError is returned from startup when ValidateConfiguration reports
// the module as invalid.
type ValidationError struct {
	ModuleID string
	Errors   []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("module %s validation failed: %s", e.ModuleID, strings.Join(e.Errors, ", "))
}

// LifecyclePhase names the stage a module was in when it failed.
type LifecyclePhase string

const (
	PhaseDiscovery  LifecyclePhase = "discovery"
	PhaseConfigure  LifecyclePhase = "configure"
	PhaseServices   LifecyclePhase = "configure_services"
	PhaseSchema     LifecyclePhase = "configure_schema"
	PhaseMiddleware LifecyclePhase = "configure_middleware"
	PhaseDependency LifecyclePhase = "dependency_check"
	PhaseStartup    LifecyclePhase = "startup"
	PhaseShutdown   LifecyclePhase = "shutdown"
)

// LifecycleError wraps an error raised by a module during one of its phases.
type LifecycleError struct {
	ModuleID string
	Phase    LifecyclePhase
	Err      error
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("module %s failed during %s: %v", e.ModuleID, e.Phase, e.Err)
}

func (e *LifecycleError) Unwrap() error {
	return e.Err
}
