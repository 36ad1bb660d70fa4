package modhost

import (
	"errors"
	"fmt"
	"strings"
)

// Priority is the ordinal bucket controlling load order. Lower values load
// first; ties are broken by module name.
type Priority int

const (
	// PriorityCritical is for core modules that must load first
	PriorityCritical Priority = 0
	// PriorityHigh is for important feature modules
	PriorityHigh Priority = 100
	// PriorityNormal is the default bucket
	PriorityNormal Priority = 200
	// PriorityLow is for optional modules
	PriorityLow Priority = 300
	// PriorityVeryLow is for modules that can load last
	PriorityVeryLow Priority = 400
)

var priorityNames = map[Priority]string{
	PriorityCritical: "critical",
	PriorityHigh:     "high",
	PriorityNormal:   "normal",
	PriorityLow:      "low",
	PriorityVeryLow:  "verylow",
}

func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// ParsePriority accepts a bucket name (case-insensitive, "very_low" and
// "very-low" included).
func ParsePriority(s string) (Priority, error) {
	key := strings.NewReplacer("_", "", "-", "", " ", "").Replace(strings.ToLower(strings.TrimSpace(s)))
	for p, name := range priorityNames {
		if name == key {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidPriority, s)
}

// Status is the lifecycle state of a module.
type Status int

const (
	StatusNotLoaded Status = iota
	StatusLoading
	StatusLoaded
	StatusStarting
	StatusRunning
	StatusStopping
	StatusStopped
	StatusFailed
	StatusDisabled
)

var statusNames = [...]string{
	StatusNotLoaded: "not_loaded",
	StatusLoading:   "loading",
	StatusLoaded:    "loaded",
	StatusStarting:  "starting",
	StatusRunning:   "running",
	StatusStopping:  "stopping",
	StatusStopped:   "stopped",
	StatusFailed:    "failed",
	StatusDisabled:  "disabled",
}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// IsTerminal reports whether no further lifecycle transition is expected.
func (s Status) IsTerminal() bool {
	return s == StatusStopped || s == StatusFailed || s == StatusDisabled
}

// Dependency is a directed edge in the module dependency graph. A missing
// optional dependency only produces a warning.
type Dependency struct {
	ModuleID   string `json:"module_id" yaml:"module_id" toml:"module_id"`
	MinVersion string `json:"min_version,omitempty" yaml:"min_version,omitempty" toml:"min_version,omitempty"`
	MaxVersion string `json:"max_version,omitempty" yaml:"max_version,omitempty" toml:"max_version,omitempty"`
	Required   bool   `json:"required" yaml:"required" toml:"required"`
}

// Requires declares a required dependency. Empty bounds are unconstrained.
func Requires(moduleID, minVersion, maxVersion string) Dependency {
	return Dependency{ModuleID: moduleID, MinVersion: minVersion, MaxVersion: maxVersion, Required: true}
}

// Optional declares a dependency whose absence only produces a warning.
func Optional(moduleID, minVersion, maxVersion string) Dependency {
	return Dependency{ModuleID: moduleID, MinVersion: minVersion, MaxVersion: maxVersion}
}

func (d Dependency) String() string {
	kind := "requires"
	if !d.Required {
		kind = "optional"
	}
	return fmt.Sprintf("%s %s (%s)", kind, d.ModuleID, formatRange(d.MinVersion, d.MaxVersion))
}

// Capability is an advertised feature. The loader never enforces it.
type Capability struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Enabled     bool   `json:"enabled"`
}

// NewCapability returns an enabled capability in the "General" category
// unless a category is given.
func NewCapability(name, description string, category ...string) Capability {
	c := Capability{Name: name, Description: description, Category: "General", Enabled: true}
	if len(category) > 0 && category[0] != "" {
		c.Category = category[0]
	}
	return c
}

// ValidationResult is the outcome of a module's configuration self-check.
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// ValidationSuccess returns a valid result.
func ValidationSuccess(warnings ...string) ValidationResult {
	return ValidationResult{Valid: true, Warnings: warnings}
}

// ValidationFailure returns an invalid result with the given errors.
func ValidationFailure(errs ...string) ValidationResult {
	return ValidationResult{Valid: false, Errors: errs}
}

// Merge combines two results; the merged result is valid only if both are.
func (r ValidationResult) Merge(other ValidationResult) ValidationResult {
	return ValidationResult{
		Valid:    r.Valid && other.Valid,
		Errors:   append(append([]string(nil), r.Errors...), other.Errors...),
		Warnings: append(append([]string(nil), r.Warnings...), other.Warnings...),
	}
}

// Err returns the errors joined together, or nil for a valid result.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	if len(r.Errors) == 0 {
		return errors.New("validation failed")
	}
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = errors.New(e)
	}
	return errors.Join(errs...)
}
