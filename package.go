package modhost

import (
	"fmt"
	"time"

	"github.com/GoCodeAlone/modhost/feeders"
)

// Manifest is the content of a module package file. The file name follows
// the package naming convention (by default "*.module.yaml", ".yml",
// ".toml" or ".json").
//
//	entrypoint: audit
//	id: audit
//	version: 1.2.0
//	settings:
//	  retention: 720h
type Manifest struct {
	// EntryPoint names the catalog factory that builds the module.
	EntryPoint string `yaml:"entrypoint" toml:"entrypoint" json:"entrypoint"`

	// EntryPoints lists several candidates; the first resolvable one wins.
	EntryPoints []string `yaml:"entrypoints" toml:"entrypoints" json:"entrypoints"`

	// ID, when set, must equal the ID of the constructed module.
	ID string `yaml:"id" toml:"id" json:"id"`

	// Version, when set, must equal the version of the constructed module.
	Version string `yaml:"version" toml:"version" json:"version"`

	// Disabled switches the module off before its startup runs.
	Disabled       bool   `yaml:"disabled" toml:"disabled" json:"disabled"`
	DisabledReason string `yaml:"disabled_reason" toml:"disabled_reason" json:"disabled_reason"`

	// Settings is handed to Configurable modules.
	Settings map[string]any `yaml:"settings" toml:"settings" json:"settings"`
}

// Candidates returns the declared entry points in declaration order without
// duplicates.
func (m Manifest) Candidates() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range append([]string{m.EntryPoint}, m.EntryPoints...) {
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}

// Package is the handle the loader keeps for each module it instantiated
// from disk.
type Package struct {
	Path       string
	Format     feeders.Format
	Manifest   Manifest
	EntryPoint string
	LoadedAt   time.Time
}

// ReadManifest decodes the package file at path.
func ReadManifest(path string) (Manifest, feeders.Format, error) {
	format, err := feeders.FormatOf(path)
	if err != nil {
		return Manifest{}, "", fmt.Errorf("%w: %s", ErrPackageFormatUnsupported, path)
	}

	var m Manifest
	if err := feeders.NewFileFeeder(path).Feed(&m); err != nil {
		return Manifest{}, format, fmt.Errorf("%w: %w", ErrPackageDecode, err)
	}
	return m, format, nil
}

// Settings is the free-form settings block of a package manifest.
type Settings struct {
	values map[string]any
}

// NewSettings wraps a decoded settings map. A nil map is valid.
func NewSettings(values map[string]any) Settings {
	return Settings{values: values}
}

// Decode copies the settings into target, which should use `yaml` field
// tags, then applies `default` tags to fields that are still empty.
func (s Settings) Decode(target any) error {
	if len(s.values) > 0 {
		if err := feeders.Remarshal(s.values, target); err != nil {
			return err
		}
	}
	return ProcessConfigDefaults(target)
}

// Has reports whether key is present.
func (s Settings) Has(key string) bool {
	_, ok := s.values[key]
	return ok
}

// Get returns the raw value for key.
func (s Settings) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

// String returns key as a string, or fallback when absent.
func (s Settings) String(key, fallback string) string {
	v, ok := s.values[key]
	if !ok || v == nil {
		return fallback
	}
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprint(v)
}

// Bool returns key as a bool, or fallback when absent or not a bool.
func (s Settings) Bool(key string, fallback bool) bool {
	if b, ok := s.values[key].(bool); ok {
		return b
	}
	return fallback
}

// Len returns the number of keys.
func (s Settings) Len() int {
	return len(s.values)
}
