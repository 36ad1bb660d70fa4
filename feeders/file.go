// Package feeders decodes configuration and module manifests from files and
// environment variables into Go structs.
package feeders

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Format identifies a file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// ErrUnsupportedFormat is returned for files whose extension maps to no
// known format.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// FormatOf derives the format from the file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// FileFeeder reads one YAML, TOML or JSON file into a struct.
type FileFeeder struct {
	Path string
}

// NewFileFeeder creates a feeder for path.
func NewFileFeeder(path string) FileFeeder {
	return FileFeeder{Path: path}
}

// Feed decodes the file into target, leaving fields absent from the file
// untouched.
func (f FileFeeder) Feed(target any) error {
	format, err := FormatOf(f.Path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return fmt.Errorf("read %s: %w", f.Path, err)
	}
	if err := Decode(format, data, target); err != nil {
		return fmt.Errorf("decode %s: %w", f.Path, err)
	}
	return nil
}

// Decode decodes raw bytes in the given format.
func Decode(format Format, data []byte, target any) error {
	switch format {
	case FormatYAML:
		if len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		return yaml.Unmarshal(data, target)
	case FormatTOML:
		_, err := toml.Decode(string(data), target)
		return err
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		return dec.Decode(target)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// Remarshal copies src into target through YAML, so loosely typed maps
// decoded from any format land in a struct tagged with `yaml` keys.
func Remarshal(src, target any) error {
	raw, err := yaml.Marshal(src)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	if err := yaml.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("failed to unmarshal value to target: %w", err)
	}
	return nil
}
