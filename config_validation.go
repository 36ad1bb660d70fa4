package modhost

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/golobby/cast"
)

const (
	tagDefault  = "default"
	tagRequired = "required"
)

// ProcessConfigDefaults applies `default:"value"` struct tags to fields that
// still hold their zero value. Nested structs and non-nil struct pointers are
// processed recursively. Slices take a comma separated list.
//
//	type AuditSettings struct {
//	    Retention time.Duration `yaml:"retention" default:"720h"`
//	    Sinks     []string      `yaml:"sinks" default:"db,stdout"`
//	}
func ProcessConfigDefaults(cfg any) error {
	v, err := structValue(cfg)
	if err != nil {
		return err
	}
	return processStructDefaults(v)
}

func processStructDefaults(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanSet() {
			continue
		}

		if field.Kind() == reflect.Struct {
			if err := processStructDefaults(field); err != nil {
				return err
			}
			continue
		}

		if field.Kind() == reflect.Ptr && field.Type().Elem().Kind() == reflect.Struct {
			if !field.IsNil() {
				if err := processStructDefaults(field.Elem()); err != nil {
					return err
				}
			}
			continue
		}

		defaultVal, hasDefault := fieldType.Tag.Lookup(tagDefault)
		if !hasDefault || !field.IsZero() {
			continue
		}

		if err := setDefaultValue(field, defaultVal); err != nil {
			return fmt.Errorf("failed to set default value for %s: %w", fieldType.Name, err)
		}
	}

	return nil
}

// ValidateConfigRequired checks every field tagged `required:"true"` and
// returns ErrConfigRequiredFieldMissing naming the empty ones.
func ValidateConfigRequired(cfg any) error {
	missing, err := MissingRequiredFields(cfg)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrConfigRequiredFieldMissing, strings.Join(missing, ", "))
	}
	return nil
}

// MissingRequiredFields lists the dotted paths of required fields that hold
// their zero value.
func MissingRequiredFields(cfg any) ([]string, error) {
	v, err := structValue(cfg)
	if err != nil {
		return nil, err
	}
	var missing []string
	validateRequiredFields(v, "", &missing)
	return missing, nil
}

func validateRequiredFields(v reflect.Value, prefix string, missing *[]string) {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)
		fieldName := fieldType.Name
		if prefix != "" {
			fieldName = prefix + "." + fieldName
		}

		if !field.CanSet() {
			continue
		}

		switch {
		case field.Kind() == reflect.Struct:
			validateRequiredFields(field, fieldName, missing)
		case field.Kind() == reflect.Ptr && field.Type().Elem().Kind() == reflect.Struct:
			if !field.IsNil() {
				validateRequiredFields(field.Elem(), fieldName, missing)
			} else if isFieldRequired(&fieldType) {
				*missing = append(*missing, fieldName)
			}
		case isFieldRequired(&fieldType) && field.IsZero():
			*missing = append(*missing, fieldName)
		}
	}
}

func isFieldRequired(field *reflect.StructField) bool {
	required, exists := field.Tag.Lookup(tagRequired)
	return exists && required == "true"
}

func structValue(cfg any) (reflect.Value, error) {
	if cfg == nil {
		return reflect.Value{}, ErrConfigNil
	}
	v := reflect.ValueOf(cfg)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return reflect.Value{}, ErrConfigNotPointer
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, ErrConfigNotStruct
	}
	return v, nil
}

// setDefaultValue converts a tag string to the field's type.
func setDefaultValue(field reflect.Value, defaultVal string) error {
	if field.Type() == reflect.TypeOf(time.Duration(0)) {
		d, err := time.ParseDuration(defaultVal)
		if err != nil {
			return fmt.Errorf("failed to parse duration value: %w", err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.Slice:
		parts := strings.Split(defaultVal, ",")
		slice := reflect.MakeSlice(field.Type(), 0, len(parts))
		for _, part := range parts {
			elem, err := convertString(strings.TrimSpace(part), field.Type().Elem())
			if err != nil {
				return err
			}
			slice = reflect.Append(slice, elem)
		}
		field.Set(slice)
		return nil
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		converted, err := convertString(defaultVal, field.Type())
		if err != nil {
			return err
		}
		field.Set(converted)
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedTypeForDefault, field.Kind())
	}
}

// convertString casts a raw string to t, converting to named types such as
// Priority when the cast yields the underlying kind.
func convertString(raw string, t reflect.Type) (reflect.Value, error) {
	if t == reflect.TypeOf(time.Duration(0)) {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("cannot convert %q to duration: %w", raw, err)
		}
		return reflect.ValueOf(d), nil
	}

	value, err := cast.FromType(raw, t)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("cannot convert %q to type %v: %w", raw, t, err)
	}
	rv := reflect.ValueOf(value)
	if !rv.Type().ConvertibleTo(t) {
		return reflect.Value{}, fmt.Errorf("cannot convert %q to type %v", raw, t)
	}
	return rv.Convert(t), nil
}
