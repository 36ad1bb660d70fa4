package feeders

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/golobby/cast"
)

// ErrEnvInvalidStructure indicates that the target is not a pointer to a struct
var ErrEnvInvalidStructure = errors.New("env: invalid structure")

// EnvFeeder populates struct fields tagged `env:"NAME"` from environment
// variables named PREFIX_NAME.
type EnvFeeder struct {
	Prefix string

	// Lookup defaults to os.LookupEnv.
	Lookup func(key string) (string, bool)
}

// NewEnvFeeder creates a feeder reading PREFIX_* variables.
func NewEnvFeeder(prefix string) EnvFeeder {
	return EnvFeeder{Prefix: prefix, Lookup: os.LookupEnv}
}

// Feed reads environment variables into structure.
func (f EnvFeeder) Feed(structure any) error {
	rv := reflect.ValueOf(structure)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return ErrEnvInvalidStructure
	}
	if f.Lookup == nil {
		f.Lookup = os.LookupEnv
	}
	return f.processStructFields(rv.Elem())
}

func (f EnvFeeder) processStructFields(rv reflect.Value) error {
	for i := 0; i < rv.NumField(); i++ {
		field := rv.Field(i)
		fieldType := rv.Type().Field(i)

		if err := f.processField(field, &fieldType); err != nil {
			return fmt.Errorf("error in field '%s': %w", fieldType.Name, err)
		}
	}
	return nil
}

func (f EnvFeeder) processField(field reflect.Value, fieldType *reflect.StructField) error {
	switch field.Kind() {
	case reflect.Struct:
		if field.Type() != reflect.TypeOf(time.Time{}) {
			return f.processStructFields(field)
		}
	case reflect.Pointer:
		if !field.IsZero() && field.Elem().Kind() == reflect.Struct {
			return f.processStructFields(field.Elem())
		}
		return nil
	}

	envTag, exists := fieldType.Tag.Lookup("env")
	if !exists {
		return nil
	}
	return f.setFieldFromEnv(field, envTag)
}

func (f EnvFeeder) setFieldFromEnv(field reflect.Value, envTag string) error {
	envName := strings.ToUpper(envTag)
	if f.Prefix != "" {
		envName = strings.ToUpper(f.Prefix) + "_" + envName
	}

	envValue, ok := f.Lookup(envName)
	if !ok || envValue == "" {
		return nil
	}
	return setFieldValue(field, envValue)
}

func setFieldValue(field reflect.Value, strValue string) error {
	if !field.CanSet() {
		return fmt.Errorf("field cannot be set")
	}

	if field.Type() == reflect.TypeOf(time.Duration(0)) {
		d, err := time.ParseDuration(strValue)
		if err != nil {
			return fmt.Errorf("cannot convert value to duration: %w", err)
		}
		field.SetInt(int64(d))
		return nil
	}

	convertedValue, err := cast.FromType(strValue, field.Type())
	if err != nil {
		return fmt.Errorf("cannot convert value to type %v: %w", field.Type(), err)
	}
	field.Set(reflect.ValueOf(convertedValue).Convert(field.Type()))
	return nil
}
