// Package config provides YAML-based configuration loading with environment variable expansion.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// Validator is an interface for configuration validation.
type Validator interface {
	Validate() error
}

// EnvOverrider is implemented by targets that take selected values from the
// process environment after the file has been decoded (secrets injected at
// runtime, for example). It runs before validation.
type EnvOverrider interface {
	ApplyEnv(lookup func(string) (string, bool))
}

// Load loads configuration from a YAML file with environment variable expansion.
// Values already present in target act as defaults for keys the file omits.
func Load[T any](filename string, target *T) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filename, err)
	}
	if err := Decode(data, target); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}
	return finish(target)
}

// LoadOptional behaves like Load, but a missing file is not an error: target keeps
// its defaults (still subject to env overrides and validation) and found is false.
func LoadOptional[T any](filename string, target *T) (found bool, err error) {
	err = Load(filename, target)
	if errors.Is(err, fs.ErrNotExist) {
		return false, finish(target)
	}
	return err == nil, err
}

// Decode expands ${VAR} references in data and unmarshals it into target.
func Decode[T any](data []byte, target *T) error {
	expanded := os.ExpandEnv(string(data))
	return yaml.Unmarshal([]byte(expanded), target)
}

// Dump renders target back to YAML.
func Dump(target any) ([]byte, error) {
	out, err := yaml.Marshal(target)
	if err != nil {
		return nil, fmt.Errorf("failed to render config: %w", err)
	}
	return out, nil
}

func finish(target any) error {
	if o, ok := target.(EnvOverrider); ok {
		o.ApplyEnv(os.LookupEnv)
	}
	if validator, ok := target.(Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
	}
	return nil
}
