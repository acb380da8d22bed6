package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const configHeader = `# homefs configuration file
#
# Every key can be overridden with an environment variable: upper-case the
# dotted path, replace dots with underscores and add the HOMEFS_ prefix.
#   accounts.admin_password -> HOMEFS_ACCOUNTS_ADMIN_PASSWORD
#
# Change the admin password before exposing the API.

`

var durationType = reflect.TypeOf(time.Duration(0))

// Keys returns the dotted mapstructure path of every scalar setting in Config.
// Backend-specific maps are not included.
func Keys() []string {
	var keys []string
	collectKeys(reflect.TypeOf(Config{}), "", &keys)
	return keys
}

func collectKeys(t reflect.Type, prefix string, keys *[]string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := tagName(f)
		if name == "" {
			continue
		}
		key := name
		if prefix != "" {
			key = prefix + "." + name
		}

		switch {
		case f.Type.Kind() == reflect.Struct && f.Type != durationType:
			collectKeys(f.Type, key, keys)
		case f.Type.Kind() == reflect.Map:
		default:
			*keys = append(*keys, key)
		}
	}
}

func tagName(f reflect.StructField) string {
	if !f.IsExported() {
		return ""
	}
	tag := f.Tag.Get("mapstructure")
	if tag == "-" {
		return ""
	}
	if name, _, _ := strings.Cut(tag, ","); name != "" {
		return name
	}
	return strings.ToLower(f.Name)
}

// toMap renders a config struct as nested maps keyed by mapstructure names,
// with durations as strings so the YAML reads "30s" instead of nanoseconds.
func toMap(v reflect.Value) map[string]any {
	out := make(map[string]any, v.NumField())
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := tagName(f)
		if name == "" {
			continue
		}
		fv := v.Field(i)

		switch {
		case f.Type == durationType:
			out[name] = time.Duration(fv.Int()).String()
		case f.Type.Kind() == reflect.Struct:
			out[name] = toMap(fv)
		case f.Type.Kind() == reflect.Map && fv.IsNil():
			out[name] = map[string]any{}
		default:
			out[name] = fv.Interface()
		}
	}
	return out
}

// RenderConfig serializes cfg as a commented YAML document.
func RenderConfig(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(configHeader)

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(toMap(reflect.ValueOf(*cfg))); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteConfig writes the default configuration to path.
//
// Returns an error if the file exists and force is false.
func WriteConfig(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to check config file: %w", err)
		}
	}

	data, err := RenderConfig(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// InitConfig writes the default configuration to the default location.
//
// Returns the path of the written file.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := WriteConfig(path, force); err != nil {
		return "", err
	}
	return path, nil
}
