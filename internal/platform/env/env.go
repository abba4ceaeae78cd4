package env

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

func String(key string, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func Duration(key string, def time.Duration) (time.Duration, error) {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("parse %s: %w", key, err)
		}
		return d, nil
	}
	return def, nil
}

func Bool(key string, def bool) (bool, error) {
	if v, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("parse %s: %w", key, err)
		}
		return b, nil
	}
	return def, nil
}

func Int(key string, def int) (int, error) {
	if v, ok := os.LookupEnv(key); ok {
		i, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("parse %s: %w", key, err)
		}
		return i, nil
	}
	return def, nil
}

// LoadDefaultsFile reads a flat YAML mapping of KEY: value pairs and exports
// each key that is not already present in the environment. Real environment
// variables always win over the file. An empty path is a no-op.
func LoadDefaultsFile(path string) (int, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return 0, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read defaults file: %w", err)
	}

	var values map[string]any
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return 0, fmt.Errorf("parse defaults file %s: %w", path, err)
	}

	applied := 0
	for key, value := range values {
		key = strings.TrimSpace(key)
		if key == "" {
			return applied, errors.New("defaults file contains an empty key")
		}
		if _, ok := os.LookupEnv(key); ok {
			continue
		}
		switch value.(type) {
		case map[string]any, []any:
			return applied, fmt.Errorf("defaults file key %s: nested values are not supported", key)
		}
		str := ""
		if value != nil {
			str = fmt.Sprint(value)
		}
		if err := os.Setenv(key, str); err != nil {
			return applied, fmt.Errorf("set %s: %w", key, err)
		}
		applied++
	}
	return applied, nil
}
