// Package config provides environment and YAML file helpers for edgecam
// commands.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every edgecam environment variable.
const EnvPrefix = "EDGECAM_"

// Env returns the value of EDGECAM_<name>, or "" when unset.
func Env(name string) string {
	return os.Getenv(EnvPrefix + name)
}

// String returns EDGECAM_<name> or def when unset or empty.
func String(name, def string) string {
	if v := Env(name); v != "" {
		return v
	}
	return def
}

// Int returns EDGECAM_<name> parsed as an int, or def.
func Int(name string, def int) (int, error) {
	v := Env(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
	}
	return n, nil
}

// Bool returns EDGECAM_<name> parsed as a bool, or def.
func Bool(name string, def bool) (bool, error) {
	v := Env(name)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
	}
	return b, nil
}

// Duration returns EDGECAM_<name> parsed as a duration, or def.
func Duration(name string, def time.Duration) (time.Duration, error) {
	v := Env(name)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
	}
	return d, nil
}

// LoadYAML decodes the file at path over v. Fields absent from the file keep
// the values already in v; unknown fields are an error. An empty file leaves v
// unchanged.
func LoadYAML(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// WriteYAML encodes v to path, for generating a starting config file.
func WriteYAML(path string, v any) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
