/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttledefs

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/acronis/go-admission/config"
)

// Config is a config.Config that reads throttle definitions from a config.DataProvider.
type Config struct {
	Definitions `mapstructure:",squash" yaml:",inline" json:",inline"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// ConfigOption is a functional option for NewConfig.
type ConfigOption func(*Config)

// WithKeyPrefix mounts definitions under the key (e.g. "admission.throttles") of a bigger configuration.
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(c *Config) {
		c.keyPrefix = keyPrefix
	}
}

// NewConfig creates an empty Config. Definitions are read from the root by default.
func NewConfig(opts ...ConfigOption) *Config {
	c := &Config{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// KeyPrefix implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	return c.keyPrefix
}

// SetProviderDefaults implements config.Config interface. Definitions have no defaults.
func (c *Config) SetProviderDefaults(_ config.DataProvider) {}

// Set decodes and validates definitions.
// Operation lists may be given as sequences or as comma-separated strings.
func (c *Config) Set(dp config.DataProvider) error {
	err := dp.Unmarshal(c, func(dc *mapstructure.DecoderConfig) {
		dc.DecodeHook = MapstructureDecodeHook()
	})
	if err != nil {
		return err
	}
	return c.Definitions.Validate()
}

// DataTypeFromPath returns the data type of the definitions file by its extension.
func DataTypeFromPath(path string) (config.DataType, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return config.DataTypeYAML, nil
	case ".json":
		return config.DataTypeJSON, nil
	default:
		return "", fmt.Errorf("unsupported definitions file extension %q", ext)
	}
}

// LoadFromFile loads and validates throttle definitions from a YAML or JSON file.
func LoadFromFile(path string, opts ...ConfigOption) (*Definitions, error) {
	dataType, err := DataTypeFromPath(path)
	if err != nil {
		return nil, err
	}
	defs, err := load(opts, func(l *config.Loader, cfg *Config) error { return l.LoadFromFile(path, dataType, cfg) })
	if err != nil {
		return nil, fmt.Errorf("load throttle definitions from %s: %w", path, err)
	}
	return defs, nil
}

// LoadFromReader loads and validates throttle definitions from a reader.
func LoadFromReader(reader io.Reader, dataType config.DataType, opts ...ConfigOption) (*Definitions, error) {
	defs, err := load(opts, func(l *config.Loader, cfg *Config) error { return l.LoadFromReader(reader, dataType, cfg) })
	if err != nil {
		return nil, fmt.Errorf("load throttle definitions: %w", err)
	}
	return defs, nil
}

// Parse parses and validates throttle definitions.
func Parse(data []byte, dataType config.DataType) (*Definitions, error) {
	return LoadFromReader(bytes.NewReader(data), dataType)
}

func load(opts []ConfigOption, fn func(l *config.Loader, cfg *Config) error) (*Definitions, error) {
	cfg := NewConfig(opts...)
	if err := fn(config.NewLoader(config.NewViperAdapter()), cfg); err != nil {
		return nil, err
	}
	return &cfg.Definitions, nil
}
