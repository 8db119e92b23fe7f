/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"io"
)

// Loader fills configuration objects from a DataProvider.
// Defaults of all objects are registered first, then every object reads its values.
type Loader struct {
	DataProvider DataProvider
}

// NewDefaultLoader creates a Loader backed by viper that also reads environment variables with the given prefix.
func NewDefaultLoader(envVarsPrefix string) *Loader {
	va := NewViperAdapter()
	va.UseEnvVars(envVarsPrefix)
	return NewLoader(va)
}

// NewLoader creates a Loader.
func NewLoader(dp DataProvider) *Loader {
	return &Loader{DataProvider: dp}
}

// Load fills cfgs from defaults, overrides and environment variables only.
func (l *Loader) Load(cfg Config, cfgs ...Config) error {
	return l.load(nil, cfg, cfgs)
}

// LoadFromFile reads the file and fills cfgs.
func (l *Loader) LoadFromFile(path string, dataType DataType, cfg Config, cfgs ...Config) error {
	return l.load(func() error { return l.DataProvider.SetFromFile(path, dataType) }, cfg, cfgs)
}

// LoadFromReader reads the reader and fills cfgs.
func (l *Loader) LoadFromReader(reader io.Reader, dataType DataType, cfg Config, cfgs ...Config) error {
	return l.load(func() error { return l.DataProvider.SetFromReader(reader, dataType) }, cfg, cfgs)
}

func (l *Loader) load(readSource func() error, first Config, rest []Config) error {
	if readSource != nil {
		if err := readSource(); err != nil {
			return err
		}
	}
	all := append([]Config{first}, rest...)
	for _, cfg := range all {
		cfg.SetProviderDefaults(dataProviderFor(cfg, l.DataProvider))
	}
	for _, cfg := range all {
		if err := cfg.Set(dataProviderFor(cfg, l.DataProvider)); err != nil {
			return err
		}
	}
	return nil
}
