/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"fmt"
	"strings"

	"code.cloudfoundry.org/bytefmt"

	"github.com/acronis/go-admission/config"
)

const cfgDefaultKeyPrefix = "log"

const (
	cfgKeyLevel              = "level"
	cfgKeyFormat             = "format"
	cfgKeyOutput             = "output"
	cfgKeyNoColor            = "nocolor"
	cfgKeyNode               = "node"
	cfgKeyAddCaller          = "addCaller"
	cfgKeyFilePath           = "file.path"
	cfgKeyRotationCompress   = "file.rotation.compress"
	cfgKeyRotationMaxSize    = "file.rotation.maxSize"
	cfgKeyRotationMaxBackups = "file.rotation.maxBackups"
	cfgKeyRotationMaxAgeDays = "file.rotation.maxAgeDays"
)

// Default and restriction values of log file rotation.
const (
	DefaultRotationMaxSize    = 250 * 1024 * 1024
	MinRotationMaxSize        = 1024 * 1024
	DefaultRotationMaxBackups = 10
)

// Level is a log level.
type Level string

// Logging levels.
const (
	LevelError Level = "error"
	LevelWarn  Level = "warn"
	LevelInfo  Level = "info"
	LevelDebug Level = "debug"
)

// Format is a log format.
type Format string

// Logging formats.
const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Output is a destination of log entries.
type Output string

// Logging outputs.
const (
	OutputStdout Output = "stdout"
	OutputStderr Output = "stderr"
	OutputFile   Output = "file"
)

var (
	knownLevels  = []string{string(LevelError), string(LevelWarn), string(LevelInfo), string(LevelDebug)}
	knownFormats = []string{string(FormatJSON), string(FormatText)}
	knownOutputs = []string{string(OutputStdout), string(OutputStderr), string(OutputFile)}
)

// Config is a logging configuration.
// It is loaded with config.Loader or decoded from YAML/JSON directly.
type Config struct {
	Level   Level  `mapstructure:"level" yaml:"level" json:"level"`
	Format  Format `mapstructure:"format" yaml:"format" json:"format"`
	Output  Output `mapstructure:"output" yaml:"output" json:"output"`
	NoColor bool   `mapstructure:"nocolor" yaml:"nocolor" json:"nocolor"`

	// Node identifies the replica in a multi-node deployment. If set, every entry gets a "node" field,
	// and the {{node}} placeholder of the log file path is substituted with it.
	Node string `mapstructure:"node" yaml:"node" json:"node"`

	// AddCaller adds the caller (package/file:line) to every entry.
	AddCaller bool `mapstructure:"addCaller" yaml:"addCaller" json:"addCaller"`

	File FileConfig `mapstructure:"file" yaml:"file" json:"file"`

	keyPrefix string
}

// FileConfig configures the "file" output.
type FileConfig struct {
	Path     string         `mapstructure:"path" yaml:"path" json:"path"`
	Rotation RotationConfig `mapstructure:"rotation" yaml:"rotation" json:"rotation"`
}

// RotationConfig configures rotation of the log file.
type RotationConfig struct {
	Compress   bool            `mapstructure:"compress" yaml:"compress" json:"compress"`
	MaxSize    config.ByteSize `mapstructure:"maxSize" yaml:"maxSize" json:"maxSize"`
	MaxBackups int             `mapstructure:"maxBackups" yaml:"maxBackups" json:"maxBackups"`
	MaxAgeDays int             `mapstructure:"maxAgeDays" yaml:"maxAgeDays" json:"maxAgeDays"`
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// ConfigOption is a functional option for NewConfig.
type ConfigOption func(*Config)

// WithKeyPrefix sets the key prefix the configuration is read under by config.Loader.
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(c *Config) {
		c.keyPrefix = keyPrefix
	}
}

// NewConfig creates an empty Config. Values are filled by config.Loader.
func NewConfig(opts ...ConfigOption) *Config {
	c := &Config{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewDefaultConfig creates a Config with default values.
func NewDefaultConfig(opts ...ConfigOption) *Config {
	c := NewConfig(opts...)
	c.Level = LevelInfo
	c.Format = FormatJSON
	c.Output = OutputStdout
	c.File.Rotation.MaxSize = DefaultRotationMaxSize
	c.File.Rotation.MaxBackups = DefaultRotationMaxBackups
	return c
}

// KeyPrefix implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyLevel, string(LevelInfo))
	dp.SetDefault(cfgKeyFormat, string(FormatJSON))
	dp.SetDefault(cfgKeyOutput, string(OutputStdout))
	dp.SetDefault(cfgKeyRotationMaxSize, bytefmt.ByteSize(DefaultRotationMaxSize))
	dp.SetDefault(cfgKeyRotationMaxBackups, DefaultRotationMaxBackups)
}

// Set implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	enums := []struct {
		key   string
		known []string
		dst   *string
	}{
		{cfgKeyLevel, knownLevels, (*string)(&c.Level)},
		{cfgKeyFormat, knownFormats, (*string)(&c.Format)},
		{cfgKeyOutput, knownOutputs, (*string)(&c.Output)},
	}
	for _, e := range enums {
		val, err := dp.GetStringFromSet(e.key, e.known, true)
		if err != nil {
			return err
		}
		*e.dst = strings.ToLower(val)
	}

	flags := []struct {
		key string
		dst *bool
	}{
		{cfgKeyNoColor, &c.NoColor},
		{cfgKeyAddCaller, &c.AddCaller},
		{cfgKeyRotationCompress, &c.File.Rotation.Compress},
	}
	for _, f := range flags {
		val, err := dp.GetBool(f.key)
		if err != nil {
			return err
		}
		*f.dst = val
	}

	var err error
	if c.Node, err = dp.GetString(cfgKeyNode); err != nil {
		return err
	}
	return c.setFile(dp)
}

func (c *Config) setFile(dp config.DataProvider) error {
	var err error
	if c.File.Path, err = dp.GetString(cfgKeyFilePath); err != nil {
		return err
	}
	if c.Output == OutputFile && c.File.Path == "" {
		return dp.WrapKeyErr(cfgKeyFilePath, fmt.Errorf("cannot be empty when %q output is used", OutputFile))
	}

	rot := &c.File.Rotation
	if rot.MaxSize, err = dp.GetByteSize(cfgKeyRotationMaxSize); err != nil {
		return err
	}
	if rot.MaxSize < MinRotationMaxSize {
		return dp.WrapKeyErr(cfgKeyRotationMaxSize, fmt.Errorf("should be >= %s", bytefmt.ByteSize(MinRotationMaxSize)))
	}
	if rot.MaxBackups, err = dp.GetInt(cfgKeyRotationMaxBackups); err != nil {
		return err
	}
	if rot.MaxBackups < 1 {
		return dp.WrapKeyErr(cfgKeyRotationMaxBackups, fmt.Errorf("should be >= 1"))
	}
	if rot.MaxAgeDays, err = dp.GetInt(cfgKeyRotationMaxAgeDays); err != nil {
		return err
	}
	if rot.MaxAgeDays < 0 {
		return dp.WrapKeyErr(cfgKeyRotationMaxAgeDays, fmt.Errorf("should be >= 0"))
	}
	return nil
}
