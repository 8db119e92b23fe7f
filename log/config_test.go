/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/acronis/go-admission/config"
)

type nodeConfig struct {
	Log *Config `mapstructure:"log" json:"log" yaml:"log"`
}

func TestConfig(t *testing.T) {
	wantCfg := NewDefaultConfig()
	wantCfg.Level = LevelWarn
	wantCfg.Format = FormatText
	wantCfg.Output = OutputFile
	wantCfg.Node = "node-3"
	wantCfg.AddCaller = true
	wantCfg.File = FileConfig{
		Path:     "admission-{{node}}.log",
		Rotation: RotationConfig{Compress: true, MaxSize: 100 * 1024 * 1024, MaxBackups: 42, MaxAgeDays: 7},
	}

	tests := []struct {
		name     string
		dataType config.DataType
		data     string
	}{
		{
			name:     "yaml",
			dataType: config.DataTypeYAML,
			data: `
log:
  level: warn
  format: text
  output: file
  node: node-3
  addCaller: true
  file:
    path: admission-{{node}}.log
    rotation:
      compress: true
      maxSize: 100M
      maxBackups: 42
      maxAgeDays: 7
`,
		},
		{
			name:     "json",
			dataType: config.DataTypeJSON,
			data: `{"log": {
	"level": "warn", "format": "text", "output": "file", "node": "node-3", "addCaller": true,
	"file": {
		"path": "admission-{{node}}.log",
		"rotation": {"compress": true, "maxSize": "100M", "maxBackups": 42, "maxAgeDays": 7}
	}
}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := nodeConfig{Log: NewConfig()}
			err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(bytes.NewBufferString(tt.data), tt.dataType, cfg.Log)
			require.NoError(t, err)
			require.Equal(t, wantCfg, cfg.Log)

			cfg = nodeConfig{Log: NewDefaultConfig()}
			switch tt.dataType {
			case config.DataTypeYAML:
				require.NoError(t, yaml.Unmarshal([]byte(tt.data), &cfg))
			case config.DataTypeJSON:
				require.NoError(t, json.Unmarshal([]byte(tt.data), &cfg))
			}
			require.Equal(t, wantCfg, cfg.Log)
		})
	}
}

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, config.NewDefaultLoader("").LoadFromReader(bytes.NewBuffer(nil), config.DataTypeYAML, cfg))
	require.Equal(t, NewDefaultConfig(), cfg)
}

func TestConfigWithKeyPrefix(t *testing.T) {
	cfgData := `
admission:
  log:
    level: debug
    format: text
`
	wantCfg := NewDefaultConfig(WithKeyPrefix("admission.log"))
	wantCfg.Level = LevelDebug
	wantCfg.Format = FormatText

	cfg := NewConfig(WithKeyPrefix("admission.log"))
	err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBufferString(cfgData), config.DataTypeYAML, cfg)
	require.NoError(t, err)
	require.Equal(t, wantCfg, cfg)
	require.Equal(t, "admission.log", cfg.KeyPrefix())
	require.Equal(t, "log", (&Config{}).KeyPrefix())
}

func TestConfigValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{
			name:    "unknown level",
			data:    "log:\n  level: verbose\n",
			wantErr: `log.level: unknown value "verbose", should be one of [error warn info debug]`,
		},
		{
			name:    "unknown format",
			data:    "log:\n  format: xml\n",
			wantErr: `log.format: unknown value "xml", should be one of [json text]`,
		},
		{
			name:    "file output without path",
			data:    "log:\n  output: file\n",
			wantErr: `log.file.path: cannot be empty when "file" output is used`,
		},
		{
			name:    "too small rotation size",
			data:    "log:\n  file:\n    rotation:\n      maxSize: 1K\n",
			wantErr: `log.file.rotation.maxSize: should be >= 1M`,
		},
		{
			name:    "no backups",
			data:    "log:\n  file:\n    rotation:\n      maxBackups: 0\n",
			wantErr: `log.file.rotation.maxBackups: should be >= 1`,
		},
		{
			name:    "negative max age",
			data:    "log:\n  file:\n    rotation:\n      maxAgeDays: -1\n",
			wantErr: `log.file.rotation.maxAgeDays: should be >= 0`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBufferString(tt.data), config.DataTypeYAML, NewConfig())
			require.EqualError(t, err, tt.wantErr)
		})
	}
}
