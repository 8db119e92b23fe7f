/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"fmt"
	"io"

	"github.com/mitchellh/mapstructure"
)

// DataType is a format of configuration data.
type DataType string

// Supported data formats.
const (
	DataTypeYAML DataType = "yaml"
	DataTypeJSON DataType = "json"
)

// DataProvider supplies configuration values from files, readers, environment variables
// and explicit overrides (e.g. command-line flags).
type DataProvider interface {
	UseEnvVars(prefix string)

	Set(key string, value interface{})
	SetDefault(key string, value interface{})

	SetFromFile(path string, dataType DataType) error
	SetFromReader(reader io.Reader, dataType DataType) error

	GetBool(key string) (bool, error)
	GetInt(key string) (int, error)
	GetString(key string) (string, error)
	GetStringFromSet(key string, set []string, ignoreCase bool) (string, error)
	GetByteSize(key string) (ByteSize, error)

	// Unmarshal decodes all values available to the provider into rawVal.
	Unmarshal(rawVal interface{}, opts ...DecoderConfigOption) error
	// UnmarshalKey decodes the subtree under key into rawVal.
	UnmarshalKey(key string, rawVal interface{}, opts ...DecoderConfigOption) error

	WrapKeyErr(key string, err error) error
}

// DecoderConfigOption tunes the mapstructure decoder used by Unmarshal and UnmarshalKey.
type DecoderConfigOption func(*mapstructure.DecoderConfig)

// WrapKeyErr prefixes err with the key it relates to.
func WrapKeyErr(key string, err error) error {
	return fmt.Errorf("%s: %w", key, err)
}

// WrapKeyErrIfNeeded is WrapKeyErr that keeps nil errors nil.
func WrapKeyErrIfNeeded(key string, err error) error {
	if err == nil {
		return nil
	}
	return WrapKeyErr(key, err)
}
