/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// ViperAdapter is a DataProvider backed by viper. Values are converted with cast.
type ViperAdapter struct {
	viper *viper.Viper
}

var _ DataProvider = (*ViperAdapter)(nil)

// NewViperAdapter creates a new ViperAdapter.
func NewViperAdapter() *ViperAdapter {
	return &ViperAdapter{viper.New()}
}

// UseEnvVars lets environment variables override configuration values.
// Dots of the key are replaced with underscores, so with the "admission" prefix
// the "admission.replicas" key is read from ADMISSION_ADMISSION_REPLICAS.
func (va *ViperAdapter) UseEnvVars(prefix string) {
	va.viper.SetEnvPrefix(prefix)
	va.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	va.viper.AutomaticEnv()
}

// Set overrides the value of the key. Overrides win over files, env and defaults.
func (va *ViperAdapter) Set(key string, value interface{}) {
	va.viper.Set(key, value)
}

// SetDefault sets the value used when no other source provides one.
func (va *ViperAdapter) SetDefault(key string, value interface{}) {
	va.viper.SetDefault(key, value)
}

// SetFromFile reads configuration data from the file.
func (va *ViperAdapter) SetFromFile(path string, dataType DataType) error {
	va.viper.SetConfigType(string(dataType))
	va.viper.SetConfigFile(path)
	return va.viper.ReadInConfig()
}

// SetFromReader reads configuration data from the reader.
func (va *ViperAdapter) SetFromReader(reader io.Reader, dataType DataType) error {
	va.viper.SetConfigType(string(dataType))
	return va.viper.ReadConfig(reader)
}

func getAs[T any](va *ViperAdapter, key string, conv func(interface{}) (T, error)) (T, error) {
	res, err := conv(va.viper.Get(key))
	return res, WrapKeyErrIfNeeded(key, err)
}

// GetBool returns the value of the key as a bool.
func (va *ViperAdapter) GetBool(key string) (bool, error) {
	return getAs(va, key, cast.ToBoolE)
}

// GetInt returns the value of the key as an int.
func (va *ViperAdapter) GetInt(key string) (int, error) {
	return getAs(va, key, cast.ToIntE)
}

// GetString returns the value of the key as a string.
func (va *ViperAdapter) GetString(key string) (string, error) {
	return getAs(va, key, cast.ToStringE)
}

// GetStringFromSet returns the value of the key as a string which must be one of set.
func (va *ViperAdapter) GetStringFromSet(key string, set []string, ignoreCase bool) (string, error) {
	str, err := va.GetString(key)
	if err != nil {
		return "", err
	}
	for _, s := range set {
		if str == s || (ignoreCase && strings.EqualFold(str, s)) {
			return str, nil
		}
	}
	return "", WrapKeyErr(key, fmt.Errorf("unknown value %q, should be one of %v", str, set))
}

// GetByteSize returns the value of the key as a size in bytes.
// Numbers and human-readable strings ("100M", "1Gi") are accepted, a missing value is zero.
func (va *ViperAdapter) GetByteSize(key string) (ByteSize, error) {
	return getAs(va, key, toByteSizeE)
}

func toByteSizeE(val interface{}) (ByteSize, error) {
	switch v := val.(type) {
	case nil:
		return 0, nil
	case ByteSize:
		return v, nil
	case string:
		if v == "" {
			return 0, nil
		}
		return parseByteSize(v)
	case float32, float64:
		f := cast.ToFloat64(v)
		if f < 0 {
			return 0, fmt.Errorf("negative value is not allowed: %v", f)
		}
		return ByteSize(f), nil
	}
	num, err := cast.ToInt64E(val)
	if err != nil {
		return 0, fmt.Errorf("unsupported type for byte size: %T", val)
	}
	if num < 0 {
		return 0, fmt.Errorf("negative value is not allowed: %d", num)
	}
	return ByteSize(num), nil
}

// Unmarshal decodes the whole configuration into rawVal.
func (va *ViperAdapter) Unmarshal(rawVal interface{}, opts ...DecoderConfigOption) error {
	return va.viper.Unmarshal(rawVal, viperDecoderOptions(opts)...)
}

// UnmarshalKey decodes the subtree under key into rawVal.
func (va *ViperAdapter) UnmarshalKey(key string, rawVal interface{}, opts ...DecoderConfigOption) error {
	return WrapKeyErrIfNeeded(key, va.viper.UnmarshalKey(key, rawVal, viperDecoderOptions(opts)...))
}

// WrapKeyErr implements DataProvider interface.
func (va *ViperAdapter) WrapKeyErr(key string, err error) error {
	return WrapKeyErr(key, err)
}

func viperDecoderOptions(opts []DecoderConfigOption) []viper.DecoderConfigOption {
	res := make([]viper.DecoderConfigOption, 0, len(opts))
	for _, opt := range opts {
		res = append(res, viper.DecoderConfigOption(opt))
	}
	return res
}
