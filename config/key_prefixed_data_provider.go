/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"strings"
)

// KeyPrefixedDataProvider reads keys of a delegate DataProvider under a fixed prefix,
// so a component config may use short keys ("replicas") regardless of where it is mounted ("admission.replicas").
// Methods without a key (UseEnvVars, SetFromFile, SetFromReader) go to the delegate as is.
type KeyPrefixedDataProvider struct {
	DataProvider
	keyPrefix string
}

var _ DataProvider = (*KeyPrefixedDataProvider)(nil)

// NewKeyPrefixedDataProvider creates a new KeyPrefixedDataProvider.
func NewKeyPrefixedDataProvider(delegate DataProvider, keyPrefix string) *KeyPrefixedDataProvider {
	return &KeyPrefixedDataProvider{DataProvider: delegate, keyPrefix: keyPrefix}
}

func (kp *KeyPrefixedDataProvider) key(key string) string {
	return strings.Trim(kp.keyPrefix+"."+key, ".")
}

// Set implements DataProvider interface.
func (kp *KeyPrefixedDataProvider) Set(key string, value interface{}) {
	kp.DataProvider.Set(kp.key(key), value)
}

// SetDefault implements DataProvider interface.
func (kp *KeyPrefixedDataProvider) SetDefault(key string, value interface{}) {
	kp.DataProvider.SetDefault(kp.key(key), value)
}

// GetBool implements DataProvider interface.
func (kp *KeyPrefixedDataProvider) GetBool(key string) (bool, error) {
	return kp.DataProvider.GetBool(kp.key(key))
}

// GetInt implements DataProvider interface.
func (kp *KeyPrefixedDataProvider) GetInt(key string) (int, error) {
	return kp.DataProvider.GetInt(kp.key(key))
}

// GetString implements DataProvider interface.
func (kp *KeyPrefixedDataProvider) GetString(key string) (string, error) {
	return kp.DataProvider.GetString(kp.key(key))
}

// GetStringFromSet implements DataProvider interface.
func (kp *KeyPrefixedDataProvider) GetStringFromSet(key string, set []string, ignoreCase bool) (string, error) {
	return kp.DataProvider.GetStringFromSet(kp.key(key), set, ignoreCase)
}

// GetByteSize implements DataProvider interface.
func (kp *KeyPrefixedDataProvider) GetByteSize(key string) (ByteSize, error) {
	return kp.DataProvider.GetByteSize(kp.key(key))
}

// Unmarshal decodes the subtree under the prefix into rawVal.
func (kp *KeyPrefixedDataProvider) Unmarshal(rawVal interface{}, opts ...DecoderConfigOption) error {
	return kp.DataProvider.UnmarshalKey(kp.key(""), rawVal, opts...)
}

// UnmarshalKey implements DataProvider interface.
func (kp *KeyPrefixedDataProvider) UnmarshalKey(key string, rawVal interface{}, opts ...DecoderConfigOption) error {
	return kp.DataProvider.UnmarshalKey(kp.key(key), rawVal, opts...)
}

// WrapKeyErr wraps err with the full (prefixed) key.
func (kp *KeyPrefixedDataProvider) WrapKeyErr(key string, err error) error {
	return kp.DataProvider.WrapKeyErr(kp.key(key), err)
}
