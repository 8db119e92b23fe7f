/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import "reflect"

// Config is a common interface for configuration objects that may be used by Loader.
type Config interface {
	SetProviderDefaults(dp DataProvider)
	Set(dp DataProvider) error
}

// KeyPrefixProvider is an interface for providing key prefix that will be used for configuration parameters.
type KeyPrefixProvider interface {
	KeyPrefix() string
}

// CallSetProviderDefaultsForFields finds all initialized (non-nil) exported fields of the passed struct pointer
// that implement Config interface and calls SetProviderDefaults() method for each of them.
// It allows composing an application config from the configs of separate packages (logging, admission, etc.).
func CallSetProviderDefaultsForFields(obj interface{}, dp DataProvider) {
	_ = forEachConfigField(obj, dp, func(c Config, cDp DataProvider) error {
		c.SetProviderDefaults(cDp)
		return nil
	})
}

// CallSetForFields finds all initialized (non-nil) exported fields of the passed struct pointer
// that implement Config interface and calls Set() method for each of them.
// The first error stops the iteration and is returned.
func CallSetForFields(obj interface{}, dp DataProvider) error {
	return forEachConfigField(obj, dp, func(c Config, cDp DataProvider) error {
		return c.Set(cDp)
	})
}

func forEachConfigField(obj interface{}, dp DataProvider, fn func(c Config, cDp DataProvider) error) error {
	el := reflect.ValueOf(obj).Elem()
	for i := 0; i < el.NumField(); i++ {
		if !el.Type().Field(i).IsExported() {
			continue
		}
		field := el.Field(i)
		if field.Kind() == reflect.Ptr && field.IsNil() {
			continue
		}
		c, ok := field.Interface().(Config)
		if !ok {
			continue
		}
		if err := fn(c, dataProviderFor(c, dp)); err != nil {
			return err
		}
	}
	return nil
}

// dataProviderFor wraps dp with the key prefix of cfg if it has a non-empty one.
func dataProviderFor(cfg Config, dp DataProvider) DataProvider {
	if kpHolder, ok := cfg.(KeyPrefixProvider); ok && kpHolder.KeyPrefix() != "" {
		return NewKeyPrefixedDataProvider(dp, kpHolder.KeyPrefix())
	}
	return dp
}
