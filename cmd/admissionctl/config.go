/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"errors"
	"fmt"

	"github.com/acronis/go-admission/config"
	"github.com/acronis/go-admission/expiry"
	"github.com/acronis/go-admission/log"
)

const envVarsPrefix = "admission"

const (
	cfgKeyDefinitionsPath   = "definitionsPath"
	cfgKeyReplicas          = "replicas"
	cfgKeyExpiryResourceDir = "expiryResourceDir"
	cfgKeyExpiryResource    = "expiryResource"
	cfgKeyMetricsNamespace  = "metricsNamespace"
	cfgKeyThrottleByGas     = "throttleByGas"
	cfgKeyMaxGasPerSec      = "maxGasPerSec"
)

var errDefinitionsPathRequired = errors.New("path to throttle definitions is required")

// AppConfig is the configuration of admissionctl.
type AppConfig struct {
	Log       *log.Config
	Admission *AdmissionConfig
}

// NewAppConfig creates a new AppConfig.
func NewAppConfig() *AppConfig {
	return &AppConfig{
		Log:       log.NewConfig(),
		Admission: NewAdmissionConfig(),
	}
}

// SetProviderDefaults implements config.Config interface.
func (c *AppConfig) SetProviderDefaults(dp config.DataProvider) {
	config.CallSetProviderDefaultsForFields(c, dp)
	// Results are printed to stdout.
	dp.SetDefault("log.output", string(log.OutputStderr))
}

// Set implements config.Config interface.
func (c *AppConfig) Set(dp config.DataProvider) error {
	return config.CallSetForFields(c, dp)
}

// AdmissionConfig describes where throttle definitions come from and how they are resolved.
type AdmissionConfig struct {
	DefinitionsPath   string
	Replicas          int
	ExpiryResourceDir string
	ExpiryResource    string
	MetricsNamespace  string
	ThrottleByGas     bool
	MaxGasPerSec      uint64
}

var _ config.Config = (*AdmissionConfig)(nil)
var _ config.KeyPrefixProvider = (*AdmissionConfig)(nil)

// NewAdmissionConfig creates a new AdmissionConfig.
func NewAdmissionConfig() *AdmissionConfig {
	return &AdmissionConfig{}
}

// KeyPrefix implements config.KeyPrefixProvider interface.
func (c *AdmissionConfig) KeyPrefix() string {
	return "admission"
}

// SetProviderDefaults implements config.Config interface.
func (c *AdmissionConfig) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyReplicas, 1)
	dp.SetDefault(cfgKeyExpiryResource, expiry.DefaultResourceName)
	dp.SetDefault(cfgKeyMetricsNamespace, "admission")
}

// Set implements config.Config interface.
func (c *AdmissionConfig) Set(dp config.DataProvider) error {
	var err error
	if c.DefinitionsPath, err = dp.GetString(cfgKeyDefinitionsPath); err != nil {
		return err
	}
	if c.DefinitionsPath == "" {
		return dp.WrapKeyErr(cfgKeyDefinitionsPath, errDefinitionsPathRequired)
	}
	if c.Replicas, err = dp.GetInt(cfgKeyReplicas); err != nil {
		return err
	}
	if c.Replicas < 1 {
		return dp.WrapKeyErr(cfgKeyReplicas, fmt.Errorf("must be positive, got %d", c.Replicas))
	}
	if c.ExpiryResourceDir, err = dp.GetString(cfgKeyExpiryResourceDir); err != nil {
		return err
	}
	if c.ExpiryResource, err = dp.GetString(cfgKeyExpiryResource); err != nil {
		return err
	}
	if c.MetricsNamespace, err = dp.GetString(cfgKeyMetricsNamespace); err != nil {
		return err
	}
	if c.ThrottleByGas, err = dp.GetBool(cfgKeyThrottleByGas); err != nil {
		return err
	}
	maxGasPerSec, err := dp.GetInt(cfgKeyMaxGasPerSec)
	if err != nil {
		return err
	}
	if maxGasPerSec < 0 {
		return dp.WrapKeyErr(cfgKeyMaxGasPerSec, fmt.Errorf("must be non-negative, got %d", maxGasPerSec))
	}
	c.MaxGasPerSec = uint64(maxGasPerSec)
	return nil
}
