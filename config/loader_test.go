/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testAdmissionConfigYAML = `
admission:
  replicas: 4
  definitions: throttles.yaml
  percentUsedWarn: 90
node:
  name: node-0
  operations: [CryptoTransfer, TokenMint]
`

const testAdmissionConfigJSON = `{
  "admission": {"replicas": 4, "definitions": "throttles.json", "percentUsedWarn": 90},
  "node": {"name": "node-0", "operations": ["CryptoTransfer", "TokenMint"]}
}`

type testAdmissionConfig struct {
	Replicas        int
	DefinitionsPath string
}

func (c *testAdmissionConfig) KeyPrefix() string {
	return "admission"
}

func (c *testAdmissionConfig) SetProviderDefaults(dp DataProvider) {
	dp.SetDefault("replicas", 1)
}

func (c *testAdmissionConfig) Set(dp DataProvider) error {
	var err error
	if c.Replicas, err = dp.GetInt("replicas"); err != nil {
		return err
	}
	if c.Replicas <= 0 {
		return dp.WrapKeyErr("replicas", errors.New("must be positive"))
	}
	c.DefinitionsPath, err = dp.GetString("definitions")
	return err
}

type testNodeConfig struct {
	Name string
}

func (c *testNodeConfig) SetProviderDefaults(dp DataProvider) {
	dp.SetDefault("node.name", "local")
}

func (c *testNodeConfig) Set(dp DataProvider) error {
	var err error
	c.Name, err = dp.GetString("node.name")
	return err
}

func TestLoader_LoadFromReader(t *testing.T) {
	t.Run("use defaults", func(t *testing.T) {
		admCfg, nodeCfg := &testAdmissionConfig{}, &testNodeConfig{}
		err := NewLoader(NewViperAdapter()).LoadFromReader(bytes.NewBufferString(`{}`), DataTypeJSON, admCfg, nodeCfg)
		require.NoError(t, err)
		require.Equal(t, 1, admCfg.Replicas)
		require.Empty(t, admCfg.DefinitionsPath)
		require.Equal(t, "local", nodeCfg.Name)
	})

	t.Run("yaml", func(t *testing.T) {
		admCfg, nodeCfg := &testAdmissionConfig{}, &testNodeConfig{}
		err := NewLoader(NewViperAdapter()).LoadFromReader(
			bytes.NewBufferString(testAdmissionConfigYAML), DataTypeYAML, admCfg, nodeCfg)
		require.NoError(t, err)
		require.Equal(t, 4, admCfg.Replicas)
		require.Equal(t, "throttles.yaml", admCfg.DefinitionsPath)
		require.Equal(t, "node-0", nodeCfg.Name)
	})

	t.Run("json", func(t *testing.T) {
		admCfg := &testAdmissionConfig{}
		err := NewLoader(NewViperAdapter()).LoadFromReader(
			bytes.NewBufferString(testAdmissionConfigJSON), DataTypeJSON, admCfg)
		require.NoError(t, err)
		require.Equal(t, 4, admCfg.Replicas)
		require.Equal(t, "throttles.json", admCfg.DefinitionsPath)
	})

	t.Run("error from Set is returned with prefixed key", func(t *testing.T) {
		admCfg := &testAdmissionConfig{}
		err := NewLoader(NewViperAdapter()).LoadFromReader(
			bytes.NewBufferString(`{"admission":{"replicas":0}}`), DataTypeJSON, admCfg)
		require.EqualError(t, err, "admission.replicas: must be positive")
	})

	t.Run("malformed data", func(t *testing.T) {
		err := NewLoader(NewViperAdapter()).LoadFromReader(
			bytes.NewBufferString(`{"admission":`), DataTypeJSON, &testAdmissionConfig{})
		require.Error(t, err)
	})
}

func TestLoader_LoadFromFile(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(testAdmissionConfigYAML), 0o600))

	admCfg := &testAdmissionConfig{}
	require.NoError(t, NewLoader(NewViperAdapter()).LoadFromFile(cfgPath, DataTypeYAML, admCfg))
	require.Equal(t, 4, admCfg.Replicas)

	err := NewLoader(NewViperAdapter()).LoadFromFile(
		filepath.Join(t.TempDir(), "missing.yaml"), DataTypeYAML, &testAdmissionConfig{})
	require.Error(t, err)
}

func TestLoader_Load(t *testing.T) {
	t.Run("defaults only", func(t *testing.T) {
		admCfg := &testAdmissionConfig{}
		require.NoError(t, NewLoader(NewViperAdapter()).Load(admCfg))
		require.Equal(t, 1, admCfg.Replicas)
	})

	t.Run("env vars override defaults", func(t *testing.T) {
		t.Setenv("ADMTEST_ADMISSION_REPLICAS", "7")
		t.Setenv("ADMTEST_NODE_NAME", "node-7")
		admCfg, nodeCfg := &testAdmissionConfig{}, &testNodeConfig{}
		require.NoError(t, NewDefaultLoader("admtest").Load(admCfg, nodeCfg))
		require.Equal(t, 7, admCfg.Replicas)
		require.Equal(t, "node-7", nodeCfg.Name)
	})
}

type testAppConfig struct {
	Admission *testAdmissionConfig
	Node      *testNodeConfig
	Missing   *testNodeConfig
	Ignored   string
	hidden    *testNodeConfig //nolint:unused
}

func (c *testAppConfig) SetProviderDefaults(dp DataProvider) {
	CallSetProviderDefaultsForFields(c, dp)
}

func (c *testAppConfig) Set(dp DataProvider) error {
	return CallSetForFields(c, dp)
}

func TestCallSetForFields(t *testing.T) {
	t.Run("nested configs", func(t *testing.T) {
		appCfg := &testAppConfig{Admission: &testAdmissionConfig{}, Node: &testNodeConfig{}}
		err := NewLoader(NewViperAdapter()).LoadFromReader(
			bytes.NewBufferString(testAdmissionConfigYAML), DataTypeYAML, appCfg)
		require.NoError(t, err)
		require.Equal(t, 4, appCfg.Admission.Replicas)
		require.Equal(t, "node-0", appCfg.Node.Name)
		require.Nil(t, appCfg.Missing)
	})

	t.Run("defaults of nested configs", func(t *testing.T) {
		appCfg := &testAppConfig{Admission: &testAdmissionConfig{}, Node: &testNodeConfig{}}
		require.NoError(t, NewLoader(NewViperAdapter()).Load(appCfg))
		require.Equal(t, 1, appCfg.Admission.Replicas)
		require.Equal(t, "local", appCfg.Node.Name)
	})

	t.Run("first error stops iteration", func(t *testing.T) {
		appCfg := &testAppConfig{Admission: &testAdmissionConfig{}, Node: &testNodeConfig{}}
		err := NewLoader(NewViperAdapter()).LoadFromReader(
			bytes.NewBufferString(`{"admission":{"replicas":-1},"node":{"name":"x"}}`), DataTypeJSON, appCfg)
		require.EqualError(t, err, "admission.replicas: must be positive")
		require.Empty(t, appCfg.Node.Name)
	})
}
