/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-admission/testutil"
	"github.com/acronis/go-admission/throttle"
	"github.com/acronis/go-admission/throttledefs"
)

const testDefinitionsYAML = `
buckets:
  - name: ThroughputLimits
    burstPeriod: 1
    throttleGroups:
      - opsPerSec: 5000
        operations: [CryptoTransfer, TokenMint]
`

const testOpsStream = `# consensus-ordered stream
1710417600000000000,CryptoTransfer,2000
1710417600000000000,TokenMint,500
1710417600000000001,CryptoTransfer
1710417601000000000,TokenMint,2500
1710417601000000000,FreezeNetwork
1710417601000000000,expiry:accounts_get_for_modify+accounts_remove
`

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestRunApp_Resolve(t *testing.T) {
	defsPath := writeTestFile(t, t.TempDir(), "throttles.yaml", testDefinitionsYAML)

	var stdout bytes.Buffer
	require.NoError(t, runApp([]string{"resolve", "-d", defsPath, "--replicas", "2"}, nil, &stdout, io.Discard))

	require.Equal(t, "Resolved throttles (after splitting capacity 2 ways) - \n"+
		"  CryptoTransfer: min{2500.00 tps (ThroughputLimits)}\n"+
		"  TokenMint: min{2500.00 tps (ThroughputLimits)}\n"+
		"Expiry work costs (ops per access) - \n"+
		"  accounts_get: 1\n"+
		"  accounts_get_for_modify: 2\n"+
		"  accounts_remove: 10\n"+
		"  blobs_get: 1\n"+
		"  blobs_remove: 10\n"+
		"  nfts_get: 1\n"+
		"  nfts_remove: 10\n"+
		"  storage_get: 1\n"+
		"  storage_put: 10\n"+
		"  storage_remove: 10\n"+
		"  token_associations_get: 1\n"+
		"  token_associations_remove: 10\n", stdout.String())
}

func TestRunApp_ResolveFromConfigFile(t *testing.T) {
	dir := t.TempDir()
	defsPath := writeTestFile(t, dir, "throttles.yaml", testDefinitionsYAML)
	writeTestFile(t, dir, "expiry.yaml", `
buckets:
  - name: NodeExpiry
    burstPeriod: 1
    throttleGroups:
      - opsPerSec: 100
        operations: [accounts_get_for_modify, accounts_remove]
`)
	cfgPath := writeTestFile(t, dir, "admissionctl.yaml", `
log:
  level: warn
admission:
  definitionsPath: `+defsPath+`
  replicas: 5
  expiryResourceDir: `+dir+`
  expiryResource: expiry.yaml
`)

	var stdout bytes.Buffer
	require.NoError(t, runApp([]string{"resolve", "--config", cfgPath}, nil, &stdout, io.Discard))
	require.Equal(t, "Resolved throttles (after splitting capacity 5 ways) - \n"+
		"  CryptoTransfer: min{1000.00 tps (ThroughputLimits)}\n"+
		"  TokenMint: min{1000.00 tps (ThroughputLimits)}\n"+
		"Expiry work costs (ops per access) - \n"+
		"  accounts_get_for_modify: 1\n"+
		"  accounts_remove: 1\n", stdout.String())

	t.Run("flags override config file", func(t *testing.T) {
		stdout.Reset()
		require.NoError(t, runApp([]string{"resolve", "-c", cfgPath, "-r", "1"}, nil, &stdout, io.Discard))
		require.True(t, strings.HasPrefix(stdout.String(), "Resolved throttles (after splitting capacity 1 ways) - \n"))
	})

	t.Run("env vars override config file", func(t *testing.T) {
		t.Setenv("ADMISSION_ADMISSION_REPLICAS", "2")
		stdout.Reset()
		require.NoError(t, runApp([]string{"resolve", "-c", cfgPath}, nil, &stdout, io.Discard))
		require.True(t, strings.HasPrefix(stdout.String(), "Resolved throttles (after splitting capacity 2 ways) - \n"))
	})

	t.Run("gas throttle", func(t *testing.T) {
		t.Setenv("ADMISSION_ADMISSION_THROTTLEBYGAS", "true")
		t.Setenv("ADMISSION_ADMISSION_MAXGASPERSEC", "1000")
		stdout.Reset()
		require.NoError(t, runApp([]string{"resolve", "-c", cfgPath}, nil, &stdout, io.Discard))
		require.Contains(t, stdout.String(), "  TokenMint: min{1000.00 tps (ThroughputLimits)}\n"+
			"Resolved gas throttle -\n  1000 gas/sec (throttling ON)\n"+
			"Expiry work costs (ops per access) - \n")
	})

	t.Run("negative gas rate", func(t *testing.T) {
		t.Setenv("ADMISSION_ADMISSION_MAXGASPERSEC", "-1")
		err := runApp([]string{"resolve", "-c", cfgPath}, nil, io.Discard, io.Discard)
		require.ErrorContains(t, err, "admission.maxGasPerSec: must be non-negative, got -1")
	})
}

func TestRunApp_Replay(t *testing.T) {
	dir := t.TempDir()
	defsPath := writeTestFile(t, dir, "throttles.yaml", testDefinitionsYAML)
	snapshotPath := filepath.Join(dir, "usage.bin")
	metricsPath := filepath.Join(dir, "metrics.prom")

	var stdout bytes.Buffer
	err := runApp([]string{"replay", "-d", defsPath, "-r", "2",
		"--snapshot-out", snapshotPath, "--metrics-file", metricsPath},
		strings.NewReader(testOpsStream), &stdout, io.Discard)
	require.NoError(t, err)
	require.Equal(t, "CryptoTransfer admitted=1 throttled=1\n"+
		"FreezeNetwork admitted=0 throttled=1\n"+
		"TokenMint admitted=2 throttled=0\n"+
		"expiry:accounts_get_for_modify+accounts_remove admitted=1 throttled=0\n", stdout.String())

	data, err := os.ReadFile(snapshotPath)
	require.NoError(t, err)
	snapshots, err := throttle.UnmarshalSnapshots(data)
	require.NoError(t, err)
	require.Len(t, snapshots, 2)
	require.Equal(t, 2500*throttle.CapacityUnitsPerOp, snapshots[0].Used)
	require.Equal(t, 12*throttle.CapacityUnitsPerOp, snapshots[1].Used)

	metrics, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	require.Regexp(t, `admission_decisions_total\{decision="admitted",go_admission_version="[^"]+",operation="CryptoTransfer"\} 1`,
		string(metrics))
	require.Regexp(t, `admission_decisions_total\{decision="throttled",go_admission_version="[^"]+",operation="unknown"\} 1`,
		string(metrics))

	t.Run("restored usage is taken into account", func(t *testing.T) {
		inputPath := writeTestFile(t, dir, "more-ops.csv", "1710417601000000000,CryptoTransfer\n")
		stdout.Reset()
		require.NoError(t, runApp([]string{"replay", "-d", defsPath, "-r", "2",
			"--snapshot-in", snapshotPath, "--input", inputPath}, nil, &stdout, io.Discard))
		require.Equal(t, "CryptoTransfer admitted=0 throttled=1\n", stdout.String())
	})

	t.Run("snapshots of another configuration are refused", func(t *testing.T) {
		err := runApp([]string{"replay", "-d", defsPath, "-r", "5", "--snapshot-in", snapshotPath},
			strings.NewReader(""), io.Discard, io.Discard)
		require.ErrorIs(t, err, throttle.ErrIncompatibleSnapshot)
	})
}

func TestRunApp_ReplayMalformedStream(t *testing.T) {
	defsPath := writeTestFile(t, t.TempDir(), "throttles.yaml", testDefinitionsYAML)
	tests := []struct {
		name   string
		stream string
		errMsg string
	}{
		{name: "bad time", stream: "yesterday,CryptoTransfer\n", errMsg: "record #1: parse consensus time"},
		{name: "bad count", stream: "1,CryptoTransfer\n2,TokenMint,-1\n", errMsg: "record #2: parse count"},
		{name: "too many fields", stream: "1,CryptoTransfer,1,1\n", errMsg: "record #1: expected 2 or 3 fields, got 4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runApp([]string{"replay", "-d", defsPath}, strings.NewReader(tt.stream), io.Discard, io.Discard)
			require.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestRunApp_Version(t *testing.T) {
	var stdout bytes.Buffer
	require.NoError(t, runApp([]string{"version"}, nil, &stdout, io.Discard))
	require.Regexp(t, `^v\d+\.\d+\.\d+.*\n$`, stdout.String())
}

func TestRunApp_Errors(t *testing.T) {
	dir := t.TempDir()
	defsPath := writeTestFile(t, dir, "throttles.yaml", testDefinitionsYAML)

	require.ErrorIs(t, runApp(nil, nil, io.Discard, io.Discard), errUsage)
	require.ErrorIs(t, runApp([]string{"serve"}, nil, io.Discard, io.Discard), errUsage)
	require.Error(t, runApp([]string{"resolve", "--unknown-flag"}, nil, io.Discard, io.Discard))

	err := runApp([]string{"resolve"}, nil, io.Discard, io.Discard)
	require.ErrorIs(t, err, errDefinitionsPathRequired)

	err = runApp([]string{"resolve", "-d", defsPath, "-r", "0"}, nil, io.Discard, io.Discard)
	require.ErrorContains(t, err, "admission.replicas: must be positive")

	emptyDefsPath := writeTestFile(t, dir, "empty.yaml", "buckets: []\n")
	err = runApp([]string{"resolve", "-d", emptyDefsPath}, nil, io.Discard, io.Discard)
	testutil.RequireErrorIsAny(t, err, []error{throttledefs.ErrNoBuckets, throttledefs.ErrNoThrottleGroups})

	err = runApp([]string{"resolve", "-d", filepath.Join(dir, "throttles.toml")}, nil, io.Discard, io.Discard)
	require.ErrorContains(t, err, "unsupported definitions file extension")
}
