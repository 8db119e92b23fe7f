/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttling

import (
	"fmt"
	"time"

	"github.com/acronis/go-admission/log"
	"github.com/acronis/go-admission/throttle"
)

// GasThrottleName is the name of the throttle that limits gas reserved per second.
const GasThrottleName = "gas"

const gasBurstPeriodSec = 1

// DefaultGasThrottledOperations are operations checked against the gas throttle when GasConfig.Operations is empty.
var DefaultGasThrottledOperations = []string{"ContractCall", "ContractCreate", "EthereumTransaction"}

// GasConfig configures throttling of operations by the gas they reserve.
type GasConfig struct {
	// Enabled turns the check on. A disabled gas throttle is still resolved and reported.
	Enabled bool

	// MaxGasPerSec is the gas this replica may reserve per second, with a burst period of one second.
	// Zero leaves no gas throttle, so every gas-throttled operation is rejected while Enabled is set.
	MaxGasPerSec uint64

	// Operations are checked against the gas throttle. DefaultGasThrottledOperations is used if empty.
	Operations []string
}

// gasGeneration is an immutable result of a single ApplyGasConfig.
type gasGeneration struct {
	enabled    bool
	throttle   *throttle.DeterministicThrottle // nil if the rate is zero
	operations map[string]struct{}
	summary    string
}

var noGas = &gasGeneration{operations: map[string]struct{}{}}

func (g *gasGeneration) appliesTo(op string) bool {
	if !g.enabled {
		return false
	}
	_, ok := g.operations[op]
	return ok
}

// ApplyGasConfig resolves the gas throttle and installs it instead of the current one.
// Usage of the previous gas throttle is not carried over. On error the current gas throttle is kept.
func (dt *DeterministicThrottling) ApplyGasConfig(cfg GasConfig) error {
	ops := cfg.Operations
	if len(ops) == 0 {
		ops = DefaultGasThrottledOperations
	}
	gen := &gasGeneration{enabled: cfg.Enabled, operations: make(map[string]struct{}, len(ops))}
	for _, op := range ops {
		gen.operations[op] = struct{}{}
	}

	if cfg.MaxGasPerSec != 0 {
		t, err := throttle.NewDeterministicThrottle(GasThrottleName, cfg.MaxGasPerSec, gasBurstPeriodSec)
		if err != nil {
			return fmt.Errorf("gas throttle of %d gas/sec: %w", cfg.MaxGasPerSec, err)
		}
		gen.throttle = t
	} else if cfg.Enabled {
		dt.logger.Warn("gas throttling enabled, but limited to 0 gas/sec")
	}

	state := "OFF"
	if cfg.Enabled {
		state = "ON"
	}
	gen.summary = fmt.Sprintf("Resolved gas throttle -\n  %d gas/sec (throttling %s)", cfg.MaxGasPerSec, state)

	dt.gas.Store(gen)
	dt.logger.Info(gen.summary)
	return nil
}

// ShouldThrottleByGas is like ShouldThrottle, but a gas-throttled operation must also fit
// its gas limit into the gas throttle. The reserved gas is returned if the operation is throttled
// by its own throttles.
func (dt *DeterministicThrottling) ShouldThrottleByGas(op string, gasLimit uint64, consensusNow time.Time) bool {
	dt.lastGasThrottled.Store(false)
	gas := dt.gas.Load()
	if !gas.appliesTo(op) {
		return dt.shouldThrottleN(op, 1, consensusNow)
	}
	if gas.throttle == nil || !gas.throttle.Allow(gasLimit, consensusNow) {
		dt.lastGasThrottled.Store(true)
		_, known := dt.gen.Load().managers[op]
		dt.metrics.observeDecision(op, known, true)
		return true
	}
	if dt.shouldThrottleN(op, 1, consensusNow) {
		gas.throttle.ReclaimLastAllowedUse()
		return true
	}
	return false
}

// WasLastTxnGasThrottled reports whether the last decision rejected an operation for lack of gas.
func (dt *DeterministicThrottling) WasLastTxnGasThrottled() bool {
	return dt.lastGasThrottled.Load()
}

// LeakUnusedGas returns gas reserved by an admitted operation but not used by its execution.
func (dt *DeterministicThrottling) LeakUnusedGas(unused uint64) {
	if t := dt.gas.Load().throttle; t != nil {
		t.LeakOps(unused)
	}
}

// GasThrottle returns the resolved gas throttle, or nil if there is none.
func (dt *DeterministicThrottling) GasThrottle() *throttle.DeterministicThrottle {
	return dt.gas.Load().throttle
}

// ResolvedGasSummary returns a human-readable description of the gas throttle,
// or "" if ApplyGasConfig was never called.
func (dt *DeterministicThrottling) ResolvedGasSummary() string {
	return dt.gas.Load().summary
}

// GasUsageSnapshot returns the usage of the gas throttle. The second returned value is false
// if there is no gas throttle.
func (dt *DeterministicThrottling) GasUsageSnapshot() (throttle.UsageSnapshot, bool) {
	t := dt.gas.Load().throttle
	if t == nil {
		return throttle.UsageSnapshot{}, false
	}
	return t.Snapshot(), true
}

// ResetGasUsageFromSnapshot restores the usage of the gas throttle. It is a no-op if there is no gas throttle.
func (dt *DeterministicThrottling) ResetGasUsageFromSnapshot(snapshot throttle.UsageSnapshot) error {
	t := dt.gas.Load().throttle
	if t == nil {
		return nil
	}
	if err := t.ResetToSnapshot(snapshot); err != nil {
		dt.logger.Warn("gas usage snapshot is not applied",
			log.String("snapshot", snapshot.String()), log.Error(err))
		return fmt.Errorf("gas throttle: %w", err)
	}
	return nil
}
