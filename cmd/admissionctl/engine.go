/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"fmt"
	"os"

	"github.com/acronis/go-admission/expiry"
	"github.com/acronis/go-admission/log"
	"github.com/acronis/go-admission/throttle"
	"github.com/acronis/go-admission/throttledefs"
	"github.com/acronis/go-admission/throttling"
)

// engine holds the throttles a node resolves from its configuration.
type engine struct {
	logger     log.FieldLogger
	throttling *throttling.DeterministicThrottling
	expiry     *expiry.Throttle
	metrics    *throttling.MetricsCollector
}

func newEngine(cfg *AdmissionConfig, logger log.FieldLogger) (*engine, error) {
	defs, err := throttledefs.LoadFromFile(cfg.DefinitionsPath)
	if err != nil {
		return nil, err
	}

	metrics := throttling.NewMetricsCollector(cfg.MetricsNamespace)
	dt := throttling.New(throttling.WithLogger(logger), throttling.WithMetricsCollector(metrics))
	if err = dt.RebuildFor(defs, cfg.Replicas); err != nil {
		return nil, fmt.Errorf("rebuild throttles: %w", err)
	}
	if cfg.ThrottleByGas || cfg.MaxGasPerSec != 0 {
		if err = dt.ApplyGasConfig(throttling.GasConfig{Enabled: cfg.ThrottleByGas, MaxGasPerSec: cfg.MaxGasPerSec}); err != nil {
			return nil, fmt.Errorf("apply gas config: %w", err)
		}
	}

	var expiryLoader expiry.ResourceLoader = expiry.DefaultLoader{}
	if cfg.ExpiryResourceDir != "" {
		expiryLoader = expiry.FallbackLoader{expiry.DirLoader{Dir: cfg.ExpiryResourceDir}, expiry.DefaultLoader{}}
	}
	et := expiry.New(expiryLoader, expiry.WithLogger(logger))
	et.RebuildFromResource(cfg.ExpiryResource)

	return &engine{logger: logger, throttling: dt, expiry: et, metrics: metrics}, nil
}

// snapshots returns usage of all throttles, the expiry throttle goes last if it is set.
func (e *engine) snapshots() []throttle.UsageSnapshot {
	snapshots := e.throttling.UsageSnapshots()
	if s, ok := e.expiry.ThrottleSnapshot(); ok {
		snapshots = append(snapshots, s)
	}
	return snapshots
}

// restore applies snapshots in the order of snapshots(). Nothing is changed on error.
func (e *engine) restore(snapshots []throttle.UsageSnapshot) error {
	if !e.expiry.IsSet() {
		return e.throttling.ResetUsageFromSnapshots(snapshots)
	}
	if len(snapshots) == 0 {
		return fmt.Errorf("%w: no snapshot for expiry throttle", throttling.ErrSnapshotCountMismatch)
	}
	prevExpiry, _ := e.expiry.ThrottleSnapshot()
	if err := e.expiry.ResetToSnapshot(snapshots[len(snapshots)-1]); err != nil {
		return fmt.Errorf("expiry throttle: %w", err)
	}
	if err := e.throttling.ResetUsageFromSnapshots(snapshots[:len(snapshots)-1]); err != nil {
		if rbErr := e.expiry.ResetToSnapshot(prevExpiry); rbErr != nil {
			e.logger.Error("failed to roll back expiry throttle usage", log.Error(rbErr))
		}
		return err
	}
	return nil
}

func (e *engine) loadSnapshots(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read snapshots: %w", err)
	}
	snapshots, err := throttle.UnmarshalSnapshots(data)
	if err != nil {
		return fmt.Errorf("decode snapshots from %s: %w", path, err)
	}
	if err = e.restore(snapshots); err != nil {
		return fmt.Errorf("restore snapshots from %s: %w", path, err)
	}
	e.logger.Info("throttle usage is restored", log.String("path", path), log.Int("snapshots", len(snapshots)))
	return nil
}

func (e *engine) saveSnapshots(path string) error {
	snapshots := e.snapshots()
	if err := os.WriteFile(path, throttle.MarshalSnapshots(snapshots), 0o600); err != nil {
		return fmt.Errorf("write snapshots: %w", err)
	}
	e.logger.Info("throttle usage is saved", log.String("path", path), log.Int("snapshots", len(snapshots)))
	return nil
}
