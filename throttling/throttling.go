/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttling

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/atomic"

	"github.com/acronis/go-admission/log"
	"github.com/acronis/go-admission/throttle"
	"github.com/acronis/go-admission/throttledefs"
)

// Errors returned by DeterministicThrottling.
var (
	ErrNoDefinitions         = errors.New("throttle definitions are not provided")
	ErrTimestampRequired     = errors.New("deterministic throttling requires a consensus timestamp")
	ErrSnapshotCountMismatch = errors.New("number of usage snapshots does not match number of active throttles")
)

// Throttling makes admission decisions for named operations.
type Throttling interface {
	RebuildFor(defs *throttledefs.Definitions, replicaCount int) error

	ShouldThrottle(op string, consensusNow time.Time) bool
	ShouldThrottleN(op string, n uint64, consensusNow time.Time) bool
	ShouldThrottleNow(op string) bool

	ApplyGasConfig(cfg GasConfig) error
	ShouldThrottleByGas(op string, gasLimit uint64, consensusNow time.Time) bool
	WasLastTxnGasThrottled() bool
	LeakUnusedGas(unused uint64)

	ActiveThrottlesFor(op string) []*throttle.DeterministicThrottle
	AllActiveThrottles() []*throttle.DeterministicThrottle

	ResolvedSummary() string
	LogResolvedDefinitions()

	ResetUsage()
	UsageSnapshots() []throttle.UsageSnapshot
	ResetUsageFromSnapshots(snapshots []throttle.UsageSnapshot) error
}

var noThrottles = make([]*throttle.DeterministicThrottle, 0)

// generation is an immutable result of a single rebuild.
// Throttles inside it are mutated by admission decisions, the maps and slices are not.
type generation struct {
	replicas int
	managers map[string]*throttle.ReqsManager
	active   []*throttle.DeterministicThrottle
	summary  string
}

var emptyGeneration = &generation{managers: map[string]*throttle.ReqsManager{}, active: noThrottles}

// Option represents a configuration option for DeterministicThrottling.
type Option func(*options)

type options struct {
	logger  log.FieldLogger
	metrics *MetricsCollector
}

// WithLogger sets the logger for rebuild and restore events.
func WithLogger(logger log.FieldLogger) Option {
	return func(opts *options) {
		opts.logger = logger
	}
}

// WithMetricsCollector enables counting of admission decisions.
func WithMetricsCollector(mc *MetricsCollector) Option {
	return func(opts *options) {
		opts.metrics = mc
	}
}

// DeterministicThrottling is a registry of deterministic throttles resolved from throttle definitions.
// Admission decisions must be made from a single goroutine (the consensus handling path),
// RebuildFor may be called concurrently with them and replaces the registry atomically.
type DeterministicThrottling struct {
	logger           log.FieldLogger
	metrics          *MetricsCollector
	gen              atomic.Pointer[generation]
	gas              atomic.Pointer[gasGeneration]
	lastGasThrottled atomic.Bool
}

var _ Throttling = (*DeterministicThrottling)(nil)

// New creates a new DeterministicThrottling with no active throttles.
// Every operation is throttled until RebuildFor succeeds.
func New(opts ...Option) *DeterministicThrottling {
	o := options{logger: log.NewDisabledLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	dt := &DeterministicThrottling{logger: o.logger, metrics: o.metrics}
	dt.gen.Store(emptyGeneration)
	dt.gas.Store(noGas)
	return dt
}

// RebuildFor resolves the definitions into throttles, each with the capacity of one of replicaCount replicas,
// and installs them instead of the current ones. Usage of the previous throttles is not carried over.
//
// A bucket that cannot be resolved (e.g. its rate becomes zero after splitting) is logged and skipped,
// and the rest of the definitions is still installed. If the definitions are invalid as a whole
// or the replica count is not positive, an error is returned and the current throttles are kept.
func (dt *DeterministicThrottling) RebuildFor(defs *throttledefs.Definitions, replicaCount int) error {
	if defs == nil {
		return ErrNoDefinitions
	}
	if replicaCount < 1 {
		return fmt.Errorf("%w: %d", throttledefs.ErrInvalidReplicaCount, replicaCount)
	}
	if err := defs.Validate(); err != nil {
		return fmt.Errorf("validate throttle definitions: %w", err)
	}

	reqsByOp := make(map[string][]throttle.Requirement)
	active := make([]*throttle.DeterministicThrottle, 0, len(defs.Buckets))
	for i := range defs.Buckets {
		bucket := &defs.Buckets[i]
		mapping, err := bucket.ThrottleMapping(replicaCount)
		if err != nil {
			dt.logger.Error("bucket is not applied, its operations are not throttled by it",
				log.String("bucket", bucket.Name), log.Int("replicas", replicaCount), log.Error(err))
			continue
		}
		active = append(active, mapping.Throttle)
		for _, req := range mapping.Reqs {
			reqsByOp[req.Operation] = append(reqsByOp[req.Operation],
				throttle.Requirement{Throttle: mapping.Throttle, OpsRequired: req.OpsRequired})
		}
	}

	gen := &generation{
		replicas: replicaCount,
		managers: make(map[string]*throttle.ReqsManager, len(reqsByOp)),
		active:   active,
	}
	if len(active) == 0 {
		gen.active = noThrottles
	}
	for op, reqs := range reqsByOp {
		gen.managers[op] = throttle.NewReqsManager(reqs)
	}
	gen.summary = buildSummary(replicaCount, reqsByOp)

	dt.gen.Store(gen)
	dt.LogResolvedDefinitions()
	return nil
}

// ShouldThrottle reports whether the operation must be rejected at the given consensus time.
// Unknown operations are always throttled. If the operation is admitted,
// its requirements are taken from the capacity of all its throttles.
func (dt *DeterministicThrottling) ShouldThrottle(op string, consensusNow time.Time) bool {
	return dt.ShouldThrottleN(op, 1, consensusNow)
}

// ShouldThrottleN is like ShouldThrottle, but for n operations of the same kind admitted together.
// Zero n is always throttled.
func (dt *DeterministicThrottling) ShouldThrottleN(op string, n uint64, consensusNow time.Time) bool {
	dt.lastGasThrottled.Store(false)
	return dt.shouldThrottleN(op, n, consensusNow)
}

func (dt *DeterministicThrottling) shouldThrottleN(op string, n uint64, consensusNow time.Time) bool {
	manager, ok := dt.gen.Load().managers[op]
	if !ok {
		dt.metrics.observeDecision(op, false, true)
		return true
	}
	throttled := !manager.AllReqsMetAtN(n, consensusNow)
	dt.metrics.observeDecision(op, true, throttled)
	return throttled
}

// ShouldThrottleNow always panics with ErrTimestampRequired.
// Decisions based on the local clock would differ between replicas.
func (dt *DeterministicThrottling) ShouldThrottleNow(op string) bool {
	panic(fmt.Errorf("throttle %q: %w", op, ErrTimestampRequired))
}

// ActiveThrottlesFor returns throttles the operation is checked against, in definitions order.
func (dt *DeterministicThrottling) ActiveThrottlesFor(op string) []*throttle.DeterministicThrottle {
	manager, ok := dt.gen.Load().managers[op]
	if !ok {
		return noThrottles
	}
	reqs := manager.Requirements()
	throttles := make([]*throttle.DeterministicThrottle, 0, len(reqs))
	for i := range reqs {
		throttles = append(throttles, reqs[i].Throttle)
	}
	return throttles
}

// AllActiveThrottles returns all resolved throttles in definitions order.
func (dt *DeterministicThrottling) AllActiveThrottles() []*throttle.DeterministicThrottle {
	active := dt.gen.Load().active
	if len(active) == 0 {
		return noThrottles
	}
	return append([]*throttle.DeterministicThrottle(nil), active...)
}

// ResolvedSummary returns a human-readable description of per-replica rates granted to every operation.
func (dt *DeterministicThrottling) ResolvedSummary() string {
	return dt.gen.Load().summary
}

// LogResolvedDefinitions logs the resolved summary at info level.
func (dt *DeterministicThrottling) LogResolvedDefinitions() {
	gen := dt.gen.Load()
	if gen.summary == "" {
		dt.logger.Info("no throttles are resolved")
		return
	}
	dt.logger.Info(gen.summary, log.Int("replicas", gen.replicas), log.Int("throttles", len(gen.active)))
}

// ResetUsage empties all active throttles and the gas throttle.
func (dt *DeterministicThrottling) ResetUsage() {
	for _, t := range dt.gen.Load().active {
		t.ResetUsage()
	}
	if t := dt.gas.Load().throttle; t != nil {
		t.ResetUsage()
	}
}

// UsageSnapshots returns usage snapshots of all active throttles in definitions order.
func (dt *DeterministicThrottling) UsageSnapshots() []throttle.UsageSnapshot {
	return takeSnapshots(dt.gen.Load().active)
}

// ResetUsageFromSnapshots restores usage of all active throttles from snapshots in definitions order.
// Snapshots are applied all or nothing: if any of them is not compatible with its throttle,
// every throttle is returned to its state before the call.
func (dt *DeterministicThrottling) ResetUsageFromSnapshots(snapshots []throttle.UsageSnapshot) error {
	active := dt.gen.Load().active
	if len(snapshots) != len(active) {
		dt.logger.Warn("usage snapshots are not applied",
			log.Int("snapshots", len(snapshots)), log.Int("throttles", len(active)))
		return fmt.Errorf("%w: %d snapshots for %d throttles", ErrSnapshotCountMismatch, len(snapshots), len(active))
	}

	prev := takeSnapshots(active)
	for i, t := range active {
		if err := t.ResetToSnapshot(snapshots[i]); err != nil {
			dt.rollback(active, prev)
			dt.logger.Warn("usage snapshots are not applied, throttles are rolled back",
				log.String("throttle", t.Name()), log.String("snapshot", snapshots[i].String()), log.Error(err))
			return fmt.Errorf("throttle %q: %w", t.Name(), err)
		}
	}
	return nil
}

func (dt *DeterministicThrottling) rollback(throttles []*throttle.DeterministicThrottle, snapshots []throttle.UsageSnapshot) {
	for i, t := range throttles {
		if err := t.ResetToSnapshot(snapshots[i]); err != nil {
			// Own snapshots always fit.
			dt.logger.Error("failed to roll back throttle usage", log.String("throttle", t.Name()), log.Error(err))
		}
	}
}

func takeSnapshots(throttles []*throttle.DeterministicThrottle) []throttle.UsageSnapshot {
	snapshots := make([]throttle.UsageSnapshot, 0, len(throttles))
	for _, t := range throttles {
		snapshots = append(snapshots, t.Snapshot())
	}
	return snapshots
}
