/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package expiry

import (
	"errors"
	"fmt"
	"math/bits"
	"time"

	"github.com/acronis/go-admission/log"
	"github.com/acronis/go-admission/throttle"
	"github.com/acronis/go-admission/throttledefs"
)

// Errors of resolving expiry throttle definitions.
var (
	ErrResourceNotFound     = errors.New("resource not found")
	ErrSingleBucketRequired = errors.New("expiry throttle definitions should have exactly one bucket")
	ErrUnknownAccessKind    = errors.New("unknown access kind")
)

// Option represents a configuration option for Throttle.
type Option func(*options)

type options struct {
	logger        log.FieldLogger
	minUnitOfWork []AccessKind
}

// WithLogger sets the logger for rebuild events.
func WithLogger(logger log.FieldLogger) Option {
	return func(opts *options) {
		opts.logger = logger
	}
}

// WithMinUnitOfWork sets the accesses of the smallest piece of work checked by StillLacksMinFreeCapAfterLeakingUntil.
func WithMinUnitOfWork(kinds []AccessKind) Option {
	return func(opts *options) {
		opts.minUnitOfWork = append([]AccessKind(nil), kinds...)
	}
}

// Throttle meters background maintenance work with a single deterministic bucket.
// Each access kind costs a fixed number of bucket operations.
//
// Until definitions are resolved successfully, the throttle is unset and refuses all work.
// Throttle is not safe for concurrent use.
type Throttle struct {
	loader        ResourceLoader
	defaults      ResourceLoader
	logger        log.FieldLogger
	minUnitOfWork []AccessKind

	bucket *throttle.DeterministicThrottle
	costs  map[AccessKind]uint64
}

// New creates a new unset Throttle. Preferred definitions are loaded with the given loader.
func New(loader ResourceLoader, opts ...Option) *Throttle {
	o := options{logger: log.NewDisabledLogger(), minUnitOfWork: DefaultMinUnitOfWork}
	for _, opt := range opts {
		opt(&o)
	}
	return &Throttle{loader: loader, defaults: DefaultLoader{}, logger: o.logger, minUnitOfWork: o.minUnitOfWork}
}

// RebuildFromResource resolves the throttle from the preferred resource.
// If it is absent or invalid, the bundled default definitions are used.
// If they cannot be used either, the throttle becomes unset.
// Usage of the previous bucket is not carried over.
func (t *Throttle) RebuildFromResource(preferred string) {
	bucket, costs, err := resolveResource(t.loader, preferred)
	if err == nil {
		t.install(bucket, costs, preferred)
		return
	}
	t.logger.Warn("preferred expiry throttle definitions are not applied, falling back to bundled defaults",
		log.String("resource", preferred), log.Error(err))

	bucket, costs, err = resolveResource(t.defaults, DefaultResourceName)
	if err != nil {
		t.bucket, t.costs = nil, nil
		t.logger.Warn("expiry throttle is not configured, all expiry work is refused", log.Error(err))
		return
	}
	t.install(bucket, costs, DefaultResourceName)
}

func (t *Throttle) install(bucket *throttle.DeterministicThrottle, costs map[AccessKind]uint64, resource string) {
	t.bucket, t.costs = bucket, costs
	t.logger.Info("expiry throttle is resolved",
		log.String("resource", resource), log.String("throttle", bucket.String()), log.Int("access_kinds", len(costs)))
}

func resolveResource(loader ResourceLoader, name string) (*throttle.DeterministicThrottle, map[AccessKind]uint64, error) {
	data, ok := loader.LoadResource(name)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrResourceNotFound, name)
	}
	dataType, err := throttledefs.DataTypeFromPath(name)
	if err != nil {
		return nil, nil, err
	}
	defs, err := throttledefs.Parse(data, dataType)
	if err != nil {
		return nil, nil, err
	}
	if len(defs.Buckets) != 1 {
		return nil, nil, fmt.Errorf("%w, got %d", ErrSingleBucketRequired, len(defs.Buckets))
	}
	// Expiry work is done by every node on its own, so the capacity is not split.
	mapping, err := defs.Buckets[0].ThrottleMapping(1)
	if err != nil {
		return nil, nil, err
	}
	costs := make(map[AccessKind]uint64, len(mapping.Reqs))
	for _, req := range mapping.Reqs {
		kind := AccessKind(req.Operation)
		if !kind.IsKnown() {
			return nil, nil, fmt.Errorf("%w %q", ErrUnknownAccessKind, req.Operation)
		}
		costs[kind] = req.OpsRequired
	}
	return mapping.Throttle, costs, nil
}

// IsSet reports whether the throttle has been resolved.
func (t *Throttle) IsSet() bool {
	return t.bucket != nil
}

// Allow tries to take the capacity of all the given accesses at once.
// It returns false if the throttle is unset, an access kind has no cost,
// or the total cost does not fit into the free capacity.
func (t *Throttle) Allow(kinds []AccessKind, now time.Time) bool {
	if t.bucket == nil {
		return false
	}
	ops, ok := t.costOf(kinds)
	if !ok {
		return false
	}
	return t.bucket.Allow(ops, now)
}

// AllowOne is Allow for a single access.
func (t *Throttle) AllowOne(kind AccessKind, now time.Time) bool {
	return t.Allow([]AccessKind{kind}, now)
}

// StillLacksMinFreeCapAfterLeakingUntil reports whether the minimum unit of work
// would still be refused at the given time. The throttle state is not changed.
func (t *Throttle) StillLacksMinFreeCapAfterLeakingUntil(now time.Time) bool {
	if t.bucket == nil {
		return true
	}
	ops, ok := t.costOf(t.minUnitOfWork)
	if !ok {
		return true
	}
	units, ok := t.bucket.CapacityRequiredFor(ops)
	if !ok {
		return true
	}
	return t.bucket.CapacityFreeAt(now) < units
}

// Costs returns a copy of the cost table in bucket operations per access.
func (t *Throttle) Costs() map[AccessKind]uint64 {
	costs := make(map[AccessKind]uint64, len(t.costs))
	for kind, cost := range t.costs {
		costs[kind] = cost
	}
	return costs
}

// ReclaimLastAllowedUse returns the capacity taken by the last successful Allow.
func (t *Throttle) ReclaimLastAllowedUse() {
	if t.bucket != nil {
		t.bucket.ReclaimLastAllowedUse()
	}
}

// ResetToSnapshot restores the usage of the bucket. It does nothing if the throttle is unset.
func (t *Throttle) ResetToSnapshot(snapshot throttle.UsageSnapshot) error {
	if t.bucket == nil {
		return nil
	}
	return t.bucket.ResetToSnapshot(snapshot)
}

// ThrottleSnapshot returns the usage of the bucket. The second returned value is false if the throttle is unset.
func (t *Throttle) ThrottleSnapshot() (throttle.UsageSnapshot, bool) {
	if t.bucket == nil {
		return throttle.UsageSnapshot{}, false
	}
	return t.bucket.Snapshot(), true
}

func (t *Throttle) costOf(kinds []AccessKind) (uint64, bool) {
	var total uint64
	for _, kind := range kinds {
		cost, ok := t.costs[kind]
		if !ok {
			return 0, false
		}
		var carry uint64
		if total, carry = bits.Add64(total, cost, 0); carry != 0 {
			return 0, false
		}
	}
	return total, true
}
