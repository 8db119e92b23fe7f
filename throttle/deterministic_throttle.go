/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import (
	"errors"
	"fmt"
	"time"
)

// ErrIncompatibleSnapshot is returned when a usage snapshot cannot be applied to a throttle.
var ErrIncompatibleSnapshot = errors.New("usage snapshot is not compatible with throttle")

// DeterministicThrottle is a leaky bucket throttle for a single resource pool
// whose decisions depend only on the times passed by the caller.
type DeterministicThrottle struct {
	name             string
	delegate         BucketThrottle
	lastDecisionTime time.Time
}

// NewDeterministicThrottle creates a new DeterministicThrottle from a rate in operations per second
// and a burst period in seconds.
func NewDeterministicThrottle(name string, opsPerSec, burstPeriodSec uint64) (*DeterministicThrottle, error) {
	bucket, err := NewBucketThrottle(opsPerSec, burstPeriodSec)
	if err != nil {
		return nil, fmt.Errorf("new bucket for throttle %q: %w", name, err)
	}
	return &DeterministicThrottle{name: name, delegate: bucket}, nil
}

// NewDeterministicThrottleWithMtps creates a new DeterministicThrottle from a rate in milli-operations
// per second and a burst period in milliseconds.
func NewDeterministicThrottleWithMtps(name string, mtps, burstPeriodMs uint64) (*DeterministicThrottle, error) {
	bucket, err := NewBucketThrottleWithMtps(mtps, burstPeriodMs)
	if err != nil {
		return nil, fmt.Errorf("new bucket for throttle %q: %w", name, err)
	}
	return &DeterministicThrottle{name: name, delegate: bucket}, nil
}

// Allow tries to take the capacity of the given number of operations at the given time.
//
// The bucket first leaks for the time elapsed since the last decision. A time earlier than the last
// decision counts as no elapsed time, and the last decision time never moves backwards.
func (t *DeterministicThrottle) Allow(ops uint64, now time.Time) bool {
	now = now.Round(0) // strip monotonic clock reading
	var elapsedNanos int64
	if t.lastDecisionTime.IsZero() {
		t.lastDecisionTime = now
	} else {
		elapsedNanos = int64(now.Sub(t.lastDecisionTime))
		if elapsedNanos > 0 {
			t.lastDecisionTime = now
		}
	}
	return t.delegate.Allow(ops, elapsedNanos)
}

// ReclaimLastAllowedUse returns the capacity taken by the most recent call of Allow, if it succeeded.
// It is a no-op if there is nothing to reclaim.
func (t *DeterministicThrottle) ReclaimLastAllowedUse() {
	t.delegate.ReclaimLastAllowedUse()
}

// LeakOps returns the capacity of the given number of operations, e.g. reserved but left unused.
// The last decision time is not changed.
func (t *DeterministicThrottle) LeakOps(ops uint64) {
	t.delegate.leakUnits(saturatingMul(ops, CapacityUnitsPerOp))
}

// Snapshot returns the current usage of the throttle.
func (t *DeterministicThrottle) Snapshot() UsageSnapshot {
	return UsageSnapshot{Used: t.delegate.Used(), LastDecisionTime: t.lastDecisionTime}
}

// ResetToSnapshot restores the usage of the throttle from the snapshot.
// The throttle is left unchanged if the snapshot uses more than the capacity of the throttle.
func (t *DeterministicThrottle) ResetToSnapshot(snapshot UsageSnapshot) error {
	if snapshot.Used > t.delegate.Capacity() {
		return fmt.Errorf("%w: used %d exceeds capacity %d of throttle %q",
			ErrIncompatibleSnapshot, snapshot.Used, t.delegate.Capacity(), t.name)
	}
	t.delegate.resetUsed(snapshot.Used)
	t.lastDecisionTime = snapshot.LastDecisionTime
	return nil
}

// ResetUsage empties the bucket. The last decision time is kept.
func (t *DeterministicThrottle) ResetUsage() {
	t.delegate.resetUsed(0)
}

// CapacityRequiredFor returns the number of capacity units required by the given number of operations.
// The second returned value is false if the number does not fit into 64 bits.
func (t *DeterministicThrottle) CapacityRequiredFor(ops uint64) (uint64, bool) {
	return t.delegate.CapacityRequiredFor(ops)
}

// PercentUsed returns the percentage of capacity that would be used at the given time.
// The throttle state is not changed.
func (t *DeterministicThrottle) PercentUsed(now time.Time) float64 {
	bucket := t.leakedCopy(now)
	return 100 * float64(bucket.Used()) / float64(bucket.Capacity())
}

// CapacityFreeAt returns the free capacity in capacity units the throttle would have at the given time.
// The throttle state is not changed.
func (t *DeterministicThrottle) CapacityFreeAt(now time.Time) uint64 {
	bucket := t.leakedCopy(now)
	return bucket.CapacityFree()
}

func (t *DeterministicThrottle) leakedCopy(now time.Time) BucketThrottle {
	bucket := t.delegate
	if !t.lastDecisionTime.IsZero() {
		bucket.leakFor(int64(now.Round(0).Sub(t.lastDecisionTime)))
	}
	return bucket
}

// Name returns the name of the throttle.
func (t *DeterministicThrottle) Name() string {
	return t.name
}

// Capacity returns the total capacity of the throttle in capacity units.
func (t *DeterministicThrottle) Capacity() uint64 {
	return t.delegate.Capacity()
}

// Used returns the used capacity of the throttle in capacity units.
func (t *DeterministicThrottle) Used() uint64 {
	return t.delegate.Used()
}

// CapacityFree returns the free capacity of the throttle in capacity units as of the last decision.
func (t *DeterministicThrottle) CapacityFree() uint64 {
	return t.delegate.CapacityFree()
}

// Mtps returns the rate of the throttle in milli-operations per second.
func (t *DeterministicThrottle) Mtps() uint64 {
	return t.delegate.Mtps()
}

// BurstPeriodMs returns the burst period of the throttle in milliseconds.
func (t *DeterministicThrottle) BurstPeriodMs() uint64 {
	return t.delegate.BurstPeriodMs()
}

// LastDecisionTime returns the time of the last decision, or the zero time if no decision was made.
func (t *DeterministicThrottle) LastDecisionTime() time.Time {
	return t.lastDecisionTime
}

// String returns a human-readable representation of the throttle.
// Implements fmt.Stringer interface.
func (t *DeterministicThrottle) String() string {
	return fmt.Sprintf("DeterministicThrottle{name=%q, mtps=%d, capacity=%d (used=%d), lastDecisionTime=%s}",
		t.name, t.delegate.Mtps(), t.delegate.Capacity(), t.delegate.Used(), formatDecisionTime(t.lastDecisionTime))
}
