/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import (
	"errors"
	"math"
	"math/bits"
)

// CapacityUnitsPerOp is the number of capacity units that make up one operation.
// All buckets track capacity and usage in these units.
const CapacityUnitsPerOp uint64 = 1_000_000_000_000

const (
	milliOpsPerOp   = 1_000
	millisPerSecond = 1_000
	nanosPerSecond  = 1_000_000_000

	// Units leaked per nanosecond by a rate of one milli-op per second.
	leakUnitsPerNanoMtps = CapacityUnitsPerOp / (nanosPerSecond * milliOpsPerOp)

	// Units of capacity per milli-op-per-second of rate and millisecond of burst period.
	capacityUnitsPerMtpsMs = CapacityUnitsPerOp / (milliOpsPerOp * millisPerSecond)
)

// Bucket construction errors.
var (
	ErrZeroRate         = errors.New("rate should be positive")
	ErrZeroBurstPeriod  = errors.New("burst period should be positive")
	ErrCapacityOverflow = errors.New("bucket capacity overflows 64-bit capacity units")
)

// BucketThrottle is a leaky bucket with integer-only arithmetic.
// The bucket leaks at its rate (in milli-ops per second) and is filled by allowed requests.
type BucketThrottle struct {
	mtps             uint64
	burstPeriodMs    uint64
	capacity         uint64
	used             uint64
	lastAllowedUnits uint64
}

// NewBucketThrottle creates a new BucketThrottle from a rate in operations per second
// and a burst period in seconds.
func NewBucketThrottle(opsPerSec, burstPeriodSec uint64) (BucketThrottle, error) {
	mtps, ok := mulUint64(opsPerSec, milliOpsPerOp)
	if !ok {
		return BucketThrottle{}, ErrCapacityOverflow
	}
	burstPeriodMs, ok := mulUint64(burstPeriodSec, millisPerSecond)
	if !ok {
		return BucketThrottle{}, ErrCapacityOverflow
	}
	return NewBucketThrottleWithMtps(mtps, burstPeriodMs)
}

// NewBucketThrottleWithMtps creates a new BucketThrottle from a rate in milli-operations per second
// and a burst period in milliseconds.
func NewBucketThrottleWithMtps(mtps, burstPeriodMs uint64) (BucketThrottle, error) {
	if mtps == 0 {
		return BucketThrottle{}, ErrZeroRate
	}
	if burstPeriodMs == 0 {
		return BucketThrottle{}, ErrZeroBurstPeriod
	}
	product, ok := mulUint64(mtps, burstPeriodMs)
	if !ok {
		return BucketThrottle{}, ErrCapacityOverflow
	}
	capacity, ok := mulUint64(product, capacityUnitsPerMtpsMs)
	if !ok {
		return BucketThrottle{}, ErrCapacityOverflow
	}
	return BucketThrottle{mtps: mtps, burstPeriodMs: burstPeriodMs, capacity: capacity}, nil
}

// Allow leaks the bucket for the given elapsed time and then tries to fill it with the capacity
// required by the given number of operations.
// The leak is kept even if the request is rejected. Negative elapsed time is treated as zero.
func (b *BucketThrottle) Allow(ops uint64, elapsedNanos int64) bool {
	b.leakFor(elapsedNanos)
	required, ok := b.CapacityRequiredFor(ops)
	if !ok || required > b.capacity-b.used {
		b.lastAllowedUnits = 0
		return false
	}
	b.used += required
	b.lastAllowedUnits = required
	return true
}

// ReclaimLastAllowedUse returns the capacity taken by the most recent call of Allow, if it succeeded.
// Calling it again without a new successful Allow does nothing.
func (b *BucketThrottle) ReclaimLastAllowedUse() {
	b.leakUnits(b.lastAllowedUnits)
	b.lastAllowedUnits = 0
}

// CapacityRequiredFor returns the number of capacity units required by the given number of operations.
// The second returned value is false if the number does not fit into 64 bits.
func (b *BucketThrottle) CapacityRequiredFor(ops uint64) (uint64, bool) {
	return mulUint64(ops, CapacityUnitsPerOp)
}

// Capacity returns the total capacity of the bucket in capacity units.
func (b *BucketThrottle) Capacity() uint64 {
	return b.capacity
}

// Used returns the used capacity of the bucket in capacity units.
func (b *BucketThrottle) Used() uint64 {
	return b.used
}

// CapacityFree returns the free capacity of the bucket in capacity units.
func (b *BucketThrottle) CapacityFree() uint64 {
	return b.capacity - b.used
}

// Mtps returns the leak rate of the bucket in milli-operations per second.
func (b *BucketThrottle) Mtps() uint64 {
	return b.mtps
}

// BurstPeriodMs returns the burst period of the bucket in milliseconds.
func (b *BucketThrottle) BurstPeriodMs() uint64 {
	return b.burstPeriodMs
}

func (b *BucketThrottle) leakFor(elapsedNanos int64) {
	if elapsedNanos <= 0 {
		return
	}
	leaked, ok := mulUint64(uint64(elapsedNanos), b.mtps)
	if ok {
		leaked, ok = mulUint64(leaked, leakUnitsPerNanoMtps)
	}
	if !ok {
		leaked = math.MaxUint64
	}
	b.leakUnits(leaked)
}

func (b *BucketThrottle) leakUnits(units uint64) {
	if units >= b.used {
		b.used = 0
		return
	}
	b.used -= units
}

// resetUsed sets the used capacity; the caller guarantees used <= capacity.
func (b *BucketThrottle) resetUsed(used uint64) {
	b.used = used
	b.lastAllowedUnits = 0
}

func mulUint64(a, b uint64) (uint64, bool) {
	hi, lo := bits.Mul64(a, b)
	return lo, hi == 0
}

func saturatingAdd(a, b uint64) uint64 {
	if sum, carry := bits.Add64(a, b, 0); carry == 0 {
		return sum
	}
	return math.MaxUint64
}

func saturatingMul(a, b uint64) uint64 {
	if res, ok := mulUint64(a, b); ok {
		return res
	}
	return math.MaxUint64
}
