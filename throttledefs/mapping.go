/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttledefs

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/acronis/go-admission/throttle"
)

// Mapping errors.
var (
	ErrInvalidReplicaCount        = errors.New("replica count should be positive")
	ErrUnsatisfiableRate          = errors.New("rate cannot be split across replicas")
	ErrRequirementExceedsCapacity = errors.New("operation requirement exceeds bucket capacity")
)

// OpRequirement is the number of bucket operations consumed by one operation of the given name.
type OpRequirement struct {
	Operation   string
	OpsRequired uint64
}

// Mapping is a bucket resolved into a throttle for a single replica.
type Mapping struct {
	Throttle *throttle.DeterministicThrottle

	// LogicalMtps is the rate of the bucket for the whole network, before splitting between replicas.
	LogicalMtps uint64

	// Reqs lists requirements in document order. Only the first group mentioning an operation counts.
	Reqs []OpRequirement
}

// LogicalMtps returns the least common multiple of the group rates, in milli-operations per second.
// Every group rate divides it, so the requirement of each group is a whole number of operations.
func (b *Bucket) LogicalMtps() (uint64, error) {
	var res uint64 = 1
	for i := range b.ThrottleGroups {
		mtps, err := b.ThrottleGroups[i].ImpliedMilliOpsPerSec()
		if err != nil {
			return 0, err
		}
		if mtps == 0 {
			return 0, fmt.Errorf("throttle group #%d: %w", i, ErrZeroGroupRate)
		}
		if res, err = lcm(res, mtps); err != nil {
			return 0, err
		}
	}
	return res, nil
}

// ThrottleMapping resolves the bucket into a throttle with the capacity of one of the given number of replicas.
func (b *Bucket) ThrottleMapping(replicas int) (Mapping, error) {
	if replicas < 1 {
		return Mapping{}, fmt.Errorf("%w: %d", ErrInvalidReplicaCount, replicas)
	}
	if err := b.Validate(); err != nil {
		return Mapping{}, fmt.Errorf("bucket %q: %w", b.Name, err)
	}
	logicalMtps, err := b.LogicalMtps()
	if err != nil {
		return Mapping{}, fmt.Errorf("bucket %q: %w", b.Name, err)
	}
	mtps := logicalMtps / uint64(replicas)
	if mtps == 0 {
		return Mapping{}, fmt.Errorf("bucket %q: %w: %d milli-ops/sec cannot be split %d ways",
			b.Name, ErrUnsatisfiableRate, logicalMtps, replicas)
	}
	burstPeriodMs, err := b.ImpliedBurstPeriodMs()
	if err != nil {
		return Mapping{}, fmt.Errorf("bucket %q: %w", b.Name, err)
	}
	t, err := throttle.NewDeterministicThrottleWithMtps(b.Name, mtps, burstPeriodMs)
	if err != nil {
		return Mapping{}, err
	}

	var reqs []OpRequirement
	seen := make(map[string]struct{})
	for i := range b.ThrottleGroups {
		group := &b.ThrottleGroups[i]
		groupMtps, _ := group.ImpliedMilliOpsPerSec() // validated above
		opsRequired := logicalMtps / groupMtps
		if units, ok := t.CapacityRequiredFor(opsRequired); !ok || units > t.Capacity() {
			return Mapping{}, fmt.Errorf("bucket %q: %w: group #%d needs %d ops, burst capacity is %d units",
				b.Name, ErrRequirementExceedsCapacity, i, opsRequired, t.Capacity())
		}
		for _, op := range group.Operations {
			if _, ok := seen[op]; ok {
				continue
			}
			seen[op] = struct{}{}
			reqs = append(reqs, OpRequirement{Operation: op, OpsRequired: opsRequired})
		}
	}
	return Mapping{Throttle: t, LogicalMtps: logicalMtps, Reqs: reqs}, nil
}

func gcd(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a/gcd(a, b), b)
	if hi != 0 {
		return 0, fmt.Errorf("%w: least common multiple of %d and %d", ErrRateOverflow, a, b)
	}
	return lo, nil
}
