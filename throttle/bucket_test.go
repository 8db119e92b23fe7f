/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// BucketThrottleTestSuite contains tests for BucketThrottle
type BucketThrottleTestSuite struct {
	suite.Suite
}

func TestBucketThrottle(t *testing.T) {
	suite.Run(t, new(BucketThrottleTestSuite))
}

func (ts *BucketThrottleTestSuite) TestNew() {
	b, err := NewBucketThrottle(2, 3)
	ts.Require().NoError(err)
	ts.Equal(uint64(2000), b.Mtps())
	ts.Equal(uint64(3000), b.BurstPeriodMs())
	ts.Equal(6*CapacityUnitsPerOp, b.Capacity())
	ts.Equal(uint64(0), b.Used())
	ts.Equal(b.Capacity(), b.CapacityFree())

	b, err = NewBucketThrottleWithMtps(500, 2000)
	ts.Require().NoError(err)
	ts.Equal(CapacityUnitsPerOp, b.Capacity())
}

func (ts *BucketThrottleTestSuite) TestNewErrors() {
	_, err := NewBucketThrottle(0, 1)
	ts.ErrorIs(err, ErrZeroRate)

	_, err = NewBucketThrottle(1, 0)
	ts.ErrorIs(err, ErrZeroBurstPeriod)

	_, err = NewBucketThrottleWithMtps(math.MaxUint64, 2)
	ts.ErrorIs(err, ErrCapacityOverflow)

	_, err = NewBucketThrottleWithMtps(math.MaxUint32, math.MaxUint32)
	ts.ErrorIs(err, ErrCapacityOverflow)

	_, err = NewBucketThrottle(math.MaxUint64/10, 1)
	ts.ErrorIs(err, ErrCapacityOverflow)
}

func (ts *BucketThrottleTestSuite) TestAllowUntilFull() {
	b, err := NewBucketThrottle(2, 1)
	ts.Require().NoError(err)

	ts.True(b.Allow(1, 0))
	ts.True(b.Allow(1, 0))
	ts.False(b.Allow(1, 0))
	ts.Equal(b.Capacity(), b.Used())
	ts.Equal(uint64(0), b.CapacityFree())
}

func (ts *BucketThrottleTestSuite) TestAllowLeaks() {
	b, err := NewBucketThrottle(2, 1)
	ts.Require().NoError(err)
	ts.True(b.Allow(2, 0))

	// 2 ops/sec leak one op in half a second.
	ts.True(b.Allow(1, int64(500*time.Millisecond)))
	ts.Equal(b.Capacity(), b.Used())

	// Rejected request still keeps the leak.
	ts.False(b.Allow(2, int64(250*time.Millisecond)))
	ts.Equal(b.Capacity()-CapacityUnitsPerOp/2, b.Used())
}

func (ts *BucketThrottleTestSuite) TestAllowNegativeElapsed() {
	b, err := NewBucketThrottle(1, 1)
	ts.Require().NoError(err)
	ts.True(b.Allow(1, 0))
	ts.False(b.Allow(1, -int64(time.Hour)))
	ts.Equal(b.Capacity(), b.Used())
}

func (ts *BucketThrottleTestSuite) TestAllowHugeElapsedSaturates() {
	b, err := NewBucketThrottle(1000, 10)
	ts.Require().NoError(err)
	ts.True(b.Allow(10_000, 0))
	ts.True(b.Allow(0, math.MaxInt64))
	ts.Equal(uint64(0), b.Used())
}

func (ts *BucketThrottleTestSuite) TestAllowOverflowingRequest() {
	b, err := NewBucketThrottle(1, 1)
	ts.Require().NoError(err)
	ts.False(b.Allow(math.MaxUint64, 0))
	ts.Equal(uint64(0), b.Used())

	_, ok := b.CapacityRequiredFor(math.MaxUint64 / 2)
	ts.False(ok)
	units, ok := b.CapacityRequiredFor(3)
	ts.True(ok)
	ts.Equal(3*CapacityUnitsPerOp, units)
}

func (ts *BucketThrottleTestSuite) TestReclaimLastAllowedUse() {
	b, err := NewBucketThrottle(3, 1)
	ts.Require().NoError(err)

	ts.True(b.Allow(1, 0))
	ts.True(b.Allow(2, 0))
	b.ReclaimLastAllowedUse()
	ts.Equal(CapacityUnitsPerOp, b.Used())

	// Single level only.
	b.ReclaimLastAllowedUse()
	ts.Equal(CapacityUnitsPerOp, b.Used())

	// A rejected request leaves nothing to reclaim.
	ts.True(b.Allow(1, 0))
	ts.False(b.Allow(2, 0))
	b.ReclaimLastAllowedUse()
	ts.Equal(2*CapacityUnitsPerOp, b.Used())
}

func (ts *BucketThrottleTestSuite) TestReclaimAfterLeakDoesNotUnderflow() {
	b, err := NewBucketThrottle(1, 1)
	ts.Require().NoError(err)
	ts.True(b.Allow(1, 0))
	b.used = CapacityUnitsPerOp / 2
	b.ReclaimLastAllowedUse()
	ts.Equal(uint64(0), b.Used())
}
