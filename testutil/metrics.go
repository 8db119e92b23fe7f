/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterSum gathers c through a pedantic registry and sums values of all its counters.
func counterSum(t assert.TestingT, c prometheus.Collector) (float64, bool) {
	reg := prometheus.NewPedanticRegistry()
	if !assert.NoError(t, reg.Register(c)) {
		return 0, false
	}
	families, err := reg.Gather()
	if !assert.NoError(t, err) {
		return 0, false
	}
	var sum float64
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
	}
	return sum, true
}

// AssertSamplesCountInCounter asserts the value of a single counter.
func AssertSamplesCountInCounter(t assert.TestingT, counter prometheus.Counter, wantCount int) bool {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	got, ok := counterSum(t, counter)
	return ok && assert.Equal(t, wantCount, int(got))
}

// RequireSamplesCountInCounter is AssertSamplesCountInCounter that stops the test on failure.
func RequireSamplesCountInCounter(t require.TestingT, counter prometheus.Counter, wantCount int) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	if !AssertSamplesCountInCounter(t, counter, wantCount) {
		t.FailNow()
	}
}

// AssertCounterVecTotal asserts the sum over all label combinations of a counter vector.
func AssertCounterVecTotal(t assert.TestingT, vec *prometheus.CounterVec, wantTotal int) bool {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	got, ok := counterSum(t, vec)
	return ok && assert.Equal(t, wantTotal, int(got))
}

// RequireCounterVecTotal is AssertCounterVecTotal that stops the test on failure.
func RequireCounterVecTotal(t require.TestingT, vec *prometheus.CounterVec, wantTotal int) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	if !AssertCounterVecTotal(t, vec, wantTotal) {
		t.FailNow()
	}
}
