/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import "time"

// Requirement binds a throttle to the number of its operations that one logical operation consumes.
type Requirement struct {
	Throttle    *DeterministicThrottle
	OpsRequired uint64
}

// ReqsManager makes all-or-nothing admission decisions over a fixed list of requirements.
// Throttles may be shared with other managers.
type ReqsManager struct {
	reqs []Requirement
}

// NewReqsManager creates a new ReqsManager. Requirements are checked in the given order.
// Requirements on the same throttle are merged into the first of them, their ops are summed.
func NewReqsManager(reqs []Requirement) *ReqsManager {
	merged := make([]Requirement, 0, len(reqs))
	for _, req := range reqs {
		if i := indexOfThrottle(merged, req.Throttle); i >= 0 {
			merged[i].OpsRequired = saturatingAdd(merged[i].OpsRequired, req.OpsRequired)
			continue
		}
		merged = append(merged, req)
	}
	return &ReqsManager{reqs: merged}
}

func indexOfThrottle(reqs []Requirement, t *DeterministicThrottle) int {
	for i := range reqs {
		if reqs[i].Throttle == t {
			return i
		}
	}
	return -1
}

// AllReqsMetAt reports whether every requirement is admitted at the given time.
// If some requirement is rejected, the capacity taken by the already admitted ones is returned
// and the remaining requirements are not tried.
func (m *ReqsManager) AllReqsMetAt(now time.Time) bool {
	return m.AllReqsMetAtN(1, now)
}

// AllReqsMetAtN is like AllReqsMetAt, but every requirement is scaled by n.
// A scaled requirement that overflows is rejected. Zero n is rejected without touching any throttle.
func (m *ReqsManager) AllReqsMetAtN(n uint64, now time.Time) bool {
	if n == 0 {
		return false
	}
	for i := range m.reqs {
		ops := saturatingMul(m.reqs[i].OpsRequired, n)
		if !m.reqs[i].Throttle.Allow(ops, now) {
			m.reclaimFirst(i)
			return false
		}
	}
	return true
}

func (m *ReqsManager) reclaimFirst(n int) {
	for i := n - 1; i >= 0; i-- {
		m.reqs[i].Throttle.ReclaimLastAllowedUse()
	}
}

// CurrentUsage returns usage snapshots of the managed throttles in requirements order.
func (m *ReqsManager) CurrentUsage() []UsageSnapshot {
	snapshots := make([]UsageSnapshot, 0, len(m.reqs))
	for i := range m.reqs {
		snapshots = append(snapshots, m.reqs[i].Throttle.Snapshot())
	}
	return snapshots
}

// Requirements returns a copy of the managed requirements.
func (m *ReqsManager) Requirements() []Requirement {
	return append([]Requirement(nil), m.reqs...)
}
