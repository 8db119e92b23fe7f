/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package throttle provides the deterministic leaky-bucket primitives used for admission control
// on replicas of a replicated ledger.
//
// Every decision is a pure function of the bucket state, the requested amount and the time
// supplied by the caller (normally the consensus timestamp of the operation being handled).
// Nothing in this package reads a wall clock or uses randomness, so two replicas that replay
// the same sequence of calls end up with bit-identical state.
//
// Key types:
//   - BucketThrottle is the integer-only leak/consume arithmetic.
//   - DeterministicThrottle wraps one BucketThrottle, tracks the last decision time,
//     supports exact snapshot/restore and a single-level reclaim of the last allowed use.
//   - ReqsManager makes an all-or-nothing decision across several shared throttles.
//   - UsageSnapshot is the persisted projection of a throttle's state.
//
// Throttles are not safe for concurrent use; decisions are expected to be made
// on the single consensus-ordered handling path.
package throttle
