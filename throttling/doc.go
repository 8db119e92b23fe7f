/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package throttling provides DeterministicThrottling, the registry that maps operation names
// to the deterministic throttles resolved from throttle definitions.
//
// Every replica of the network rebuilds the registry from the same definitions and feeds it
// the same consensus-ordered stream of operations with consensus timestamps,
// so all replicas reach identical admission decisions.
//
// Contract operations may also be limited by the gas they reserve, see ApplyGasConfig.
package throttling
