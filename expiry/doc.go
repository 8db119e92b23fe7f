/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package expiry provides a deterministic throttle for background maintenance work
// (e.g. removal of expired entities), metered in low-level storage accesses instead of operations.
package expiry
