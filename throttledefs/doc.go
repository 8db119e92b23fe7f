/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package throttledefs contains the throttle definitions document (buckets of throttle groups),
// its loading from YAML/JSON and its resolution into per-replica throttles.
package throttledefs
