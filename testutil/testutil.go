/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package testutil provides assertions shared by tests of admission packages.
package testutil

type tHelper interface {
	Helper()
}
