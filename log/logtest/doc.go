/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package logtest provides a log.FieldLogger that records entries for assertions in tests.
package logtest
