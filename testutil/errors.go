/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stretchr/testify/require"
)

// RequireErrorIsAny fails the test unless errors.Is(err, target) holds for at least one of targets.
// It suits code paths where the first failed validation rule depends on input order.
func RequireErrorIsAny(t require.TestingT, err error, targets []error, msgAndArgs ...interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	quoted := make([]string, 0, len(targets))
	for _, target := range targets {
		if errors.Is(err, target) {
			return
		}
		quoted = append(quoted, fmt.Sprintf("%q", target.Error()))
	}
	require.FailNow(t, fmt.Sprintf("None of the target errors is in err tree:\n"+
		"targets: [%s]\n"+
		"err tree:\n%s", strings.Join(quoted, "; "), errorTree(err)), msgAndArgs...)
}

// errorTree renders err and everything it wraps, one error per line, indented by depth.
// Both single (Unwrap() error) and multiple (Unwrap() []error) wrapping are followed.
func errorTree(err error) string {
	var sb strings.Builder
	var walk func(e error, depth int)
	walk = func(e error, depth int) {
		if e == nil {
			return
		}
		fmt.Fprintf(&sb, "%s%q\n", strings.Repeat("\t", depth+1), e.Error())
		switch u := e.(type) {
		case interface{ Unwrap() error }:
			walk(u.Unwrap(), depth+1)
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner, depth+1)
			}
		}
	}
	walk(err, 0)
	if sb.Len() == 0 {
		return "\t<nil>"
	}
	return strings.TrimSuffix(sb.String(), "\n")
}
