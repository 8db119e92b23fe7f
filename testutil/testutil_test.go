/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import "fmt"

// recordingT is a require.TestingT that remembers the failure instead of stopping the test.
type recordingT struct {
	failed bool
	msg    string
}

func (t *recordingT) Errorf(format string, args ...interface{}) {
	t.msg = fmt.Sprintf(format, args...)
}

func (t *recordingT) FailNow() {
	t.failed = true
}
