/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-admission/log"
)

func TestRecorder(t *testing.T) {
	logRecorder := NewRecorder()
	logRecorder.Warn("bucket rejected", log.Int("replicas", 10), log.String("bucket", "A"))
	logRecorder.Info("throttles resolved")

	require.Len(t, logRecorder.Entries(), 2)

	_, found := logRecorder.FindEntry("unknown")
	require.False(t, found)

	logEntry, found := logRecorder.FindEntry("bucket rejected")
	require.True(t, found)
	require.Equal(t, log.LevelWarn, logEntry.Level)

	logFieldNum, found := logEntry.FindField("replicas")
	require.True(t, found)
	require.Equal(t, 10, int(logFieldNum.Int))
	require.Equal(t, "A", logEntry.FieldString("bucket"))
	require.Equal(t, "", logEntry.FieldString("missing"))

	require.Len(t, logRecorder.EntriesAtLevel(log.LevelWarn), 1)
	require.Len(t, logRecorder.EntriesAtLevel(log.LevelError), 0)

	withBucket := logRecorder.Filter(func(e RecordedEntry) bool { return e.FieldString("bucket") != "" })
	require.Len(t, withBucket, 1)
	require.Equal(t, "bucket rejected", withBucket[0].Text)

	logRecorder.Reset()
	require.Empty(t, logRecorder.Entries())
}

func TestRecorderWith(t *testing.T) {
	logRecorder := NewRecorder()
	logger := logRecorder.With(log.String("component", "expiry")).WithLevel(log.LevelWarn)
	logger.Info("skipped")
	logger.Warn("unset")

	entries := logRecorder.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, "unset", entries[0].Text)
	require.Equal(t, "expiry", entries[0].FieldString("component"))
}
