/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// ErrMalformedSnapshot is returned when binary snapshot data cannot be decoded.
var ErrMalformedSnapshot = errors.New("malformed usage snapshot")

const (
	snapshotSize      = 8 + 1 + 8 + 4
	snapshotCountSize = 4
	maxNanos          = 999_999_999
)

// UsageSnapshot is the usage state of a throttle at some point.
// The zero LastDecisionTime means that the throttle has never made a decision.
type UsageSnapshot struct {
	Used             uint64
	LastDecisionTime time.Time
}

// Equal reports whether two snapshots represent the same state.
func (s UsageSnapshot) Equal(other UsageSnapshot) bool {
	return s.Used == other.Used && s.LastDecisionTime.Equal(other.LastDecisionTime)
}

// String returns a string representation of the snapshot.
// Implements fmt.Stringer interface.
func (s UsageSnapshot) String() string {
	return fmt.Sprintf("UsageSnapshot{used=%d, lastDecisionTime=%s}", s.Used, formatDecisionTime(s.LastDecisionTime))
}

// MarshalBinary implements the encoding.BinaryMarshaler interface.
func (s UsageSnapshot) MarshalBinary() ([]byte, error) {
	return s.appendBinary(make([]byte, 0, snapshotSize)), nil
}

// UnmarshalBinary implements the encoding.BinaryUnmarshaler interface.
func (s *UsageSnapshot) UnmarshalBinary(data []byte) error {
	if len(data) != snapshotSize {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedSnapshot, snapshotSize, len(data))
	}
	return s.decode(data)
}

func (s UsageSnapshot) appendBinary(buf []byte) []byte {
	buf = binary.BigEndian.AppendUint64(buf, s.Used)
	if s.LastDecisionTime.IsZero() {
		buf = append(buf, 0)
		buf = binary.BigEndian.AppendUint64(buf, 0)
		return binary.BigEndian.AppendUint32(buf, 0)
	}
	buf = append(buf, 1)
	buf = binary.BigEndian.AppendUint64(buf, uint64(s.LastDecisionTime.Unix()))
	return binary.BigEndian.AppendUint32(buf, uint32(s.LastDecisionTime.Nanosecond()))
}

func (s *UsageSnapshot) decode(data []byte) error {
	used := binary.BigEndian.Uint64(data[0:8])
	switch data[8] {
	case 0:
		*s = UsageSnapshot{Used: used}
		return nil
	case 1:
	default:
		return fmt.Errorf("%w: unknown time presence flag %d", ErrMalformedSnapshot, data[8])
	}
	secs := int64(binary.BigEndian.Uint64(data[9:17]))
	nanos := binary.BigEndian.Uint32(data[17:21])
	if nanos > maxNanos {
		return fmt.Errorf("%w: nanoseconds %d out of range", ErrMalformedSnapshot, nanos)
	}
	*s = UsageSnapshot{Used: used, LastDecisionTime: time.Unix(secs, int64(nanos)).UTC()}
	return nil
}

// MarshalSnapshots encodes a list of snapshots, prefixed with their count.
func MarshalSnapshots(snapshots []UsageSnapshot) []byte {
	buf := make([]byte, 0, snapshotCountSize+len(snapshots)*snapshotSize)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(snapshots)))
	for i := range snapshots {
		buf = snapshots[i].appendBinary(buf)
	}
	return buf
}

// UnmarshalSnapshots decodes a list of snapshots encoded by MarshalSnapshots.
func UnmarshalSnapshots(data []byte) ([]UsageSnapshot, error) {
	if len(data) < snapshotCountSize {
		return nil, fmt.Errorf("%w: missing snapshots count", ErrMalformedSnapshot)
	}
	count := binary.BigEndian.Uint32(data[:snapshotCountSize])
	data = data[snapshotCountSize:]
	if uint64(len(data)) != uint64(count)*snapshotSize {
		return nil, fmt.Errorf("%w: %d snapshots declared, %d bytes of payload", ErrMalformedSnapshot, count, len(data))
	}
	snapshots := make([]UsageSnapshot, count)
	for i := range snapshots {
		if err := snapshots[i].decode(data[i*snapshotSize : (i+1)*snapshotSize]); err != nil {
			return nil, fmt.Errorf("snapshot #%d: %w", i, err)
		}
	}
	return snapshots, nil
}

func formatDecisionTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format(time.RFC3339Nano)
}
