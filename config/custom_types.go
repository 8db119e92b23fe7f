/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"fmt"
	"strconv"
	"strings"

	"code.cloudfoundry.org/bytefmt"
	"gopkg.in/yaml.v3"
)

// ByteSize is a size in bytes. It is decoded from a plain number
// or a human-readable string ("250M", "1Gi") and encoded as a human-readable string.
type ByteSize uint64

// UnmarshalText implements encoding.TextUnmarshaler interface.
func (b *ByteSize) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if num, err := strconv.ParseInt(s, 10, 64); err == nil {
		if num < 0 {
			return fmt.Errorf("negative value is not allowed: %d", num)
		}
		*b = ByteSize(num)
		return nil
	}
	parsed, err := parseByteSize(s)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// UnmarshalJSON implements json.Unmarshaler interface. Both numbers and strings are accepted.
func (b *ByteSize) UnmarshalJSON(data []byte) error {
	return b.UnmarshalText([]byte(strings.Trim(string(data), `"`)))
}

// UnmarshalYAML implements yaml.Unmarshaler interface.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("invalid byte size format: line %d", value.Line)
	}
	return b.UnmarshalText([]byte(value.Value))
}

// MarshalText implements encoding.TextMarshaler interface.
func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// MarshalYAML implements yaml.Marshaler interface.
func (b ByteSize) MarshalYAML() (interface{}, error) {
	return b.String(), nil
}

// String implements fmt.Stringer interface.
func (b ByteSize) String() string {
	return bytefmt.ByteSize(uint64(b))
}

// parseByteSize parses a human-readable size. Power-of-two suffixes used by Kubernetes ("Mi", "Gi")
// mean the same as bytefmt ones ("M", "G").
func parseByteSize(s string) (ByteSize, error) {
	v := strings.TrimSpace(s)
	if len(v) > 2 && strings.HasSuffix(v, "i") && strings.ContainsRune("KMGTPE", rune(v[len(v)-2])) {
		v = v[:len(v)-1]
	}
	num, err := bytefmt.ToBytes(v)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size format (%s): %w", s, err)
	}
	return ByteSize(num), nil
}
