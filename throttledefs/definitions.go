/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttledefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/bits"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Validation errors.
var (
	ErrNoBuckets           = errors.New("at least one bucket should be defined")
	ErrEmptyBucketName     = errors.New("bucket name should not be empty")
	ErrDuplicateBucketName = errors.New("bucket name is not unique")
	ErrNoThrottleGroups    = errors.New("at least one throttle group should be defined")
	ErrZeroBurstPeriod     = errors.New("burst period should be positive")
	ErrZeroGroupRate       = errors.New("throttle group rate should be positive")
	ErrNoOperations        = errors.New("throttle group should list at least one operation")
	ErrRateOverflow        = errors.New("rate overflows 64-bit milli-ops per second")
)

const (
	milliOpsPerOp   = 1000
	millisPerSecond = 1000
)

// Definitions is a document that describes throttle buckets and the operations they admit.
// Definitions can be loaded in different formats (YAML, JSON) using config.Loader, viper,
// or with json.Unmarshal/yaml.Unmarshal functions directly.
type Definitions struct {
	Buckets []Bucket `mapstructure:"buckets" yaml:"buckets" json:"buckets"`
}

// Bucket describes a single shared resource pool.
type Bucket struct {
	Name string `mapstructure:"name" yaml:"name" json:"name"`

	// BurstPeriod is a burst period in seconds. It is used only if BurstPeriodMs is not set.
	BurstPeriod uint64 `mapstructure:"burstPeriod" yaml:"burstPeriod,omitempty" json:"burstPeriod,omitempty"`

	// BurstPeriodMs is a burst period in milliseconds.
	BurstPeriodMs uint64 `mapstructure:"burstPeriodMs" yaml:"burstPeriodMs,omitempty" json:"burstPeriodMs,omitempty"`

	ThrottleGroups []Group `mapstructure:"throttleGroups" yaml:"throttleGroups" json:"throttleGroups"`
}

// Group is a set of operations that share the same rate inside a bucket.
type Group struct {
	// OpsPerSec is a rate in operations per second. It is used only if MilliOpsPerSec is not set.
	OpsPerSec uint64 `mapstructure:"opsPerSec" yaml:"opsPerSec,omitempty" json:"opsPerSec,omitempty"`

	// MilliOpsPerSec is a rate in milli-operations per second.
	MilliOpsPerSec uint64 `mapstructure:"milliOpsPerSec" yaml:"milliOpsPerSec,omitempty" json:"milliOpsPerSec,omitempty"`

	Operations OperationsList `mapstructure:"operations" yaml:"operations" json:"operations"`
}

// Validate validates the definitions.
func (d *Definitions) Validate() error {
	if len(d.Buckets) == 0 {
		return ErrNoBuckets
	}
	names := make(map[string]struct{}, len(d.Buckets))
	for i := range d.Buckets {
		bucket := &d.Buckets[i]
		if bucket.Name == "" {
			return fmt.Errorf("validate bucket #%d: %w", i, ErrEmptyBucketName)
		}
		if _, ok := names[bucket.Name]; ok {
			return fmt.Errorf("validate bucket %q: %w", bucket.Name, ErrDuplicateBucketName)
		}
		names[bucket.Name] = struct{}{}
		if err := bucket.Validate(); err != nil {
			return fmt.Errorf("validate bucket %q: %w", bucket.Name, err)
		}
	}
	return nil
}

// Operations returns the names of all operations mentioned in the definitions, in document order and without duplicates.
func (d *Definitions) Operations() []string {
	var ops []string
	seen := make(map[string]struct{})
	for i := range d.Buckets {
		for j := range d.Buckets[i].ThrottleGroups {
			for _, op := range d.Buckets[i].ThrottleGroups[j].Operations {
				if _, ok := seen[op]; ok {
					continue
				}
				seen[op] = struct{}{}
				ops = append(ops, op)
			}
		}
	}
	return ops
}

// Validate validates the bucket.
func (b *Bucket) Validate() error {
	burstPeriodMs, err := b.ImpliedBurstPeriodMs()
	if err != nil {
		return err
	}
	if burstPeriodMs == 0 {
		return ErrZeroBurstPeriod
	}
	if len(b.ThrottleGroups) == 0 {
		return ErrNoThrottleGroups
	}
	for i := range b.ThrottleGroups {
		if err = b.ThrottleGroups[i].Validate(); err != nil {
			return fmt.Errorf("validate throttle group #%d: %w", i, err)
		}
	}
	return nil
}

// ImpliedBurstPeriodMs returns the burst period of the bucket in milliseconds.
func (b *Bucket) ImpliedBurstPeriodMs() (uint64, error) {
	if b.BurstPeriodMs != 0 {
		return b.BurstPeriodMs, nil
	}
	hi, lo := bits.Mul64(b.BurstPeriod, millisPerSecond)
	if hi != 0 {
		return 0, fmt.Errorf("burst period %d seconds overflows 64-bit milliseconds", b.BurstPeriod)
	}
	return lo, nil
}

// Validate validates the throttle group.
func (g *Group) Validate() error {
	mtps, err := g.ImpliedMilliOpsPerSec()
	if err != nil {
		return err
	}
	if mtps == 0 {
		return ErrZeroGroupRate
	}
	if len(g.Operations) == 0 {
		return ErrNoOperations
	}
	for _, op := range g.Operations {
		if op == "" {
			return fmt.Errorf("%w: empty operation name", ErrNoOperations)
		}
	}
	return nil
}

// ImpliedMilliOpsPerSec returns the rate of the group in milli-operations per second.
func (g *Group) ImpliedMilliOpsPerSec() (uint64, error) {
	if g.MilliOpsPerSec != 0 {
		return g.MilliOpsPerSec, nil
	}
	hi, lo := bits.Mul64(g.OpsPerSec, milliOpsPerOp)
	if hi != 0 {
		return 0, fmt.Errorf("%w: %d ops/sec", ErrRateOverflow, g.OpsPerSec)
	}
	return lo, nil
}

// OperationsList represents a list of operation names.
// It may be specified either as a list or as a comma-separated string.
type OperationsList []string

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (ol *OperationsList) UnmarshalText(text []byte) error {
	ol.unmarshal(string(text))
	return nil
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (ol *OperationsList) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		ol.unmarshal(s)
		return nil
	}
	var l []string
	if err := json.Unmarshal(data, &l); err == nil {
		*ol = trimSpaces(l)
		return nil
	}
	return fmt.Errorf("invalid operations list: %s", data)
}

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (ol *OperationsList) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		ol.unmarshal(s)
		return nil
	}
	var l []string
	if err := value.Decode(&l); err == nil {
		*ol = trimSpaces(l)
		return nil
	}
	return fmt.Errorf("invalid operations list: %v", value.Value)
}

func (ol *OperationsList) unmarshal(data string) {
	data = strings.TrimSpace(data)
	if data == "" {
		*ol = OperationsList{}
		return
	}
	*ol = trimSpaces(strings.Split(data, ","))
}

// String returns operations joined with a comma.
// Implements fmt.Stringer interface.
func (ol OperationsList) String() string {
	return strings.Join(ol, ",")
}

func trimSpaces(l []string) []string {
	res := make([]string, 0, len(l))
	for _, s := range l {
		res = append(res, strings.TrimSpace(s))
	}
	return res
}

func mapstructureTrimSpaceStringsHookFunc() mapstructure.DecodeHookFunc {
	return func(f reflect.Kind, t reflect.Kind, data interface{}) (interface{}, error) {
		if f != reflect.Slice || t != reflect.Slice {
			return data, nil
		}
		if dt, ok := data.([]string); ok {
			return trimSpaces(dt), nil
		}
		return data, nil
	}
}

// MapstructureDecodeHook returns a DecodeHookFunc for mapstructure to handle custom types.
func MapstructureDecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructureTrimSpaceStringsHookFunc(),
	)
}
