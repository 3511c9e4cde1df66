package errors

import (
	"fmt"
)

// ConfigurationError occurs when an aggregation is set up with invalid options
type ConfigurationError struct{ Reason string }

// Error returns a textual representation of this ConfigurationError
func (e ConfigurationError) Error() string {
	return fmt.Sprintf("Configuration is invalid: %s", e.Reason)
}

// ParameterCountError occurs when an aggregate function is configured with the wrong number of parameters
type ParameterCountError struct {
	Function string
	Min      int
	Max      int // -1 means unbounded
	Actual   int
}

// Error returns a textual representation of this ParameterCountError
func (e ParameterCountError) Error() string {
	if e.Max < 0 {
		return fmt.Sprintf("Aggregate function %s requires at least %d level parameter(s), got %d", e.Function, e.Min, e.Actual)
	}
	if e.Min == e.Max {
		return fmt.Sprintf("Aggregate function %s requires exactly %d level parameter(s), got %d", e.Function, e.Min, e.Actual)
	}
	return fmt.Sprintf("Aggregate function %s requires between %d and %d level parameters, got %d", e.Function, e.Min, e.Max, e.Actual)
}

// ParameterTypeError occurs when an aggregate function parameter is not numeric
type ParameterTypeError struct {
	Index int
	Raw   string
}

// Error returns a textual representation of this ParameterTypeError
func (e ParameterTypeError) Error() string {
	return fmt.Sprintf("Parameter %d is not numeric: %s", e.Index, e.Raw)
}

// LevelRangeError occurs when a quantile level lies outside [0, 1]
type LevelRangeError struct{ Level float64 }

// Error returns a textual representation of this LevelRangeError
func (e LevelRangeError) Error() string {
	return fmt.Sprintf("Quantile level %f is not within [0, 1]", e.Level)
}

// CapacityError occurs when a sampler is constructed with a non-positive or oversized capacity
type CapacityError struct{ Capacity int }

// Error returns a textual representation of this CapacityError
func (e CapacityError) Error() string {
	return fmt.Sprintf("Sampler capacity %d is not within [1, 4294967295]", e.Capacity)
}

// CapacityMismatchError occurs when two samplers of different capacity are merged
type CapacityMismatchError struct {
	Ours   int
	Theirs int
}

// Error returns a textual representation of this CapacityMismatchError
func (e CapacityMismatchError) Error() string {
	return fmt.Sprintf("Cannot merge samplers of capacity %d and %d", e.Ours, e.Theirs)
}

// IncompatibleKindError occurs when a column's value kind does not match the kind an aggregation was bound to
type IncompatibleKindError struct {
	Expected string
	Actual   string
}

// Error returns a textual representation of this IncompatibleKindError
func (e IncompatibleKindError) Error() string {
	return fmt.Sprintf("Column kind %s is not compatible with %s", e.Actual, e.Expected)
}

// DeserializationError occurs when serialized aggregate state is malformed or inconsistent
type DeserializationError struct{ Reason string }

// Error returns a textual representation of this DeserializationError
func (e DeserializationError) Error() string {
	return fmt.Sprintf("Unable to deserialize aggregate state: %s", e.Reason)
}

// VersionMismatchError occurs when a spill envelope was written by an unknown format version
type VersionMismatchError struct {
	Expected uint16
	Actual   uint16
}

// Error returns a textual representation of this VersionMismatchError
func (e VersionMismatchError) Error() string {
	return fmt.Sprintf("Spill envelope version %d is not readable by version %d", e.Actual, e.Expected)
}

// ChecksumMismatchError occurs when a spill envelope's payload does not match its recorded checksum
type ChecksumMismatchError struct {
	Expected uint64
	Actual   uint64
}

// Error returns a textual representation of this ChecksumMismatchError
func (e ChecksumMismatchError) Error() string {
	return fmt.Sprintf("Spill envelope checksum %x does not match recorded checksum %x", e.Actual, e.Expected)
}

// NotCachedError occurs when a key is not present in any tier of a spill cache
type NotCachedError struct{ Key string }

// Error returns a textual representation of this NotCachedError
func (e NotCachedError) Error() string {
	return fmt.Sprintf("State %s is not in the cache", e.Key)
}

// NoSuchGroupError occurs when a group key has never been seen by a group map
type NoSuchGroupError struct{ Key string }

// Error returns a textual representation of this NoSuchGroupError
func (e NoSuchGroupError) Error() string {
	return fmt.Sprintf("Group %s does not exist", e.Key)
}
