package skim

import "fmt"

// Kind identifies one of the fixed-width numeric families an aggregation can
// consume or produce. Date and DateTime are stored as unsigned ordinals (days
// and seconds since epoch) and never promote to a floating result.
type Kind uint8

const (
	// Int8 is a signed 8-bit integer kind
	Int8 Kind = iota
	// Int16 is a signed 16-bit integer kind
	Int16
	// Int32 is a signed 32-bit integer kind
	Int32
	// Int64 is a signed 64-bit integer kind
	Int64
	// Uint8 is an unsigned 8-bit integer kind
	Uint8
	// Uint16 is an unsigned 16-bit integer kind
	Uint16
	// Uint32 is an unsigned 32-bit integer kind
	Uint32
	// Uint64 is an unsigned 64-bit integer kind
	Uint64
	// Float32 is a 32-bit floating point kind
	Float32
	// Float64 is a 64-bit floating point kind
	Float64
	// Date is an ordinal kind storing days since epoch as a uint16
	Date
	// DateTime is an ordinal kind storing seconds since epoch as a uint32
	DateTime
)

// Value constrains the Go representations of the supported column kinds
type Value interface {
	int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64 | float32 | float64
}

// Width returns the size in bytes of a value of this Kind
func (k Kind) Width() int {
	switch k {
	case Int8, Uint8:
		return 1
	case Int16, Uint16, Date:
		return 2
	case Int32, Uint32, Float32, DateTime:
		return 4
	default:
		return 8
	}
}

// IsFloat returns true iff this Kind stores floating point values
func (k Kind) IsFloat() bool {
	return k == Float32 || k == Float64
}

// IsSigned returns true iff this Kind stores signed integer values
func (k Kind) IsSigned() bool {
	return k == Int8 || k == Int16 || k == Int32 || k == Int64
}

// IsOrdinal returns true iff this Kind stores calendar ordinals rather than plain numbers
func (k Kind) IsOrdinal() bool {
	return k == Date || k == DateTime
}

// Promote returns the Kind of a floating-point result computed over values of
// this Kind. Ordinal kinds keep their own family, since an interpolated
// calendar value is still a calendar value.
func (k Kind) Promote() Kind {
	if k.IsOrdinal() {
		return k
	}
	return Float64
}

// String returns a string representation of this Kind
func (k Kind) String() string {
	switch k {
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint8:
		return "uint8"
	case Uint16:
		return "uint16"
	case Uint32:
		return "uint32"
	case Uint64:
		return "uint64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Date:
		return "date"
	case DateTime:
		return "datetime"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind translates a string representation of a Kind to its enum value
func ParseKind(s string) (Kind, error) {
	for k := Int8; k <= DateTime; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return Float64, fmt.Errorf("Unknown column kind %s", s)
}

// KindOf returns the Kind stored by Go type T. Ordinal kinds share a Go
// representation with their unsigned storage family, so KindOf never returns
// Date or DateTime.
func KindOf[T Value]() Kind {
	var z T
	switch any(z).(type) {
	case int8:
		return Int8
	case int16:
		return Int16
	case int32:
		return Int32
	case int64:
		return Int64
	case uint8:
		return Uint8
	case uint16:
		return Uint16
	case uint32:
		return Uint32
	case uint64:
		return Uint64
	case float32:
		return Float32
	}
	return Float64
}
