package skim

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Column is the read surface an aggregation needs from a typed value vector.
// Implementations are immutable once built. The typed accessors assume the
// caller has checked Kind(); they are never called by Skim's own aggregations
// for a mismatched Kind.
type Column interface {
	Kind() Kind               // Kind returns the value kind of this Column
	Len() int                 // Len returns the number of entries in this Column
	IsArray() bool            // IsArray returns true iff each entry is a variable-length array of values
	Int8At(i int) int8        // Int8At returns the value at index i of an Int8 Column
	Int16At(i int) int16      // Int16At returns the value at index i of an Int16 Column
	Int32At(i int) int32      // Int32At returns the value at index i of an Int32 Column
	Int64At(i int) int64      // Int64At returns the value at index i of an Int64 Column
	Uint8At(i int) uint8      // Uint8At returns the value at index i of a Uint8 Column
	Uint16At(i int) uint16    // Uint16At returns the value at index i of a Uint16 or Date Column
	Uint32At(i int) uint32    // Uint32At returns the value at index i of a Uint32 or DateTime Column
	Uint64At(i int) uint64    // Uint64At returns the value at index i of a Uint64 Column
	Float32At(i int) float32  // Float32At returns the value at index i of a Float32 Column
	Float64At(i int) float64  // Float64At returns the value at index i converted to float64, for any scalar Kind
	FloatsAt(i int) []float64 // FloatsAt returns the array entry at index i converted to float64s, or nil for scalar Columns
}

// ResultSink receives finalized aggregate values. A ColumnBuilder is the
// built-in implementation; host engines substitute their own output container.
type ResultSink interface {
	AppendFloat64(v float64)   // AppendFloat64 appends one scalar result, narrowed to the sink's Kind
	AppendFloats(vs []float64) // AppendFloats appends one array-valued result
}

// column is a little-endian packed Column
type column struct {
	kind    Kind
	data    []byte
	offsets []uint32 // value-index boundaries for array columns, nil otherwise
}

func (c *column) Kind() Kind { return c.kind }

func (c *column) Len() int {
	if c.offsets != nil {
		return len(c.offsets) - 1
	}
	return len(c.data) / c.kind.Width()
}

func (c *column) IsArray() bool { return c.offsets != nil }

func (c *column) Int8At(i int) int8 { return int8(c.data[i]) }

func (c *column) Int16At(i int) int16 {
	return int16(binary.LittleEndian.Uint16(c.data[i*2:]))
}

func (c *column) Int32At(i int) int32 {
	return int32(binary.LittleEndian.Uint32(c.data[i*4:]))
}

func (c *column) Int64At(i int) int64 {
	return int64(binary.LittleEndian.Uint64(c.data[i*8:]))
}

func (c *column) Uint8At(i int) uint8 { return c.data[i] }

func (c *column) Uint16At(i int) uint16 {
	return binary.LittleEndian.Uint16(c.data[i*2:])
}

func (c *column) Uint32At(i int) uint32 {
	return binary.LittleEndian.Uint32(c.data[i*4:])
}

func (c *column) Uint64At(i int) uint64 {
	return binary.LittleEndian.Uint64(c.data[i*8:])
}

func (c *column) Float32At(i int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(c.data[i*4:]))
}

func (c *column) Float64At(i int) float64 { return c.value64(i) }

func (c *column) FloatsAt(i int) []float64 {
	if c.offsets == nil {
		return nil
	}
	start, end := c.offsets[i], c.offsets[i+1]
	out := make([]float64, 0, end-start)
	for j := start; j < end; j++ {
		out = append(out, c.value64(int(j)))
	}
	return out
}

// value64 reads the value at flat index i, converted to float64
func (c *column) value64(i int) float64 {
	switch c.kind {
	case Int8:
		return float64(c.Int8At(i))
	case Int16:
		return float64(c.Int16At(i))
	case Int32:
		return float64(c.Int32At(i))
	case Int64:
		return float64(c.Int64At(i))
	case Uint8:
		return float64(c.Uint8At(i))
	case Uint16, Date:
		return float64(c.Uint16At(i))
	case Uint32, DateTime:
		return float64(c.Uint32At(i))
	case Uint64:
		return float64(c.Uint64At(i))
	case Float32:
		return float64(c.Float32At(i))
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(c.data[i*8:]))
}

// ColumnBuilder assembles a packed Column one entry at a time. A builder
// produces either a scalar or an array Column, depending on which Append
// method is used first; mixing the two is reported by Build. Builders must
// not be appended to after Build is called.
type ColumnBuilder struct {
	kind    Kind
	data    []byte
	offsets []uint32
	count   int
	err     error
}

// NewColumnBuilder returns an empty ColumnBuilder for the given Kind
func NewColumnBuilder(kind Kind) *ColumnBuilder {
	return &ColumnBuilder{kind: kind}
}

// Kind returns the value kind this builder packs
func (b *ColumnBuilder) Kind() Kind { return b.kind }

// Len returns the number of entries appended so far
func (b *ColumnBuilder) Len() int { return b.count }

// AppendFloat64 appends one scalar entry, narrowed to the builder's Kind.
// Integral kinds truncate toward zero; NaN narrows to zero for them.
func (b *ColumnBuilder) AppendFloat64(v float64) {
	if b.offsets != nil {
		b.fail("cannot append a scalar entry to an array column")
		return
	}
	b.appendValue(v)
	b.count++
}

// AppendFloats appends one array entry, narrowing each element to the
// builder's Kind
func (b *ColumnBuilder) AppendFloats(vs []float64) {
	if b.offsets == nil {
		if b.count > 0 {
			b.fail("cannot append an array entry to a scalar column")
			return
		}
		b.offsets = []uint32{0}
	}
	for _, v := range vs {
		b.appendValue(v)
	}
	b.offsets = append(b.offsets, uint32(len(b.data)/b.kind.Width()))
	b.count++
}

// Build returns the packed Column, or an error if the builder was misused
func (b *ColumnBuilder) Build() (Column, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &column{kind: b.kind, data: b.data, offsets: b.offsets}, nil
}

func (b *ColumnBuilder) fail(reason string) {
	if b.err == nil {
		b.err = fmt.Errorf("Column %s: %s", b.kind, reason)
	}
}

func (b *ColumnBuilder) appendValue(v float64) {
	var bits uint64
	switch {
	case b.kind.IsFloat():
		if b.kind == Float32 {
			bits = uint64(math.Float32bits(float32(v)))
		} else {
			bits = math.Float64bits(v)
		}
	case b.kind.IsSigned():
		bits = uint64(narrowInt64(v))
	default:
		bits = narrowUint64(v)
	}
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], bits)
	b.data = append(b.data, tmp[:b.kind.Width()]...)
}

// Append appends one scalar entry of the builder's exact storage type. The
// width of T must match the builder's Kind.
func Append[T Value](b *ColumnBuilder, v T) {
	if b.offsets != nil {
		b.fail("cannot append a scalar entry to an array column")
		return
	}
	if KindOf[T]().Width() != b.kind.Width() {
		b.fail(fmt.Sprintf("cannot append a %s value", KindOf[T]()))
		return
	}
	var bits uint64
	switch x := any(v).(type) {
	case int8:
		bits = uint64(uint8(x))
	case int16:
		bits = uint64(uint16(x))
	case int32:
		bits = uint64(uint32(x))
	case int64:
		bits = uint64(x)
	case uint8:
		bits = uint64(x)
	case uint16:
		bits = uint64(x)
	case uint32:
		bits = uint64(x)
	case uint64:
		bits = x
	case float32:
		bits = uint64(math.Float32bits(x))
	case float64:
		bits = math.Float64bits(x)
	}
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], bits)
	b.data = append(b.data, tmp[:b.kind.Width()]...)
	b.count++
}

// ValueAt returns the value at index i of a scalar Column whose Kind stores
// Go type T
func ValueAt[T Value](c Column, i int) T {
	var z T
	switch any(z).(type) {
	case int8:
		return T(c.Int8At(i))
	case int16:
		return T(c.Int16At(i))
	case int32:
		return T(c.Int32At(i))
	case int64:
		return T(c.Int64At(i))
	case uint8:
		return T(c.Uint8At(i))
	case uint16:
		return T(c.Uint16At(i))
	case uint32:
		return T(c.Uint32At(i))
	case uint64:
		return T(c.Uint64At(i))
	case float32:
		return T(c.Float32At(i))
	}
	return T(c.Float64At(i))
}

// narrowInt64 truncates v toward zero, clamping to the int64 range. NaN
// narrows to zero.
func narrowInt64(v float64) int64 {
	if math.IsNaN(v) {
		return 0
	}
	if v >= math.MaxInt64 {
		return math.MaxInt64
	}
	if v <= math.MinInt64 {
		return math.MinInt64
	}
	return int64(v)
}

// narrowUint64 truncates v toward zero, clamping to the uint64 range. NaN
// narrows to zero.
func narrowUint64(v float64) uint64 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= math.MaxUint64 {
		return math.MaxUint64
	}
	return uint64(v)
}
