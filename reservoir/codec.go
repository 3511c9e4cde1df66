package reservoir

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-skim/skim"
	errors "github.com/go-skim/skim/errors"
)

// Serialized Sampler state is, in order and little-endian: capacity (uint32),
// seen count (uint64), retained sample length (uint32), then the raw sample
// values in storage order using T's fixed-width encoding. The sample length
// is stored explicitly because it cannot be recovered from a saturated seen
// count. The layout is frozen.

const headerSize = 16

// ToBytes serializes this Sampler's state
func (s *Sampler[T]) ToBytes() ([]byte, error) {
	w := width[T]()
	buf := make([]byte, headerSize+len(s.sample)*w)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(s.capacity))
	binary.LittleEndian.PutUint64(buf[4:12], s.seen)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(s.sample)))
	off := headerSize
	for _, v := range s.sample {
		putValue(buf[off:], v)
		off += w
	}
	return buf, nil
}

// FromBytes produces a new Sampler from serialized state, rejecting any
// buffer whose counters violate the sampler invariant rather than guessing.
// The new Sampler draws fresh randomness unless a seed Option is supplied.
func FromBytes[T skim.Value](buf []byte, opts ...Option) (*Sampler[T], error) {
	if len(buf) < headerSize {
		return nil, errors.DeserializationError{Reason: fmt.Sprintf("buffer of %d bytes is shorter than the %d byte header", len(buf), headerSize)}
	}
	capacity := binary.LittleEndian.Uint32(buf[0:4])
	seen := binary.LittleEndian.Uint64(buf[4:12])
	length := binary.LittleEndian.Uint32(buf[12:16])
	if capacity == 0 {
		return nil, errors.DeserializationError{Reason: "capacity is zero"}
	}
	if seen > MaxSeenCount {
		return nil, errors.DeserializationError{Reason: fmt.Sprintf("seen count %d exceeds the saturation bound", seen)}
	}
	if uint64(length) != min(seen, uint64(capacity)) {
		return nil, errors.DeserializationError{Reason: fmt.Sprintf("sample length %d does not equal min(seen count %d, capacity %d)", length, seen, capacity)}
	}
	w := width[T]()
	if len(buf)-headerSize != int(length)*w {
		return nil, errors.DeserializationError{Reason: fmt.Sprintf("expected %d sample bytes of width %d, got %d", int(length)*w, w, len(buf)-headerSize)}
	}
	s, err := New[T](int(capacity), opts...)
	if err != nil {
		return nil, errors.DeserializationError{Reason: err.Error()}
	}
	s.seen = seen
	s.sample = make([]T, 0, length)
	for i := 0; i < int(length); i++ {
		s.sample = append(s.sample, getValue[T](buf[headerSize+i*w:]))
	}
	return s, nil
}

// width returns the fixed encoding width of T in bytes
func width[T skim.Value]() int {
	var z T
	switch any(z).(type) {
	case int8, uint8:
		return 1
	case int16, uint16:
		return 2
	case int32, uint32, float32:
		return 4
	}
	return 8
}

func putValue[T skim.Value](b []byte, v T) {
	switch x := any(v).(type) {
	case int8:
		b[0] = byte(x)
	case uint8:
		b[0] = x
	case int16:
		binary.LittleEndian.PutUint16(b, uint16(x))
	case uint16:
		binary.LittleEndian.PutUint16(b, x)
	case int32:
		binary.LittleEndian.PutUint32(b, uint32(x))
	case uint32:
		binary.LittleEndian.PutUint32(b, x)
	case float32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(x))
	case int64:
		binary.LittleEndian.PutUint64(b, uint64(x))
	case uint64:
		binary.LittleEndian.PutUint64(b, x)
	case float64:
		binary.LittleEndian.PutUint64(b, math.Float64bits(x))
	}
}

func getValue[T skim.Value](b []byte) T {
	var z T
	switch any(z).(type) {
	case int8:
		return T(int8(b[0]))
	case uint8:
		return T(b[0])
	case int16:
		return T(int16(binary.LittleEndian.Uint16(b)))
	case uint16:
		return T(binary.LittleEndian.Uint16(b))
	case int32:
		return T(int32(binary.LittleEndian.Uint32(b)))
	case uint32:
		return T(binary.LittleEndian.Uint32(b))
	case float32:
		return T(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case int64:
		return T(int64(binary.LittleEndian.Uint64(b)))
	case uint64:
		return T(binary.LittleEndian.Uint64(b))
	}
	return T(math.Float64frombits(binary.LittleEndian.Uint64(b)))
}
