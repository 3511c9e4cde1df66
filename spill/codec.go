// Package spill keeps serialized aggregate state out of working memory:
// a framed envelope codec guards state integrity across compression and
// disk round trips, and a tiered cache demotes cold state from raw bytes
// to compressed bytes to disk files.
package spill

import (
	"bytes"
	"encoding/binary"
	"fmt"

	xxhash "github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	lz4 "github.com/pierrec/lz4/v4"

	errors "github.com/go-skim/skim/errors"
)

// Codec identifies the compression applied to envelope payloads
type Codec uint8

const (
	// CodecNone stores payloads uncompressed
	CodecNone Codec = iota
	// CodecLZ4 compresses payloads as lz4 frames
	CodecLZ4
	// CodecZstd compresses payloads with zstd at its fastest level
	CodecZstd
)

// Version is the envelope format version this build writes. Readers reject
// any other version rather than guessing at the layout.
const Version uint16 = 1

// envelope layout: magic | version u16 | codec u8 | length u32 | xxhash u64
const headerSize = 4 + 2 + 1 + 4 + 8

var magic = [4]byte{'S', 'K', 'I', 'M'}

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecLZ4:
		return "lz4"
	case CodecZstd:
		return "zstd"
	}
	return fmt.Sprintf("codec(%d)", uint8(c))
}

// ParseCodec maps a configuration string onto a Codec
func ParseCodec(name string) (Codec, error) {
	for _, c := range []Codec{CodecNone, CodecLZ4, CodecZstd} {
		if c.String() == name {
			return c, nil
		}
	}
	return 0, errors.ConfigurationError{Reason: fmt.Sprintf("unknown spill codec %q", name)}
}

// Serializer wraps serialized cell state in a framed, checksummed and
// optionally compressed envelope, and unwraps envelopes written with any
// codec. Compression state is reused between calls, so a Serializer is not
// safe for concurrent use.
type Serializer struct {
	codec              Codec
	zenc               *zstd.Encoder
	zdec               *zstd.Decoder
	lz4w               *lz4.Writer
	lz4r               *lz4.Reader
	reusableReadBuffer *bytes.Buffer
}

// NewSerializer produces a Serializer writing envelopes with the given
// Codec
func NewSerializer(codec Codec) (*Serializer, error) {
	if codec > CodecZstd {
		return nil, errors.ConfigurationError{Reason: fmt.Sprintf("unknown spill codec %d", codec)}
	}
	zenc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, err
	}
	zdec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &Serializer{
		codec:              codec,
		zenc:               zenc,
		zdec:               zdec,
		lz4w:               lz4.NewWriter(new(bytes.Buffer)),
		lz4r:               lz4.NewReader(new(bytes.Buffer)),
		reusableReadBuffer: new(bytes.Buffer),
	}, nil
}

// Close releases compression state. The Serializer must not be used after
// Close.
func (s *Serializer) Close() error {
	s.zdec.Close()
	return s.zenc.Close()
}

// Wrap frames payload in an envelope: compressed per the Serializer's
// codec, length-prefixed, and checksummed with xxhash
func (s *Serializer) Wrap(payload []byte) ([]byte, error) {
	compressed, err := s.compress(payload)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, headerSize, headerSize+len(compressed))
	copy(buf[0:4], magic[:])
	binary.LittleEndian.PutUint16(buf[4:6], Version)
	buf[6] = byte(s.codec)
	binary.LittleEndian.PutUint32(buf[7:11], uint32(len(compressed)))
	binary.LittleEndian.PutUint64(buf[11:19], xxhash.Sum64(compressed))
	return append(buf, compressed...), nil
}

// Unwrap validates an envelope and returns its payload, whatever codec
// wrote it. Magic, version, length and checksum are all checked before the
// payload is touched. With CodecNone the returned payload aliases buf.
func (s *Serializer) Unwrap(buf []byte) ([]byte, error) {
	if len(buf) < headerSize {
		return nil, errors.DeserializationError{Reason: fmt.Sprintf("envelope is %d bytes, shorter than its %d byte header", len(buf), headerSize)}
	}
	if !bytes.Equal(buf[0:4], magic[:]) {
		return nil, errors.DeserializationError{Reason: "envelope magic mismatch"}
	}
	version := binary.LittleEndian.Uint16(buf[4:6])
	if version != Version {
		return nil, errors.VersionMismatchError{Expected: Version, Actual: version}
	}
	codec := Codec(buf[6])
	if codec > CodecZstd {
		return nil, errors.DeserializationError{Reason: fmt.Sprintf("unknown envelope codec %d", buf[6])}
	}
	payload := buf[headerSize:]
	if length := binary.LittleEndian.Uint32(buf[7:11]); int(length) != len(payload) {
		return nil, errors.DeserializationError{Reason: fmt.Sprintf("envelope declares %d payload bytes but carries %d", length, len(payload))}
	}
	sum := binary.LittleEndian.Uint64(buf[11:19])
	if actual := xxhash.Sum64(payload); actual != sum {
		return nil, errors.ChecksumMismatchError{Expected: sum, Actual: actual}
	}
	return s.decompress(codec, payload)
}

func (s *Serializer) compress(payload []byte) ([]byte, error) {
	switch s.codec {
	case CodecLZ4:
		s.reusableReadBuffer.Reset()
		s.lz4w.Reset(s.reusableReadBuffer)
		if _, err := s.lz4w.Write(payload); err != nil {
			return nil, err
		}
		if err := s.lz4w.Close(); err != nil {
			return nil, err
		}
		return append([]byte(nil), s.reusableReadBuffer.Bytes()...), nil
	case CodecZstd:
		return s.zenc.EncodeAll(payload, nil), nil
	}
	return payload, nil
}

func (s *Serializer) decompress(codec Codec, data []byte) ([]byte, error) {
	switch codec {
	case CodecLZ4:
		s.lz4r.Reset(bytes.NewReader(data))
		s.reusableReadBuffer.Reset()
		if _, err := s.reusableReadBuffer.ReadFrom(s.lz4r); err != nil {
			return nil, errors.DeserializationError{Reason: err.Error()}
		}
		return append([]byte(nil), s.reusableReadBuffer.Bytes()...), nil
	case CodecZstd:
		out, err := s.zdec.DecodeAll(data, nil)
		if err != nil {
			return nil, errors.DeserializationError{Reason: err.Error()}
		}
		return out, nil
	}
	return data, nil
}
