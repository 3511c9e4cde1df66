package spill

import (
	"bytes"
	"testing"

	errors "github.com/go-skim/skim/errors"
	"github.com/stretchr/testify/require"
)

func createTestSerializer(t *testing.T, codec Codec) *Serializer {
	ser, err := NewSerializer(codec)
	require.Nil(t, err)
	t.Cleanup(func() {
		require.Nil(t, ser.Close())
	})
	return ser
}

func TestEnvelopeRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("sampled state "), 100)
	for _, codec := range []Codec{CodecNone, CodecLZ4, CodecZstd} {
		ser := createTestSerializer(t, codec)
		wrapped, err := ser.Wrap(payload)
		require.Nil(t, err)
		require.Equal(t, byte(codec), wrapped[6])

		unwrapped, err := ser.Unwrap(wrapped)
		require.Nil(t, err)
		require.Equal(t, payload, unwrapped)
	}
}

func TestEnvelopeRoundTripEmptyPayload(t *testing.T) {
	for _, codec := range []Codec{CodecNone, CodecLZ4, CodecZstd} {
		ser := createTestSerializer(t, codec)
		wrapped, err := ser.Wrap(nil)
		require.Nil(t, err)
		unwrapped, err := ser.Unwrap(wrapped)
		require.Nil(t, err)
		require.Equal(t, 0, len(unwrapped))
	}
}

func TestEnvelopeCompresses(t *testing.T) {
	// a repetitive payload should shrink under both real codecs
	payload := bytes.Repeat([]byte("aaaaaaaabbbbbbbb"), 512)
	for _, codec := range []Codec{CodecLZ4, CodecZstd} {
		ser := createTestSerializer(t, codec)
		wrapped, err := ser.Wrap(payload)
		require.Nil(t, err)
		require.True(t, len(wrapped) < len(payload), "%s grew a %d byte payload to %d", codec, len(payload), len(wrapped))
	}
}

func TestUnwrapAcceptsAnyWriterCodec(t *testing.T) {
	payload := bytes.Repeat([]byte("cross codec "), 64)
	writer := createTestSerializer(t, CodecLZ4)
	reader := createTestSerializer(t, CodecZstd)

	wrapped, err := writer.Wrap(payload)
	require.Nil(t, err)
	unwrapped, err := reader.Unwrap(wrapped)
	require.Nil(t, err)
	require.Equal(t, payload, unwrapped)
}

func TestUnwrapRejectsShortBuffer(t *testing.T) {
	ser := createTestSerializer(t, CodecNone)
	_, err := ser.Unwrap([]byte{1, 2, 3})
	require.IsType(t, errors.DeserializationError{}, err)
}

func TestUnwrapRejectsBadMagic(t *testing.T) {
	ser := createTestSerializer(t, CodecNone)
	wrapped, err := ser.Wrap([]byte("x"))
	require.Nil(t, err)
	wrapped[0] = 'Z'
	_, err = ser.Unwrap(wrapped)
	require.IsType(t, errors.DeserializationError{}, err)
}

func TestUnwrapRejectsVersionMismatch(t *testing.T) {
	ser := createTestSerializer(t, CodecNone)
	wrapped, err := ser.Wrap([]byte("x"))
	require.Nil(t, err)
	wrapped[4] = 9
	_, err = ser.Unwrap(wrapped)
	require.IsType(t, errors.VersionMismatchError{}, err)
	require.Equal(t, Version, err.(errors.VersionMismatchError).Expected)
}

func TestUnwrapRejectsUnknownCodec(t *testing.T) {
	ser := createTestSerializer(t, CodecNone)
	wrapped, err := ser.Wrap([]byte("x"))
	require.Nil(t, err)
	wrapped[6] = 9
	_, err = ser.Unwrap(wrapped)
	require.IsType(t, errors.DeserializationError{}, err)
}

func TestUnwrapRejectsTruncatedPayload(t *testing.T) {
	ser := createTestSerializer(t, CodecZstd)
	wrapped, err := ser.Wrap([]byte("some state bytes"))
	require.Nil(t, err)
	_, err = ser.Unwrap(wrapped[:len(wrapped)-1])
	require.IsType(t, errors.DeserializationError{}, err)
}

func TestUnwrapRejectsCorruptPayload(t *testing.T) {
	ser := createTestSerializer(t, CodecZstd)
	wrapped, err := ser.Wrap(bytes.Repeat([]byte("state"), 50))
	require.Nil(t, err)
	wrapped[len(wrapped)-1] ^= 0xff
	_, err = ser.Unwrap(wrapped)
	require.IsType(t, errors.ChecksumMismatchError{}, err)
}

func TestParseCodec(t *testing.T) {
	for _, codec := range []Codec{CodecNone, CodecLZ4, CodecZstd} {
		parsed, err := ParseCodec(codec.String())
		require.Nil(t, err)
		require.Equal(t, codec, parsed)
	}
	_, err := ParseCodec("bogus")
	require.IsType(t, errors.ConfigurationError{}, err)
}
