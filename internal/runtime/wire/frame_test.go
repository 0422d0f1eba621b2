package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	frame := encodeFrame(kindRequest, []byte("payload"))
	kind, payload, err := decodeFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, kindRequest, kind)
	assert.Equal(t, []byte("payload"), payload)
}

func TestFrameZeroLengthPayload(t *testing.T) {
	frame := encodeFrame(kindPing, nil)
	require.Len(t, frame, 1)

	kind, payload, err := decodeFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, kindPing, kind)
	assert.Empty(t, payload)
}

func TestDecodeEmptyFrame(t *testing.T) {
	_, _, err := decodeFrame(nil)
	assert.ErrorIs(t, err, ErrEmptyFrame)
}

func TestServerError(t *testing.T) {
	err := &ServerError{Msg: "boom"}
	assert.Contains(t, err.Error(), "boom")
}
