package rpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestampRoundTrip(t *testing.T) {
	orig := time.Date(2025, 3, 14, 9, 26, 53, 589793000, time.UTC)

	encoded := EncodeTimestamp(orig)
	assert.Equal(t, "2025-03-14T09:26:53.589793Z", encoded)

	decoded, err := DecodeTimestamp(encoded)
	require.NoError(t, err)
	assert.True(t, orig.Equal(decoded))
}

func TestTimestampEncodesUTC(t *testing.T) {
	zone := time.FixedZone("CET", 3600)
	local := time.Date(2025, 1, 1, 13, 0, 0, 0, zone)

	assert.Equal(t, "2025-01-01T12:00:00Z", EncodeTimestamp(local))
}

func TestDecodeTimestampWithoutFraction(t *testing.T) {
	decoded, err := DecodeTimestamp("2025-06-30T23:59:59Z")
	require.NoError(t, err)
	assert.Equal(t, 2025, decoded.Year())
}

func TestDecodeTimestampRejectsGarbage(t *testing.T) {
	_, err := DecodeTimestamp("yesterday")
	assert.Error(t, err)
}
