package qr

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecRoundTrip(t *testing.T) {
	codec := NewCodec("topsecret", 10*time.Minute)
	now := time.Unix(1700000000, 0)

	payload := codec.Encode("WD-0042", now)
	require.True(t, strings.HasPrefix(payload, "watervend://dispense?"))

	deviceNo, err := codec.Decode(payload, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "WD-0042", deviceNo)
}

func TestCodecRejectsTamperedDevice(t *testing.T) {
	codec := NewCodec("topsecret", 10*time.Minute)
	now := time.Unix(1700000000, 0)

	payload := codec.Encode("WD-0042", now)
	tampered := strings.Replace(payload, "WD-0042", "WD-0043", 1)

	_, err := codec.Decode(tampered, now)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestCodecRejectsWrongSecret(t *testing.T) {
	now := time.Unix(1700000000, 0)
	payload := NewCodec("secret-a", 0).Encode("WD-0042", now)

	_, err := NewCodec("secret-b", 0).Decode(payload, now)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestCodecRejectsExpired(t *testing.T) {
	codec := NewCodec("topsecret", 10*time.Minute)
	issued := time.Unix(1700000000, 0)

	payload := codec.Encode("WD-0042", issued)

	_, err := codec.Decode(payload, issued.Add(11*time.Minute))
	assert.ErrorIs(t, err, ErrExpired)
}

func TestCodecZeroMaxAgeSkipsFreshness(t *testing.T) {
	codec := NewCodec("topsecret", 0)
	issued := time.Unix(1700000000, 0)

	payload := codec.Encode("WD-0042", issued)

	deviceNo, err := codec.Decode(payload, issued.Add(240*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "WD-0042", deviceNo)
}

func TestCodecRejectsMalformed(t *testing.T) {
	codec := NewCodec("topsecret", time.Minute)
	now := time.Now()

	for _, payload := range []string{
		"",
		"http://dispense?d=WD-1&t=1&s=abcdef12",
		"watervend://other?d=WD-1&t=1&s=abcdef12",
		"watervend://dispense?d=WD-1&s=abcdef12",
		"watervend://dispense?d=WD-1&t=notanumber&s=abcdef12",
	} {
		_, err := codec.Decode(payload, now)
		assert.ErrorIs(t, err, ErrMalformedPayload, payload)
	}
}
