// Package qr encodes and verifies the signed dispense payload embedded in
// device QR codes: watervend://dispense?d=<deviceNo>&t=<unix>&s=<sig>.
package qr

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

const (
	Scheme = "watervend"
	host   = "dispense"
	sigLen = 8
)

var (
	ErrMalformedPayload = errors.New("qr: malformed payload")
	ErrBadSignature     = errors.New("qr: signature mismatch")
	ErrExpired          = errors.New("qr: payload expired")
)

// Codec signs and verifies QR payloads with a keyed hash. MaxAge of zero
// disables the freshness check.
type Codec struct {
	secret []byte
	maxAge time.Duration
}

// NewCodec builds a codec for the given signing secret.
func NewCodec(secret string, maxAge time.Duration) *Codec {
	return &Codec{secret: []byte(secret), maxAge: maxAge}
}

// Encode builds a signed payload for the given device at the given time.
func (c *Codec) Encode(deviceNo string, ts time.Time) string {
	unix := ts.Unix()
	return fmt.Sprintf("%s://%s?d=%s&t=%d&s=%s",
		Scheme, host, url.QueryEscape(deviceNo), unix, c.signature(deviceNo, unix))
}

// Decode verifies a payload and returns the device number it points at.
func (c *Codec) Decode(payload string, now time.Time) (string, error) {
	u, err := url.Parse(payload)
	if err != nil || u.Scheme != Scheme || u.Host != host {
		return "", ErrMalformedPayload
	}

	q := u.Query()
	deviceNo := q.Get("d")
	tsRaw := q.Get("t")
	sig := q.Get("s")
	if deviceNo == "" || tsRaw == "" || sig == "" {
		return "", ErrMalformedPayload
	}

	unix, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return "", ErrMalformedPayload
	}

	if !hmac.Equal([]byte(c.signature(deviceNo, unix)), []byte(sig)) {
		return "", ErrBadSignature
	}

	if c.maxAge > 0 {
		issued := time.Unix(unix, 0)
		if now.Sub(issued) > c.maxAge || issued.After(now.Add(time.Minute)) {
			return "", ErrExpired
		}
	}

	return deviceNo, nil
}

// signature is the first 8 hex chars of HMAC-SHA256 over deviceNo|timestamp.
func (c *Codec) signature(deviceNo string, unix int64) string {
	mac := hmac.New(sha256.New, c.secret)
	fmt.Fprintf(mac, "%s|%d", deviceNo, unix)
	return hex.EncodeToString(mac.Sum(nil))[:sigLen]
}
