package protocol

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Errors raised while decoding or verifying inbound traffic.
var (
	ErrMalformedFrame   = errors.New("protocol: malformed frame")
	ErrSignatureInvalid = errors.New("protocol: signature invalid")
)

// DeviceFrame is a frame read from a device socket. Payload shape depends on
// Cmd; decode with the typed helpers below.
type DeviceFrame struct {
	Cmd      string `json:"Cmd"`
	DeviceNo string `json:"DeviceNo"`
	Sign     string `json:"Sign,omitempty"`
	TS       int64  `json:"TS,omitempty"`
	TDS      int64  `json:"TDS,omitempty"`
	TempC    int64  `json:"TempC,omitempty"`
}

// ParseDeviceFrame decodes one inbound socket frame.
func ParseDeviceFrame(raw []byte) (*DeviceFrame, error) {
	var frame DeviceFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if frame.Cmd == "" || frame.DeviceNo == "" {
		return nil, ErrMalformedFrame
	}
	return &frame, nil
}

// AuthToken computes the credential a device presents in its AU frame:
// MD5 over deviceNo|timestamp|secret, uppercase hex.
func AuthToken(deviceNo string, ts int64, secret string) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s|%d|%s", deviceNo, ts, secret)))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// VerifyAuth checks an AU frame against the device shared secret.
func VerifyAuth(frame *DeviceFrame, secret string) bool {
	if frame == nil || frame.Cmd != CmdAuth || frame.Sign == "" {
		return false
	}
	want := AuthToken(frame.DeviceNo, frame.TS, secret)
	got := strings.ToUpper(frame.Sign)
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

// Ack is the generic reply frame written back for AU/HB frames.
type Ack struct {
	Cmd    string `json:"Cmd"`
	Result int    `json:"Result"` // 1 = accepted
}

// EncodeAck marshals an acknowledgment for the given command.
func EncodeAck(cmd string, ok bool) []byte {
	result := 0
	if ok {
		result = 1
	}
	raw, _ := json.Marshal(Ack{Cmd: cmd, Result: result})
	return raw
}
