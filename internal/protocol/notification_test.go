package protocol

import (
	"encoding/json"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAppkey = "unit-test-appkey"

func signedBody(t *testing.T, fields map[string]interface{}) []byte {
	t.Helper()

	flat := make(map[string]string, len(fields))
	for k, v := range fields {
		switch val := v.(type) {
		case string:
			flat[k] = val
		case int:
			flat[k] = strconv.Itoa(val)
		case int64:
			flat[k] = strconv.FormatInt(val, 10)
		default:
			raw, err := json.Marshal(val)
			require.NoError(t, err)
			flat[k] = string(raw)
		}
	}
	fields["sign"] = SignFields(flat, testAppkey)

	raw, err := json.Marshal(fields)
	require.NoError(t, err)
	return raw
}

func TestVerifyNotificationRoundTrip(t *testing.T) {
	raw := signedBody(t, map[string]interface{}{
		"device_no":   "WD-0042",
		"order_no":    "1837465920418156544",
		"water_state": 1,
		"cash":        1200,
		"volume":      6000,
		"data_type":   3,
	})

	n, err := VerifyNotification(raw, testAppkey)
	require.NoError(t, err)
	assert.Equal(t, "WD-0042", n.DeviceNo)
	assert.Equal(t, "1837465920418156544", n.OrderNo)
	assert.True(t, n.Success())
	assert.EqualValues(t, 1200, n.Cash)
	assert.Equal(t, DataTypeCardless, n.DataType)
}

func TestVerifyNotificationLowercaseSignAccepted(t *testing.T) {
	raw := signedBody(t, map[string]interface{}{
		"device_no": "WD-0042",
		"data_type": 12,
		"tds":       85,
	})
	raw = []byte(strings.Replace(string(raw),
		extractSign(t, raw), strings.ToLower(extractSign(t, raw)), 1))

	_, err := VerifyNotification(raw, testAppkey)
	assert.NoError(t, err)
}

func TestVerifyNotificationTamperedField(t *testing.T) {
	raw := signedBody(t, map[string]interface{}{
		"device_no": "WD-0042",
		"cash":      1200,
		"data_type": 3,
	})
	tampered := []byte(strings.Replace(string(raw), "1200", "9900", 1))

	_, err := VerifyNotification(tampered, testAppkey)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestVerifyNotificationMissingSign(t *testing.T) {
	_, err := VerifyNotification([]byte(`{"device_no":"WD-0042"}`), testAppkey)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestVerifyNotificationWrongAppkey(t *testing.T) {
	raw := signedBody(t, map[string]interface{}{
		"device_no": "WD-0042",
		"data_type": 3,
	})

	_, err := VerifyNotification(raw, "other-appkey")
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestVerifyNotificationMalformedJSON(t *testing.T) {
	_, err := VerifyNotification([]byte(`{"device_no":`), testAppkey)
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func extractSign(t *testing.T, raw []byte) string {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &m))
	sign, _ := m["sign"].(string)
	require.NotEmpty(t, sign)
	return sign
}

func TestVerifyAuth(t *testing.T) {
	frame := &DeviceFrame{
		Cmd:      CmdAuth,
		DeviceNo: "WD-0042",
		TS:       1700000000,
	}
	frame.Sign = AuthToken(frame.DeviceNo, frame.TS, "device-secret")

	assert.True(t, VerifyAuth(frame, "device-secret"))
	assert.False(t, VerifyAuth(frame, "wrong-secret"))

	frame.Sign = strings.ToLower(frame.Sign)
	assert.True(t, VerifyAuth(frame, "device-secret"), "hex case must not matter")
}

func TestParseDeviceFrameRejectsIncomplete(t *testing.T) {
	_, err := ParseDeviceFrame([]byte(`{"Cmd":"HB"}`))
	assert.ErrorIs(t, err, ErrMalformedFrame)

	_, err = ParseDeviceFrame([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestOpenWaterEncode(t *testing.T) {
	cmd := OpenWater("CARD-1", 1200, 3600, 2, "ord-1")
	raw, err := cmd.Encode()
	require.NoError(t, err)

	var decoded Command
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, cmd, decoded)
}
