package protocol

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DataType selects the sub-protocol of a vendor push notification.
type DataType int

const (
	DataTypeCardSwipe DataType = 1
	DataTypeCoin      DataType = 2
	DataTypeCardless  DataType = 3
	DataTypeECard     DataType = 4
	DataTypeSnapshot  DataType = 12
)

// WaterStateSuccess is the water_state value reported for a physical
// dispense that finished normally.
const WaterStateSuccess = 1

// Notification is a verified push from the vendor platform. order_no echoes
// the RE field of the originating command, when there was one.
type Notification struct {
	DeviceNo     string   `json:"device_no"`
	CardNo       string   `json:"card_no"`
	OrderNo      string   `json:"order_no"`
	WaterTime    int64    `json:"water_time"`
	WaterState   int      `json:"water_state"`
	Cash         int64    `json:"cash"`
	StartBalance int64    `json:"start_balance"`
	EndBalance   int64    `json:"end_balance"`
	Price        int64    `json:"price"`
	Volume       int64    `json:"volume"`
	Outlet       int      `json:"outlet"`
	DataType     DataType `json:"data_type"`
	TDS          int64    `json:"tds"`
	TemperatureC int64    `json:"temperature_c"`
	Sign         string   `json:"sign"`
}

// Success reports whether the hardware considered the dispense successful.
func (n *Notification) Success() bool {
	return n.WaterState == WaterStateSuccess
}

// SignFields computes the signature over a flat field map: keys sorted,
// concatenated as key=value&..., &appkey=<secret> appended, MD5,
// uppercase hex.
func SignFields(fields map[string]string, appkey string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == "sign" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(fields[k])
		sb.WriteByte('&')
	}
	sb.WriteString("appkey=")
	sb.WriteString(appkey)

	sum := md5.Sum([]byte(sb.String()))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// VerifyNotification checks the sign field of a raw push body against the
// shared secret and decodes the payload. The hex comparison is
// case-insensitive; any altered field fails closed with ErrSignatureInvalid.
func VerifyNotification(raw []byte, appkey string) (*Notification, error) {
	var generic map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	supplied, _ := generic["sign"].(string)
	if supplied == "" {
		return nil, ErrSignatureInvalid
	}

	fields := make(map[string]string, len(generic))
	for k, v := range generic {
		if k == "sign" {
			continue
		}
		fields[k] = formatSignValue(v)
	}

	if !strings.EqualFold(SignFields(fields, appkey), supplied) {
		return nil, ErrSignatureInvalid
	}

	var n Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return &n, nil
}

func formatSignValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return ""
	default:
		raw, _ := json.Marshal(val)
		return string(raw)
	}
}
