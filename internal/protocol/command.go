// Package protocol defines the wire formats shared with the vending hardware
// and the vendor platform: outbound socket commands, inbound device frames,
// and the signed push-notification payload.
package protocol

import "encoding/json"

// Command names understood by the dispenser firmware.
const (
	CmdAuth      = "AU"
	CmdHeartbeat = "HB"
	CmdStatus    = "ST"
	CmdOpenWater = "OpenWater"
)

// Command is the outbound frame written to a device socket. RE carries the
// order number used to correlate the asynchronous result pushed back later
// by the vendor platform.
type Command struct {
	Cmd   string `json:"Cmd"`
	RFID  string `json:"RFID,omitempty"`
	Money int64  `json:"Money,omitempty"`
	PWM   int64  `json:"PWM,omitempty"`
	Type  int    `json:"Type,omitempty"`
	RE    string `json:"RE,omitempty"`
}

// OpenWater builds a dispense command.
func OpenWater(rfid string, amount, pulses int64, waterType int, orderNo string) Command {
	return Command{
		Cmd:   CmdOpenWater,
		RFID:  rfid,
		Money: amount,
		PWM:   pulses,
		Type:  waterType,
		RE:    orderNo,
	}
}

// Encode marshals the command for the socket.
func (c Command) Encode() ([]byte, error) {
	return json.Marshal(c)
}
