package models

import (
	"encoding/hex"
	"fmt"
	"math"
	"time"
)

// BeastMessage represents a Mode S or Mode A/C frame received in Beast format
type BeastMessage struct {
	ReceivedAt     time.Time
	Type           byte   // Beast type byte ('1', '2' or '3')
	MLATTimestamp  uint64 // 48-bit receiver clock counter (12 MHz)
	SignalLevel    uint8
	Message        []byte // 2, 7 or 14 bytes depending on Type
	DownlinkFormat uint8
	ICAO           string // Lower-case ICAO address, empty when the frame does not carry it in clear
	MessageType    string // surveillance, all_call, extended_squitter, comm_b, mode_ac, other

	// Decoded from DF17/18 extended squitter, nil when not present in this frame
	Callsign     *string
	AltitudeFeet *float64
	GroundSpeed  *float64
	Track        *float64
}

// ParseBeastMessage parses a complete, unescaped Beast frame
// Beast format: 0x1a [type] [6-byte timestamp] [1-byte signal] [2/7/14-byte message]
func ParseBeastMessage(data []byte, receivedAt time.Time) (*BeastMessage, error) {
	if len(data) < BeastMinMessageLen {
		return nil, fmt.Errorf("beast message too short: %d bytes", len(data))
	}

	if data[0] != BeastStartByte {
		return nil, fmt.Errorf("invalid beast start byte: %02x", data[0])
	}

	totalLen, err := GetBeastTotalLen(data[1])
	if err != nil {
		return nil, err
	}
	if len(data) != totalLen {
		return nil, fmt.Errorf("beast message length %d does not match type %02x (want %d)", len(data), data[1], totalLen)
	}

	var ts uint64
	for _, b := range data[BeastHeaderLen : BeastHeaderLen+BeastTimestampLen] {
		ts = ts<<8 | uint64(b)
	}

	payloadStart := BeastHeaderLen + BeastTimestampLen + BeastSignalLen
	message := make([]byte, totalLen-payloadStart)
	copy(message, data[payloadStart:])

	msg := &BeastMessage{
		ReceivedAt:    receivedAt,
		Type:          data[1],
		MLATTimestamp: ts,
		SignalLevel:   data[payloadStart-1],
		Message:       message,
	}

	if !IsModeS(msg.Type) {
		msg.MessageType = "mode_ac"
		return msg, nil
	}

	msg.DownlinkFormat = (message[0] >> 3) & 0x1F
	msg.MessageType = determineMessageType(msg.DownlinkFormat)
	msg.ICAO = extractICAO(msg.DownlinkFormat, message)

	if (msg.DownlinkFormat == 17 || msg.DownlinkFormat == 18) && len(message) == BeastDataLenModeSLong {
		decodeExtendedSquitter(msg, message[4:11])
	}

	return msg, nil
}

// extractICAO returns the announced address for frames that carry it in clear (DF11/17/18).
// Other downlink formats overlay the address on the parity field and are skipped.
func extractICAO(df uint8, message []byte) string {
	switch df {
	case 11, 17, 18:
		if len(message) < 4 {
			return ""
		}
		return fmt.Sprintf("%02x%02x%02x", message[1], message[2], message[3])
	default:
		return ""
	}
}

// determineMessageType names the Mode S downlink format
func determineMessageType(df uint8) string {
	switch df {
	case 0, 4, 5, 16:
		return "surveillance"
	case 11:
		return "all_call"
	case 17, 18, 19:
		return "extended_squitter"
	case 20, 21:
		return "comm_b"
	default:
		return "other"
	}
}

const callsignCharset = "#ABCDEFGHIJKLMNOPQRSTUVWXYZ##### ###############0123456789######"

// decodeExtendedSquitter fills identity, altitude and velocity from a 56-bit ME field
func decodeExtendedSquitter(msg *BeastMessage, me []byte) {
	typeCode := me[0] >> 3

	switch {
	case typeCode >= 1 && typeCode <= 4:
		if cs := decodeCallsign(me); cs != "" {
			msg.Callsign = &cs
		}
	case typeCode >= 9 && typeCode <= 18:
		if alt, ok := decodeAltitude(me); ok {
			msg.AltitudeFeet = &alt
		}
	case typeCode == 19:
		if gs, track, ok := decodeVelocity(me); ok {
			msg.GroundSpeed = &gs
			msg.Track = &track
		}
	}
}

func decodeCallsign(me []byte) string {
	var bits uint64
	for _, b := range me[1:7] {
		bits = bits<<8 | uint64(b)
	}
	out := make([]byte, 0, 8)
	for i := 7; i >= 0; i-- {
		c := callsignCharset[(bits>>(uint(i)*6))&0x3F]
		if c == '#' {
			continue
		}
		out = append(out, c)
	}
	// Trailing spaces pad short callsigns
	for len(out) > 0 && out[len(out)-1] == ' ' {
		out = out[:len(out)-1]
	}
	return string(out)
}

// decodeAltitude handles the 25 ft (Q=1) encoding only
func decodeAltitude(me []byte) (float64, bool) {
	alt := uint16(me[1])<<4 | uint16(me[2])>>4
	if alt == 0 || alt&0x010 == 0 {
		return 0, false
	}
	n := (alt&0x0FE0)>>1 | alt&0x000F
	return float64(n)*25 - 1000, true
}

// decodeVelocity handles ground-speed subtypes 1 (subsonic) and 2 (supersonic)
func decodeVelocity(me []byte) (speed, track float64, ok bool) {
	subtype := me[0] & 0x07
	if subtype != 1 && subtype != 2 {
		return 0, 0, false
	}

	dirEW := (me[1] >> 2) & 0x01
	rawEW := int(me[1]&0x03)<<8 | int(me[2])
	dirNS := (me[3] >> 7) & 0x01
	rawNS := int(me[3]&0x7F)<<3 | int(me[4])>>5
	if rawEW == 0 || rawNS == 0 {
		return 0, 0, false
	}

	vx := float64(rawEW - 1)
	vy := float64(rawNS - 1)
	if subtype == 2 {
		vx *= 4
		vy *= 4
	}
	if dirEW == 1 {
		vx = -vx
	}
	if dirNS == 1 {
		vy = -vy
	}

	speed = math.Hypot(vx, vy)
	track = math.Mod(math.Atan2(vx, vy)*180/math.Pi+360, 360)
	return speed, track, true
}

// Hex returns the message as a hex string
func (b *BeastMessage) Hex() string {
	return hex.EncodeToString(b.Message)
}
