package models

import (
	"fmt"
)

// Beast format constants
const (
	// BeastStartByte is the frame start marker and escape character (0x1A, ASCII SUB).
	// A literal 0x1A inside a frame is sent twice.
	BeastStartByte byte = 0x1A

	// Beast frame type indicators
	BeastTypeModeAC     byte = 0x31 // '1' - Mode A/C message (2 bytes of data)
	BeastTypeModeSShort byte = 0x32 // '2' - Mode S short message (7 bytes of data)
	BeastTypeModeSLong  byte = 0x33 // '3' - Mode S long message (14 bytes of data)

	BeastHeaderLen    = 2 // Start byte + type byte
	BeastTimestampLen = 6 // 48-bit timestamp in big-endian format
	BeastSignalLen    = 1 // Signal level byte

	BeastDataLenModeAC     = 2
	BeastDataLenModeSShort = 7
	BeastDataLenModeSLong  = 14

	beastPrefixLen = BeastHeaderLen + BeastTimestampLen + BeastSignalLen

	// Minimum frame length (Mode A/C is the shortest)
	BeastMinMessageLen = beastPrefixLen + BeastDataLenModeAC
)

// GetBeastDataLen returns the message data length for a given Beast type byte
func GetBeastDataLen(typeByte byte) (int, error) {
	switch typeByte {
	case BeastTypeModeAC:
		return BeastDataLenModeAC, nil
	case BeastTypeModeSShort:
		return BeastDataLenModeSShort, nil
	case BeastTypeModeSLong:
		return BeastDataLenModeSLong, nil
	default:
		return 0, fmt.Errorf("unknown beast message type: %02x", typeByte)
	}
}

// GetBeastTotalLen returns the unescaped frame length (including header) for a given Beast type byte
func GetBeastTotalLen(typeByte byte) (int, error) {
	dataLen, err := GetBeastDataLen(typeByte)
	if err != nil {
		return 0, err
	}
	return beastPrefixLen + dataLen, nil
}

// IsModeS returns true if the type byte represents a Mode S message (short or long)
func IsModeS(typeByte byte) bool {
	return typeByte == BeastTypeModeSShort || typeByte == BeastTypeModeSLong
}
