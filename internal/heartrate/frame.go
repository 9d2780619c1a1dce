package heartrate

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Flags byte bits of the Heart Rate Measurement characteristic.
const (
	FlagValueFormatUint16  byte = 0x01
	FlagSensorContact      byte = 0x02
	FlagContactSupported   byte = 0x04
	FlagEnergyExpended     byte = 0x08
	FlagRRIntervalsPresent byte = 0x10
)

// ErrInvalidFrame is returned when a payload is shorter than its flags require.
var ErrInvalidFrame = errors.New("invalid frame")

// DecodeMeasurement parses a Heart Rate Measurement payload.
//
//	| flags | hr (1 or 2 bytes) | energy (2 bytes, optional) | rr... |
//
// Multi-byte fields are little-endian. Contact status and R-R intervals are
// skipped. The returned Measurement has no timestamp; the caller stamps it.
func DecodeMeasurement(raw []byte) (Measurement, error) {
	if len(raw) < 1 {
		return Measurement{}, fmt.Errorf("%w: missing flags byte", ErrInvalidFrame)
	}

	flags := raw[0]
	offset := 1

	var m Measurement
	if flags&FlagValueFormatUint16 != 0 {
		if len(raw) < offset+2 {
			return Measurement{}, frameTooShort("uint16 heart rate", offset+2, len(raw))
		}
		m.HeartRate = binary.LittleEndian.Uint16(raw[offset:])
		offset += 2
	} else {
		if len(raw) < offset+1 {
			return Measurement{}, frameTooShort("uint8 heart rate", offset+1, len(raw))
		}
		m.HeartRate = uint16(raw[offset])
		offset++
	}

	if flags&FlagEnergyExpended != 0 {
		if len(raw) < offset+2 {
			return Measurement{}, frameTooShort("expended energy", offset+2, len(raw))
		}
		m.ExpendedEnergy = binary.LittleEndian.Uint16(raw[offset:])
	}

	return m, nil
}

func frameTooShort(field string, need, got int) error {
	return fmt.Errorf("%w: %s needs %d bytes, got %d", ErrInvalidFrame, field, need, got)
}
