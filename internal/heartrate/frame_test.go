package heartrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMeasurement(t *testing.T) {
	tests := []struct {
		name           string
		raw            []byte
		expectedHR     uint16
		expectedEnergy uint16
	}{
		{
			name:       "uint8 heart rate",
			raw:        []byte{0x00, 72},
			expectedHR: 72,
		},
		{
			name:       "uint16 heart rate is little-endian",
			raw:        []byte{0x01, 0x2c, 0x01},
			expectedHR: 300,
		},
		{
			name:           "uint8 heart rate with expended energy",
			raw:            []byte{0x08, 80, 0x10, 0x27},
			expectedHR:     80,
			expectedEnergy: 10000,
		},
		{
			name:           "uint16 heart rate with expended energy",
			raw:            []byte{0x09, 0x5a, 0x00, 0xe8, 0x03},
			expectedHR:     90,
			expectedEnergy: 1000,
		},
		{
			name:       "contact bits are ignored",
			raw:        []byte{0x06, 65},
			expectedHR: 65,
		},
		{
			name:       "trailing rr intervals are not parsed",
			raw:        []byte{0x10, 70, 0x00, 0x04, 0x10, 0x04},
			expectedHR: 70,
		},
		{
			name:           "all flags set",
			raw:            []byte{0x1f, 0x3c, 0x00, 0x05, 0x00, 0xff, 0x03},
			expectedHR:     60,
			expectedEnergy: 5,
		},
		{
			name:       "trailing bytes without flags are ignored",
			raw:        []byte{0x00, 55, 0xaa, 0xbb},
			expectedHR: 55,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := DecodeMeasurement(tt.raw)

			require.NoError(t, err)
			assert.Equal(t, tt.expectedHR, m.HeartRate)
			assert.Equal(t, tt.expectedEnergy, m.ExpendedEnergy)
			assert.Zero(t, m.Timestamp, "decoder MUST leave the timestamp unset")
		})
	}
}

func TestDecodeMeasurement_AllFlagCombinations(t *testing.T) {
	// Every flags byte decodes a well-formed frame built to its widths.
	for flags := 0; flags <= 0xff; flags++ {
		f := byte(flags)
		raw := []byte{f}
		if f&FlagValueFormatUint16 != 0 {
			raw = append(raw, 0x34, 0x12)
		} else {
			raw = append(raw, 0x34)
		}
		if f&FlagEnergyExpended != 0 {
			raw = append(raw, 0x78, 0x56)
		}

		m, err := DecodeMeasurement(raw)
		require.NoError(t, err, "flags 0x%02x", f)

		if f&FlagValueFormatUint16 != 0 {
			assert.Equal(t, uint16(0x1234), m.HeartRate, "flags 0x%02x", f)
		} else {
			assert.Equal(t, uint16(0x34), m.HeartRate, "flags 0x%02x", f)
		}
		if f&FlagEnergyExpended != 0 {
			assert.Equal(t, uint16(0x5678), m.ExpendedEnergy, "flags 0x%02x", f)
		} else {
			assert.Zero(t, m.ExpendedEnergy, "flags 0x%02x", f)
		}

		// Every strict prefix is too short.
		for n := 0; n < len(raw); n++ {
			_, err := DecodeMeasurement(raw[:n:n])
			assert.ErrorIs(t, err, ErrInvalidFrame, "flags 0x%02x truncated to %d", f, n)
		}
	}
}

func TestDecodeMeasurement_InvalidFrame(t *testing.T) {
	tests := []struct {
		name    string
		raw     []byte
		message string
	}{
		{name: "nil input", raw: nil, message: "missing flags byte"},
		{name: "empty input", raw: []byte{}, message: "missing flags byte"},
		{name: "flags only", raw: []byte{0x00}, message: "uint8 heart rate needs 2 bytes, got 1"},
		{name: "half a uint16 heart rate", raw: []byte{0x01, 0x50}, message: "uint16 heart rate needs 3 bytes, got 2"},
		{name: "missing energy", raw: []byte{0x08, 80}, message: "expended energy needs 4 bytes, got 2"},
		{name: "half the energy field", raw: []byte{0x09, 80, 0, 1}, message: "expended energy needs 5 bytes, got 4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := DecodeMeasurement(tt.raw)

			assert.ErrorIs(t, err, ErrInvalidFrame)
			assert.Contains(t, err.Error(), tt.message)
			assert.Equal(t, Measurement{}, m, "no partial measurement MUST escape")
		})
	}
}
