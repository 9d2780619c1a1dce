package heartrate

import (
	"encoding/json"
	"fmt"
	"time"
)

// Measurement is one decoded heart rate sample.
//
// Measurements are values: nothing in this module modifies one after it has
// been built. Use WithTimestamp to derive a stamped copy.
type Measurement struct {
	HeartRate      uint16        // beats per minute
	ExpendedEnergy uint16        // kilojoules, 0 when the frame did not carry it
	Timestamp      time.Duration // elapsed since the session started
}

// WithTimestamp returns a copy of m stamped with ts.
func (m Measurement) WithTimestamp(ts time.Duration) Measurement {
	m.Timestamp = ts
	return m
}

// OffsetSeconds is the timestamp truncated to a tenth of a second.
// 1749ms reports 1.7, never 1.75 or 1.8.
func (m Measurement) OffsetSeconds() float64 {
	return float64(m.Timestamp.Milliseconds()/100) / 10.0
}

func (m Measurement) String() string {
	return fmt.Sprintf("%d bpm / %d @ %s", m.HeartRate, m.ExpendedEnergy, m.Timestamp)
}

type measurementJSON struct {
	HeartRate      uint16  `json:"heart_rate"`
	ExpendedEnergy uint16  `json:"expended_energy"`
	TimestampMs    int64   `json:"timestamp_ms"`
	OffsetSeconds  float64 `json:"offset_seconds"`
}

// MarshalJSON includes the derived offset so consumers don't recompute it.
func (m Measurement) MarshalJSON() ([]byte, error) {
	return json.Marshal(measurementJSON{
		HeartRate:      m.HeartRate,
		ExpendedEnergy: m.ExpendedEnergy,
		TimestampMs:    m.Timestamp.Milliseconds(),
		OffsetSeconds:  m.OffsetSeconds(),
	})
}

// UnmarshalJSON accepts the form produced by MarshalJSON. offset_seconds is
// derived and ignored on input.
func (m *Measurement) UnmarshalJSON(data []byte) error {
	var raw measurementJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Measurement{
		HeartRate:      raw.HeartRate,
		ExpendedEnergy: raw.ExpendedEnergy,
		Timestamp:      time.Duration(raw.TimestampMs) * time.Millisecond,
	}
	return nil
}
