//go:build test

package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/srg/hrmon/internal/device"
	"github.com/srg/hrmon/internal/heartrate"
	"github.com/srg/hrmon/internal/session"
	"github.com/srg/hrmon/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var polar = device.DeviceDescriptor{ID: "aa:bb:cc:dd:ee:ff", Name: "Polar H10", RSSI: -60}

func points(bpms ...uint16) []heartrate.Measurement {
	out := make([]heartrate.Measurement, 0, len(bpms))
	for i, bpm := range bpms {
		out = append(out, heartrate.Measurement{HeartRate: bpm}.WithTimestamp(time.Duration(i)*1500*time.Millisecond))
	}
	return out
}

func TestLiveRenderer_Lines(t *testing.T) {
	var buf bytes.Buffer
	r := newLiveRenderer(&buf, polar, false)

	changes := []session.Change{
		{Field: session.FieldState, Value: session.Subscribed},
		{Field: session.FieldIsInitialized, Value: true},
		{Field: session.FieldBodySensorLocation, Value: "Chest"},
		{Field: session.FieldDataPoints, Value: points(72)},
		{Field: session.FieldDataPoints, Value: points(72, 150)},
	}
	for _, c := range changes {
		require.NoError(t, r.Render(c))
	}

	testutils.NewTextAsserter(t).WithOptions(testutils.WithTrimSpace(false)).Assert(buf.String(), strings.Join([]string{
		"state: subscribed",
		"body sensor location: Chest",
		"+  0.0s   72 bpm",
		"+  1.5s  150 bpm",
		"",
	}, "\n"))
}

func TestLiveRenderer_EnergyIsShown(t *testing.T) {
	var buf bytes.Buffer
	r := newLiveRenderer(&buf, polar, false)

	m := heartrate.Measurement{HeartRate: 64, ExpendedEnergy: 12}.WithTimestamp(1749 * time.Millisecond)
	require.NoError(t, r.Render(session.Change{Field: session.FieldDataPoints, Value: []heartrate.Measurement{m}}))

	assert.Equal(t, "+  1.7s   64 bpm  12 kJ\n", buf.String())
}

func TestLiveRenderer_TerminalView(t *testing.T) {
	var buf bytes.Buffer
	r := newLiveRenderer(&buf, polar, true)

	require.NoError(t, r.Render(session.Change{Field: session.FieldState, Value: session.Subscribed}))
	assert.Contains(t, buf.String(), "Waiting for measurements...")

	buf.Reset()
	require.NoError(t, r.Render(session.Change{Field: session.FieldDataPoints, Value: points(60, 61)}))

	view := buf.String()
	assert.True(t, strings.HasPrefix(view, clearScreenSequence))
	assert.Contains(t, view, "Polar H10 (aa:bb:cc:dd:ee:ff)  [subscribed]")
	assert.Contains(t, view, "History (2):")
	// newest first
	assert.Less(t, strings.Index(view, "61 bpm"), strings.Index(view, "+  0.0s"))
}

func TestLiveRenderer_ViewLayout(t *testing.T) {
	r := newLiveRenderer(&bytes.Buffer{}, polar, false)
	for _, c := range []session.Change{
		{Field: session.FieldState, Value: session.Subscribed},
		{Field: session.FieldBodySensorLocation, Value: "Chest"},
		{Field: session.FieldDataPoints, Value: points(60, 61)},
	} {
		require.NoError(t, r.Render(c))
	}

	testutils.NewTextAsserter(t).Assert(strings.TrimPrefix(r.view(), clearScreenSequence), `
Heart rate monitor  Polar H10 (aa:bb:cc:dd:ee:ff)  [subscribed]
Body sensor location: Chest

  61 bpm

History (2):
  +  1.5s   61 bpm
  +  0.0s   60 bpm

Press Ctrl+C to stop
`)
}

func TestJSONRenderer(t *testing.T) {
	var buf bytes.Buffer
	r := &jsonRenderer{enc: json.NewEncoder(&buf)}

	require.NoError(t, r.Render(session.Change{Field: session.FieldState, Value: session.Failed}))
	require.NoError(t, r.Render(session.Change{Field: session.FieldDevices, Value: []device.DeviceDescriptor{polar}}))
	require.NoError(t, r.Render(session.Change{Field: session.FieldDataPoints, Value: points(70)}))

	assert.Equal(t, strings.Join([]string{
		`{"field":"state","value":"failed"}`,
		`{"field":"devices","value":[{"address":"aa:bb:cc:dd:ee:ff","name":"Polar H10","rssi":-60}]}`,
		`{"field":"data_points","value":[{"heart_rate":70,"expended_energy":0,"timestamp_ms":0,"offset_seconds":0}]}`,
		"",
	}, "\n"), buf.String())
}

func TestNewRenderer_InvalidFormat(t *testing.T) {
	_, err := newRenderer("csv", &bytes.Buffer{}, polar)
	assert.EqualError(t, err, "invalid format 'csv': must be one of [live json]")
}
