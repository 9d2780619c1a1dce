package main

import (
	"errors"
	"fmt"

	"github.com/srg/hrmon/internal/device"
	"github.com/srg/hrmon/internal/session"
)

// Command-level errors
var (
	// ErrDeviceNotFound is returned when no sensor matches the requested address.
	ErrDeviceNotFound = errors.New("no heart rate sensor found")
	// ErrSessionFailed is returned when the session fails after it was bound.
	ErrSessionFailed = errors.New("heart rate session failed")
)

// FormatUserError turns an error chain into a one-line hint for the terminal.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off; enable it and try again"
	case errors.Is(err, device.ErrUnsupported):
		return "Bluetooth is not supported on this platform"
	case errors.Is(err, ErrDeviceNotFound):
		return fmt.Sprintf("%s; make sure the sensor is worn and not paired with another app", err)
	case errors.Is(err, session.ErrServiceUnavailable):
		return fmt.Sprintf("the device does not expose the Heart Rate service (%s)", err)
	case errors.Is(err, session.ErrCharacteristicMissing):
		return fmt.Sprintf("the device does not report heart rate measurements (%s)", err)
	case errors.Is(err, session.ErrDeviceUnreachable):
		return fmt.Sprintf("the device stopped responding (%s)", err)
	}
	return err.Error()
}
