package session

import (
	"github.com/srg/hrmon/internal/device"
	"github.com/srg/hrmon/internal/heartrate"
)

// Field names the observable session property a Change refers to.
type Field string

const (
	FieldState              Field = "state"                // State
	FieldIsInitialized      Field = "is_initialized"       // bool
	FieldBodySensorLocation Field = "body_sensor_location" // string
	FieldDataPoints         Field = "data_points"          // []heartrate.Measurement, oldest first
	FieldDevices            Field = "devices"              // []device.DeviceDescriptor
	FieldStackingCount      Field = "stacking_count"       // int
)

// Change carries the new value of one observable field.
type Change struct {
	Field Field
	Value any
}

// State returns the value of a FieldState change.
func (c Change) State() (State, bool) {
	v, ok := c.Value.(State)
	return v, ok
}

// DataPoints returns the history snapshot of a FieldDataPoints change.
func (c Change) DataPoints() ([]heartrate.Measurement, bool) {
	v, ok := c.Value.([]heartrate.Measurement)
	return v, ok
}

// Devices returns the device list of a FieldDevices change.
func (c Change) Devices() ([]device.DeviceDescriptor, bool) {
	v, ok := c.Value.([]device.DeviceDescriptor)
	return v, ok
}
