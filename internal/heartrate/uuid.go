package heartrate

// Bluetooth SIG assigned numbers, in the normalized short form used by the
// device package.
const (
	ServiceUUID            = "180d"
	MeasurementUUID        = "2a37"
	BodySensorLocationUUID = "2a38"
)
