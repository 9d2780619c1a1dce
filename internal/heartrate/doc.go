// Package heartrate decodes the Bluetooth SIG Heart Rate Profile.
//
// It covers the two characteristics a heart rate monitor needs:
//   - Heart Rate Measurement (0x2A37), delivered as notifications
//   - Body Sensor Location (0x2A38), read once after binding
//
// Sensor contact status and R-R intervals are present in the wire format but
// are not decoded.
package heartrate
