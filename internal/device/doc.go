// Package device defines the BLE transport contract the heart rate session
// is built on, together with the errors transports report.
//
// The contract mirrors what a GATT client stack offers:
//   - discovery of devices advertising a service
//   - opening a service on a chosen device
//   - characteristic lookup, reads and CCCD writes
//   - notification delivery on the transport's own goroutine
//
// The go-ble subpackage implements it on top of github.com/go-ble/ble.
package device
