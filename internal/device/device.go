package device

import (
	"context"
	"fmt"
	"time"
)

// DeviceDescriptor identifies a discovered peripheral.
//
//nolint:revive // DeviceDescriptor reads better than Descriptor next to GATT descriptors
type DeviceDescriptor struct {
	ID   string // transport address, passed back to OpenService
	Name string
	RSSI int
}

func (d DeviceDescriptor) String() string {
	if d.Name == "" {
		return d.ID
	}
	return fmt.Sprintf("%s (%s)", d.Name, d.ID)
}

// CommStatus is the outcome a transport reports for a GATT round trip.
type CommStatus int

const (
	StatusSuccess CommStatus = iota
	StatusUnreachable
	StatusProtocolError
	StatusAccessDenied
)

func (s CommStatus) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusUnreachable:
		return "unreachable"
	case StatusProtocolError:
		return "protocol_error"
	case StatusAccessDenied:
		return "access_denied"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// NotificationHandler receives a notification payload and the time the
// transport saw it. It runs on a transport goroutine and must not block.
// data is only valid for the duration of the call.
type NotificationHandler func(data []byte, eventTime time.Time)

// Transport is the entry point into a BLE stack.
type Transport interface {
	// FindDevices returns the devices advertising serviceUUID.
	FindDevices(ctx context.Context, serviceUUID string) ([]DeviceDescriptor, error)

	// OpenService opens serviceUUID on the given device. A nil Service with a
	// nil error means the service could not be obtained (access denied, device
	// busy, or the service is absent).
	OpenService(ctx context.Context, deviceID, serviceUUID string) (Service, error)
}

// Service is an open GATT service handle. Close releases it.
type Service interface {
	UUID() string
	GetCharacteristics(uuid string) []Characteristic
	Close() error
}

// CharacteristicReader provides read operations
type CharacteristicReader interface {
	ReadValue(ctx context.Context) (CommStatus, []byte, error)
}

// CharacteristicNotifier controls notification delivery. Subscribe registers
// the local handler; WriteNotifyDescriptor asks the peripheral to start or stop
// sending.
type CharacteristicNotifier interface {
	WriteNotifyDescriptor(ctx context.Context, enable bool) (CommStatus, error)
	Subscribe(h NotificationHandler) error
	Unsubscribe() error
}

// Characteristic combines info + operations
type Characteristic interface {
	UUID() string
	CharacteristicReader
	CharacteristicNotifier
}
