//go:build test

package testutils

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/srg/hrmon/internal/device"
	"github.com/stretchr/testify/mock"
)

// MockTransport is a testify mock of device.Transport.
type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) FindDevices(ctx context.Context, serviceUUID string) ([]device.DeviceDescriptor, error) {
	args := m.Called(ctx, serviceUUID)
	devs, _ := args.Get(0).([]device.DeviceDescriptor)
	return devs, args.Error(1)
}

func (m *MockTransport) OpenService(ctx context.Context, deviceID, serviceUUID string) (device.Service, error) {
	args := m.Called(ctx, deviceID, serviceUUID)
	svc, _ := args.Get(0).(device.Service)
	return svc, args.Error(1)
}

// MockService is a device.Service holding a fixed set of characteristics.
type MockService struct {
	uuid   string
	chars  []device.Characteristic
	closes atomic.Int32

	CloseErr error
}

// NewMockService creates a service exposing chars.
func NewMockService(uuid string, chars ...device.Characteristic) *MockService {
	return &MockService{uuid: uuid, chars: chars}
}

func (s *MockService) UUID() string {
	return s.uuid
}

func (s *MockService) GetCharacteristics(uuid string) []device.Characteristic {
	var result []device.Characteristic
	for _, c := range s.chars {
		if device.SameUUID(c.UUID(), uuid) {
			result = append(result, c)
		}
	}
	return result
}

func (s *MockService) Close() error {
	s.closes.Add(1)
	return s.CloseErr
}

// CloseCalls returns how many times Close was called.
func (s *MockService) CloseCalls() int {
	return int(s.closes.Load())
}

// MockCharacteristic mocks ReadValue and WriteNotifyDescriptor with testify and
// keeps the registered notification handler so tests can fire notifications.
type MockCharacteristic struct {
	mock.Mock

	uuid string

	// BeforeSubscribe, when set, runs before the handler is registered
	BeforeSubscribe func()

	mu      sync.Mutex
	handler device.NotificationHandler

	subscribes   atomic.Int32
	unsubscribes atomic.Int32
}

// NewMockCharacteristic creates a characteristic with the given UUID.
func NewMockCharacteristic(uuid string) *MockCharacteristic {
	return &MockCharacteristic{uuid: uuid}
}

func (c *MockCharacteristic) UUID() string {
	return c.uuid
}

func (c *MockCharacteristic) ReadValue(ctx context.Context) (device.CommStatus, []byte, error) {
	args := c.Called(ctx)
	data, _ := args.Get(1).([]byte)
	return args.Get(0).(device.CommStatus), data, args.Error(2)
}

func (c *MockCharacteristic) WriteNotifyDescriptor(ctx context.Context, enable bool) (device.CommStatus, error) {
	args := c.Called(ctx, enable)
	return args.Get(0).(device.CommStatus), args.Error(1)
}

func (c *MockCharacteristic) Subscribe(h device.NotificationHandler) error {
	if c.BeforeSubscribe != nil {
		c.BeforeSubscribe()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
	c.subscribes.Add(1)
	return nil
}

func (c *MockCharacteristic) Unsubscribe() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = nil
	c.unsubscribes.Add(1)
	return nil
}

// HasHandler reports whether a notification handler is registered.
func (c *MockCharacteristic) HasHandler() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler != nil
}

// UnsubscribeCalls returns how many times Unsubscribe was called.
func (c *MockCharacteristic) UnsubscribeCalls() int {
	return int(c.unsubscribes.Load())
}

// Notify delivers data to the registered handler the way a transport
// goroutine would. It returns false when no handler is registered.
func (c *MockCharacteristic) Notify(data []byte, eventTime time.Time) bool {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h == nil {
		return false
	}
	h(data, eventTime)
	return true
}
