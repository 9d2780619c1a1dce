//go:build test

package testutils

import (
	"time"

	blelib "github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	goble "github.com/srg/hrmon/internal/device/go-ble"
	"github.com/stretchr/testify/suite"
)

// MockBLEPeripheralSuite swaps goble.DeviceFactory for a mock peripheral
// around every test.
//
//	type TransportSuite struct {
//	    testutils.MockBLEPeripheralSuite
//	}
//
//	func (s *TransportSuite) SetupTest() {
//	    s.WithPeripheral().FromJSON(`{"services":[...]}`)
//	    s.MockBLEPeripheralSuite.SetupTest() // Call parent last to apply configuration
//	}
type MockBLEPeripheralSuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger

	OriginalDeviceFactory func() (blelib.Device, error)
	TestTimeout           time.Duration

	PeripheralBuilder *PeripheralDeviceBuilder
	// Device is the mock built for the current test
	Device *MockBLEDevice
}

// SetupSuite initializes the helper and remembers the real device factory.
func (s *MockBLEPeripheralSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	s.TestTimeout = 5 * time.Second

	s.OriginalDeviceFactory = goble.DeviceFactory
	s.T().Cleanup(func() {
		goble.DeviceFactory = s.OriginalDeviceFactory
	})
}

// SetupTest builds the configured peripheral (heart rate sensor by default)
// and installs it as the device factory.
func (s *MockBLEPeripheralSuite) SetupTest() {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = createDefaultPeripheralBuilder(s)
	}

	s.Device = s.PeripheralBuilder.Build()
	dev := s.Device
	goble.DeviceFactory = func() (blelib.Device, error) {
		return dev, nil
	}

	s.Logger.Debug("Test setup completed - ready for execution")
}

// TearDownTest restores the factory and resets the builder.
func (s *MockBLEPeripheralSuite) TearDownTest() {
	goble.DeviceFactory = s.OriginalDeviceFactory
	s.PeripheralBuilder = nil
	s.Device = nil
}

// WithPeripheral returns the peripheral builder for fluent configuration.
// Call it before the parent SetupTest.
func (s *MockBLEPeripheralSuite) WithPeripheral() *PeripheralDeviceBuilder {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = NewPeripheralDeviceBuilder(s.T())
	}
	return s.PeripheralBuilder
}

// createDefaultPeripheralBuilder describes a heart rate sensor worn on the chest
// that advertises as "Polar H10".
func createDefaultPeripheralBuilder(s *MockBLEPeripheralSuite) *PeripheralDeviceBuilder {
	return NewPeripheralDeviceBuilder(s.T()).
		FromJSON(`
		{
			"services": [
				{
					"uuid": "180D",
					"characteristics": [
						{ "uuid": "2A37", "properties": "notify" },
						{ "uuid": "2A38", "properties": "read", "value": [1] }
					]
				},
				{
					"uuid": "180F",
					"characteristics": [
						{ "uuid": "2A19", "properties": "read,notify", "value": [50] }
					]
				}
			]
		}`).
		WithAdvertisements(
			NewAdvertisementBuilder().
				WithAddress("AA:BB:CC:DD:EE:FF").WithName("Polar H10").WithRSSI(-60).WithServices("180D").Build(),
		)
}
