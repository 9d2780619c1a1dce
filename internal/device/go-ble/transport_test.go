//go:build test

package goble_test

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/hrmon/internal/device"
	goble "github.com/srg/hrmon/internal/device/go-ble"
	"github.com/srg/hrmon/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type TransportSuite struct {
	testutils.MockBLEPeripheralSuite
	transport *goble.Transport
}

func TestTransportSuite(t *testing.T) {
	suite.Run(t, new(TransportSuite))
}

func (s *TransportSuite) SetupTest() {
	s.MockBLEPeripheralSuite.SetupTest()
	s.transport = goble.NewTransport(s.Logger, &goble.Options{
		ScanTimeout: 50 * time.Millisecond,
		ReadTimeout: time.Second,
	})
}

func (s *TransportSuite) TestFindDevices_FiltersByService() {
	// GOAL: Only connectable devices advertising the requested service are returned, sorted by address
	//
	// TEST SCENARIO: Four advertisements (HR sensor, duplicate with new RSSI, battery-only, non-connectable) → two heart rate sensors sorted by address

	s.PeripheralBuilder = testutils.NewPeripheralDeviceBuilder(s.T()).WithAdvertisements(
		testutils.NewAdvertisementBuilder().WithAddress("cc:00:00:00:00:01").WithName("Wahoo TICKR").WithRSSI(-70).WithServices("180D").Build(),
		testutils.NewAdvertisementBuilder().WithAddress("aa:00:00:00:00:02").WithRSSI(-80).WithServices("0000180d-0000-1000-8000-00805f9b34fb").Build(),
		testutils.NewAdvertisementBuilder().WithAddress("aa:00:00:00:00:02").WithName("Polar H10").WithRSSI(-55).Build(),
		testutils.NewAdvertisementBuilder().WithAddress("bb:00:00:00:00:03").WithName("Battery").WithServices("180F").Build(),
		testutils.NewAdvertisementBuilder().WithAddress("dd:00:00:00:00:04").WithServices("180D").WithConnectable(false).Build(),
	)
	s.MockBLEPeripheralSuite.SetupTest()

	devices, err := s.transport.FindDevices(s.Helper.Context(s.TestTimeout), "180d")
	s.Require().NoError(err)

	s.Equal([]device.DeviceDescriptor{
		{ID: "aa:00:00:00:00:02", Name: "Polar H10", RSSI: -55},
		{ID: "cc:00:00:00:00:01", Name: "Wahoo TICKR", RSSI: -70},
	}, devices)
}

func (s *TransportSuite) TestFindDevices_AllowAndBlockLists() {
	// GOAL: Allow and block lists restrict discovery by address, case-insensitively

	s.PeripheralBuilder = testutils.NewPeripheralDeviceBuilder(s.T()).WithAdvertisements(
		testutils.NewAdvertisementBuilder().WithAddress("aa:00:00:00:00:01").WithServices("180D").Build(),
		testutils.NewAdvertisementBuilder().WithAddress("aa:00:00:00:00:02").WithServices("180D").Build(),
		testutils.NewAdvertisementBuilder().WithAddress("aa:00:00:00:00:03").WithServices("180D").Build(),
	)
	s.MockBLEPeripheralSuite.SetupTest()

	transport := goble.NewTransport(s.Logger, &goble.Options{
		ScanTimeout: 50 * time.Millisecond,
		AllowList:   []string{"AA:00:00:00:00:01", "AA:00:00:00:00:02"},
		BlockList:   []string{"AA:00:00:00:00:02"},
	})

	devices, err := transport.FindDevices(s.Helper.Context(s.TestTimeout), "180d")
	s.Require().NoError(err)
	s.Require().Len(devices, 1)
	s.Equal("aa:00:00:00:00:01", devices[0].ID)
}

func (s *TransportSuite) TestFindDevices_BluetoothOff() {
	// GOAL: Backend errors are normalized into device sentinels

	s.PeripheralBuilder = testutils.NewPeripheralDeviceBuilder(s.T()).WithErrors(testutils.MockErrors{
		Scan: errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"),
	})
	s.MockBLEPeripheralSuite.SetupTest()

	_, err := s.transport.FindDevices(s.Helper.Context(s.TestTimeout), "180d")
	s.ErrorIs(err, device.ErrBluetoothOff)
}

func (s *TransportSuite) TestOpenService_MissingServiceYieldsNil() {
	// GOAL: A device without the requested service yields a nil handle and the connection is cancelled

	svc, err := s.transport.OpenService(s.Helper.Context(s.TestTimeout), "AA:BB:CC:DD:EE:FF", "1812")
	s.Require().NoError(err)
	s.Nil(svc)
	s.Equal(1, s.Device.LastClient().CancelCalls())
}

func (s *TransportSuite) TestOpenService_DialFailure() {
	s.PeripheralBuilder = testutils.NewPeripheralDeviceBuilder(s.T()).WithErrors(testutils.MockErrors{
		Dial: errors.New("device not connected"),
	})
	s.MockBLEPeripheralSuite.SetupTest()

	svc, err := s.transport.OpenService(s.Helper.Context(s.TestTimeout), "AA:BB:CC:DD:EE:FF", "180d")
	s.Nil(svc)
	s.ErrorIs(err, device.ErrNotConnected)
	s.Equal(device.StatusUnreachable, device.StatusFromError(err))
}

func (s *TransportSuite) TestNotificationsAndRead() {
	// GOAL: The opened service exposes characteristics that read, subscribe and deliver notifications
	//
	// TEST SCENARIO: Open 180D → read 2A38 → enable 2A37 → fire notification → handler receives copy → close disables and cancels

	svc, err := s.transport.OpenService(s.Helper.Context(s.TestTimeout), "AA:BB:CC:DD:EE:FF", "0x180D")
	s.Require().NoError(err)
	s.Require().NotNil(svc)
	s.Equal("180d", svc.UUID())
	client := s.Device.LastClient()

	loc := svc.GetCharacteristics("2a38")
	s.Require().Len(loc, 1)
	status, data, err := loc[0].ReadValue(s.Helper.Context(s.TestTimeout))
	s.Require().NoError(err)
	s.Equal(device.StatusSuccess, status)
	s.Equal([]byte{1}, data)

	// 2A37 is notify-only
	hrm := svc.GetCharacteristics("00002a37-0000-1000-8000-00805f9b34fb")
	s.Require().Len(hrm, 1)
	status, _, err = hrm[0].ReadValue(s.Helper.Context(s.TestTimeout))
	s.ErrorIs(err, device.ErrUnsupported)
	s.Equal(device.StatusProtocolError, status)

	received := make(chan []byte, 1)
	s.Require().NoError(hrm[0].Subscribe(func(data []byte, _ time.Time) {
		received <- append([]byte(nil), data...)
	}))
	status, err = hrm[0].WriteNotifyDescriptor(s.Helper.Context(s.TestTimeout), true)
	s.Require().NoError(err)
	s.Equal(device.StatusSuccess, status)
	s.True(client.IsSubscribed("2a37"))

	written := s.Helper.LastLogEntry(logrus.DebugLevel, "Notification descriptor written")
	s.Require().NotNil(written)
	s.Equal("Heart Rate Measurement", written.Data["char_name"])
	s.Equal("Client Characteristic Configuration", written.Data["descriptor"])
	opened := s.Helper.LastLogEntry(logrus.InfoLevel, "BLE service opened")
	s.Require().NotNil(opened)
	s.Equal("Heart Rate", opened.Data["service_name"])

	s.True(client.Notify("2a37", []byte{0x00, 72}))
	select {
	case got := <-received:
		s.Equal([]byte{0x00, 72}, got)
	case <-time.After(time.Second):
		s.Fail("notification was not delivered")
	}

	s.Require().NoError(hrm[0].Unsubscribe())
	s.True(client.Notify("2a37", []byte{0x00, 73}))
	s.Empty(received)

	s.Require().NoError(svc.Close())
	s.Require().NoError(svc.Close())
	s.False(client.IsSubscribed("2a37"))
	s.Equal(1, client.CancelCalls())
}

func (s *TransportSuite) TestSubscribeFailureIsClassified() {
	s.PeripheralBuilder = testutils.NewPeripheralDeviceBuilder(s.T()).
		FromJSON(`{"services":[{"uuid":"180D","characteristics":[{"uuid":"2A37","properties":"notify"}]}]}`).
		WithErrors(testutils.MockErrors{Subscribe: errors.New("ATT error: insufficient authentication")})
	s.MockBLEPeripheralSuite.SetupTest()

	svc, err := s.transport.OpenService(s.Helper.Context(s.TestTimeout), "AA:BB:CC:DD:EE:FF", "180d")
	s.Require().NoError(err)
	s.Require().NotNil(svc)

	status, err := svc.GetCharacteristics("2a37")[0].WriteNotifyDescriptor(s.Helper.Context(s.TestTimeout), true)
	s.Error(err)
	s.Equal(device.StatusAccessDenied, status)
}

func (s *TransportSuite) TestLinkLossMakesCharacteristicsUnreachable() {
	svc, err := s.transport.OpenService(s.Helper.Context(s.TestTimeout), "AA:BB:CC:DD:EE:FF", "180d")
	s.Require().NoError(err)
	s.Require().NotNil(svc)

	s.Device.LastClient().Disconnect()

	s.Eventually(func() bool {
		status, _, _ := svc.GetCharacteristics("2a38")[0].ReadValue(s.Helper.Context(s.TestTimeout))
		return status == device.StatusUnreachable
	}, time.Second, 10*time.Millisecond)
}
