//go:build test

package main

import (
	"testing"

	"github.com/srg/hrmon/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type ScanCommandSuite struct {
	CommandTestSuite
}

func TestScanCommandSuite(t *testing.T) {
	suite.Run(t, new(ScanCommandSuite))
}

func (s *ScanCommandSuite) TearDownTest() {
	scanFormat = "table"
	scanDuration = 0
	s.CommandTestSuite.TearDownTest()
}

func (s *ScanCommandSuite) TestScan_JSON() {
	// GOAL: scan lists heart rate sensors only, as JSON
	//
	// TEST SCENARIO: HR sensor + battery-only device advertised → JSON array with the HR sensor

	s.PeripheralBuilder = testutils.NewPeripheralDeviceBuilder(s.T()).WithAdvertisements(
		testutils.NewAdvertisementBuilder().WithAddress(TestDeviceAddress).WithName("Polar H10").WithRSSI(-60).WithServices("180D").Build(),
		testutils.NewAdvertisementBuilder().WithAddress("11:22:33:44:55:66").WithName("Scale").WithServices("180F").Build(),
	)
	s.CommandTestSuite.SetupTest()

	out, err := s.ExecuteCommand(rootCmd, "scan", "--duration", "50ms", "--format", "json")
	s.Require().NoError(err)

	testutils.NewJSONAsserter(s.T()).Assert(out, `[
		{"address": "aa:bb:cc:dd:ee:ff", "name": "Polar H10", "rssi": -60}
	]`)
}

func (s *ScanCommandSuite) TestScan_Table() {
	// GOAL: the default table output shows name, address and RSSI

	out, err := s.ExecuteCommand(rootCmd, "scan", "--duration", "50ms")
	s.Require().NoError(err)

	s.Contains(out, "NAME")
	s.Contains(out, "Polar H10")
	s.Contains(out, TestDeviceAddress)
	s.Contains(out, "-60 dBm")
}

func (s *ScanCommandSuite) TestScan_NothingFound() {
	// GOAL: an empty scan is reported, not treated as an error

	s.PeripheralBuilder = testutils.NewPeripheralDeviceBuilder(s.T())
	s.CommandTestSuite.SetupTest()

	out, err := s.ExecuteCommand(rootCmd, "scan", "--duration", "50ms")
	s.Require().NoError(err)
	s.Contains(out, "No heart rate sensors found")
}

func (s *ScanCommandSuite) TestScan_InvalidFormat() {
	// GOAL: unknown formats are rejected before scanning

	_, err := s.ExecuteCommand(rootCmd, "scan", "--format", "xml")
	s.EqualError(err, "invalid format 'xml': must be one of [table json]")
}
