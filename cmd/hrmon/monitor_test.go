//go:build test

package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/srg/hrmon/internal/session"
	"github.com/srg/hrmon/internal/testutils"
	"github.com/srg/hrmon/pkg/config"
	"github.com/stretchr/testify/suite"
)

type MonitorCommandSuite struct {
	CommandTestSuite
	cfg *config.Config
}

func TestMonitorCommandSuite(t *testing.T) {
	suite.Run(t, new(MonitorCommandSuite))
}

func (s *MonitorCommandSuite) SetupTest() {
	s.CommandTestSuite.SetupTest()
	s.cfg = config.DefaultConfig()
	s.cfg.ScanTimeout = 50 * time.Millisecond
}

type monitorRun struct {
	out    *syncBuffer
	cancel context.CancelFunc
	done   chan error
}

func (s *MonitorCommandSuite) start(opts monitorOptions) *monitorRun {
	ctx, cancel := context.WithTimeout(context.Background(), s.TestTimeout)
	run := &monitorRun{out: &syncBuffer{}, cancel: cancel, done: make(chan error, 1)}
	go func() {
		run.done <- monitor(ctx, s.cfg, s.Logger, opts, run.out, &syncBuffer{})
	}()
	return run
}

func (s *MonitorCommandSuite) stop(run *monitorRun) error {
	run.cancel()
	select {
	case err := <-run.done:
		return err
	case <-time.After(s.TestTimeout):
		s.FailNow("monitor did not stop")
		return nil
	}
}

// wait lets monitor return on its own.
func (s *MonitorCommandSuite) wait(run *monitorRun) error {
	defer run.cancel()
	select {
	case err := <-run.done:
		return err
	case <-time.After(s.TestTimeout):
		s.FailNow("monitor did not return")
		return nil
	}
}

func (s *MonitorCommandSuite) waitSubscribed() {
	s.Require().Eventually(func() bool {
		c := s.Device.LastClient()
		return c != nil && c.IsSubscribed("2a37")
	}, s.TestTimeout, 10*time.Millisecond, "heart rate notifications MUST be enabled")
}

func (s *MonitorCommandSuite) TestMonitor_LiveOutput() {
	// GOAL: measurements, body location and state changes are printed while monitoring
	//
	// TEST SCENARIO: bind to the default sensor, notify 72 bpm then 0x01 16-bit 300 bpm, cancel → lines for each, disposed last

	run := s.start(monitorOptions{address: "AA:BB:CC:DD:EE:FF", format: "live"})
	s.waitSubscribed()

	client := s.Device.LastClient()
	s.True(client.Notify("2a37", []byte{0x00, 72}))
	s.Eventually(func() bool {
		return s.contains(run.out, "72 bpm")
	}, s.TestTimeout, 10*time.Millisecond)

	s.True(client.Notify("2a37", []byte{0x01, 0x2C, 0x01}))
	s.Eventually(func() bool {
		return s.contains(run.out, "300 bpm")
	}, s.TestTimeout, 10*time.Millisecond)

	s.Require().NoError(s.stop(run))

	out := run.out.String()
	s.Contains(out, "state: binding")
	s.Contains(out, "state: subscribed")
	s.Contains(out, "body sensor location: Chest")
	s.Contains(out, "state: disposed")
	s.Equal(1, client.CancelCalls(), "the connection MUST be released on exit")
}

func (s *MonitorCommandSuite) TestMonitor_JSONOutput() {
	// GOAL: json format writes one change per line with snapshots of the history

	run := s.start(monitorOptions{format: "json"})
	s.waitSubscribed()

	s.True(s.Device.LastClient().Notify("2a37", []byte{0x08, 65, 0x05, 0x00}))
	s.Eventually(func() bool {
		return s.contains(run.out, `"field":"data_points"`)
	}, s.TestTimeout, 10*time.Millisecond)
	s.Require().NoError(s.stop(run))

	out := run.out.String()
	s.Contains(out, `{"field":"state","value":"subscribed"}`)
	s.Contains(out, `{"field":"body_sensor_location","value":"Chest"}`)
	s.Contains(out, `"heart_rate":65`)
	s.Contains(out, `"expended_energy":5`)
}

func (s *MonitorCommandSuite) TestMonitor_UnknownAddress() {
	// GOAL: monitoring an address that was not discovered fails with ErrDeviceNotFound

	run := s.start(monitorOptions{address: "00:00:00:00:00:01", format: "live"})
	err := s.wait(run)

	s.Require().ErrorIs(err, ErrDeviceNotFound)
	s.Contains(FormatUserError(err), "00:00:00:00:00:01")
}

func (s *MonitorCommandSuite) TestMonitor_MissingService() {
	// GOAL: a sensor that advertises Heart Rate but does not expose it reports ErrServiceUnavailable

	s.PeripheralBuilder = testutils.NewPeripheralDeviceBuilder(s.T()).
		FromJSON(`{"services": [{"uuid": "180F", "characteristics": [{"uuid": "2A19", "properties": "read", "value": [50]}]}]}`).
		WithAdvertisements(testutils.NewAdvertisementBuilder().WithAddress(TestDeviceAddress).WithServices("180D").Build())
	s.SetupTest()

	ctx, cancel := context.WithTimeout(context.Background(), s.TestTimeout)
	defer cancel()
	err := monitor(ctx, s.cfg, s.Logger, monitorOptions{format: "live"}, &syncBuffer{}, &syncBuffer{})

	s.ErrorIs(err, session.ErrServiceUnavailable)
}

func (s *MonitorCommandSuite) TestMonitor_ScanFailure() {
	// GOAL: a Bluetooth failure during discovery is surfaced as a discovery error

	s.PeripheralBuilder = testutils.NewPeripheralDeviceBuilder(s.T()).
		WithErrors(testutils.MockErrors{Scan: errors.New("bluetooth is turned off")})
	s.SetupTest()

	ctx, cancel := context.WithTimeout(context.Background(), s.TestTimeout)
	defer cancel()
	err := monitor(ctx, s.cfg, s.Logger, monitorOptions{format: "live"}, &syncBuffer{}, &syncBuffer{})

	s.ErrorIs(err, session.ErrDiscoveryFailed)
	s.Equal("Bluetooth is turned off; enable it and try again", FormatUserError(err))
}

func (s *MonitorCommandSuite) TestMonitor_DurationStopsCleanly() {
	// GOAL: --duration ends the monitor without an error

	ctx, cancel := context.WithTimeout(context.Background(), s.TestTimeout)
	defer cancel()
	err := monitor(ctx, s.cfg, s.Logger, monitorOptions{format: "live", duration: 300 * time.Millisecond}, &syncBuffer{}, &syncBuffer{})

	s.NoError(err)
}

func (s *MonitorCommandSuite) TestMonitor_StackingCountFollowsConfigFile() {
	// GOAL: editing stacking_count in the watched config file resizes the history
	//
	// TEST SCENARIO: start with 3, push 3 frames, rewrite file with 1, push one more → json snapshot holds 1 point

	path := filepath.Join(s.T().TempDir(), "hrmon.yaml")
	s.Require().NoError(os.WriteFile(path, []byte("stacking_count: 3\n"), 0o600))
	s.cfg.StackingCount = 3

	run := s.start(monitorOptions{format: "json", configPath: path})
	s.waitSubscribed()
	client := s.Device.LastClient()
	for _, bpm := range []byte{60, 61, 62} {
		s.True(client.Notify("2a37", []byte{0x00, bpm}))
	}

	s.Require().NoError(os.WriteFile(path, []byte("stacking_count: 1\n"), 0o600))
	s.Eventually(func() bool {
		return s.contains(run.out, `{"field":"stacking_count","value":1}`)
	}, s.TestTimeout, 20*time.Millisecond)

	s.True(client.Notify("2a37", []byte{0x00, 90}))
	s.Eventually(func() bool {
		return s.contains(run.out, `{"field":"data_points","value":[{"heart_rate":90,`)
	}, s.TestTimeout, 10*time.Millisecond)

	s.Require().NoError(s.stop(run))
}

func (s *MonitorCommandSuite) contains(out *syncBuffer, substr string) bool {
	return strings.Contains(out.String(), substr)
}
