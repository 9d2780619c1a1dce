package goble

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/hrmon/internal/bledb"
	"github.com/srg/hrmon/internal/device"
)

// Options configures the go-ble transport
type Options struct {
	ScanTimeout    time.Duration `default:"10s"`
	ConnectTimeout time.Duration `default:"15s"`
	ReadTimeout    time.Duration `default:"5s"`

	// AllowList restricts discovery to these addresses when non-empty
	AllowList []string
	// BlockList hides these addresses from discovery
	BlockList []string
}

// DefaultOptions returns Options with every default applied
func DefaultOptions() *Options {
	opts := &Options{}
	defaults.SetDefaults(opts)
	return opts
}

// Transport implements device.Transport on top of go-ble.
// The underlying ble.Device is created on first use and shared by scans and dials.
type Transport struct {
	opts   Options
	logger *logrus.Logger

	mu  sync.Mutex
	dev ble.Device
}

var _ device.Transport = (*Transport)(nil)

// NewTransport creates a go-ble transport. Zero durations in opts fall back to defaults.
func NewTransport(logger *logrus.Logger, opts *Options) *Transport {
	if logger == nil {
		logger = logrus.New()
	}
	if opts == nil {
		opts = DefaultOptions()
	}
	o := *opts
	defaults.SetDefaults(&o)

	return &Transport{
		opts:   o,
		logger: logger,
	}
}

func (t *Transport) bleDevice() (ble.Device, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dev != nil {
		return t.dev, nil
	}
	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", NormalizeError(err))
	}
	t.dev = dev
	return dev, nil
}

// OpenService connects to deviceID and opens serviceUUID on it.
// A device that does not expose the service yields (nil, nil) and the
// connection is cancelled.
func (t *Transport) OpenService(ctx context.Context, deviceID, serviceUUID string) (device.Service, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device address is empty")
	}

	dev, err := t.bleDevice()
	if err != nil {
		return nil, err
	}

	logger := t.logger.WithFields(logrus.Fields{
		"address":      deviceID,
		"service":      serviceUUID,
		"service_name": bledb.LookupService(serviceUUID),
		"timeout":      t.opts.ConnectTimeout,
	})
	logger.Info("Connecting to BLE device...")

	dialCtx, cancel := context.WithTimeout(ctx, t.opts.ConnectTimeout)
	defer cancel()

	client, err := dev.Dial(dialCtx, ble.NewAddr(deviceID))
	if err != nil {
		logger.WithField("error", err).Error("Failed to dial BLE device")
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", deviceID, NormalizeError(err))
	}

	logger.Debug("Discovering services and characteristics...")
	profile, err := client.DiscoverProfile(true)
	if err != nil {
		logger.WithField("error", err).Error("Failed to discover profile")
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			logger.WithField("cancel_error", cancelErr).Warn("Failed to cancel connection during profile discovery failure")
		}
		return nil, fmt.Errorf("failed to discover profile: %w", NormalizeError(err))
	}

	for _, bleSvc := range profile.Services {
		if !device.SameUUID(bleSvc.UUID.String(), serviceUUID) {
			continue
		}
		svc := newService(client, bleSvc, t.opts.ReadTimeout, t.logger)
		svc.watchDisconnect(client)
		logger.WithField("characteristics", len(bleSvc.Characteristics)).Info("BLE service opened")
		return svc, nil
	}

	logger.WithField("services", len(profile.Services)).Warn("Device does not expose the requested service")
	if cancelErr := client.CancelConnection(); cancelErr != nil {
		logger.WithField("cancel_error", cancelErr).Warn("Failed to cancel connection")
	}
	return nil, nil
}
