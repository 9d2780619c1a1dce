package goble

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/hrmon/internal/device"
	"github.com/srg/hrmon/internal/groutine"
)

// gattClient is the part of ble.Client the transport uses after discovery
type gattClient interface {
	ReadCharacteristic(c *ble.Characteristic) ([]byte, error)
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	Unsubscribe(c *ble.Characteristic, ind bool) error
	CancelConnection() error
}

// BLEService is an open GATT service on a connected peripheral.
// Closing it cancels the connection.
type BLEService struct {
	uuid            string
	client          gattClient
	characteristics []*BLECharacteristic
	logger          *logrus.Logger

	closed atomic.Bool
	done   chan struct{}
}

var _ device.Service = (*BLEService)(nil)

func newService(client gattClient, svc *ble.Service, readTimeout time.Duration, logger *logrus.Logger) *BLEService {
	s := &BLEService{
		uuid:   device.NormalizeUUID(svc.UUID.String()),
		client: client,
		logger: logger,
		done:   make(chan struct{}),
	}
	for _, c := range svc.Characteristics {
		s.characteristics = append(s.characteristics, newCharacteristic(c, client, readTimeout, logger))
	}
	return s
}

func (s *BLEService) UUID() string {
	return s.uuid
}

// GetCharacteristics returns every characteristic with the given UUID, in discovery order
func (s *BLEService) GetCharacteristics(uuid string) []device.Characteristic {
	var result []device.Characteristic
	for _, c := range s.characteristics {
		if device.SameUUID(c.uuid, uuid) {
			result = append(result, c)
		}
	}
	return result
}

// Close detaches notification handlers, disables active notifications and
// cancels the connection. Calling it again is a no-op.
func (s *BLEService) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.done)

	for _, c := range s.characteristics {
		c.detach()
	}

	s.logger.WithField("service", s.uuid).Info("Disconnecting BLE device...")
	err := NormalizeError(s.client.CancelConnection())
	if err != nil {
		s.logger.WithField("error", err).Warn("BLE device disconnected with errors")
		return err
	}
	s.logger.Info("BLE device disconnected successfully")
	return nil
}

// watchDisconnect logs when the peripheral drops the link while the service is open
func (s *BLEService) watchDisconnect(client any) {
	dc, ok := client.(interface{ Disconnected() <-chan struct{} })
	if !ok {
		s.logger.Debug("Client does not support Disconnected() channel")
		return
	}

	groutine.Go(context.Background(), "ble-connection-monitor", func(context.Context) {
		select {
		case <-dc.Disconnected():
			if !s.closed.Load() {
				s.logger.WithField("service", s.uuid).Warn("BLE device disconnected unexpectedly")
				for _, c := range s.characteristics {
					c.linkLost.Store(true)
				}
			}
		case <-s.done:
		}
	})
}
