package goble

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/hrmon/internal/bledb"
	"github.com/srg/hrmon/internal/device"
)

// BLECharacteristic adapts a discovered ble.Characteristic to device.Characteristic
type BLECharacteristic struct {
	uuid        string
	knownName   string
	char        *ble.Characteristic
	client      gattClient
	readTimeout time.Duration
	logger      *logrus.Logger

	handler   atomic.Pointer[device.NotificationHandler]
	notifying atomic.Bool
	linkLost  atomic.Bool
}

var _ device.Characteristic = (*BLECharacteristic)(nil)

func newCharacteristic(c *ble.Characteristic, client gattClient, readTimeout time.Duration, logger *logrus.Logger) *BLECharacteristic {
	rawUUID := c.UUID.String()
	return &BLECharacteristic{
		uuid:        device.NormalizeUUID(rawUUID),
		knownName:   bledb.LookupCharacteristic(rawUUID),
		char:        c,
		client:      client,
		readTimeout: readTimeout,
		logger:      logger,
	}
}

func (c *BLECharacteristic) UUID() string {
	return c.uuid
}

// ReadValue reads the characteristic, giving up after the read timeout or when ctx is done
func (c *BLECharacteristic) ReadValue(ctx context.Context) (device.CommStatus, []byte, error) {
	if c.char.Property&ble.CharRead == 0 {
		return device.StatusProtocolError, nil, fmt.Errorf("%w: characteristic %s is not readable", device.ErrUnsupported, c.uuid)
	}
	if c.linkLost.Load() {
		return device.StatusUnreachable, nil, device.ErrNotConnected
	}

	var data []byte
	err := c.roundTrip(ctx, "read", func() error {
		var err error
		data, err = c.client.ReadCharacteristic(c.char)
		return err
	})
	if err != nil {
		status, err := statusOf(err)
		return status, nil, fmt.Errorf("failed to read characteristic %s: %w", c.uuid, err)
	}
	return device.StatusSuccess, data, nil
}

// WriteNotifyDescriptor enables or disables notifications on the peripheral.
// Indications are used when the characteristic does not support notify.
func (c *BLECharacteristic) WriteNotifyDescriptor(ctx context.Context, enable bool) (device.CommStatus, error) {
	if c.char.Property&(ble.CharNotify|ble.CharIndicate) == 0 {
		return device.StatusProtocolError, fmt.Errorf("%w: characteristic %s does not support notifications", device.ErrUnsupported, c.uuid)
	}
	if c.linkLost.Load() {
		return device.StatusUnreachable, device.ErrNotConnected
	}

	ind := c.char.Property&ble.CharNotify == 0
	op := "unsubscribe"
	if enable {
		op = "subscribe"
	}
	err := c.roundTrip(ctx, op, func() error {
		if enable {
			return c.client.Subscribe(c.char, ind, c.deliver)
		}
		return c.client.Unsubscribe(c.char, ind)
	})
	if err != nil {
		status, err := statusOf(err)
		return status, fmt.Errorf("failed to %s characteristic %s: %w", op, c.uuid, err)
	}

	c.notifying.Store(enable)
	fields := logrus.Fields{
		"char_uuid": c.uuid,
		"char_name": c.knownName,
		"enabled":   enable,
		"indicate":  ind,
	}
	if c.char.CCCD != nil {
		fields["descriptor"] = bledb.LookupDescriptor(c.char.CCCD.UUID.String())
	}
	c.logger.WithFields(fields).Debug("Notification descriptor written")
	return device.StatusSuccess, nil
}

// Subscribe registers the handler that receives notifications
func (c *BLECharacteristic) Subscribe(h device.NotificationHandler) error {
	if h == nil {
		return fmt.Errorf("notification handler for %s is nil", c.uuid)
	}
	c.handler.Store(&h)
	return nil
}

// Unsubscribe removes the handler. Notifications that arrive afterwards are dropped.
func (c *BLECharacteristic) Unsubscribe() error {
	c.handler.Store(nil)
	return nil
}

// deliver is the go-ble notification callback
func (c *BLECharacteristic) deliver(data []byte) {
	h := c.handler.Load()
	if h == nil {
		return
	}
	(*h)(data, time.Now())
}

// detach drops the handler and, while the link is up, turns notifications off
func (c *BLECharacteristic) detach() {
	c.handler.Store(nil)
	if !c.notifying.Load() || c.linkLost.Load() {
		return
	}
	ind := c.char.Property&ble.CharNotify == 0
	if err := c.client.Unsubscribe(c.char, ind); err != nil {
		c.logger.WithFields(logrus.Fields{
			"char_uuid": c.uuid,
			"error":     err,
		}).Debug("Failed to disable notifications on close")
	}
	c.notifying.Store(false)
}

// roundTrip runs fn bounded by ctx and the read timeout. go-ble calls block
// without a context, so fn keeps running in the background after a timeout.
func (c *BLECharacteristic) roundTrip(ctx context.Context, op string, fn func() error) error {
	resultCh := make(chan error, 1)
	go func() {
		resultCh <- fn()
	}()

	select {
	case err := <-resultCh:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%s %s: %w", op, c.uuid, ctx.Err())
	case <-time.After(c.readTimeout):
		return fmt.Errorf("%w: %s %s after %v", device.ErrTimeout, op, c.uuid, c.readTimeout)
	}
}
