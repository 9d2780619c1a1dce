package goble

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/hrmon/internal/device"
)

// FindDevices scans for ScanTimeout and returns the connectable devices that
// advertise serviceUUID, sorted by address.
func (t *Transport) FindDevices(ctx context.Context, serviceUUID string) ([]device.DeviceDescriptor, error) {
	dev, err := t.bleDevice()
	if err != nil {
		return nil, err
	}

	t.logger.WithFields(logrus.Fields{
		"duration": t.opts.ScanTimeout,
		"service":  serviceUUID,
	}).Info("Starting BLE scan...")

	scanCtx, cancel := context.WithTimeout(ctx, t.opts.ScanTimeout)
	defer cancel()

	found := hashmap.New[string, *scanEntry]()
	err = dev.Scan(scanCtx, true, func(adv ble.Advertisement) {
		t.handleAdvertisement(found, adv, serviceUUID)
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("scan failed: %w", NormalizeError(err))
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	devices := make([]device.DeviceDescriptor, 0, found.Len())
	found.Range(func(_ string, e *scanEntry) bool {
		devices = append(devices, e.descriptor())
		return true
	})
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].ID < devices[j].ID
	})

	t.logger.WithField("device_count", len(devices)).Info("BLE scan completed")
	return devices, nil
}

// scanEntry is a discovered device refreshed in place by later advertisements
type scanEntry struct {
	mu   sync.Mutex
	desc device.DeviceDescriptor
}

func (e *scanEntry) update(adv ble.Advertisement) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if name := adv.LocalName(); name != "" {
		e.desc.Name = name
	}
	e.desc.RSSI = adv.RSSI()
}

func (e *scanEntry) descriptor() device.DeviceDescriptor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.desc
}

// handleAdvertisement adds a new device or refreshes the name and RSSI of a known one
func (t *Transport) handleAdvertisement(found *hashmap.Map[string, *scanEntry], adv ble.Advertisement, serviceUUID string) {
	id := adv.Addr().String()

	if known, ok := found.Get(id); ok {
		known.update(adv)
		return
	}
	if !t.shouldIncludeDevice(adv, serviceUUID) {
		return
	}

	entry := &scanEntry{desc: device.DeviceDescriptor{
		ID:   id,
		Name: adv.LocalName(),
		RSSI: adv.RSSI(),
	}}
	if known, loaded := found.GetOrInsert(id, entry); loaded {
		known.update(adv)
		return
	}

	t.logger.WithFields(logrus.Fields{
		"device":  entry.desc.Name,
		"address": id,
		"rssi":    entry.desc.RSSI,
	}).Info("Discovered new device")
}

// shouldIncludeDevice applies the allow, block and service filters
func (t *Transport) shouldIncludeDevice(adv ble.Advertisement, serviceUUID string) bool {
	addr := adv.Addr().String()

	for _, blocked := range t.opts.BlockList {
		if strings.EqualFold(addr, blocked) {
			return false
		}
	}

	if len(t.opts.AllowList) > 0 {
		allowed := false
		for _, a := range t.opts.AllowList {
			if strings.EqualFold(addr, a) {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	if !adv.Connectable() {
		return false
	}

	if serviceUUID == "" {
		return true
	}
	for _, advUUID := range adv.Services() {
		if device.SameUUID(advUUID.String(), serviceUUID) {
			return true
		}
	}
	return false
}
