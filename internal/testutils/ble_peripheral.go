//go:build test

package testutils

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/go-ble/ble"
	"github.com/srg/hrmon/internal/device"
)

// MockAdvertisement is a static ble.Advertisement. Methods the transport does
// not read are left to the embedded nil interface.
type MockAdvertisement struct {
	ble.Advertisement

	name        string
	addr        ble.Addr
	rssi        int
	services    []ble.UUID
	connectable bool
}

func (a *MockAdvertisement) LocalName() string { return a.name }
func (a *MockAdvertisement) Addr() ble.Addr { return a.addr }
func (a *MockAdvertisement) RSSI() int { return a.rssi }
func (a *MockAdvertisement) Services() []ble.UUID { return a.services }
func (a *MockAdvertisement) Connectable() bool { return a.connectable }

// AdvertisementBuilder builds mocked BLE advertisements for testing.
type AdvertisementBuilder struct {
	adv MockAdvertisement
}

// NewAdvertisementBuilder starts a connectable advertisement.
func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{adv: MockAdvertisement{connectable: true}}
}

func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.adv.name = name
	return b
}

func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.adv.addr = ble.NewAddr(addr)
	return b
}

func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.adv.rssi = rssi
	return b
}

// WithServices adds service UUIDs in short ("180D") or full form.
func (b *AdvertisementBuilder) WithServices(uuids ...string) *AdvertisementBuilder {
	for _, u := range uuids {
		b.adv.services = append(b.adv.services, ble.MustParse(u))
	}
	return b
}

func (b *AdvertisementBuilder) WithConnectable(c bool) *AdvertisementBuilder {
	b.adv.connectable = c
	return b
}

func (b *AdvertisementBuilder) Build() ble.Advertisement {
	adv := b.adv
	return &adv
}

// CharacteristicProfile describes a characteristic in a peripheral JSON profile.
type CharacteristicProfile struct {
	UUID       string `json:"uuid"`
	Properties string `json:"properties"` // comma separated: read,write,notify,indicate
	Value      []int  `json:"value"`
}

// ServiceProfile describes a service in a peripheral JSON profile.
type ServiceProfile struct {
	UUID            string                  `json:"uuid"`
	Characteristics []CharacteristicProfile `json:"characteristics"`
}

// PeripheralDeviceBuilder builds a MockBLEDevice from a JSON profile.
//
//	NewPeripheralDeviceBuilder(t).FromJSON(`{"services":[
//	    {"uuid":"180D","characteristics":[{"uuid":"2A37","properties":"notify"}]}]}`)
type PeripheralDeviceBuilder struct {
	t              *testing.T
	services       []ServiceProfile
	advertisements []ble.Advertisement
	errs           MockErrors
}

// MockErrors injects failures into a MockBLEDevice and its clients.
type MockErrors struct {
	Scan      error
	Dial      error
	Discover  error
	Read      error
	Subscribe error
}

func NewPeripheralDeviceBuilder(t *testing.T) *PeripheralDeviceBuilder {
	return &PeripheralDeviceBuilder{t: t}
}

// FromJSON replaces the services with those of the JSON profile.
// Fails the test on invalid JSON.
func (b *PeripheralDeviceBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *PeripheralDeviceBuilder {
	var profile struct {
		Services []ServiceProfile `json:"services"`
	}
	if err := json.Unmarshal([]byte(fmt.Sprintf(jsonStrFmt, args...)), &profile); err != nil {
		b.t.Fatalf("FromJSON: invalid peripheral profile: %v", err)
	}
	b.services = profile.Services
	return b
}

func (b *PeripheralDeviceBuilder) WithAdvertisements(advs ...ble.Advertisement) *PeripheralDeviceBuilder {
	b.advertisements = append(b.advertisements, advs...)
	return b
}

func (b *PeripheralDeviceBuilder) WithErrors(errs MockErrors) *PeripheralDeviceBuilder {
	b.errs = errs
	return b
}

// Build creates the device. Every Dial returns a new client over the same profile.
func (b *PeripheralDeviceBuilder) Build() *MockBLEDevice {
	d := &MockBLEDevice{
		advertisements: b.advertisements,
		errs:           b.errs,
		profile:        &ble.Profile{},
		values:         make(map[*ble.Characteristic][]byte),
	}

	for _, sp := range b.services {
		svc := &ble.Service{UUID: ble.MustParse(sp.UUID)}
		for _, cp := range sp.Characteristics {
			c := &ble.Characteristic{
				UUID:     ble.MustParse(cp.UUID),
				Property: parseProperties(cp.Properties),
			}
			if c.Property&(ble.CharNotify|ble.CharIndicate) != 0 {
				c.CCCD = &ble.Descriptor{UUID: ble.UUID16(0x2902)}
				c.Descriptors = append(c.Descriptors, c.CCCD)
			}
			value := make([]byte, len(cp.Value))
			for i, v := range cp.Value {
				value[i] = byte(v)
			}
			d.values[c] = value
			svc.Characteristics = append(svc.Characteristics, c)
		}
		d.profile.Services = append(d.profile.Services, svc)
	}
	return d
}

func parseProperties(props string) ble.Property {
	var p ble.Property
	for _, name := range strings.Split(props, ",") {
		switch strings.TrimSpace(strings.ToLower(name)) {
		case "read":
			p |= ble.CharRead
		case "write":
			p |= ble.CharWrite
		case "notify":
			p |= ble.CharNotify
		case "indicate":
			p |= ble.CharIndicate
		}
	}
	return p
}

// MockBLEDevice is a ble.Device that replays advertisements and dials MockBLEClients.
type MockBLEDevice struct {
	ble.Device

	advertisements []ble.Advertisement
	profile        *ble.Profile
	values         map[*ble.Characteristic][]byte
	errs           MockErrors

	mu      sync.Mutex
	clients []*MockBLEClient
}

// Scan delivers every advertisement, then blocks until ctx is done like a real scan.
func (d *MockBLEDevice) Scan(ctx context.Context, _ bool, h ble.AdvHandler) error {
	if d.errs.Scan != nil {
		return d.errs.Scan
	}
	for _, adv := range d.advertisements {
		h(adv)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (d *MockBLEDevice) Dial(_ context.Context, addr ble.Addr) (ble.Client, error) {
	if d.errs.Dial != nil {
		return nil, d.errs.Dial
	}
	c := &MockBLEClient{
		dev:          d,
		addr:         addr,
		handlers:     make(map[*ble.Characteristic]ble.NotificationHandler),
		disconnected: make(chan struct{}),
	}
	d.mu.Lock()
	d.clients = append(d.clients, c)
	d.mu.Unlock()
	return c, nil
}

// LastClient returns the most recently dialed client, or nil.
func (d *MockBLEDevice) LastClient() *MockBLEClient {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.clients) == 0 {
		return nil
	}
	return d.clients[len(d.clients)-1]
}

// MockBLEClient is a connected ble.Client over the device profile.
type MockBLEClient struct {
	ble.Client

	dev  *MockBLEDevice
	addr ble.Addr

	mu           sync.Mutex
	handlers     map[*ble.Characteristic]ble.NotificationHandler
	cancelCalls  int
	disconnected chan struct{}
	closeOnce    sync.Once
}

func (c *MockBLEClient) Addr() ble.Addr {
	return c.addr
}

func (c *MockBLEClient) DiscoverProfile(bool) (*ble.Profile, error) {
	if c.dev.errs.Discover != nil {
		return nil, c.dev.errs.Discover
	}
	return c.dev.profile, nil
}

func (c *MockBLEClient) ReadCharacteristic(char *ble.Characteristic) ([]byte, error) {
	if c.dev.errs.Read != nil {
		return nil, c.dev.errs.Read
	}
	v := c.dev.values[char]
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (c *MockBLEClient) Subscribe(char *ble.Characteristic, _ bool, h ble.NotificationHandler) error {
	if c.dev.errs.Subscribe != nil {
		return c.dev.errs.Subscribe
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[char] = h
	return nil
}

func (c *MockBLEClient) Unsubscribe(char *ble.Characteristic, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, char)
	return nil
}

func (c *MockBLEClient) CancelConnection() error {
	c.mu.Lock()
	c.cancelCalls++
	c.mu.Unlock()
	c.Disconnect()
	return nil
}

func (c *MockBLEClient) Disconnected() <-chan struct{} {
	return c.disconnected
}

// Disconnect simulates the peripheral dropping the link.
func (c *MockBLEClient) Disconnect() {
	c.closeOnce.Do(func() { close(c.disconnected) })
}

// CancelCalls returns how many times CancelConnection was called.
func (c *MockBLEClient) CancelCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelCalls
}

// IsSubscribed reports whether notifications are enabled for charUUID.
func (c *MockBLEClient) IsSubscribed(charUUID string) bool {
	return c.handlerFor(charUUID) != nil
}

// Notify fires a notification for charUUID. Returns false when nothing is subscribed.
func (c *MockBLEClient) Notify(charUUID string, data []byte) bool {
	h := c.handlerFor(charUUID)
	if h == nil {
		return false
	}
	h(data)
	return true
}

func (c *MockBLEClient) handlerFor(charUUID string) ble.NotificationHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	for char, h := range c.handlers {
		if device.SameUUID(char.UUID.String(), charUUID) {
			return h
		}
	}
	return nil
}
