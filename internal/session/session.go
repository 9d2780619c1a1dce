package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/sirupsen/logrus"
	"github.com/srg/hrmon/internal/clock"
	"github.com/srg/hrmon/internal/device"
	"github.com/srg/hrmon/internal/groutine"
	"github.com/srg/hrmon/internal/heartrate"
	"github.com/srg/hrmon/internal/history"
	"github.com/srg/hrmon/internal/ringchan"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Session binds one heart rate sensor and keeps its recent measurements.
//
// Discover, Bind and FetchBodyLocation block until the transport answers and
// may be run from any goroutine; only one Bind may be outstanding at a time.
// Dispose may be called at any moment and more than once.
type Session struct {
	id        uuid.UUID
	transport device.Transport
	logger    *logrus.Logger
	clock     clock.Clock
	sink      Sink

	mu           sync.RWMutex
	state        State
	devices      *orderedmap.OrderedMap[string, device.DeviceDescriptor]
	service      device.Service
	measurement  device.Characteristic
	start        time.Time
	bodyLocation string

	binding   atomic.Bool
	accepting atomic.Bool // notification handler admits frames

	history *history.Buffer[heartrate.Measurement]
	events  *ringchan.RingChannel[Change]

	inbox mpmc.RichOverlappedRingBuffer[frame]
	wake  chan struct{}
	stop  chan struct{}
	done  <-chan struct{}

	disposeOnce sync.Once
	disposeErr  error

	stats stats
}

// frame is a raw notification waiting for the dispatcher
type frame struct {
	data []byte
	at   time.Time
}

// New creates an Uninitialized session on top of transport and starts its
// dispatcher. The dispatcher runs until Dispose.
func New(transport device.Transport, opts ...Option) (*Session, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport is nil")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.eventBuffer < 1 {
		return nil, fmt.Errorf("event buffer must be > 0, got %d", o.eventBuffer)
	}
	if o.frameBuffer < 1 {
		return nil, fmt.Errorf("frame buffer must be > 0, got %d", o.frameBuffer)
	}

	buf, err := history.New[heartrate.Measurement](o.stackingCount)
	if err != nil {
		return nil, fmt.Errorf("invalid stacking count: %w", err)
	}

	s := &Session{
		id:        uuid.New(),
		transport: transport,
		logger:    o.logger,
		clock:     o.clock,
		sink:      o.sink,
		state:     Uninitialized,
		devices:   orderedmap.New[string, device.DeviceDescriptor](),
		history:   buf,
		events:    ringchan.New[Change](o.eventBuffer),
		inbox:     mpmc.NewOverlappedRingBuffer[frame](o.frameBuffer),
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
	}
	s.done = groutine.GoWithDone(context.Background(), "hr-dispatcher-"+s.id.String()[:8], s.logger, s.dispatch)

	s.log().WithField("stacking_count", o.stackingCount).Debug("Session created")
	return s, nil
}

// ID returns the session identifier used in logs and sink messages.
func (s *Session) ID() string {
	return s.id.String()
}

// Events returns the change stream. It is closed by Dispose; when the reader
// lags, the oldest changes are dropped.
func (s *Session) Events() <-chan Change {
	return s.events.C()
}

// Discover finds devices advertising the Heart Rate service and replaces the
// known device list. On error the previous list is kept.
func (s *Session) Discover(ctx context.Context) ([]device.DeviceDescriptor, error) {
	if s.State() == Disposed {
		return nil, newError(KindInvalidState, nil, "session is disposed")
	}

	s.log().Debug("Discovering heart rate sensors...")
	found, err := s.transport.FindDevices(ctx, heartrate.ServiceUUID)
	if err != nil {
		s.log().WithField("error", err).Error("Device discovery failed")
		return nil, newError(KindDiscoveryFailed, err, "find devices with service %s", heartrate.ServiceUUID)
	}

	devices := orderedmap.New[string, device.DeviceDescriptor]()
	for _, d := range found {
		devices.Set(d.ID, d)
	}

	s.mu.Lock()
	s.devices = devices
	list := s.devicesLocked()
	s.mu.Unlock()

	s.log().WithField("device_count", len(list)).Info("Device discovery completed")
	s.emit(FieldDevices, list)
	return list, nil
}

// Devices returns the result of the last successful Discover, in discovery order.
func (s *Session) Devices() []device.DeviceDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.devicesLocked()
}

func (s *Session) devicesLocked() []device.DeviceDescriptor {
	list := make([]device.DeviceDescriptor, 0, s.devices.Len())
	for pair := s.devices.Oldest(); pair != nil; pair = pair.Next() {
		list = append(list, pair.Value)
	}
	return list
}

// Bind opens the Heart Rate service on dev and enables measurement
// notifications. It is allowed from Uninitialized and, as a retry, from Failed.
// Any failure leaves the session Failed and is returned as an *Error.
func (s *Session) Bind(ctx context.Context, dev device.DeviceDescriptor) error {
	if !s.binding.CompareAndSwap(false, true) {
		return newError(KindBindInProgress, nil, "bind to %s rejected", dev)
	}
	defer s.binding.Store(false)

	s.mu.Lock()
	if !s.state.canBind() {
		st := s.state
		s.mu.Unlock()
		return newError(KindInvalidState, nil, "cannot bind in state %s", st)
	}
	s.state = Binding
	s.mu.Unlock()
	s.emit(FieldState, Binding)

	logger := s.log().WithFields(logrus.Fields{
		"device":  dev.ID,
		"name":    dev.Name,
		"service": heartrate.ServiceUUID,
	})
	logger.Info("Binding heart rate service...")

	svc, err := s.transport.OpenService(ctx, dev.ID, heartrate.ServiceUUID)
	if err != nil || svc == nil {
		return s.fail(logger, newError(KindServiceUnavailable, err, "heart rate service unavailable on %s", dev))
	}

	start := s.clock.Now()

	chars := svc.GetCharacteristics(heartrate.MeasurementUUID)
	if len(chars) == 0 {
		s.closeService(logger, svc)
		notFound := &device.NotFoundError{Resource: "characteristic", UUIDs: []string{heartrate.ServiceUUID, heartrate.MeasurementUUID}}
		return s.fail(logger, newError(KindCharacteristicMissing, notFound, "heart rate measurement on %s", dev))
	}
	char := chars[0]
	if len(chars) > 1 {
		logger.WithField("count", len(chars)).Warn("Device exposes more than one measurement characteristic, using the first")
	}

	s.mu.Lock()
	if s.state == Disposed {
		s.mu.Unlock()
		s.closeService(logger, svc)
		return newError(KindInvalidState, nil, "session disposed during bind")
	}
	s.service = svc
	s.measurement = char
	s.start = start
	s.accepting.Store(true)
	s.mu.Unlock()

	if err := char.Subscribe(s.onNotification); err != nil {
		s.detach(logger)
		return s.fail(logger, newError(KindDeviceUnreachable, err, "register notification handler"))
	}

	// Dispose may have run before the handler was registered
	if s.State() == Disposed {
		if err := char.Unsubscribe(); err != nil {
			logger.WithField("error", err).Debug("Failed to unregister notification handler")
		}
		return newError(KindInvalidState, nil, "session disposed during bind")
	}

	status, err := char.WriteNotifyDescriptor(ctx, true)
	if err != nil || status == device.StatusUnreachable {
		s.detach(logger)
		return s.fail(logger, newError(KindDeviceUnreachable, err, "enable notifications returned %s", status))
	}
	if status != device.StatusSuccess {
		logger.WithField("status", status).Warn("Enable notifications returned a non-success status, continuing")
	}

	if !s.transition(Subscribed) {
		return newError(KindInvalidState, nil, "session disposed during bind")
	}
	logger.WithField("start", start.Format(time.RFC3339Nano)).Info("Heart rate notifications enabled")
	s.emit(FieldIsInitialized, true)
	return nil
}

// FetchBodyLocation reads the Body Sensor Location characteristic and stores
// its label. It does nothing during a pending Bind, without a service, when the
// characteristic is absent, or when the read or decode fails.
func (s *Session) FetchBodyLocation(ctx context.Context) {
	logger := s.log().WithField("char_uuid", heartrate.BodySensorLocationUUID)

	if s.binding.Load() {
		logger.Debug("Bind in progress, skipping body sensor location")
		return
	}

	s.mu.RLock()
	svc := s.service
	s.mu.RUnlock()
	if svc == nil {
		logger.Debug("No service handle, skipping body sensor location")
		return
	}

	chars := svc.GetCharacteristics(heartrate.BodySensorLocationUUID)
	if len(chars) == 0 {
		logger.Debug("Body sensor location not supported by device")
		return
	}

	status, data, err := chars[0].ReadValue(ctx)
	if err != nil || status != device.StatusSuccess {
		logger.WithFields(logrus.Fields{
			"status": status,
			"error":  err,
		}).Debug("Body sensor location read failed")
		return
	}

	label, ok := heartrate.DecodeBodySensorLocation(data)
	if !ok {
		logger.WithField("raw", fmt.Sprintf("% x", data)).Debug("Unknown body sensor location code")
		return
	}

	s.mu.Lock()
	if s.state == Disposed {
		s.mu.Unlock()
		return
	}
	s.bodyLocation = label
	s.mu.Unlock()

	logger.WithField("location", label).Info("Body sensor location updated")
	s.emit(FieldBodySensorLocation, label)
}

// BodySensorLocation returns the last decoded location label.
func (s *Session) BodySensorLocation() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bodyLocation, s.bodyLocation != ""
}

// SetStackingCount changes the history capacity. Lowering it evicts on the next measurement.
func (s *Session) SetStackingCount(n int) error {
	if err := s.history.SetCap(n); err != nil {
		return err
	}
	s.log().WithField("stacking_count", n).Debug("Stacking count changed")
	s.emit(FieldStackingCount, n)
	return nil
}

// StackingCount returns the history capacity.
func (s *Session) StackingCount() int {
	return s.history.Cap()
}

// History returns the measurement buffer. Use Snapshot to read it.
func (s *Session) History() *history.Buffer[heartrate.Measurement] {
	return s.history
}

// Latest returns the most recent measurement.
func (s *Session) Latest() (heartrate.Measurement, bool) {
	return s.history.Last()
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsInitialized reports whether notifications are enabled.
func (s *Session) IsInitialized() bool {
	return s.State() == Subscribed
}

// Dispose stops notification delivery and releases the service handle. No
// measurement is applied and no change is emitted after it returns. Later calls
// return the result of the first.
func (s *Session) Dispose() error {
	s.disposeOnce.Do(func() {
		s.mu.Lock()
		prev := s.state
		s.state = Disposed
		s.accepting.Store(false)
		svc, char := s.service, s.measurement
		s.service, s.measurement = nil, nil
		s.mu.Unlock()

		logger := s.log().WithField("previous_state", prev)

		if char != nil {
			if err := char.Unsubscribe(); err != nil {
				logger.WithField("error", err).Warn("Failed to unregister notification handler")
			}
		}

		close(s.stop)
		<-s.done

		for !s.inbox.IsEmpty() {
			if _, err := s.inbox.Dequeue(); err != nil {
				break
			}
		}

		if svc != nil {
			if err := svc.Close(); err != nil {
				logger.WithField("error", err).Warn("Failed to release service handle")
				s.disposeErr = fmt.Errorf("release service: %w", err)
			}
		}

		s.events.ForceSend(Change{Field: FieldState, Value: Disposed})
		s.events.Close()
		logger.Info("Session disposed")
	})
	return s.disposeErr
}

// transition moves to state to unless the session was disposed meanwhile.
func (s *Session) transition(to State) bool {
	s.mu.Lock()
	if s.state == Disposed {
		s.mu.Unlock()
		return false
	}
	s.state = to
	s.mu.Unlock()

	s.emit(FieldState, to)
	return true
}

func (s *Session) fail(logger *logrus.Entry, err *Error) error {
	logger.WithFields(logrus.Fields{
		"kind":  err.Kind,
		"error": err,
	}).Error("Bind failed")
	s.transition(Failed)
	return err
}

// detach unregisters the handler and releases the installed service after a failed subscribe
func (s *Session) detach(logger *logrus.Entry) {
	s.mu.Lock()
	s.accepting.Store(false)
	svc, char := s.service, s.measurement
	s.service, s.measurement = nil, nil
	s.mu.Unlock()

	if char != nil {
		if err := char.Unsubscribe(); err != nil {
			logger.WithField("error", err).Debug("Failed to unregister notification handler")
		}
	}
	if svc != nil {
		s.closeService(logger, svc)
	}
}

func (s *Session) closeService(logger *logrus.Entry, svc device.Service) {
	if err := svc.Close(); err != nil {
		logger.WithField("error", err).Warn("Failed to release service handle")
	}
}

func (s *Session) emit(field Field, value any) {
	s.events.ForceSend(Change{Field: field, Value: value})
}

func (s *Session) log() *logrus.Entry {
	return s.logger.WithField("session", s.id.String()[:8])
}
