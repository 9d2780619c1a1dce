package session

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/hrmon/internal/clock"
	"github.com/srg/hrmon/internal/heartrate"
	"github.com/srg/hrmon/internal/history"
)

const (
	// DefaultEventBuffer is how many changes Events() holds before the oldest is dropped
	DefaultEventBuffer = 64

	// DefaultFrameBuffer is how many raw notifications wait for the dispatcher
	// before the oldest is overwritten
	DefaultFrameBuffer = 256
)

// Sink receives every measurement applied to the history.
type Sink interface {
	Publish(sessionID string, m heartrate.Measurement) error
}

type options struct {
	logger        *logrus.Logger
	clock         clock.Clock
	stackingCount int
	eventBuffer   int
	frameBuffer   uint32
	sink          Sink
}

func defaultOptions() options {
	return options{
		logger:        logrus.StandardLogger(),
		clock:         clock.Real(),
		stackingCount: history.DefaultCapacity,
		eventBuffer:   DefaultEventBuffer,
		frameBuffer:   DefaultFrameBuffer,
	}
}

// Option configures a Session.
type Option func(*options)

func WithLogger(logger *logrus.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock sets the clock used for the session start time.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithStackingCount sets the initial history capacity.
func WithStackingCount(n int) Option {
	return func(o *options) { o.stackingCount = n }
}

func WithEventBuffer(n int) Option {
	return func(o *options) { o.eventBuffer = n }
}

func WithFrameBuffer(n uint32) Option {
	return func(o *options) { o.frameBuffer = n }
}

// WithSink forwards every applied measurement to sink.
func WithSink(sink Sink) Option {
	return func(o *options) { o.sink = sink }
}
