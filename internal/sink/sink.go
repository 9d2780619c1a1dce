// Package sink publishes applied heart rate measurements to NATS.
package sink

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	"github.com/srg/hrmon/internal/heartrate"
)

// Options configures the NATS connection
type Options struct {
	URL           string
	Subject       string        `default:"hrmon.measurements"`
	Name          string        `default:"hrmon"`
	ReconnectWait time.Duration `default:"2s"`
	MaxReconnects int           `default:"60"`
}

// Publisher is the part of *nats.Conn the sink needs
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Message is the JSON payload published for every measurement
type Message struct {
	SessionID   string                `json:"session_id"`
	Measurement heartrate.Measurement `json:"measurement"`
}

// NATSSink publishes measurements on <Subject>.<session id>.
type NATSSink struct {
	pub     Publisher
	conn    *nats.Conn
	subject string
	logger  *logrus.Logger
}

// Connect dials the NATS server at opts.URL.
func Connect(opts Options, logger *logrus.Logger) (*NATSSink, error) {
	if logger == nil {
		logger = logrus.New()
	}
	defaults.SetDefaults(&opts)
	if opts.URL == "" {
		return nil, fmt.Errorf("nats url is empty")
	}

	logger.WithFields(logrus.Fields{
		"url":     opts.URL,
		"subject": opts.Subject,
	}).Info("Connecting to NATS...")

	nc, err := nats.Connect(opts.URL,
		nats.Name(opts.Name),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.MaxReconnects(opts.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.WithField("error", err).Warn("Disconnected from NATS")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("Reconnected to NATS")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", opts.URL, err)
	}

	s := New(nc, opts.Subject, logger)
	s.conn = nc
	return s, nil
}

// New creates a sink over an existing publisher.
func New(pub Publisher, subject string, logger *logrus.Logger) *NATSSink {
	if logger == nil {
		logger = logrus.New()
	}
	return &NATSSink{pub: pub, subject: subject, logger: logger}
}

// Subject returns the subject measurements of sessionID are published on.
func (s *NATSSink) Subject(sessionID string) string {
	return s.subject + "." + sessionID
}

// Publish sends m as a Message. The NATS client buffers, so this does not wait for the server.
func (s *NATSSink) Publish(sessionID string, m heartrate.Measurement) error {
	data, err := json.Marshal(Message{SessionID: sessionID, Measurement: m})
	if err != nil {
		return fmt.Errorf("failed to encode measurement: %w", err)
	}

	subject := s.Subject(sessionID)
	if err := s.pub.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	s.logger.WithFields(logrus.Fields{
		"subject":    subject,
		"heart_rate": m.HeartRate,
	}).Debug("Measurement published")
	return nil
}

// Close flushes pending messages and closes the connection opened by Connect.
func (s *NATSSink) Close() error {
	if s.conn == nil {
		return nil
	}
	if err := s.conn.Drain(); err != nil {
		s.conn.Close()
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	return nil
}
