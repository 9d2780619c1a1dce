package main

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/hrmon/internal/device"
	goble "github.com/srg/hrmon/internal/device/go-ble"
	"github.com/srg/hrmon/internal/session"
	"github.com/srg/hrmon/pkg/config"
)

// newTransport builds the BLE transport from the configuration.
func newTransport(cfg *config.Config, logger *logrus.Logger) device.Transport {
	return goble.NewTransport(logger, &goble.Options{
		ScanTimeout:    cfg.ScanTimeout,
		ConnectTimeout: cfg.ConnectTimeout,
		ReadTimeout:    cfg.ReadTimeout,
	})
}

// newSession creates a session configured from cfg. Extra options win.
func newSession(cfg *config.Config, logger *logrus.Logger, extra ...session.Option) (*session.Session, error) {
	opts := []session.Option{
		session.WithLogger(logger),
		session.WithStackingCount(cfg.StackingCount),
		session.WithEventBuffer(cfg.EventBuffer),
		session.WithFrameBuffer(cfg.FrameBuffer),
	}
	return session.New(newTransport(cfg, logger), append(opts, extra...)...)
}
