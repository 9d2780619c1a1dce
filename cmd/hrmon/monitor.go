package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/hrmon/internal/device"
	"github.com/srg/hrmon/internal/session"
	"github.com/srg/hrmon/internal/sink"
	"github.com/srg/hrmon/pkg/config"
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor [device-address]",
	Short: "Show live heart rate measurements",
	Long: `Connects to a heart rate sensor, enables measurement notifications and shows
the most recent measurements until Ctrl+C is pressed.

Without an address the strongest sensor found during the scan is used.
When --config names a file, changes to stacking_count in it are applied live.

Examples:
  hrmon monitor
  hrmon monitor AA:BB:CC:DD:EE:FF --stacking-count 10
  hrmon monitor --format json --nats-url nats://127.0.0.1:4222`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMonitor,
}

var (
	monitorStackingCount int
	monitorFormat        string
	monitorNATSURL       string
	monitorDuration      time.Duration
)

func init() {
	monitorCmd.Flags().IntVarP(&monitorStackingCount, "stacking-count", "n", 0, "Number of measurements kept in the history (defaults to stacking_count)")
	monitorCmd.Flags().StringVarP(&monitorFormat, "format", "f", "live", "Output format (live, json)")
	monitorCmd.Flags().StringVar(&monitorNATSURL, "nats-url", "", "Publish measurements to this NATS server")
	monitorCmd.Flags().DurationVarP(&monitorDuration, "duration", "d", 0, "Stop after this long (0 runs until Ctrl+C)")
}

type monitorOptions struct {
	address    string
	format     string
	duration   time.Duration
	configPath string
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if monitorFormat != "live" && monitorFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [live json]", monitorFormat)
	}

	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("stacking-count") {
		cfg.StackingCount = monitorStackingCount
	}
	if monitorNATSURL != "" {
		cfg.NATS.URL = monitorNATSURL
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	opts := monitorOptions{
		format:     monitorFormat,
		duration:   monitorDuration,
		configPath: path,
	}
	if len(args) == 1 {
		opts.address = args[0]
	}
	return monitor(ctx, cfg, logger, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// monitor runs one session until ctx is done or the session fails.
func monitor(ctx context.Context, cfg *config.Config, logger *logrus.Logger, opts monitorOptions, out, status io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if opts.duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}

	var extra []session.Option
	if cfg.NATS.URL != "" {
		s, err := sink.Connect(sink.Options{URL: cfg.NATS.URL, Subject: cfg.NATS.Subject, Name: cfg.NATS.Name}, logger)
		if err != nil {
			logger.WithField("error", err).Warn("NATS unavailable, measurements will not be published")
		} else {
			defer func() { _ = s.Close() }()
			extra = append(extra, session.WithSink(s))
		}
	}

	sess, err := newSession(cfg, logger, extra...)
	if err != nil {
		return err
	}

	if opts.configPath != "" {
		err := config.Watch(opts.configPath, logger, func(c *config.Config) {
			if err := sess.SetStackingCount(c.StackingCount); err != nil {
				logger.WithField("error", err).Warn("Ignoring stacking_count change")
			}
		})
		if err != nil {
			logger.WithField("error", err).Warn("Configuration changes will not be applied live")
		}
	}

	progress := NewProgressPrinter(status, "Connecting to heart rate sensor", "Scanning")
	progress.Start()
	dev, err := selectDevice(ctx, sess, opts.address)
	if err == nil {
		progress.SetPhase("Binding")
		err = sess.Bind(ctx, dev)
	}
	progress.Stop()
	if err != nil {
		_ = sess.Dispose()
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return nil
		}
		return err
	}

	r, err := newRenderer(opts.format, out, dev)
	if err != nil {
		_ = sess.Dispose()
		return err
	}

	var failed atomic.Bool
	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		for c := range sess.Events() {
			if st, ok := c.State(); ok && st == session.Failed {
				failed.Store(true)
				cancel()
			}
			if err := r.Render(c); err != nil {
				logger.WithField("error", err).Warn("Failed to render change")
			}
		}
	}()

	sess.FetchBodyLocation(ctx)

	<-ctx.Done()

	disposeErr := sess.Dispose()
	<-rendered

	stats := sess.Stats()
	summary := logrus.Fields{
		"frames_received":    stats.FramesReceived,
		"frames_applied":     stats.FramesApplied,
		"frames_invalid":     stats.FramesInvalid,
		"frames_overwritten": stats.FramesOverwritten,
		"events_emitted":     stats.EventsEmitted,
		"events_dropped":     stats.EventsDropped,
	}
	if last, ok := sess.Latest(); ok {
		summary["last_heart_rate"] = last.HeartRate
	}
	logger.WithFields(summary).Info("Monitor stopped")

	if failed.Load() {
		return ErrSessionFailed
	}
	return disposeErr
}

// selectDevice scans and picks address, or the strongest sensor when address is empty.
func selectDevice(ctx context.Context, sess *session.Session, address string) (device.DeviceDescriptor, error) {
	devices, err := sess.Discover(ctx)
	if err != nil {
		return device.DeviceDescriptor{}, err
	}

	if address == "" {
		if len(devices) == 0 {
			return device.DeviceDescriptor{}, ErrDeviceNotFound
		}
		best := devices[0]
		for _, d := range devices[1:] {
			if d.RSSI > best.RSSI {
				best = d
			}
		}
		return best, nil
	}

	for _, d := range devices {
		if strings.EqualFold(d.ID, address) {
			return d, nil
		}
	}
	return device.DeviceDescriptor{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, address)
}
