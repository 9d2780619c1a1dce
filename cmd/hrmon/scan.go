package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/hrmon/internal/device"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for heart rate sensors",
	Long: `Scan for Bluetooth Low Energy devices advertising the Heart Rate service
and list their names, addresses and signal strength.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanFormat   string
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 0, "Scan duration (defaults to scan_timeout from the configuration)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
}

func runScan(cmd *cobra.Command, _ []string) error {
	if scanFormat != "table" && scanFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", scanFormat)
	}

	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if scanDuration > 0 {
		cfg.ScanTimeout = scanDuration
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
			fmt.Fprintln(os.Stderr, "\nCtrl+C pressed, cancelling scan...")
			cancel()
		case <-ctx.Done():
		}
	}()

	sess, err := newSession(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Dispose() }()

	progress := NewCountdownProgressPrinter(os.Stderr, "Scanning for heart rate sensors", "Scanning", cfg.ScanTimeout)
	progress.Start()
	devices, err := sess.Discover(ctx)
	progress.Stop()
	if err != nil {
		return err
	}

	if scanFormat == "json" {
		return displayDevicesJSON(cmd.OutOrStdout(), devices)
	}
	return displayDevicesTable(cmd.OutOrStdout(), devices)
}

type deviceJSON struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	RSSI    int    `json:"rssi"`
}

func displayDevicesTable(out io.Writer, devices []device.DeviceDescriptor) error {
	if len(devices) == 0 {
		fmt.Fprintln(out, "No heart rate sensors found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI")
	fmt.Fprintln(w, strings.Repeat("-", 50))
	for _, d := range devices {
		name := d.Name
		if name == "" {
			name = "(unknown)"
		}
		if len(name) > 20 {
			name = name[:17] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%d dBm\n", name, d.ID, d.RSSI)
	}
	return w.Flush()
}

func displayDevicesJSON(out io.Writer, devices []device.DeviceDescriptor) error {
	list := make([]deviceJSON, 0, len(devices))
	for _, d := range devices {
		list = append(list, deviceJSON{Address: d.ID, Name: d.Name, RSSI: d.RSSI})
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(list)
}
