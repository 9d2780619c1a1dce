package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/srg/hrmon/internal/device"
	"github.com/srg/hrmon/internal/heartrate"
	"github.com/srg/hrmon/internal/session"
	"golang.org/x/term"
)

const clearScreenSequence = "\033[2J\033[H"

// renderer consumes session changes for display.
type renderer interface {
	Render(c session.Change) error
}

func newRenderer(format string, out io.Writer, dev device.DeviceDescriptor) (renderer, error) {
	switch format {
	case "live":
		return newLiveRenderer(out, dev, isTerminal(out)), nil
	case "json":
		return &jsonRenderer{enc: json.NewEncoder(out)}, nil
	default:
		return nil, fmt.Errorf("invalid format '%s': must be one of [live json]", format)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// liveRenderer redraws a dashboard on terminals and prints one line per
// measurement otherwise.
type liveRenderer struct {
	out    io.Writer
	tty    bool
	device device.DeviceDescriptor

	state    session.State
	location string
	points   []heartrate.Measurement

	low, mid, high, dim *color.Color
}

func newLiveRenderer(out io.Writer, dev device.DeviceDescriptor, tty bool) *liveRenderer {
	r := &liveRenderer{
		out:    out,
		tty:    tty,
		device: dev,
		low:    color.New(color.FgGreen, color.Bold),
		mid:    color.New(color.FgYellow, color.Bold),
		high:   color.New(color.FgRed, color.Bold),
		dim:    color.New(color.Faint),
	}
	for _, c := range []*color.Color{r.low, r.mid, r.high, r.dim} {
		if tty {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return r
}

func (r *liveRenderer) zone(bpm uint16) *color.Color {
	switch {
	case bpm < 100:
		return r.low
	case bpm < 140:
		return r.mid
	default:
		return r.high
	}
}

func (r *liveRenderer) formatMeasurement(m heartrate.Measurement) string {
	bpm := r.zone(m.HeartRate).Sprintf("%3d bpm", m.HeartRate)
	line := fmt.Sprintf("+%5.1fs  %s", m.OffsetSeconds(), bpm)
	if m.ExpendedEnergy > 0 {
		line += r.dim.Sprintf("  %d kJ", m.ExpendedEnergy)
	}
	return line
}

func (r *liveRenderer) Render(c session.Change) error {
	switch c.Field {
	case session.FieldState:
		st, _ := c.State()
		r.state = st
		if !r.tty {
			_, err := fmt.Fprintf(r.out, "state: %s\n", st)
			return err
		}
	case session.FieldBodySensorLocation:
		r.location, _ = c.Value.(string)
		if !r.tty {
			_, err := fmt.Fprintf(r.out, "body sensor location: %s\n", r.location)
			return err
		}
	case session.FieldDataPoints:
		points, _ := c.DataPoints()
		r.points = points
		if !r.tty && len(points) > 0 {
			_, err := fmt.Fprintln(r.out, r.formatMeasurement(points[len(points)-1]))
			return err
		}
	default:
		return nil
	}

	if r.tty {
		_, err := io.WriteString(r.out, r.view())
		return err
	}
	return nil
}

func (r *liveRenderer) view() string {
	var b strings.Builder
	b.WriteString(clearScreenSequence)
	fmt.Fprintf(&b, "Heart rate monitor  %s  [%s]\n", r.device, r.state)
	if r.location != "" {
		fmt.Fprintf(&b, "Body sensor location: %s\n", r.location)
	}
	b.WriteString("\n")

	if len(r.points) == 0 {
		b.WriteString(r.dim.Sprint("Waiting for measurements...") + "\n")
	} else {
		last := r.points[len(r.points)-1]
		fmt.Fprintf(&b, "  %s\n\n", r.zone(last.HeartRate).Sprintf("%d bpm", last.HeartRate))
		fmt.Fprintf(&b, "History (%d):\n", len(r.points))
		for i := len(r.points) - 1; i >= 0; i-- {
			b.WriteString("  " + r.formatMeasurement(r.points[i]) + "\n")
		}
	}

	b.WriteString("\n" + r.dim.Sprint("Press Ctrl+C to stop") + "\n")
	return b.String()
}

// jsonRenderer writes every change as one JSON object per line.
type jsonRenderer struct {
	enc *json.Encoder
}

type changeJSON struct {
	Field session.Field `json:"field"`
	Value any           `json:"value"`
}

func (r *jsonRenderer) Render(c session.Change) error {
	v := c.Value
	if st, ok := c.State(); ok {
		v = st.String()
	}
	if devices, ok := c.Devices(); ok {
		list := make([]deviceJSON, 0, len(devices))
		for _, d := range devices {
			list = append(list, deviceJSON{Address: d.ID, Name: d.Name, RSSI: d.RSSI})
		}
		v = list
	}
	return r.enc.Encode(changeJSON{Field: c.Field, Value: v})
}
