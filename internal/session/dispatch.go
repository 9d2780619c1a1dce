package session

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/hrmon/internal/heartrate"
)

// Stats counts frames on their way from the transport to the history.
type Stats struct {
	FramesReceived    uint64 // notifications admitted by the handler
	FramesApplied     uint64 // measurements pushed into the history
	FramesInvalid     uint64 // notifications dropped by the decoder
	FramesOverwritten uint64 // notifications lost to inbox overflow
	EventsEmitted     uint64
	EventsDropped     uint64 // changes lost because Events() was not drained
}

type stats struct {
	received    atomic.Uint64
	applied     atomic.Uint64
	invalid     atomic.Uint64
	overwritten atomic.Uint64
}

// Stats returns a snapshot of the frame counters.
func (s *Session) Stats() Stats {
	events := s.events.GetMetrics()
	return Stats{
		FramesReceived:    s.stats.received.Load(),
		FramesApplied:     s.stats.applied.Load(),
		FramesInvalid:     s.stats.invalid.Load(),
		FramesOverwritten: s.stats.overwritten.Load(),
		EventsEmitted:     uint64(events.Written),
		EventsDropped:     uint64(events.Overwritten),
	}
}

// offsets keeps the timestamps of one bind from going backwards. A new start
// begins a new time base.
type offsets struct {
	start time.Time
	last  time.Duration
}

func (o *offsets) stamp(start, at time.Time) time.Duration {
	if !start.Equal(o.start) {
		o.start, o.last = start, 0
	}
	ts := at.Sub(start)
	if ts < o.last {
		ts = o.last
	}
	o.last = ts
	return ts
}

// onNotification runs on a transport goroutine. It copies the payload into the
// inbox and never blocks; when the inbox is full the oldest frame is overwritten.
func (s *Session) onNotification(data []byte, eventTime time.Time) {
	if !s.accepting.Load() {
		return
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	overwrites, err := s.inbox.EnqueueM(frame{data: buf, at: eventTime})
	if err != nil {
		s.log().WithField("error", err).Warn("Failed to queue heart rate notification")
		return
	}
	s.stats.received.Add(1)
	if overwrites > 0 {
		s.stats.overwritten.Add(uint64(overwrites))
		s.log().WithField("overwritten", overwrites).Warn("Notification inbox full, oldest frames dropped")
	}

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// dispatch is the single writer of the history. It exits when stop is closed.
func (s *Session) dispatch(ctx context.Context) {
	var clamp offsets
	for {
		select {
		case <-s.stop:
			return
		case <-s.wake:
		}

		for !s.inbox.IsEmpty() {
			select {
			case <-s.stop:
				return
			default:
			}

			f, err := s.inbox.Dequeue()
			if err != nil {
				break
			}
			s.apply(f, &clamp)
		}
	}
}

// apply decodes one frame, stamps it relative to the bind start and pushes it.
func (s *Session) apply(f frame, clamp *offsets) {
	m, err := heartrate.DecodeMeasurement(f.data)
	if err != nil {
		s.stats.invalid.Add(1)
		s.log().WithFields(logrus.Fields{
			"frame": fmt.Sprintf("% x", f.data),
			"error": &Error{Kind: KindInvalidFrame, Msg: "frame dropped", Err: err},
		}).Warn("Dropping invalid heart rate frame")
		return
	}

	s.mu.RLock()
	start := s.start
	s.mu.RUnlock()

	m = m.WithTimestamp(clamp.stamp(start, f.at))

	if evicted := s.history.Push(m); evicted > 0 {
		s.log().WithField("evicted", evicted).Debug("History trimmed")
	}
	s.stats.applied.Add(1)

	if s.sink != nil {
		if err := s.sink.Publish(s.id.String(), m); err != nil {
			s.log().WithField("error", err).Warn("Failed to publish measurement")
		}
	}

	s.emit(FieldDataPoints, s.history.Snapshot())
}
