package sink

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/hrmon/internal/heartrate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedMsg struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	msgs []capturedMsg
	err  error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, capturedMsg{subject: subject, data: data})
	return nil
}

func TestPublish(t *testing.T) {
	pub := &fakePublisher{}
	s := New(pub, "hrmon.measurements", logrus.New())

	m := heartrate.Measurement{HeartRate: 72, ExpendedEnergy: 5}.WithTimestamp(1749 * time.Millisecond)
	require.NoError(t, s.Publish("4a7c", m))

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "hrmon.measurements.4a7c", pub.msgs[0].subject)

	var got Message
	require.NoError(t, json.Unmarshal(pub.msgs[0].data, &got))
	assert.Equal(t, "4a7c", got.SessionID)
	assert.Equal(t, m, got.Measurement)
	assert.Contains(t, string(pub.msgs[0].data), `"offset_seconds":1.7`)
}

func TestPublish_Error(t *testing.T) {
	pub := &fakePublisher{err: errors.New("nats: connection closed")}
	s := New(pub, "hr", nil)

	err := s.Publish("id", heartrate.Measurement{HeartRate: 60})
	assert.ErrorIs(t, err, pub.err)
	assert.Contains(t, err.Error(), "hr.id")
}

func TestConnect_RequiresURL(t *testing.T) {
	_, err := Connect(Options{}, nil)
	assert.EqualError(t, err, "nats url is empty")
}

func TestClose_WithoutConnection(t *testing.T) {
	assert.NoError(t, New(&fakePublisher{}, "hr", nil).Close())
}
