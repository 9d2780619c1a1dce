//go:build test

package testutils

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
	Hook   *test.Hook
}

// NewTestHelper creates a test helper with a debug logger whose entries are also captured by Hook.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	hook := test.NewLocal(logger)
	return &TestHelper{
		T:      t,
		Logger: logger,
		Hook:   hook,
	}
}

// Context returns a context cancelled after timeout or when the test ends.
func (h *TestHelper) Context(timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	h.T.Cleanup(cancel)
	return ctx
}

// HasLogEntry reports whether an entry with the given level and message was logged.
func (h *TestHelper) HasLogEntry(level logrus.Level, msg string) bool {
	for _, e := range h.Hook.AllEntries() {
		if e.Level == level && e.Message == msg {
			return true
		}
	}
	return false
}

// LastLogEntry returns the most recent entry with the given level and message, or nil.
func (h *TestHelper) LastLogEntry(level logrus.Level, msg string) *logrus.Entry {
	entries := h.Hook.AllEntries()
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Level == level && entries[i].Message == msg {
			return entries[i]
		}
	}
	return nil
}
