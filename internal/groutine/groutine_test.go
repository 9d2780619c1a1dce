package groutine

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGo_NamesContext(t *testing.T) {
	names := make(chan string, 1)
	Go(nil, "worker-42", func(ctx context.Context) { //nolint:staticcheck // nil parent is supported
		names <- GetName(ctx)
	})

	select {
	case name := <-names:
		assert.Equal(t, "worker-42", name)
	case <-time.After(time.Second):
		t.Fatal("goroutine did not run")
	}
}

func TestGoWithDone_RecoversPanic(t *testing.T) {
	logger, hook := test.NewNullLogger()

	done := GoWithDone(context.Background(), "panicky", logger, func(context.Context) {
		panic("boom")
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("done was not closed")
	}

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "panicky", entry.Data["goroutine"])
}

func TestGetName_Empty(t *testing.T) {
	assert.Empty(t, GetName(context.Background()))
	assert.Empty(t, GetName(nil)) //nolint:staticcheck // nil context is handled
}
