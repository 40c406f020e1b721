package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingExtender struct {
	calls atomic.Int32
	err   error
	fired chan struct{}
}

func (c *countingExtender) ExtendHorizons(context.Context) (int, error) {
	c.calls.Add(1)
	if c.fired != nil {
		select {
		case c.fired <- struct{}{}:
		default:
		}
	}
	return 2, c.err
}

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestNew_RejectsBadSpec(t *testing.T) {
	_, err := New(&countingExtender{}, "every night", time.UTC, quiet())
	assert.Error(t, err)
}

func TestRunOnce(t *testing.T) {
	ext := &countingExtender{}
	s, err := New(ext, "0 3 * * *", nil, quiet())
	require.NoError(t, err)

	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.EqualValues(t, 1, ext.calls.Load())

	ext.err = errors.New("store offline")
	_, err = s.RunOnce(context.Background())
	assert.ErrorIs(t, err, ext.err)
}

func TestScheduler_FiresOnSchedule(t *testing.T) {
	ext := &countingExtender{fired: make(chan struct{}, 1)}
	s, err := New(ext, "@every 1s", time.UTC, quiet())
	require.NoError(t, err)

	assert.True(t, s.Next().IsZero(), "not scheduled before Start")
	s.Start()
	assert.False(t, s.Next().IsZero())

	select {
	case <-ext.fired:
	case <-time.After(5 * time.Second):
		t.Fatal("job never fired")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.GreaterOrEqual(t, ext.calls.Load(), int32(1))
}
