package irq

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/fifostream/internal/errors"
	"github.com/tphakala/fifostream/internal/testutil"
)

// fakeLine delivers one interrupt per value sent on fire
type fakeLine struct {
	fire    chan struct{}
	rearms  atomic.Int32
	waitErr error
}

func newFakeLine() *fakeLine {
	return &fakeLine{fire: make(chan struct{})}
}

func (l *fakeLine) Wait(ctx context.Context) error {
	if l.waitErr != nil {
		return l.waitErr
	}
	select {
	case <-l.fire:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *fakeLine) Rearm() error {
	l.rearms.Add(1)
	return nil
}

func TestDispatcherHardwareInterrupts(t *testing.T) {
	t.Parallel()

	line := newFakeLine()
	var handled atomic.Int32
	d := NewDispatcher(line, HandlerFunc(func() { handled.Add(1) }))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Serve(ctx) }()

	for range 3 {
		line.fire <- struct{}{}
	}
	require.Eventually(t, func() bool { return handled.Load() == 3 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return line.rearms.Load() == 3 }, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, testutil.Receive(t, done, testutil.DefaultTestTimeout, "dispatcher did not stop"))
	assert.Equal(t, uint64(3), d.Served())
	assert.Zero(t, d.SoftServed())
}

func TestDispatcherSoftInterruptsCoalesce(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	var handled atomic.Int32
	d := NewDispatcher(nil, HandlerFunc(func() {
		if handled.Add(1) == 1 {
			<-release
		}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Serve(ctx) }()

	d.Raise()
	require.Eventually(t, func() bool { return handled.Load() == 1 }, time.Second, time.Millisecond)

	// handler busy: these collapse into a single pending request
	d.Raise()
	d.Raise()
	d.Raise()
	close(release)

	require.Eventually(t, func() bool { return handled.Load() == 2 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(2), handled.Load())

	cancel()
	require.NoError(t, testutil.Receive(t, done, testutil.DefaultTestTimeout, "dispatcher did not stop"))
	assert.Equal(t, uint64(2), d.SoftServed())
}

func TestDispatcherLineError(t *testing.T) {
	t.Parallel()

	line := newFakeLine()
	line.waitErr = errors.NewStd("device gone")
	d := NewDispatcher(line, HandlerFunc(func() {}))

	err := d.Serve(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryHardware))
}

func TestDispatcherRejectsConcurrentServe(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(nil, HandlerFunc(func() {}))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Serve(ctx) }()

	require.Eventually(t, func() bool { return d.running.Load() }, time.Second, time.Millisecond)
	assert.Error(t, d.Serve(ctx))

	cancel()
	require.NoError(t, testutil.Receive(t, done, testutil.DefaultTestTimeout, "dispatcher did not stop"))
}
