package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/fifostream/internal/errors"
)

func TestNewRejectsNonPositiveCapacity(t *testing.T) {
	t.Parallel()

	for _, capacity := range []int{0, -1} {
		_, err := New[int](capacity)
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryStreamInit))
	}
}

func TestFIFOOrder(t *testing.T) {
	t.Parallel()

	q, err := New[int](4)
	require.NoError(t, err)

	for i := range 4 {
		require.True(t, q.TrySend(i))
	}
	assert.True(t, q.IsFull())
	assert.False(t, q.TrySend(99))

	for i := range 4 {
		v, ok := q.TryReceive()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	assert.True(t, q.IsEmpty())

	_, ok := q.TryReceive()
	assert.False(t, ok)
}

func TestSendTimeout(t *testing.T) {
	t.Parallel()

	q, err := New[int](1)
	require.NoError(t, err)
	require.NoError(t, q.Send(context.Background(), 1, 10*time.Millisecond))

	start := time.Now()
	err = q.Send(context.Background(), 2, 20*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
	assert.True(t, errors.IsCategory(err, errors.CategoryTimeout))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.Equal(t, 1, q.Len())
}

func TestReceiveTimeoutAndCancel(t *testing.T) {
	t.Parallel()

	q, err := New[string](2)
	require.NoError(t, err)

	_, err = q.Receive(context.Background(), 5*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = q.Receive(ctx, 0)
	require.ErrorIs(t, err, context.Canceled)
}

func TestBlockingSendUnblocksOnReceive(t *testing.T) {
	t.Parallel()

	q, err := New[int](1)
	require.NoError(t, err)
	require.True(t, q.TrySend(1))

	var wg sync.WaitGroup
	wg.Add(1)
	var sendErr error
	go func() {
		defer wg.Done()
		sendErr = q.Send(context.Background(), 2, 0)
	}()

	v, err := q.Receive(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	wg.Wait()
	require.NoError(t, sendErr)
	v, ok := q.TryReceive()
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, q.Cap())
}
