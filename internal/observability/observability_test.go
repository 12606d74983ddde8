package observability

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/fifostream/internal/conf"
	"github.com/tphakala/fifostream/internal/errors"
	"github.com/tphakala/fifostream/internal/observability/metrics"
	"github.com/tphakala/fifostream/internal/testutil"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)
	require.NotNil(t, m.Stream)
	require.NotNil(t, m.Pool)
	require.NotNil(t, m.Registry())

	// separate bundles use separate registries
	other, err := NewMetrics()
	require.NoError(t, err)
	assert.NotSame(t, m.Registry(), other.Registry())
}

func TestNewEndpointRequiresEnabled(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	settings := &conf.Settings{}
	_, err = NewEndpoint(settings, m)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	settings.Metrics.Enabled = true
	_, err = NewEndpoint(settings, nil)
	require.Error(t, err)

	settings.Metrics.Listen = "127.0.0.1:0"
	e, err := NewEndpoint(settings, m)
	require.NoError(t, err)
	assert.Same(t, m, e.GetMetrics())
}

func TestEndpointServesMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)
	m.Stream.RecordSnapshot(metrics.StreamSnapshot{}, metrics.StreamSnapshot{TxSync: 3, Running: true})
	m.Pool.RecordSnapshot("main", metrics.PoolSnapshot{}, metrics.PoolSnapshot{Chunks: 30, Free: 28})

	settings := &conf.Settings{}
	settings.Metrics.Enabled = true
	e, err := NewEndpoint(settings, m)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- e.Serve(ctx, ln) }()

	client := &http.Client{Timeout: 2 * time.Second}
	var body string
	require.Eventually(t, func() bool {
		resp, err := client.Get("http://" + ln.Addr().String() + "/metrics")
		if err != nil {
			return false
		}
		defer func() { _ = resp.Body.Close() }()
		raw, err := io.ReadAll(resp.Body)
		if err != nil || resp.StatusCode != http.StatusOK {
			return false
		}
		body = string(raw)
		return true
	}, 2*time.Second, 10*time.Millisecond)

	assert.Contains(t, body, `fifostream_stream_chunks_transmitted_total{path="sync"} 3`)
	assert.Contains(t, body, "fifostream_stream_running 1")
	assert.Contains(t, body, `fifostream_pool_chunks{pool="main"} 30`)
	assert.Contains(t, body, "go_goroutines")

	cancel()
	assert.NoError(t, testutil.Receive(t, done, metrics.ShutdownTimeout, "endpoint did not shut down"))
}
