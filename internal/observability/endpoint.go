package observability

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/tphakala/fifostream/internal/conf"
	"github.com/tphakala/fifostream/internal/errors"
	"github.com/tphakala/fifostream/internal/logger"
	"github.com/tphakala/fifostream/internal/observability/metrics"
)

const readHeaderTimeout = 5 * time.Second

// Endpoint serves the Prometheus scrape endpoint
type Endpoint struct {
	listenAddress string
	metrics       *Metrics
	log           logger.Logger
}

// NewEndpoint returns an endpoint for the configured listen address. It
// fails when metrics are disabled in settings.
func NewEndpoint(settings *conf.Settings, m *Metrics) (*Endpoint, error) {
	if settings == nil || !settings.Metrics.Enabled {
		return nil, errors.Newf("metrics endpoint not enabled in settings").
			Component("observability").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if m == nil {
		return nil, errors.Newf("metrics endpoint requires a metrics bundle").
			Component("observability").
			Category(errors.CategoryConfiguration).
			Build()
	}

	return &Endpoint{
		listenAddress: settings.Metrics.Listen,
		metrics:       m,
		log:           GetLogger(),
	}, nil
}

// Start listens on the configured address and serves until ctx ends
func (e *Endpoint) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", e.listenAddress)
	if err != nil {
		return errors.New(err).
			Component("observability").
			Category(errors.CategoryNetwork).
			Context("operation", "listen").
			Context("address", e.listenAddress).
			Build()
	}
	return e.Serve(ctx, ln)
}

// Serve runs the HTTP server on ln until ctx ends, then shuts it down
// gracefully. It returns nil after a clean shutdown.
func (e *Endpoint) Serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	e.metrics.RegisterHandlers(mux)

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		e.log.Info("metrics endpoint starting", logger.String("address", ln.Addr().String()))
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return errors.New(err).
			Component("observability").
			Category(errors.CategoryNetwork).
			Context("operation", "serve").
			Build()
	case <-ctx.Done():
	}

	e.log.Info("stopping metrics endpoint")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), metrics.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		e.log.Error("metrics endpoint shutdown error", logger.Error(err))
		return err
	}
	<-errCh
	return nil
}

// GetMetrics returns the bundle served by this endpoint
func (e *Endpoint) GetMetrics() *Metrics {
	return e.metrics
}
