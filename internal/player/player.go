// Package player runs the application task that feeds and drains a stream
// engine: playback from a sample source, loopback of captured audio, or
// recording to a sink.
package player

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/fifostream/internal/bufferpool"
	"github.com/tphakala/fifostream/internal/chunk"
	"github.com/tphakala/fifostream/internal/errors"
	"github.com/tphakala/fifostream/internal/logger"
	"github.com/tphakala/fifostream/internal/observability/metrics"
	"github.com/tphakala/fifostream/internal/sample"
	"github.com/tphakala/fifostream/internal/stream"
)

// Mode selects the streaming loop
type Mode string

const (
	ModePlayback Mode = "playback" // Source -> Put
	ModeLoopback Mode = "loopback" // Get -> Put
	ModeRecord   Mode = "record"   // Get -> Sink
)

// Defaults
const (
	DefaultStatsInterval = 10 * time.Second
	DefaultPoolName      = "main"

	drainPoll = 5 * time.Millisecond
)

// Config tunes a Player
type Config struct {
	Mode          Mode
	StatsInterval time.Duration // 0 means DefaultStatsInterval
	PoolName      string        // metrics label for the pool
}

// Option configures a Player
type Option func(*Player)

// WithSource sets the playback source
func WithSource(s sample.Source) Option {
	return func(p *Player) { p.source = s }
}

// WithSink sets the record sink
func WithSink(s sample.Sink) Option {
	return func(p *Player) { p.sink = s }
}

// WithCodec sets the codec initialized before streaming
func WithCodec(c Codec) Option {
	return func(p *Player) {
		if c != nil {
			p.codec = c
		}
	}
}

// WithPoolMetrics records pool statistics on every stats tick
func WithPoolMetrics(m *metrics.PoolMetrics) Option {
	return func(p *Player) { p.poolMetrics = m }
}

// WithLogger overrides the module logger
func WithLogger(l logger.Logger) Option {
	return func(p *Player) {
		if l != nil {
			p.log = l
		}
	}
}

// Player owns the task side of one engine
type Player struct {
	engine *stream.Engine
	pool   *bufferpool.Pool
	cfg    Config

	codec       Codec
	source      sample.Source
	sink        sample.Sink
	poolMetrics *metrics.PoolMetrics
	log         logger.Logger

	chunks atomic.Uint64
}

// New validates the mode against the configured collaborators
func New(engine *stream.Engine, pool *bufferpool.Pool, cfg Config, opts ...Option) (*Player, error) {
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = DefaultStatsInterval
	}
	if cfg.PoolName == "" {
		cfg.PoolName = DefaultPoolName
	}

	p := &Player{
		engine: engine,
		pool:   pool,
		cfg:    cfg,
		codec:  NopCodec{},
		log:    GetLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}

	var problem string
	switch {
	case engine == nil || pool == nil:
		problem = "player requires an engine and a buffer pool"
	case cfg.Mode == ModePlayback && p.source == nil:
		problem = "playback mode requires a sample source"
	case cfg.Mode == ModeRecord && p.sink == nil:
		problem = "record mode requires a sink"
	case cfg.Mode != ModePlayback && cfg.Mode != ModeLoopback && cfg.Mode != ModeRecord:
		problem = "unknown player mode " + string(cfg.Mode)
	}
	if problem != "" {
		return nil, errors.Newf("%s", problem).
			Component("player").
			Category(errors.CategoryConfiguration).
			Context("mode", string(cfg.Mode)).
			Build()
	}

	p.log = p.log.With(logger.String("mode", string(cfg.Mode)))
	return p, nil
}

// Chunks returns the number of chunks the loop has handed on
func (p *Player) Chunks() uint64 { return p.chunks.Load() }

// Run initializes the codec, starts the engine and streams until ctx ends
// or a playback source runs dry. Cancellation is a clean stop.
func (p *Player) Run(ctx context.Context) error {
	if err := p.codec.Initialize(); err != nil {
		return errors.New(err).
			Component("player").
			Category(errors.CategoryHardware).
			Context("operation", "codec_init").
			Build()
	}

	p.engine.Start()
	p.log.Info("player started",
		logger.String("engine_id", p.engine.ID()),
		logger.Duration("stats_interval", p.cfg.StatsInterval))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return p.engine.Serve(gctx) })
	g.Go(func() error {
		defer cancel()
		return p.loop(gctx)
	})
	g.Go(func() error { return p.report(gctx) })

	err := g.Wait()
	if stopErr := p.engine.Stop(); stopErr != nil {
		err = errors.Join(err, stopErr)
	}
	p.record()

	p.log.Info("player stopped",
		logger.Uint64("chunks", p.chunks.Load()),
		logger.Int("pool_free", p.pool.Available()))
	return err
}

func (p *Player) loop(ctx context.Context) error {
	var err error
	switch p.cfg.Mode {
	case ModePlayback:
		err = p.playback(ctx)
	case ModeLoopback:
		err = p.loopback(ctx)
	case ModeRecord:
		err = p.recordLoop(ctx)
	}
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (p *Player) playback(ctx context.Context) error {
	for {
		c, err := p.pool.Acquire(ctx)
		if err != nil {
			return err
		}

		n, err := p.source.Fill(c)
		if err != nil {
			_ = p.pool.Release(c)
			return err
		}
		if n == 0 {
			_ = p.pool.Release(c)
			p.log.Info("source exhausted, draining", logger.Uint64("chunks", p.chunks.Load()))
			return p.waitDrained(ctx)
		}

		if err := p.put(ctx, c); err != nil {
			return err
		}
	}
}

func (p *Player) loopback(ctx context.Context) error {
	for {
		c, err := p.engine.Get(ctx)
		if err != nil {
			return err
		}
		if err := p.put(ctx, c); err != nil {
			return err
		}
	}
}

func (p *Player) recordLoop(ctx context.Context) error {
	for {
		c, err := p.engine.Get(ctx)
		if err != nil {
			return err
		}
		werr := p.sink.Write(c)
		if err := p.pool.Release(c); err != nil {
			return err
		}
		if werr != nil {
			return werr
		}
		p.chunks.Add(1)
	}
}

// put hands c to the engine. Dropped chunks are already logged and counted
// by the engine, so they do not stop the loop.
func (p *Player) put(ctx context.Context, c *chunk.Chunk) error {
	err := p.engine.Put(ctx, c)
	switch {
	case err == nil:
		p.chunks.Add(1)
		return nil
	case errors.Is(err, stream.ErrInsufficientFifoSpace), errors.Is(err, stream.ErrTxQueueFull):
		return nil
	default:
		return err
	}
}

// waitDrained blocks until the engine has written every queued chunk and
// returned to polling mode
func (p *Player) waitDrained(ctx context.Context) error {
	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()

	for {
		if s := p.engine.Stats(); s.TxQueued == 0 && !s.Running {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Player) report(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.record()
		}
	}
}

// record publishes metrics and logs one statistics line
func (p *Player) record() {
	p.pool.RecordMetrics(p.poolMetrics, p.cfg.PoolName)
	p.engine.RecordMetrics()

	ps := p.pool.GetStats()
	es := p.engine.Stats()
	p.log.Info("stream statistics",
		logger.Uint64("chunks", p.chunks.Load()),
		logger.Int("pool_free", ps.Free),
		logger.Int("pool_low_watermark", ps.LowWatermark),
		logger.Uint64("tx_sync", es.TxSync),
		logger.Uint64("tx_interrupt", es.TxInterrupt),
		logger.Uint64("received", es.Received),
		logger.Uint64("tx_dropped", es.TxDroppedFifoSpace+es.TxDroppedQueueFull),
		logger.Uint64("rx_pauses", es.RxBackpressureQueueFull+es.RxBackpressurePool),
		logger.Uint64("interrupts", es.Interrupts),
		logger.Bool("running", es.Running))
}
