package run

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/fifostream/internal/bufferpool"
	"github.com/tphakala/fifostream/internal/conf"
	"github.com/tphakala/fifostream/internal/errors"
	"github.com/tphakala/fifostream/internal/fifo"
	"github.com/tphakala/fifostream/internal/irq"
	"github.com/tphakala/fifostream/internal/logger"
	"github.com/tphakala/fifostream/internal/observability"
	"github.com/tphakala/fifostream/internal/player"
	"github.com/tphakala/fifostream/internal/sample"
	"github.com/tphakala/fifostream/internal/stream"
)

// Pipeline is an assembled backend, engine and player ready to run
type Pipeline struct {
	settings *conf.Settings
	log      logger.Logger

	pool     *bufferpool.Pool
	engine   *stream.Engine
	player   *player.Player
	sim      *fifo.Sim
	metrics  *observability.Metrics
	endpoint *observability.Endpoint

	closeOnce sync.Once
	closers   []func() error
}

// Build assembles the pipeline described by settings. On error every
// resource opened so far is released.
func Build(settings *conf.Settings) (*Pipeline, error) {
	p := &Pipeline{
		settings: settings,
		log:      logger.Global().Module("run"),
	}

	mode := player.Mode(settings.Player.Mode)
	receive := settings.Stream.Receive || mode != player.ModePlayback

	var err error
	p.pool, err = bufferpool.New(poolConfig(settings.Pool))
	if err != nil {
		return p.fail(err)
	}
	p.closers = append(p.closers, p.pool.Close)

	regs, line, err := p.openBackend(receive)
	if err != nil {
		return p.fail(err)
	}

	var engineOpts []stream.Option
	var playerOpts []player.Option
	if settings.Metrics.Enabled {
		p.metrics, err = observability.NewMetrics()
		if err != nil {
			return p.fail(err)
		}
		p.endpoint, err = observability.NewEndpoint(settings, p.metrics)
		if err != nil {
			return p.fail(err)
		}
		engineOpts = append(engineOpts, stream.WithMetrics(p.metrics.Stream))
		playerOpts = append(playerOpts, player.WithPoolMetrics(p.metrics.Pool))
	}

	p.engine, err = stream.New(regs, line, p.pool, streamConfig(settings.Stream, receive), engineOpts...)
	if err != nil {
		return p.fail(err)
	}

	ioOpts, err := p.openSampleIO(mode)
	if err != nil {
		return p.fail(err)
	}
	playerOpts = append(playerOpts, ioOpts...)

	p.player, err = player.New(p.engine, p.pool, player.Config{
		Mode:          mode,
		StatsInterval: settings.Player.StatsInterval,
	}, playerOpts...)
	if err != nil {
		return p.fail(err)
	}

	p.log.Info("pipeline assembled",
		logger.String("backend", settings.FIFO.Backend),
		logger.String("mode", string(mode)),
		logger.Bool("receive", receive),
		logger.Int("pool_chunks", settings.Pool.Chunks),
		logger.Int("chunk_size", settings.Pool.ChunkSize),
		logger.Bool("metrics", settings.Metrics.Enabled))
	return p, nil
}

// openBackend returns the register window and interrupt line
func (p *Pipeline) openBackend(receive bool) (fifo.Registers, irq.Line, error) {
	f := p.settings.FIFO
	switch f.Backend {
	case conf.BackendSim:
		sim, err := fifo.NewSim(fifo.SimConfig{
			Depth:            f.Sim.Depth,
			TxEmptyThreshold: f.Sim.TxEmptyThreshold,
			RxFullThreshold:  f.Sim.RxFullThreshold,
			Loopback:         f.Sim.Loopback,
		})
		if err != nil {
			return nil, nil, err
		}
		sim.SetCapture(receive && f.Sim.Capture && !f.Sim.Loopback)
		p.sim = sim
		return sim, sim, nil

	case conf.BackendMMIO:
		regs, err := fifo.OpenMMIO(f.BaseAddr)
		if err != nil {
			return nil, nil, err
		}
		p.closers = append(p.closers, regs.Close)

		line, err := irq.OpenUIO(f.UIODevice)
		if err != nil {
			return nil, nil, err
		}
		p.closers = append(p.closers, line.Close)
		return regs, line, nil
	}

	return nil, nil, errors.Newf("unknown fifo backend %q", f.Backend).
		Component("run").
		Category(errors.CategoryConfiguration).
		Build()
}

// openSampleIO opens the source or sink the player mode needs
func (p *Pipeline) openSampleIO(mode player.Mode) ([]player.Option, error) {
	ps := p.settings.Player
	switch mode {
	case player.ModePlayback:
		if ps.WAV == "" {
			tone, err := sample.Tone(ps.ToneFreq, ps.SampleRate, ps.ToneAmplitude)
			if err != nil {
				return nil, err
			}
			p.log.Info("playing test tone",
				logger.Int("freq_hz", ps.ToneFreq),
				logger.Int("sample_rate", ps.SampleRate),
				logger.Int("table_samples", tone.Len()))
			return []player.Option{player.WithSource(tone)}, nil
		}

		table, info, err := sample.LoadWAV(ps.WAV, ps.Loop)
		if err != nil {
			return nil, err
		}
		p.log.Info("playing wav file",
			logger.String("path", ps.WAV),
			logger.Int("sample_rate", info.SampleRate),
			logger.Int("channels", info.Channels),
			logger.Int("bit_depth", info.BitDepth),
			logger.Int("frames", info.Frames),
			logger.Bool("loop", ps.Loop))
		return []player.Option{player.WithSource(table)}, nil

	case player.ModeRecord:
		sink, err := sample.NewWAVSink(ps.Record, ps.SampleRate)
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, sink.Close)
		p.log.Info("recording to wav file", logger.String("path", ps.Record))
		return []player.Option{player.WithSink(sink)}, nil
	}
	return nil, nil
}

// Run streams until ctx ends or a non-looping source runs dry
func (p *Pipeline) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	if p.sim != nil {
		rate := p.settings.FIFO.Sim.SampleRate
		g.Go(func() error { return p.sim.Run(gctx, rate) })
	}
	if p.endpoint != nil {
		g.Go(func() error { return p.endpoint.Start(gctx) })
	}
	g.Go(func() error {
		defer cancel()
		return p.player.Run(gctx)
	})

	err := g.Wait()
	if p.sim != nil {
		s := p.sim.Stats()
		p.log.Info("simulator stopped",
			logger.Uint64("played", s.Played),
			logger.Uint64("underruns", s.Underruns),
			logger.Uint64("captured", s.Captured),
			logger.Uint64("overruns", s.Overruns))
	}
	return err
}

// Engine returns the streaming engine
func (p *Pipeline) Engine() *stream.Engine { return p.engine }

// Pool returns the chunk pool
func (p *Pipeline) Pool() *bufferpool.Pool { return p.pool }

// Close releases files, mappings and the pool in reverse order of opening
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() {
		for i := len(p.closers) - 1; i >= 0; i-- {
			if err := p.closers[i](); err != nil {
				p.log.Warn("close failed", logger.Error(err))
			}
		}
	})
}

func (p *Pipeline) fail(err error) (*Pipeline, error) {
	p.Close()
	return nil, err
}

func poolConfig(s conf.PoolSettings) bufferpool.Config {
	return bufferpool.Config{
		Chunks:         s.Chunks,
		ChunkSize:      s.ChunkSize,
		Backing:        bufferpool.Backing(s.Backing),
		ReleaseTimeout: s.ReleaseTimeout,
	}
}

func streamConfig(s conf.StreamSettings, receive bool) stream.Config {
	return stream.Config{
		TxQueueDepth:     s.TxQueueDepth,
		RxQueueDepth:     s.RxQueueDepth,
		TxEnqueueTimeout: s.TxEnqueueTimeout,
		TxFullPolicy:     stream.TxFullPolicy(s.TxFullPolicy),
		VacancyTimeout:   s.VacancyTimeout,
		DataShift:        s.DataShift,
		Receive:          receive,
		LogInterval:      s.LogInterval,
	}
}
