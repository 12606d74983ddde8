package fifo

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/smallnest/ringbuffer"

	"github.com/tphakala/fifostream/internal/errors"
)

// Simulator defaults
const (
	DefaultSimDepth            = 512 // words per direction
	DefaultSimSampleRate       = 48000
	DefaultSimTxEmptyThreshold = 64
	DefaultSimRxFullThreshold  = 96

	simTick = time.Millisecond
)

// SimConfig describes the simulated FIFO
type SimConfig struct {
	Depth            int  // words per direction
	TxEmptyThreshold int  // TFPE latches when transmit occupancy falls to this or below
	RxFullThreshold  int  // RFPF latches when a word arrives with receive occupancy at or above this
	Loopback         bool // the DAC output feeds the receive FIFO
}

// SimStats counts simulated hardware events
type SimStats struct {
	Played     uint64 // words consumed by the DAC
	Underruns  uint64 // DAC clocks with no committed word
	Captured   uint64 // words pushed into the receive FIFO
	Overruns   uint64 // words lost to a full receive FIFO
	TxOverflow uint64 // TX_DATA writes into a full transmit FIFO
	RxUnderrun uint64 // RX_DATA reads from an empty receive FIFO
}

// SimOption configures a Sim
type SimOption func(*Sim)

// WithOutput sets the DAC sink. It runs with the simulator lock held and
// must not call back into the Sim.
func WithOutput(fn func(word uint32)) SimOption {
	return func(s *Sim) { s.output = fn }
}

// WithInput sets the ADC source used while capture is enabled
func WithInput(fn func() uint32) SimOption {
	return func(s *Sim) { s.input = fn }
}

// Sim is a behavioral model of the streaming FIFO. It implements Registers
// and the interrupt line contract (Wait and Rearm).
type Sim struct {
	mu  sync.Mutex
	cfg SimConfig

	tx          *ringbuffer.RingBuffer
	txPending   int // words written but not yet committed
	txCommitted int // words committed and eligible for the DAC
	rx          *ringbuffer.RingBuffer

	status  uint32
	enable  uint32
	capture bool
	stats   SimStats

	output func(uint32)
	input  func() uint32

	irq   chan struct{}
	armed bool
}

// NewSim creates a simulator with empty FIFOs and all interrupts masked
func NewSim(cfg SimConfig, opts ...SimOption) (*Sim, error) {
	if cfg.Depth <= 0 {
		cfg.Depth = DefaultSimDepth
	}
	if cfg.TxEmptyThreshold < 0 || cfg.TxEmptyThreshold >= cfg.Depth {
		return nil, errors.Newf("tx empty threshold %d outside [0, %d)", cfg.TxEmptyThreshold, cfg.Depth).
			Component("fifo").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if cfg.RxFullThreshold <= 0 || cfg.RxFullThreshold > cfg.Depth {
		return nil, errors.Newf("rx full threshold %d outside (0, %d]", cfg.RxFullThreshold, cfg.Depth).
			Component("fifo").
			Category(errors.CategoryConfiguration).
			Build()
	}

	s := &Sim{
		cfg:   cfg,
		tx:    ringbuffer.New(cfg.Depth * 4),
		rx:    ringbuffer.New(cfg.Depth * 4),
		irq:   make(chan struct{}, 1),
		armed: true,
	}
	var counter uint32
	s.input = func() uint32 {
		counter++
		return counter << 16
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ReadReg implements Registers
func (s *Sim) ReadReg(off Offset) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch off {
	case IntStatus:
		return s.status
	case IntEnable:
		return s.enable
	case TxVacancy:
		return uint32(s.tx.Free() / 4)
	case RxOccupancy:
		return uint32(s.rx.Length() / 4)
	case RxLength:
		return uint32(s.rx.Length())
	case RxData:
		var buf [4]byte
		if n, _ := s.rx.Read(buf[:]); n != 4 {
			s.stats.RxUnderrun++
			s.latch(IntRPUE)
			return 0
		}
		return binary.LittleEndian.Uint32(buf[:])
	default:
		return 0
	}
}

// WriteReg implements Registers
func (s *Sim) WriteReg(off Offset, v uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch off {
	case IntStatus:
		s.status &^= v
	case IntEnable:
		s.enable = v
	case TxData:
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], v)
		if n, _ := s.tx.Write(buf[:]); n != 4 {
			s.stats.TxOverflow++
			s.latch(IntTPOE)
			break
		}
		s.txPending++
	case TxLength:
		n := min(int(v), s.txPending)
		s.txPending -= n
		s.txCommitted += n
	case TxReset:
		if v == ResetKey {
			s.resetTx()
		}
	case RxReset:
		if v == ResetKey {
			s.resetRx()
		}
	case LinkReset:
		if v == ResetKey {
			s.resetTx()
			s.resetRx()
		}
	}
	s.updateLine()
}

func (s *Sim) resetTx() {
	s.tx.Reset()
	s.txPending = 0
	s.txCommitted = 0
	s.status |= IntTRC
}

func (s *Sim) resetRx() {
	s.rx.Reset()
	s.status |= IntRRC
}

// SetCapture starts or stops the ADC
func (s *Sim) SetCapture(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capture = on
}

// Push injects words into the receive FIFO as if captured
func (s *Sim) Push(words ...uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range words {
		s.rxPush(w)
	}
	s.updateLine()
}

// Step advances the simulation by n sample clocks
func (s *Sim) Step(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for range n {
		s.clockDAC()
		if s.capture && !s.cfg.Loopback {
			s.rxPush(s.input())
		}
	}
	s.updateLine()
}

func (s *Sim) clockDAC() {
	if s.txCommitted == 0 {
		s.stats.Underruns++
		return
	}

	before := s.tx.Length() / 4
	var buf [4]byte
	if n, _ := s.tx.Read(buf[:]); n != 4 {
		s.txCommitted = 0
		return
	}
	s.txCommitted--
	s.stats.Played++

	word := binary.LittleEndian.Uint32(buf[:])
	if s.output != nil {
		s.output(word)
	}
	if s.cfg.Loopback {
		s.rxPush(word)
	}

	after := s.tx.Length() / 4
	if (before > s.cfg.TxEmptyThreshold && after <= s.cfg.TxEmptyThreshold) || after == 0 {
		s.latch(IntTFPE)
	}
}

func (s *Sim) rxPush(word uint32) {
	if s.rx.Free() < 4 {
		s.stats.Overruns++
		s.latch(IntRPORE)
		return
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], word)
	_, _ = s.rx.Write(buf[:])
	s.stats.Captured++

	if s.rx.Length()/4 >= s.cfg.RxFullThreshold {
		s.latch(IntRFPF)
	}
}

// latch sets status bits regardless of the enable mask
func (s *Sim) latch(bits uint32) {
	s.status |= bits
}

// updateLine delivers one notification when an enabled bit is pending and
// the line is armed
func (s *Sim) updateLine() {
	if !s.armed || s.status&s.enable == 0 {
		return
	}
	select {
	case s.irq <- struct{}{}:
		s.armed = false
	default:
	}
}

// Wait blocks until the interrupt line asserts or ctx ends
func (s *Sim) Wait(ctx context.Context) error {
	select {
	case <-s.irq:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Rearm re-enables delivery, signalling again if an enabled bit is still pending
func (s *Sim) Rearm() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed = true
	s.updateLine()
	return nil
}

// Pending reports whether an enabled interrupt is latched
func (s *Sim) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status&s.enable != 0
}

// Stats returns a copy of the simulated hardware counters
func (s *Sim) Stats() SimStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Run clocks the simulator at sampleRate until ctx ends
func (s *Sim) Run(ctx context.Context, sampleRate int) error {
	if sampleRate <= 0 {
		sampleRate = DefaultSimSampleRate
	}

	ticker := time.NewTicker(simTick)
	defer ticker.Stop()

	start := time.Now()
	var stepped int64
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			due := int64(now.Sub(start).Seconds()*float64(sampleRate)) - stepped
			if due > 0 {
				s.Step(int(due))
				stepped += due
			}
		}
	}
}
