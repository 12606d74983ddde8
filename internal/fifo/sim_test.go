package fifo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSim(t *testing.T, cfg SimConfig, opts ...SimOption) *Sim {
	t.Helper()
	s, err := NewSim(cfg, opts...)
	require.NoError(t, err)
	return s
}

func TestNewSimValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  SimConfig
	}{
		{"tx threshold too high", SimConfig{Depth: 16, TxEmptyThreshold: 16, RxFullThreshold: 8}},
		{"negative tx threshold", SimConfig{Depth: 16, TxEmptyThreshold: -1, RxFullThreshold: 8}},
		{"zero rx threshold", SimConfig{Depth: 16, TxEmptyThreshold: 4, RxFullThreshold: 0}},
		{"rx threshold above depth", SimConfig{Depth: 16, TxEmptyThreshold: 4, RxFullThreshold: 17}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewSim(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestSimTransmitPath(t *testing.T) {
	t.Parallel()

	var played []uint32
	s := newTestSim(t, SimConfig{Depth: 8, TxEmptyThreshold: 2, RxFullThreshold: 4},
		WithOutput(func(w uint32) { played = append(played, w) }))

	assert.Equal(t, uint32(8), s.ReadReg(TxVacancy))

	for i := range 4 {
		s.WriteReg(TxData, uint32(i+1)<<16)
		s.WriteReg(TxLength, 1)
	}
	s.WriteReg(TxData, 0xFFFF0000) // never committed
	assert.Equal(t, uint32(3), s.ReadReg(TxVacancy))

	s.Step(2)
	assert.Zero(t, s.ReadReg(IntStatus)&IntTFPE, "occupancy still above threshold")

	s.Step(1)
	assert.NotZero(t, s.ReadReg(IntStatus)&IntTFPE)

	s.Step(5)
	assert.Equal(t, []uint32{1 << 16, 2 << 16, 3 << 16, 4 << 16}, played)

	stats := s.Stats()
	assert.Equal(t, uint64(4), stats.Played)
	assert.Equal(t, uint64(4), stats.Underruns)
}

func TestSimTransmitOverflow(t *testing.T) {
	t.Parallel()

	s := newTestSim(t, SimConfig{Depth: 2, TxEmptyThreshold: 0, RxFullThreshold: 1})
	s.WriteReg(TxData, 1)
	s.WriteReg(TxData, 2)
	s.WriteReg(TxData, 3)

	assert.NotZero(t, s.ReadReg(IntStatus)&IntTPOE)
	assert.Equal(t, uint64(1), s.Stats().TxOverflow)
	assert.Zero(t, s.ReadReg(TxVacancy))
}

func TestSimStatusWriteOneToClear(t *testing.T) {
	t.Parallel()

	s := newTestSim(t, SimConfig{Depth: 8, TxEmptyThreshold: 1, RxFullThreshold: 4})
	s.WriteReg(TxReset, ResetKey)
	s.WriteReg(RxReset, ResetKey)
	assert.Equal(t, IntTRC|IntRRC, s.ReadReg(IntStatus))

	s.WriteReg(IntStatus, IntTRC)
	assert.Equal(t, IntRRC, s.ReadReg(IntStatus))

	s.WriteReg(TxReset, 0x12) // wrong key
	assert.Equal(t, IntRRC, s.ReadReg(IntStatus))
}

func TestSimReceivePath(t *testing.T) {
	t.Parallel()

	s := newTestSim(t, SimConfig{Depth: 4, TxEmptyThreshold: 1, RxFullThreshold: 3})
	s.Push(10, 20)
	assert.Zero(t, s.ReadReg(IntStatus)&IntRFPF)

	s.Push(30)
	assert.NotZero(t, s.ReadReg(IntStatus)&IntRFPF)
	assert.Equal(t, uint32(3), s.ReadReg(RxOccupancy))

	s.Push(40, 50)
	assert.NotZero(t, s.ReadReg(IntStatus)&IntRPORE)
	assert.Equal(t, uint64(1), s.Stats().Overruns)

	for _, want := range []uint32{10, 20, 30, 40} {
		assert.Equal(t, want, s.ReadReg(RxData))
	}
	assert.Zero(t, s.ReadReg(RxData))
	assert.NotZero(t, s.ReadReg(IntStatus)&IntRPUE)
}

func TestSimLoopback(t *testing.T) {
	t.Parallel()

	s := newTestSim(t, SimConfig{Depth: 8, TxEmptyThreshold: 1, RxFullThreshold: 8, Loopback: true})
	for i := range 3 {
		s.WriteReg(TxData, uint32(i))
		s.WriteReg(TxLength, 1)
	}
	s.Step(3)

	assert.Equal(t, uint32(3), s.ReadReg(RxOccupancy))
	assert.Equal(t, uint32(0), s.ReadReg(RxData))
	assert.Equal(t, uint32(1), s.ReadReg(RxData))
}

func TestSimCapture(t *testing.T) {
	t.Parallel()

	s := newTestSim(t, SimConfig{Depth: 8, TxEmptyThreshold: 1, RxFullThreshold: 4},
		WithInput(func() uint32 { return 7 }))
	s.Step(2)
	assert.Zero(t, s.ReadReg(RxOccupancy))

	s.SetCapture(true)
	s.Step(4)
	assert.Equal(t, uint32(4), s.ReadReg(RxOccupancy))
	assert.Equal(t, uint32(7), s.ReadReg(RxData))
}

func TestSimLineDelivery(t *testing.T) {
	t.Parallel()

	s := newTestSim(t, SimConfig{Depth: 8, TxEmptyThreshold: 1, RxFullThreshold: 2})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// latched but masked: no delivery
	s.Push(1, 2)
	assert.False(t, s.Pending())

	s.WriteReg(IntEnable, IntRFPF)
	require.NoError(t, s.Wait(ctx))

	// disarmed until Rearm, even though still pending
	short, cancelShort := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancelShort()
	require.ErrorIs(t, s.Wait(short), context.DeadlineExceeded)

	require.NoError(t, s.Rearm())
	require.NoError(t, s.Wait(ctx))

	s.WriteReg(IntStatus, IntRFPF)
	require.NoError(t, s.Rearm())
	assert.False(t, s.Pending())
}

func TestSimRun(t *testing.T) {
	t.Parallel()

	s := newTestSim(t, SimConfig{Depth: 64, TxEmptyThreshold: 1, RxFullThreshold: 32})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	require.NoError(t, s.Run(ctx, 48000))
	assert.Positive(t, s.Stats().Underruns)
}

func TestOffsetString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "TX_VAC", TxVacancy.String())
	assert.Equal(t, "reg(0x40)", Offset(0x40).String())
}
