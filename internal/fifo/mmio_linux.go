//go:build linux

package fifo

import (
	"sync/atomic"

	"periph.io/x/host/v3"
	"periph.io/x/host/v3/pmem"

	"github.com/tphakala/fifostream/internal/errors"
	"github.com/tphakala/fifostream/internal/logger"
)

// MMIO accesses the physical register window through /dev/mem
type MMIO struct {
	view  *pmem.View
	words []uint32
	base  uint64
}

// OpenMMIO maps the register window at the physical address base.
// Requires CAP_SYS_RAWIO or root.
func OpenMMIO(base uint64) (*MMIO, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.New(err).
			Component("fifo").
			Category(errors.CategoryHardware).
			Context("operation", "host_init").
			Build()
	}

	view, err := pmem.Map(base, WindowSize)
	if err != nil {
		return nil, errors.New(err).
			Component("fifo").
			Category(errors.CategoryHardware).
			Context("operation", "map_registers").
			Context("base_addr", base).
			Build()
	}

	words := view.Uint32()
	if len(words) < WindowSize/4 {
		_ = view.Close()
		return nil, errors.Newf("register window too small: %d words", len(words)).
			Component("fifo").
			Category(errors.CategoryHardware).
			Context("base_addr", base).
			Build()
	}

	GetLogger().Info("fifo registers mapped", logger.Hex("base_addr", uint32(base)))

	return &MMIO{view: view, words: words, base: base}, nil
}

// ReadReg performs a single 32-bit load
func (m *MMIO) ReadReg(off Offset) uint32 {
	return atomic.LoadUint32(&m.words[off/4])
}

// WriteReg performs a single 32-bit store
func (m *MMIO) WriteReg(off Offset, v uint32) {
	atomic.StoreUint32(&m.words[off/4], v)
}

// Close unmaps the register window
func (m *MMIO) Close() error {
	if m.view == nil {
		return nil
	}
	err := m.view.Close()
	m.view = nil
	m.words = nil
	return err
}
