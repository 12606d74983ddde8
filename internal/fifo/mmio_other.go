//go:build !linux

package fifo

import "github.com/tphakala/fifostream/internal/errors"

// MMIO is only available on Linux
type MMIO struct{}

// OpenMMIO always fails outside Linux
func OpenMMIO(base uint64) (*MMIO, error) {
	return nil, errors.Newf("mmio register access is only supported on linux").
		Component("fifo").
		Category(errors.CategoryHardware).
		Context("base_addr", base).
		Build()
}

func (m *MMIO) ReadReg(Offset) uint32 { return 0 }

func (m *MMIO) WriteReg(Offset, uint32) {}

func (m *MMIO) Close() error { return nil }
