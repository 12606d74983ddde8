// Package fifotest provides a recording fake of the FIFO register file.
package fifotest

import (
	"sync"

	"github.com/tphakala/fifostream/internal/fifo"
)

// Write is one recorded register store
type Write struct {
	Off   fifo.Offset
	Value uint32
}

// Recorder implements fifo.Registers. It records every write, reports a
// scripted transmit vacancy and serves scripted receive words. INT_STATUS
// is write-1-to-clear; INT_ENABLE stores the written mask.
type Recorder struct {
	mu      sync.Mutex
	writes  []Write
	vacancy uint32
	status  uint32
	enable  uint32
	rx      []uint32
	reads   map[fifo.Offset]int
}

// NewRecorder returns a recorder reporting vacancy free transmit words
func NewRecorder(vacancy uint32) *Recorder {
	return &Recorder{vacancy: vacancy, reads: make(map[fifo.Offset]int)}
}

func (r *Recorder) ReadReg(off fifo.Offset) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.reads[off]++
	switch off {
	case fifo.IntStatus:
		return r.status
	case fifo.IntEnable:
		return r.enable
	case fifo.TxVacancy:
		return r.vacancy
	case fifo.RxOccupancy:
		return uint32(len(r.rx))
	case fifo.RxData:
		if len(r.rx) == 0 {
			return 0
		}
		w := r.rx[0]
		r.rx = r.rx[1:]
		return w
	default:
		return 0
	}
}

func (r *Recorder) WriteReg(off fifo.Offset, v uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.writes = append(r.writes, Write{Off: off, Value: v})
	switch off {
	case fifo.IntStatus:
		r.status &^= v
	case fifo.IntEnable:
		r.enable = v
	}
}

// SetVacancy changes the reported transmit vacancy
func (r *Recorder) SetVacancy(words uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vacancy = words
}

// Raise latches status bits
func (r *Recorder) Raise(bits uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status |= bits
}

// Status returns the latched status word
func (r *Recorder) Status() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Enabled returns the current interrupt enable mask
func (r *Recorder) Enabled() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enable
}

// PushRx queues words to be returned by RX_DATA reads
func (r *Recorder) PushRx(words ...uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rx = append(r.rx, words...)
}

// Writes returns the recorded writes, optionally filtered to the given offsets
func (r *Recorder) Writes(offs ...fifo.Offset) []Write {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(offs) == 0 {
		return append([]Write(nil), r.writes...)
	}
	var out []Write
	for _, w := range r.writes {
		for _, off := range offs {
			if w.Off == off {
				out = append(out, w)
				break
			}
		}
	}
	return out
}

// Values returns the values written to off in order
func (r *Recorder) Values(off fifo.Offset) []uint32 {
	var out []uint32
	for _, w := range r.Writes(off) {
		out = append(out, w.Value)
	}
	return out
}

// Count returns how many times off was written
func (r *Recorder) Count(off fifo.Offset) int {
	return len(r.Writes(off))
}

// Reads returns how many times off was read
func (r *Recorder) Reads(off fifo.Offset) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads[off]
}

// Clear forgets the recorded writes and reads
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = nil
	r.reads = make(map[fifo.Offset]int)
}

var _ fifo.Registers = (*Recorder)(nil)
