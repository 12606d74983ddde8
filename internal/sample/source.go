// Package sample provides chunk producers and consumers for the streaming
// engine: in-memory sample tables, generated tones and WAV file I/O.
//
// A sample slot is one 32-bit word per sample. The low 16 bits carry a
// signed PCM value; the engine shifts it into the FIFO data lane.
package sample

import (
	"math"

	"github.com/tphakala/fifostream/internal/chunk"
	"github.com/tphakala/fifostream/internal/errors"
)

// Source fills chunks with samples to transmit
type Source interface {
	// Fill writes samples into c and sets its used length. It returns the
	// number of bytes written; 0 means the source is exhausted.
	Fill(c *chunk.Chunk) (int, error)
}

// Table plays a fixed sequence of sample slots. It is not safe for
// concurrent use.
type Table struct {
	slots []uint32
	pos   int
	loop  bool
}

// NewTable returns a table source over slots. slots is not copied.
func NewTable(slots []uint32, loop bool) *Table {
	return &Table{slots: slots, loop: loop}
}

// Fill copies min(remaining, capacity) bytes into c. A looping table wraps
// to the start after the final, possibly short, chunk.
func (t *Table) Fill(c *chunk.Chunk) (int, error) {
	if t.pos >= len(t.slots) {
		_ = c.SetUsed(0)
		return 0, nil
	}

	n := copy(c.Uint32(), t.slots[t.pos:])
	t.pos += n
	if t.pos == len(t.slots) && t.loop {
		t.pos = 0
	}

	bytes := n * chunk.SampleWidth
	if err := c.SetUsed(bytes); err != nil {
		return 0, err
	}
	return bytes, nil
}

// Len returns the number of slots in the table
func (t *Table) Len() int { return len(t.slots) }

// Looping reports whether the table wraps at its end
func (t *Table) Looping() bool { return t.loop }

// Rewind restarts playback from the first slot
func (t *Table) Rewind() { t.pos = 0 }

// Slot encodes a signed 16-bit PCM value as a sample slot
func Slot(v int16) uint32 {
	return uint32(uint16(v))
}

// Value decodes the signed 16-bit PCM value of a sample slot
func Value(slot uint32) int16 {
	return int16(uint16(slot))
}

// Tone returns a looping table holding a whole number of periods of a sine
// at freq Hz, so playback wraps without a phase jump. amplitude is a
// fraction of full scale.
func Tone(freq, sampleRate int, amplitude float64) (*Table, error) {
	if sampleRate <= 0 || freq <= 0 || 2*freq > sampleRate {
		return nil, errors.Newf("tone frequency %d Hz invalid for sample rate %d", freq, sampleRate).
			Component("sample").
			Category(errors.CategoryValidation).
			Context("operation", "tone").
			Build()
	}
	if amplitude < 0 || amplitude > 1 {
		return nil, errors.Newf("tone amplitude %.3f outside [0, 1]", amplitude).
			Component("sample").
			Category(errors.CategoryValidation).
			Context("operation", "tone").
			Build()
	}

	n := sampleRate / gcd(sampleRate, freq)
	slots := make([]uint32, n)
	for i := range slots {
		v := amplitude * math.MaxInt16 * math.Sin(2*math.Pi*float64(freq)*float64(i)/float64(sampleRate))
		slots[i] = Slot(int16(math.Round(v)))
	}
	return NewTable(slots, true), nil
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
