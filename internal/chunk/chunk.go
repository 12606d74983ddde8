// Package chunk implements the fixed-capacity audio buffer that circulates
// between the buffer pool, the producer, the handoff queues and the
// interrupt handler.
package chunk

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/tphakala/fifostream/internal/errors"
)

// SampleWidth is the number of bytes per sample slot; one FIFO data word.
const SampleWidth = 4

// State tags who currently owns a chunk
type State uint32

const (
	StateFree     State = iota // on the pool free list
	StateFilling               // owned by a producer
	StateQueued                // inside a handoff queue
	StateInFlight              // owned by the interrupt handler or a consumer
)

func (s State) String() string {
	switch s {
	case StateFree:
		return "free"
	case StateFilling:
		return "filling"
	case StateQueued:
		return "queued"
	case StateInFlight:
		return "in-flight"
	default:
		return fmt.Sprintf("state(%d)", uint32(s))
	}
}

// Chunk is one fixed-capacity region of sample memory. The typed views alias
// the same storage; a chunk is used with a single width per lifetime.
type Chunk struct {
	id    int
	mem   []byte
	used  int
	state atomic.Uint32
}

// New wraps mem as a chunk. mem must be non-empty, word sized and word aligned.
func New(id int, mem []byte) (*Chunk, error) {
	if len(mem) == 0 {
		return nil, errors.Newf("chunk %d: backing memory is empty", id).
			Category(errors.CategoryStreamInit).
			Context("chunk_id", id).
			Build()
	}
	if len(mem)%SampleWidth != 0 {
		return nil, errors.Newf("chunk %d: capacity %d is not a multiple of %d", id, len(mem), SampleWidth).
			Category(errors.CategoryStreamInit).
			Context("chunk_id", id).
			Context("capacity", len(mem)).
			Build()
	}
	if uintptr(unsafe.Pointer(unsafe.SliceData(mem)))%SampleWidth != 0 {
		return nil, errors.Newf("chunk %d: backing memory is not %d-byte aligned", id, SampleWidth).
			Category(errors.CategoryStreamInit).
			Context("chunk_id", id).
			Build()
	}

	return &Chunk{id: id, mem: mem[:len(mem):len(mem)]}, nil
}

// ID returns the chunk index inside its pool
func (c *Chunk) ID() int { return c.id }

// Capacity returns the fixed size in bytes
func (c *Chunk) Capacity() int { return len(c.mem) }

// Used returns the number of valid bytes
func (c *Chunk) Used() int { return c.used }

// Samples returns the number of valid sample slots
func (c *Chunk) Samples() int { return c.used / SampleWidth }

// SetUsed sets the number of valid bytes
func (c *Chunk) SetUsed(n int) error {
	if n < 0 || n > len(c.mem) {
		return errors.Newf("chunk %d: used %d outside [0, %d]", c.id, n, len(c.mem)).
			Category(errors.CategoryValidation).
			Context("chunk_id", c.id).
			Build()
	}
	c.used = n
	return nil
}

// Reset marks the chunk empty
func (c *Chunk) Reset() { c.used = 0 }

// Bytes returns the used prefix of the buffer
func (c *Chunk) Bytes() []byte { return c.mem[:c.used] }

// Buffer returns the full capacity
func (c *Chunk) Buffer() []byte { return c.mem }

func (c *Chunk) Uint8() []uint8 { return c.mem }

func (c *Chunk) Int8() []int8 {
	return unsafe.Slice((*int8)(unsafe.Pointer(unsafe.SliceData(c.mem))), len(c.mem))
}

func (c *Chunk) Uint16() []uint16 {
	return unsafe.Slice((*uint16)(unsafe.Pointer(unsafe.SliceData(c.mem))), len(c.mem)/2)
}

func (c *Chunk) Int16() []int16 {
	return unsafe.Slice((*int16)(unsafe.Pointer(unsafe.SliceData(c.mem))), len(c.mem)/2)
}

// Uint32 returns the sample slot view used by the FIFO paths
func (c *Chunk) Uint32() []uint32 {
	return unsafe.Slice((*uint32)(unsafe.Pointer(unsafe.SliceData(c.mem))), len(c.mem)/SampleWidth)
}

func (c *Chunk) Int32() []int32 {
	return unsafe.Slice((*int32)(unsafe.Pointer(unsafe.SliceData(c.mem))), len(c.mem)/SampleWidth)
}

// State returns the current owner tag
func (c *Chunk) State() State { return State(c.state.Load()) }

// SetState unconditionally sets the owner tag
func (c *Chunk) SetState(s State) { c.state.Store(uint32(s)) }

// Transition moves from one state to another only if the chunk is in from
func (c *Chunk) Transition(from, to State) bool {
	return c.state.CompareAndSwap(uint32(from), uint32(to))
}

func (c *Chunk) String() string {
	return fmt.Sprintf("chunk[%d %d/%d %s]", c.id, c.used, len(c.mem), c.State())
}

// Copy copies the used bytes of src into dst and sets dst's used count.
// dst is left untouched if it cannot hold src.
func Copy(dst, src *Chunk) error {
	if dst.Capacity() < src.used {
		return errors.Newf("chunk copy: destination capacity %d < source used %d", dst.Capacity(), src.used).
			Category(errors.CategoryValidation).
			Context("src_chunk_id", src.id).
			Context("dst_chunk_id", dst.id).
			Build()
	}
	copy(dst.mem, src.mem[:src.used])
	dst.used = src.used
	return nil
}
