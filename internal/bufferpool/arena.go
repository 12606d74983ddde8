package bufferpool

import (
	"unsafe"

	"github.com/tphakala/fifostream/internal/chunk"
)

// Backing selects where the pool arena lives
type Backing string

const (
	BackingHeap Backing = "heap"
	BackingMmap Backing = "mmap"
)

// heapArena allocates a word-aligned arena on the Go heap
func heapArena(size int) []byte {
	words := make([]uint32, size/chunk.SampleWidth)
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(words))), size)
}

// allocArena returns the arena and a function releasing it
func allocArena(backing Backing, size int) ([]byte, func() error, error) {
	switch backing {
	case BackingMmap:
		return mmapArena(size)
	default:
		return heapArena(size), func() error { return nil }, nil
	}
}
