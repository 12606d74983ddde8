//go:build !unix

package bufferpool

// mmapArena falls back to the heap where anonymous mappings are unavailable
func mmapArena(size int) ([]byte, func() error, error) {
	return heapArena(size), func() error { return nil }, nil
}
