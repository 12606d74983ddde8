package run

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tphakala/fifostream/internal/chunk"
)

// newChunk returns a standalone chunk of n sample slots
func newChunk(t *testing.T, n int) *chunk.Chunk {
	t.Helper()
	c, err := chunk.New(0, make([]byte, n*chunk.SampleWidth))
	require.NoError(t, err)
	return c
}
