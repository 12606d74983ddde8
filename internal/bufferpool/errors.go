package bufferpool

import "github.com/tphakala/fifostream/internal/errors"

// Sentinels. errors.Is matches any error of the same category, so wrapped
// errors carrying extra context still match.
var (
	// ErrInit reports a pool that could not be created; fatal at startup
	ErrInit = errors.New(errors.NewStd("buffer pool initialization failed")).
		Component("bufferpool").
		Category(errors.CategoryStreamInit).
		Build()

	// ErrPoolExhausted reports an empty free list on a non-blocking acquire
	ErrPoolExhausted = errors.New(errors.NewStd("buffer pool exhausted")).
		Component("bufferpool").
		Category(errors.CategoryPoolExhausted).
		Build()

	// ErrPoolFull reports a release the free list cannot accept: full,
	// double release or a foreign chunk. Always a programming fault.
	ErrPoolFull = errors.New(errors.NewStd("buffer pool free list full")).
		Component("bufferpool").
		Category(errors.CategoryPoolFull).
		Build()
)
