//go:build !linux

package irq

import (
	"context"

	"github.com/tphakala/fifostream/internal/errors"
)

// UIO is only available on Linux
type UIO struct{}

// OpenUIO always fails outside Linux
func OpenUIO(path string) (*UIO, error) {
	return nil, errors.Newf("uio interrupt lines are only supported on linux").
		Component("irq").
		Category(errors.CategoryHardware).
		Context("path", path).
		Build()
}

func (u *UIO) Wait(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (u *UIO) Rearm() error { return nil }

func (u *UIO) Events() uint32 { return 0 }

func (u *UIO) Close() error { return nil }
