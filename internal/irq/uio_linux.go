//go:build linux

package irq

import (
	"context"
	"encoding/binary"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/tphakala/fifostream/internal/errors"
	"github.com/tphakala/fifostream/internal/logger"
)

// uioPollTimeoutMs bounds each poll so Wait notices cancellation
const uioPollTimeoutMs = 100

// UIO is an interrupt line backed by a Linux userspace I/O device. Reading
// the device yields a 4-byte event count; writing 1 unmasks the interrupt.
type UIO struct {
	mu     sync.Mutex
	fd     int
	path   string
	events uint32
}

// OpenUIO opens a UIO device such as /dev/uio0
func OpenUIO(path string) (*UIO, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, errors.New(err).
			Component("irq").
			Category(errors.CategoryHardware).
			Context("operation", "open_uio").
			Context("path", path).
			Build()
	}

	u := &UIO{fd: fd, path: path}
	if err := u.Rearm(); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	GetLogger().Info("uio interrupt line opened", logger.String("path", path))
	return u, nil
}

// Wait blocks until the device reports an interrupt or ctx ends
func (u *UIO) Wait(ctx context.Context) error {
	fds := []unix.PollFd{{Fd: int32(u.fd), Events: unix.POLLIN}}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := unix.Poll(fds, uioPollTimeoutMs)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return errors.New(err).
				Component("irq").
				Category(errors.CategoryHardware).
				Context("operation", "poll_uio").
				Context("path", u.path).
				Build()
		}
		if n == 0 {
			continue
		}

		var buf [4]byte
		if _, err := unix.Read(u.fd, buf[:]); err != nil {
			return errors.New(err).
				Component("irq").
				Category(errors.CategoryHardware).
				Context("operation", "read_uio").
				Context("path", u.path).
				Build()
		}
		u.mu.Lock()
		u.events = binary.NativeEndian.Uint32(buf[:])
		u.mu.Unlock()
		return nil
	}
}

// Rearm unmasks the interrupt in the UIO driver
func (u *UIO) Rearm() error {
	var buf [4]byte
	binary.NativeEndian.PutUint32(buf[:], 1)
	if _, err := unix.Write(u.fd, buf[:]); err != nil {
		return errors.New(err).
			Component("irq").
			Category(errors.CategoryHardware).
			Context("operation", "rearm_uio").
			Context("path", u.path).
			Build()
	}
	return nil
}

// Events returns the last event count read from the device
func (u *UIO) Events() uint32 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.events
}

// Close closes the device
func (u *UIO) Close() error {
	return unix.Close(u.fd)
}
