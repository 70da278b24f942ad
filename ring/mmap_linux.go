//go:build linux

package ring

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Map maps the device file at path shared with the driver and lays a ring
// over it.
func Map(path string, conf Config) (*Ring, error) {
	if err := conf.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", path, err)
	}
	// The mapping keeps its own reference to the device.
	defer unix.Close(fd)

	mem, err := unix.Mmap(fd, 0, conf.Size(),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		return nil, fmt.Errorf("mmap %q: %w", path, err)
	}
	return wrap(mem, conf)
}

// MapAnonymous maps a private, page-backed region. Useful when no driver
// shares the ring, e.g. in loopback tests.
func MapAnonymous(conf Config) (*Ring, error) {
	if err := conf.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	mem, err := unix.Mmap(-1, 0, conf.Size(),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_POPULATE)
	if err != nil {
		return nil, fmt.Errorf("mmap anonymous: %w", err)
	}
	return wrap(mem, conf)
}

func wrap(mem []byte, conf Config) (*Ring, error) {
	r, err := New(mem, conf)
	if err != nil {
		return nil, errors.Join(err, unix.Munmap(mem))
	}
	r.unmap = func() error {
		if err := unix.Munmap(mem); err != nil {
			return fmt.Errorf("munmap: %w", err)
		}
		return nil
	}
	return r, nil
}
