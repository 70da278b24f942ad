// Package ring implements the shared memory transport between the medium
// and the driver.
//
// Each radio owns one mapped region of PageSize × 2^Order bytes. The first
// part is the receive half, written by the medium; the rest is the transmit
// half, written by the driver. Within a half, records are a little-endian
// u32 length followed by the payload, laid out circularly:
//
//	+---------+--------------+---------+----------- ... ----+
//	| len u32 | payload      | len u32 | payload (wraps ->) |
//	+---------+--------------+---------+----------- ... ----+
//
// Neither side tracks how much is left to read. Control messages carry the
// offset of exactly one record.
package ring

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
)

var (
	ErrRingCorruption  = errors.New("ring corruption")
	ErrMappingTooSmall = fmt.Errorf("%w: mapping too small", ErrRingCorruption)
	ErrClosed          = errors.New("ring closed")
	ErrRecordTooLarge  = errors.New("record exceeds maximum size")
	ErrInvalidConfig   = errors.New("invalid ring config")
)

const (
	DefaultOrder      = 4
	DefaultRxFraction = 0.5
	DefaultMaxRecord  = 8192
	MaxOrder          = 16

	// LengthPrefix is the size of a record header.
	LengthPrefix = 4
)

type Config struct {
	// Order sets the region size to PageSize × 2^Order. A single page
	// cannot hold both halves, so 0 selects DefaultOrder.
	Order uint
	// PageSize defaults to the system page size.
	PageSize int
	// RxFraction is the share of the region given to the receive half,
	// rounded to whole pages.
	RxFraction float64
	// MaxRecord bounds the payload length of a single record. When unset
	// it is DefaultMaxRecord capped to what the smaller half can hold.
	MaxRecord int
}

func (c *Config) ValidateAndSetDefaults() error {
	if c.Order == 0 {
		c.Order = DefaultOrder
	}
	if c.PageSize == 0 {
		c.PageSize = os.Getpagesize()
	}
	if c.RxFraction == 0 {
		c.RxFraction = DefaultRxFraction
	}
	switch {
	case c.Order > MaxOrder:
		return fmt.Errorf("%w: order %d above %d", ErrInvalidConfig, c.Order, MaxOrder)
	case c.PageSize < 0 || c.PageSize&(c.PageSize-1) != 0:
		return fmt.Errorf("%w: page size %d is not a power of two", ErrInvalidConfig, c.PageSize)
	case c.RxFraction <= 0 || c.RxFraction >= 1:
		return fmt.Errorf("%w: rx fraction %v outside (0,1)", ErrInvalidConfig, c.RxFraction)
	case c.MaxRecord < 0:
		return fmt.Errorf("%w: negative max record", ErrInvalidConfig)
	}
	rx, tx := c.split()
	if rx == 0 || tx == 0 {
		return fmt.Errorf("%w: %d pages cannot be split %v", ErrInvalidConfig, 1<<c.Order, c.RxFraction)
	}
	if c.MaxRecord == 0 {
		c.MaxRecord = min(DefaultMaxRecord, min(rx, tx)-LengthPrefix)
		return nil
	}
	if LengthPrefix+c.MaxRecord > min(rx, tx) {
		return fmt.Errorf("%w: max record %d does not fit a %d byte half",
			ErrInvalidConfig, c.MaxRecord, min(rx, tx))
	}
	return nil
}

// Size returns the size of the whole region.
func (c Config) Size() int { return c.PageSize << c.Order }

func (c Config) split() (rx, tx int) {
	pages := 1 << c.Order
	rxPages := int(math.Round(float64(pages) * c.RxFraction))
	rxPages = min(max(rxPages, 0), pages)
	return rxPages * c.PageSize, (pages - rxPages) * c.PageSize
}

// Region is one circular half of a ring.
type Region struct {
	mem       []byte
	cursor    int
	maxRecord int
	closed    *bool
}

// Size returns the region size in bytes.
func (r *Region) Size() int { return len(r.mem) }

// Cursor returns the offset the next Write starts at.
func (r *Region) Cursor() int { return r.cursor }

// Write appends a record and returns its start offset.
func (r *Region) Write(p []byte) (start int, err error) {
	if *r.closed {
		return 0, ErrClosed
	}
	if len(p) > r.maxRecord {
		return 0, fmt.Errorf("%w: %d > %d", ErrRecordTooLarge, len(p), r.maxRecord)
	}
	start = r.cursor
	var hdr [LengthPrefix]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(p)))
	off := r.put(start, hdr[:])
	r.cursor = r.put(off, p)
	return start, nil
}

// Read returns the payload of the record at off and the offset following
// it. The payload is a copy.
func (r *Region) Read(off int) (payload []byte, next int, err error) {
	if *r.closed {
		return nil, 0, ErrClosed
	}
	if off < 0 || off >= len(r.mem) {
		return nil, 0, fmt.Errorf("%w: offset %d outside %d byte region",
			ErrRingCorruption, off, len(r.mem))
	}
	var hdr [LengthPrefix]byte
	off = r.get(off, hdr[:])
	n := int(binary.LittleEndian.Uint32(hdr[:]))
	if n > r.maxRecord || n > len(r.mem)-LengthPrefix {
		return nil, 0, fmt.Errorf("%w: record length %d exceeds %d",
			ErrRingCorruption, n, r.maxRecord)
	}
	payload = make([]byte, n)
	return payload, r.get(off, payload), nil
}

// put copies p at off, wrapping at the end, and returns the next offset.
func (r *Region) put(off int, p []byte) int {
	n := copy(r.mem[off:], p)
	if n < len(p) {
		n += copy(r.mem, p[n:])
	}
	return (off + n) % len(r.mem)
}

// get fills p from off, wrapping at the end, and returns the next offset.
func (r *Region) get(off int, p []byte) int {
	n := copy(p, r.mem[off:])
	if n < len(p) {
		n += copy(p[n:], r.mem)
	}
	return (off + n) % len(r.mem)
}

// Ring is a radio's mapped region split into its two halves.
//
// WARNING: Ring is not safe for concurrent use.
type Ring struct {
	rx, tx *Region
	closed bool
	unmap  func() error
}

// New lays a ring over mem, which must hold at least conf.Size() bytes.
func New(mem []byte, conf Config) (*Ring, error) {
	if err := conf.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	if len(mem) < conf.Size() {
		return nil, fmt.Errorf("%w: %d bytes, want %d", ErrMappingTooSmall, len(mem), conf.Size())
	}
	rxLen, _ := conf.split()
	r := &Ring{}
	r.rx = &Region{mem: mem[:rxLen:rxLen], maxRecord: conf.MaxRecord, closed: &r.closed}
	r.tx = &Region{mem: mem[rxLen:conf.Size()], maxRecord: conf.MaxRecord, closed: &r.closed}
	return r, nil
}

// Rx returns the receive half, written by the medium.
func (r *Ring) Rx() *Region { return r.rx }

// Tx returns the transmit half, written by the driver.
func (r *Ring) Tx() *Region { return r.tx }

// Close releases the mapping. Further reads and writes fail with ErrClosed.
func (r *Ring) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.rx.mem, r.tx.mem = nil, nil
	if r.unmap != nil {
		return r.unmap()
	}
	return nil
}
