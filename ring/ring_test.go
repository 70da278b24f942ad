package ring_test

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romshark/hwsim-medium/ring"
)

func testConfig() ring.Config {
	return ring.Config{Order: 1, PageSize: 64, MaxRecord: 48}
}

func newRing(t *testing.T) *ring.Ring {
	t.Helper()
	r, err := ring.New(make([]byte, 128), testConfig())
	require.NoError(t, err)
	return r
}

// advance moves the write cursor of rx to the given offset by writing
// three throwaway records that wrap once.
func advance(t *testing.T, rx *ring.Region, to int) {
	t.Helper()
	total := to + rx.Size()
	for i := 3; i > 0; i-- {
		l := total / i
		_, err := rx.Write(make([]byte, l-ring.LengthPrefix))
		require.NoError(t, err)
		total -= l
	}
	require.Equal(t, to, rx.Cursor())
}

func TestSplit(t *testing.T) {
	mem := make([]byte, 256)
	r, err := ring.New(mem, ring.Config{Order: 2, PageSize: 64, RxFraction: 0.25, MaxRecord: 32})
	require.NoError(t, err)
	assert.Equal(t, 64, r.Rx().Size())
	assert.Equal(t, 192, r.Tx().Size())

	// The rx half comes first.
	_, err = r.Rx().Write([]byte{0xaa})
	require.NoError(t, err)
	assert.Equal(t, byte(1), mem[0])
	assert.Equal(t, byte(0xaa), mem[4])

	_, err = r.Tx().Write([]byte{0xbb})
	require.NoError(t, err)
	assert.Equal(t, byte(0xbb), mem[64+4])
}

func TestWrapAround(t *testing.T) {
	for start := range 64 {
		for _, n := range []int{0, 1, 5, 27, 48} {
			t.Run(fmt.Sprintf("start %d len %d", start, n), func(t *testing.T) {
				rx := newRing(t).Rx()
				advance(t, rx, start)
				require.Equal(t, start, rx.Cursor())

				payload := bytes.Repeat([]byte{byte(n + 1)}, n)
				off, err := rx.Write(payload)
				require.NoError(t, err)
				assert.Equal(t, start, off)

				got, next, err := rx.Read(off)
				require.NoError(t, err)
				assert.Equal(t, payload, got)
				assert.Equal(t, (start+ring.LengthPrefix+n)%rx.Size(), next)
				assert.Equal(t, next, rx.Cursor())
			})
		}
	}
}

func TestSplitPrefixAtBoundary(t *testing.T) {
	mem := make([]byte, 128)
	r, err := ring.New(mem, testConfig())
	require.NoError(t, err)
	rx := r.Rx()

	advance(t, rx, 62)

	off, err := rx.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 62, off)
	// The length prefix straddles the end of the half.
	assert.Equal(t, []byte{3, 0}, mem[62:64])
	assert.Equal(t, []byte{0, 0, 'a', 'b', 'c'}, mem[0:5])

	got, next, err := rx.Read(off)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
	assert.Equal(t, 5, next)
}

func TestSequentialRecords(t *testing.T) {
	r := newRing(t)
	tx := r.Tx()
	var offs []int
	for i := range 10 {
		off, err := tx.Write([]byte(fmt.Sprintf("record-%d", i)))
		require.NoError(t, err)
		offs = append(offs, off)
	}
	// Only the latest records survive wrapping; read back the last three
	// by following next offsets.
	off := offs[7]
	for i := 7; i < 10; i++ {
		p, next, err := tx.Read(off)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("record-%d", i), string(p))
		off = next
	}
}

func TestCorruption(t *testing.T) {
	mem := make([]byte, 128)
	r, err := ring.New(mem, testConfig())
	require.NoError(t, err)

	binary.LittleEndian.PutUint32(mem[64:], 49)
	_, _, err = r.Tx().Read(0)
	require.ErrorIs(t, err, ring.ErrRingCorruption)

	_, _, err = r.Tx().Read(64)
	require.ErrorIs(t, err, ring.ErrRingCorruption, "offset outside the half")

	_, _, err = r.Tx().Read(-1)
	require.ErrorIs(t, err, ring.ErrRingCorruption)

	_, err = r.Rx().Write(make([]byte, 49))
	require.ErrorIs(t, err, ring.ErrRecordTooLarge)
}

func TestMappingTooSmall(t *testing.T) {
	_, err := ring.New(make([]byte, 100), testConfig())
	require.ErrorIs(t, err, ring.ErrMappingTooSmall)
	require.ErrorIs(t, err, ring.ErrRingCorruption)
}

func TestClosed(t *testing.T) {
	r := newRing(t)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	_, err := r.Rx().Write([]byte("x"))
	require.ErrorIs(t, err, ring.ErrClosed)
	_, _, err = r.Tx().Read(0)
	require.ErrorIs(t, err, ring.ErrClosed)
}

func TestConfigValidation(t *testing.T) {
	c := ring.Config{}
	require.NoError(t, c.ValidateAndSetDefaults())
	assert.Equal(t, uint(ring.DefaultOrder), c.Order)
	assert.Equal(t, ring.DefaultRxFraction, c.RxFraction)
	assert.Equal(t, ring.DefaultMaxRecord, c.MaxRecord)
	assert.Equal(t, c.PageSize<<ring.DefaultOrder, c.Size())

	for name, c := range map[string]ring.Config{
		"order too large":    {Order: ring.MaxOrder + 1, PageSize: 64},
		"page not pow2":      {Order: 1, PageSize: 100},
		"fraction too large": {Order: 1, PageSize: 64, RxFraction: 1},
		"unsplittable":       {Order: 1, PageSize: 64, RxFraction: 0.1, MaxRecord: 8},
		"record too large":   {Order: 1, PageSize: 64, MaxRecord: 61},
	} {
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, c.ValidateAndSetDefaults(), ring.ErrInvalidConfig)
		})
	}
}

func TestConfigMaxRecordFitsHalf(t *testing.T) {
	c := ring.Config{Order: 1, PageSize: 4096}
	require.NoError(t, c.ValidateAndSetDefaults())
	assert.Equal(t, 4096-ring.LengthPrefix, c.MaxRecord)

	r, err := ring.New(make([]byte, c.Size()), c)
	require.NoError(t, err)
	_, err = r.Rx().Write(make([]byte, c.MaxRecord))
	require.NoError(t, err)

	c = ring.Config{Order: 4, PageSize: 4096}
	require.NoError(t, c.ValidateAndSetDefaults())
	assert.Equal(t, ring.DefaultMaxRecord, c.MaxRecord)

	c = ring.Config{Order: 1, PageSize: 4096, MaxRecord: ring.DefaultMaxRecord}
	require.ErrorIs(t, c.ValidateAndSetDefaults(), ring.ErrInvalidConfig)
}
