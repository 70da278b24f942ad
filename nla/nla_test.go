package nla_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romshark/hwsim-medium/nla"
)

func TestEncodeLayout(t *testing.T) {
	b := nla.Encode([]nla.Attr{
		nla.Bytes(2, []byte{1, 2, 3, 4, 5, 6}),
		nla.Flag(14),
	})
	require.Len(t, b, 12+4)

	assert.Equal(t, uint16(10), binary.NativeEndian.Uint16(b[0:]))
	assert.Equal(t, uint16(2), binary.NativeEndian.Uint16(b[2:]))
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, b[4:10])
	assert.Equal(t, []byte{0, 0}, b[10:12], "padding")

	assert.Equal(t, uint16(4), binary.NativeEndian.Uint16(b[12:]))
	assert.Equal(t, uint16(14), binary.NativeEndian.Uint16(b[14:]))
}

func TestRoundTrip(t *testing.T) {
	attrs := []nla.Attr{
		nla.Bytes(1, []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}),
		nla.Uint32(4, 0xdeadbeef),
		nla.Uint64(8, 0x0102030405060708),
		nla.Flag(14),
		nla.String(17, "radio-1"),
		nla.Bytes(7, []byte{0, 1, 0xff, 0, 0xff, 0, 0xff, 0}),
		nla.Uint16(3, 7),
		nla.Int32(6, -61),
		nla.Uint32s(24, []uint32{0x000fac01, 0x000fac05}),
	}
	got, err := nla.Decode(nla.Encode(attrs), nil)
	require.NoError(t, err)
	require.Equal(t, attrs, got)
	require.Equal(t, nla.EncodedLen(attrs), len(nla.Encode(attrs)))
}

func TestDecodeSkipsUnknownTypes(t *testing.T) {
	b := nla.Encode([]nla.Attr{
		nla.Uint32(4, 1),
		nla.Bytes(200, []byte("ignored")),
		nla.Uint32(5, 2),
		nla.Flag(201),
	})
	got, err := nla.Decode(b, nla.NewTypes(4, 5))
	require.ErrorIs(t, err, nla.ErrUnknownAttributeType)

	var unknown *nla.UnknownTypesError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, []uint16{200, 201}, unknown.Types)

	require.Equal(t, []nla.Attr{nla.Uint32(4, 1), nla.Uint32(5, 2)}, got)
}

func TestDecodeMalformed(t *testing.T) {
	good := nla.Encode([]nla.Attr{nla.Uint32(4, 9)})

	t.Run("length exceeds buffer", func(t *testing.T) {
		b := append([]byte(nil), good...)
		b = binary.NativeEndian.AppendUint16(b, 64)
		b = binary.NativeEndian.AppendUint16(b, 5)
		b = append(b, 1, 2, 3, 4)

		got, err := nla.Decode(b, nil)
		require.ErrorIs(t, err, nla.ErrMalformedAttribute)
		require.Equal(t, []nla.Attr{nla.Uint32(4, 9)}, got)
	})

	t.Run("length below header", func(t *testing.T) {
		b := binary.NativeEndian.AppendUint16(nil, 2)
		b = binary.NativeEndian.AppendUint16(b, 5)
		_, err := nla.Decode(b, nil)
		require.ErrorIs(t, err, nla.ErrMalformedAttribute)
	})

	t.Run("truncated header", func(t *testing.T) {
		_, err := nla.Decode(append(good, 0, 0), nil)
		require.ErrorIs(t, err, nla.ErrMalformedAttribute)
	})
}

func TestDecodeUnpaddedTail(t *testing.T) {
	b := nla.Encode([]nla.Attr{nla.Bytes(3, []byte{9, 8, 7})})
	got, err := nla.Decode(b[:7], nil)
	require.NoError(t, err)
	require.Equal(t, []nla.Attr{nla.Bytes(3, []byte{9, 8, 7})}, got)
}

func TestDecodeMasksFlagBits(t *testing.T) {
	b := binary.NativeEndian.AppendUint16(nil, 4)
	b = binary.NativeEndian.AppendUint16(b, 7|nla.FlagNested)
	got, err := nla.Decode(b, nla.NewTypes(7))
	require.NoError(t, err)
	require.Equal(t, []nla.Attr{{Type: 7}}, got)
}

func TestParsers(t *testing.T) {
	v, err := nla.ParseUint32(nla.Uint32(0, 42).Value)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), v)

	_, err = nla.ParseUint32([]byte{1, 2})
	require.ErrorIs(t, err, nla.ErrMalformedAttribute)

	_, err = nla.ParseUint64(nla.Uint32(0, 1).Value)
	require.ErrorIs(t, err, nla.ErrMalformedAttribute)

	i, err := nla.ParseInt32(nla.Int32(0, -61).Value)
	require.NoError(t, err)
	assert.Equal(t, int32(-61), i)

	var mac [6]byte
	require.NoError(t, nla.ParseFixed(mac[:], []byte{1, 2, 3, 4, 5, 6}))
	assert.Equal(t, [6]byte{1, 2, 3, 4, 5, 6}, mac)
	require.ErrorIs(t, nla.ParseFixed(mac[:], []byte{1}), nla.ErrMalformedAttribute)

	assert.Equal(t, "phy0", nla.ParseString([]byte("phy0\x00\x00")))
	assert.Equal(t, "a�b", nla.ParseString([]byte{'a', 0xff, 'b'}))

	u, err := nla.ParseUint32s(nla.Uint32s(0, []uint32{1, 2, 3}).Value)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2, 3}, u)
	_, err = nla.ParseUint32s([]byte{1, 2, 3})
	require.ErrorIs(t, err, nla.ErrMalformedAttribute)
}

func TestFindLastOccurrence(t *testing.T) {
	attrs := []nla.Attr{nla.Uint32(4, 1), nla.Uint32(5, 2), nla.Uint32(4, 3)}
	v, ok := nla.Find(attrs, 4)
	require.True(t, ok)
	n, err := nla.ParseUint32(v)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), n)

	_, ok = nla.Find(attrs, 9)
	assert.False(t, ok)
}
