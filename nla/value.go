package nla

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Constructors for the common fixed-shape values.

func Flag(typ uint16) Attr { return Attr{Type: typ} }

func Bytes(typ uint16, v []byte) Attr { return Attr{Type: typ, Value: v} }

func String(typ uint16, v string) Attr { return Attr{Type: typ, Value: []byte(v)} }

func Uint16(typ uint16, v uint16) Attr {
	return Attr{Type: typ, Value: binary.NativeEndian.AppendUint16(nil, v)}
}

func Uint32(typ uint16, v uint32) Attr {
	return Attr{Type: typ, Value: binary.NativeEndian.AppendUint32(nil, v)}
}

func Uint64(typ uint16, v uint64) Attr {
	return Attr{Type: typ, Value: binary.NativeEndian.AppendUint64(nil, v)}
}

func Int32(typ uint16, v int32) Attr { return Uint32(typ, uint32(v)) }

func Int64(typ uint16, v int64) Attr { return Uint64(typ, uint64(v)) }

// Parsers. Each checks the exact width of the value.

func width(v []byte, n int, what string) error {
	if len(v) != n {
		return fmt.Errorf("%w: %s value has %d bytes, want %d",
			ErrMalformedAttribute, what, len(v), n)
	}
	return nil
}

func ParseUint16(v []byte) (uint16, error) {
	if err := width(v, 2, "u16"); err != nil {
		return 0, err
	}
	return binary.NativeEndian.Uint16(v), nil
}

func ParseUint32(v []byte) (uint32, error) {
	if err := width(v, 4, "u32"); err != nil {
		return 0, err
	}
	return binary.NativeEndian.Uint32(v), nil
}

func ParseUint64(v []byte) (uint64, error) {
	if err := width(v, 8, "u64"); err != nil {
		return 0, err
	}
	return binary.NativeEndian.Uint64(v), nil
}

func ParseInt32(v []byte) (int32, error) {
	u, err := ParseUint32(v)
	return int32(u), err
}

func ParseInt64(v []byte) (int64, error) {
	u, err := ParseUint64(v)
	return int64(u), err
}

// ParseFixed copies v into dst, which must have exactly len(v) bytes.
func ParseFixed(dst []byte, v []byte) error {
	if err := width(v, len(dst), fmt.Sprintf("%d-byte", len(dst))); err != nil {
		return err
	}
	copy(dst, v)
	return nil
}

// ParseString decodes a string value. Trailing NUL bytes are trimmed and
// invalid UTF-8 sequences are replaced rather than rejected.
func ParseString(v []byte) string {
	v = bytes.TrimRight(v, "\x00")
	if utf8.Valid(v) {
		return string(v)
	}
	return strings.ToValidUTF8(string(v), string(utf8.RuneError))
}

// ParseUint32s decodes an array of u32 values.
func ParseUint32s(v []byte) ([]uint32, error) {
	if len(v)%4 != 0 {
		return nil, fmt.Errorf("%w: u32 array of %d bytes", ErrMalformedAttribute, len(v))
	}
	out := make([]uint32, len(v)/4)
	for i := range out {
		out[i] = binary.NativeEndian.Uint32(v[4*i:])
	}
	return out, nil
}

// Uint32s encodes an array of u32 values.
func Uint32s(typ uint16, v []uint32) Attr {
	b := make([]byte, 0, 4*len(v))
	for _, x := range v {
		b = binary.NativeEndian.AppendUint32(b, x)
	}
	return Attr{Type: typ, Value: b}
}
