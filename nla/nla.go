// Package nla encodes and decodes netlink attribute (NLA) sequences.
//
// Every attribute is laid out as:
//
//	+--------+--------+------------------------+---------+
//	| len u16| type u16| value (len-4 bytes)   | padding |
//	+--------+--------+------------------------+---------+
//
// len covers the 4-byte header plus the value but not the padding, which
// aligns the next attribute to a 4-byte boundary. Header fields use the
// host byte order, like the kernel does.
package nla

import (
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// HeaderLen is the size of an attribute header.
const HeaderLen = 4

// Align is the attribute alignment.
const Align = 4

const (
	// FlagNested and FlagNetByteOrder are carried in the top bits of the
	// type field and are masked off during decoding.
	FlagNested       = 0x8000
	FlagNetByteOrder = 0x4000
	TypeMask         = ^uint16(FlagNested | FlagNetByteOrder)
)

// maxValueLen is the largest value a single attribute can carry.
const maxValueLen = 0xffff - HeaderLen

var (
	ErrMalformedAttribute   = errors.New("malformed attribute")
	ErrUnknownAttributeType = errors.New("unknown attribute type")
)

// Attr is a single type-tagged value.
type Attr struct {
	Type  uint16
	Value []byte
}

// AlignLen rounds n up to the attribute alignment.
func AlignLen(n int) int { return (n + Align - 1) &^ (Align - 1) }

// Len returns the encoded size of the attribute including padding.
func (a Attr) Len() int { return AlignLen(HeaderLen + len(a.Value)) }

// Schema reports whether an attribute type is recognized.
type Schema interface {
	Known(typ uint16) bool
}

// Types is a Schema listing the recognized attribute types.
type Types map[uint16]struct{}

// NewTypes returns a Types schema for the given attribute types.
func NewTypes(types ...uint16) Types {
	t := make(Types, len(types))
	for _, typ := range types {
		t[typ] = struct{}{}
	}
	return t
}

func (t Types) Known(typ uint16) bool {
	_, ok := t[typ]
	return ok
}

// UnknownTypesError lists attribute types that were skipped during decoding.
// It matches ErrUnknownAttributeType.
type UnknownTypesError struct {
	Types []uint16
}

func (e *UnknownTypesError) Error() string {
	s := make([]string, len(e.Types))
	for i, t := range e.Types {
		s[i] = fmt.Sprint(t)
	}
	return fmt.Sprintf("%v: %s", ErrUnknownAttributeType, strings.Join(s, ","))
}

func (e *UnknownTypesError) Is(target error) bool {
	return target == ErrUnknownAttributeType
}

// EncodedLen returns the number of bytes Encode produces for attrs.
func EncodedLen(attrs []Attr) (n int) {
	for _, a := range attrs {
		n += a.Len()
	}
	return n
}

// Encode returns the wire encoding of attrs.
// It panics if a value exceeds the 16-bit length field.
func Encode(attrs []Attr) []byte {
	return AppendEncode(make([]byte, 0, EncodedLen(attrs)), attrs)
}

// AppendEncode appends the wire encoding of attrs to dst.
func AppendEncode(dst []byte, attrs []Attr) []byte {
	for _, a := range attrs {
		if len(a.Value) > maxValueLen {
			panic(fmt.Sprintf("nla: attribute %d value too long: %d", a.Type, len(a.Value)))
		}
		dst = binary.NativeEndian.AppendUint16(dst, uint16(HeaderLen+len(a.Value)))
		dst = binary.NativeEndian.AppendUint16(dst, a.Type)
		dst = append(dst, a.Value...)
		for pad := a.Len() - HeaderLen - len(a.Value); pad > 0; pad-- {
			dst = append(dst, 0)
		}
	}
	return dst
}

// Decode parses the attribute sequence in b.
//
// Attributes whose type is unknown to s are skipped; decoding continues and
// the returned error is an *UnknownTypesError. A nil schema accepts every
// type. A truncated or inconsistent header stops decoding with
// ErrMalformedAttribute and returns the attributes decoded before it.
// Returned values alias b; empty values are nil.
func Decode(b []byte, s Schema) ([]Attr, error) {
	var (
		attrs   []Attr
		unknown []uint16
	)
	for i := 0; i < len(b); {
		if len(b)-i < HeaderLen {
			return attrs, fmt.Errorf("%w: %d trailing bytes at offset %d",
				ErrMalformedAttribute, len(b)-i, i)
		}
		l := int(binary.NativeEndian.Uint16(b[i:]))
		typ := binary.NativeEndian.Uint16(b[i+2:]) & TypeMask
		if l < HeaderLen || l > len(b)-i {
			return attrs, fmt.Errorf("%w: length %d at offset %d exceeds %d remaining",
				ErrMalformedAttribute, l, i, len(b)-i)
		}
		if s == nil || s.Known(typ) {
			a := Attr{Type: typ}
			if l > HeaderLen {
				a.Value = b[i+HeaderLen : i+l]
			}
			attrs = append(attrs, a)
		} else if !slices.Contains(unknown, typ) {
			unknown = append(unknown, typ)
		}
		// The last attribute may come without its padding.
		i = min(i+AlignLen(l), len(b))
	}
	if len(unknown) > 0 {
		return attrs, &UnknownTypesError{Types: unknown}
	}
	return attrs, nil
}

// Find returns the value of the last attribute of the given type.
func Find(attrs []Attr, typ uint16) (v []byte, ok bool) {
	for i := len(attrs) - 1; i >= 0; i-- {
		if attrs[i].Type == typ {
			return attrs[i].Value, true
		}
	}
	return nil, false
}
