// Package genl frames generic netlink messages and talks to the kernel over
// a NETLINK_GENERIC socket.
//
// A generic netlink message is a 16-byte netlink header, a 4-byte generic
// header (command, version, reserved) and an attribute payload:
//
//	+-------------------+---------------------+-------------------+
//	| nlmsghdr (16)     | genlmsghdr (4)      | attributes ...    |
//	| len type flags    | cmd version 0 0     |                   |
//	| seq pid           |                     |                   |
//	+-------------------+---------------------+-------------------+
package genl

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"syscall"
)

const (
	HeaderLen     = 16
	GenlHeaderLen = 4
	msgAlign      = 4
)

// Netlink message types and flags.
const (
	TypeNoop    uint16 = 0x1
	TypeError   uint16 = 0x2
	TypeDone    uint16 = 0x3
	TypeOverrun uint16 = 0x4

	FlagRequest uint16 = 0x1
	FlagMulti   uint16 = 0x2
	FlagAck     uint16 = 0x4
	FlagEcho    uint16 = 0x8
	FlagRoot    uint16 = 0x100
	FlagMatch   uint16 = 0x200
	FlagDump           = FlagRoot | FlagMatch
)

var (
	ErrShortMessage = errors.New("short netlink message")
	ErrBadLength    = errors.New("bad netlink message length")
	ErrClosed       = errors.New("netlink connection closed")
)

// Header is the netlink message header.
type Header struct {
	Len   uint32
	Type  uint16
	Flags uint16
	Seq   uint32
	PID   uint32
}

// Message is a single netlink message. For generic netlink messages Command
// and Version hold the generic header and Payload the attribute bytes. For
// control messages (error, done) Payload holds the body after the netlink
// header.
type Message struct {
	Header  Header
	Command uint8
	Version uint8
	Payload []byte
}

// IsControl reports whether m is a netlink control message rather than a
// generic netlink one.
func (m Message) IsControl() bool { return m.Header.Type < 0x10 }

// MarshalBinary encodes m, computing the length field.
func (m Message) MarshalBinary() ([]byte, error) {
	n := HeaderLen + GenlHeaderLen + len(m.Payload)
	if n > math.MaxInt32 {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadLength, n)
	}
	b := make([]byte, HeaderLen, align(n))
	binary.NativeEndian.PutUint32(b[0:], uint32(n))
	binary.NativeEndian.PutUint16(b[4:], m.Header.Type)
	binary.NativeEndian.PutUint16(b[6:], m.Header.Flags)
	binary.NativeEndian.PutUint32(b[8:], m.Header.Seq)
	binary.NativeEndian.PutUint32(b[12:], m.Header.PID)
	b = append(b, m.Command, m.Version, 0, 0)
	b = append(b, m.Payload...)
	return b[:align(n)], nil
}

// ParseMessages splits a received datagram into messages. Payloads alias b.
func ParseMessages(b []byte) ([]Message, error) {
	var msgs []Message
	for len(b) > 0 {
		if len(b) < HeaderLen {
			return msgs, fmt.Errorf("%w: %d bytes", ErrShortMessage, len(b))
		}
		h := Header{
			Len:   binary.NativeEndian.Uint32(b[0:]),
			Type:  binary.NativeEndian.Uint16(b[4:]),
			Flags: binary.NativeEndian.Uint16(b[6:]),
			Seq:   binary.NativeEndian.Uint32(b[8:]),
			PID:   binary.NativeEndian.Uint32(b[12:]),
		}
		if h.Len < HeaderLen || int(h.Len) > len(b) {
			return msgs, fmt.Errorf("%w: %d of %d bytes", ErrBadLength, h.Len, len(b))
		}
		m := Message{Header: h}
		body := b[HeaderLen:h.Len]
		switch {
		case m.IsControl():
			m.Payload = body
		case len(body) < GenlHeaderLen:
			return msgs, fmt.Errorf("%w: generic header of type %d", ErrShortMessage, h.Type)
		default:
			m.Command, m.Version = body[0], body[1]
			m.Payload = body[GenlHeaderLen:]
		}
		msgs = append(msgs, m)
		b = b[min(align(int(h.Len)), len(b)):]
	}
	return msgs, nil
}

// AckError is a negative acknowledgement from the kernel.
type AckError struct {
	Errno syscall.Errno
}

func (e *AckError) Error() string { return "netlink: " + e.Errno.Error() }

func (e *AckError) Unwrap() error { return e.Errno }

// Ack decodes an error message. ok is false for other message types.
// A non-negative code is a positive acknowledgement (some families, like
// mac80211_hwsim for NEW_RADIO, return a value through it); a negative code
// is reported as *AckError. seq is the sequence number of the request.
func (m Message) Ack() (code int32, seq uint32, ok bool, err error) {
	if m.Header.Type != TypeError {
		return 0, 0, false, nil
	}
	if len(m.Payload) < 4 {
		return 0, 0, true, fmt.Errorf("%w: error body", ErrShortMessage)
	}
	code = int32(binary.NativeEndian.Uint32(m.Payload))
	seq = m.Header.Seq
	if len(m.Payload) >= 4+HeaderLen {
		// Sequence number of the original request header.
		seq = binary.NativeEndian.Uint32(m.Payload[4+8:])
	}
	if code < 0 {
		return code, seq, true, &AckError{Errno: syscall.Errno(-code)}
	}
	return code, seq, true, nil
}

// AckMessage builds the error message the kernel sends in reply to req.
// It is used by fakes of the kernel side.
func AckMessage(req Header, code int32) Message {
	body := binary.NativeEndian.AppendUint32(nil, uint32(code))
	body = binary.NativeEndian.AppendUint32(body, req.Len)
	body = binary.NativeEndian.AppendUint16(body, req.Type)
	body = binary.NativeEndian.AppendUint16(body, req.Flags)
	body = binary.NativeEndian.AppendUint32(body, req.Seq)
	body = binary.NativeEndian.AppendUint32(body, req.PID)
	return Message{
		Header:  Header{Type: TypeError, Seq: req.Seq, PID: req.PID},
		Payload: body,
	}
}

// MarshalControl encodes a control message (error, done) whose Payload is
// the raw body.
func MarshalControl(m Message) []byte {
	n := HeaderLen + len(m.Payload)
	b := make([]byte, align(n))
	binary.NativeEndian.PutUint32(b[0:], uint32(n))
	binary.NativeEndian.PutUint16(b[4:], m.Header.Type)
	binary.NativeEndian.PutUint16(b[6:], m.Header.Flags)
	binary.NativeEndian.PutUint32(b[8:], m.Header.Seq)
	binary.NativeEndian.PutUint32(b[12:], m.Header.PID)
	copy(b[HeaderLen:], m.Payload)
	return b
}

func align(n int) int { return (n + msgAlign - 1) &^ (msgAlign - 1) }
