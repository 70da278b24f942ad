package hwsim

import (
	"encoding/binary"
	"fmt"

	"github.com/romshark/hwsim-medium/nla"
)

// HeaderLen is the size of the fixed 802.11 header prefix carried in FRAME
// and FRAME_HEADER.
const HeaderLen = 32

// Header80211 is the fixed 802.11 header prefix. Fields keep their on-air
// byte order.
type Header80211 struct {
	FrameControl [2]byte
	DurationID   [2]byte
	Addr1        MAC
	Addr2        MAC
	Addr3        MAC
	SeqCtrl      [2]byte
	Addr4        MAC
	QoS          [2]byte
}

func (h Header80211) append(b []byte) []byte {
	b = append(b, h.FrameControl[:]...)
	b = append(b, h.DurationID[:]...)
	b = append(b, h.Addr1[:]...)
	b = append(b, h.Addr2[:]...)
	b = append(b, h.Addr3[:]...)
	b = append(b, h.SeqCtrl[:]...)
	b = append(b, h.Addr4[:]...)
	return append(b, h.QoS[:]...)
}

// parseHeader decodes the first HeaderLen bytes of b.
func parseHeader(b []byte) (h Header80211, err error) {
	if len(b) < HeaderLen {
		return h, fmt.Errorf("%w: 802.11 header has %d bytes, want %d",
			nla.ErrMalformedAttribute, len(b), HeaderLen)
	}
	copy(h.FrameControl[:], b[0:2])
	copy(h.DurationID[:], b[2:4])
	copy(h.Addr1[:], b[4:10])
	copy(h.Addr2[:], b[10:16])
	copy(h.Addr3[:], b[16:22])
	copy(h.SeqCtrl[:], b[22:24])
	copy(h.Addr4[:], b[24:30])
	copy(h.QoS[:], b[30:32])
	return h, nil
}

// Frame is a transmitted 802.11 frame: the fixed header and the opaque rest.
type Frame struct {
	Header  Header80211
	Payload []byte
}

// Len returns the encoded length of the frame.
func (f Frame) Len() int { return HeaderLen + len(f.Payload) }

func (f Frame) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, f.Len())
	b = f.Header.append(b)
	return append(b, f.Payload...), nil
}

func (f *Frame) UnmarshalBinary(b []byte) error {
	h, err := parseHeader(b)
	if err != nil {
		return err
	}
	f.Header = h
	f.Payload = append([]byte(nil), b[HeaderLen:]...)
	return nil
}

// Clone returns a deep copy of f.
func (f Frame) Clone() Frame {
	f.Payload = append([]byte(nil), f.Payload...)
	return f
}

// TxRate is one attempt of the rate table. Idx -1 marks an unused slot.
type TxRate struct {
	Idx   int8
	Count uint8
}

// TxRates is the rate table of a transmission.
type TxRates [MaxRates]TxRate

// UnusedRates is a rate table with every slot unused.
var UnusedRates = TxRates{{Idx: -1}, {Idx: -1}, {Idx: -1}, {Idx: -1}}

const txRateLen = 2

func (r TxRates) attr(typ uint16) nla.Attr {
	b := make([]byte, 0, MaxRates*txRateLen)
	for _, x := range r {
		b = append(b, byte(x.Idx), x.Count)
	}
	return nla.Bytes(typ, b)
}

func parseTxRates(v []byte) (r TxRates, err error) {
	if len(v) != MaxRates*txRateLen {
		return r, fmt.Errorf("%w: tx info has %d bytes, want %d",
			nla.ErrMalformedAttribute, len(v), MaxRates*txRateLen)
	}
	for i := range r {
		r[i] = TxRate{Idx: int8(v[i*txRateLen]), Count: v[i*txRateLen+1]}
	}
	return r, nil
}

// RxRate returns the rate index reported to receivers: the first
// attempt's index, clamped at zero.
func (r TxRates) RxRate() uint32 { return uint32(max(r[0].Idx, 0)) }

// TxRateFlag is one entry of TX_INFO_FLAGS.
type TxRateFlag struct {
	Idx   int8
	Flags uint16
}

// TxRateFlags is the per-attempt flag table, packed on the wire.
type TxRateFlags [MaxRates]TxRateFlag

const txRateFlagLen = 3

func (r TxRateFlags) attr(typ uint16) nla.Attr {
	b := make([]byte, 0, MaxRates*txRateFlagLen)
	for _, x := range r {
		b = append(b, byte(x.Idx))
		b = binary.NativeEndian.AppendUint16(b, x.Flags)
	}
	return nla.Bytes(typ, b)
}

func parseTxRateFlags(v []byte) (r TxRateFlags, err error) {
	if len(v) != MaxRates*txRateFlagLen {
		return r, fmt.Errorf("%w: tx info flags has %d bytes, want %d",
			nla.ErrMalformedAttribute, len(v), MaxRates*txRateFlagLen)
	}
	for i := range r {
		o := i * txRateFlagLen
		r[i] = TxRateFlag{Idx: int8(v[o]), Flags: binary.NativeEndian.Uint16(v[o+1:])}
	}
	return r, nil
}

// ReceiverInfo names a radio that received a transmission.
type ReceiverInfo struct {
	Addr   MAC
	Signal int32
}

const receiverInfoLen = 10

func (ri ReceiverInfo) attr(typ uint16) nla.Attr {
	b := make([]byte, 0, receiverInfoLen)
	b = append(b, ri.Addr[:]...)
	b = binary.NativeEndian.AppendUint32(b, uint32(ri.Signal))
	return nla.Bytes(typ, b)
}

func parseReceiverInfo(v []byte) (ri ReceiverInfo, err error) {
	if len(v) != receiverInfoLen {
		return ri, fmt.Errorf("%w: receiver info has %d bytes, want %d",
			nla.ErrMalformedAttribute, len(v), receiverInfoLen)
	}
	copy(ri.Addr[:], v[:6])
	ri.Signal = int32(binary.NativeEndian.Uint32(v[6:]))
	return ri, nil
}
