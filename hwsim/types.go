package hwsim

import (
	"fmt"

	"github.com/romshark/hwsim-medium/nla"
)

// Register subscribes the connection to the radios' transmissions.
type Register struct{}

func (*Register) Command() Command { return CmdRegister }

func (*Register) MarshalAttributes() ([]nla.Attr, error) { return nil, nil }

func (*Register) UnmarshalAttributes([]nla.Attr) error {
	return unsupported("register", "from attributes")
}

// NewRadio creates a radio. GetRadio replies use the same shape.
type NewRadio struct {
	// ID is only set in replies.
	ID               *uint32
	Channels         uint32
	RegHintAlpha2    string
	RegCustomReg     *uint32
	RegStrictReg     bool
	SupportP2PDevice bool
	UseChanctx       bool
	DestroyOnClose   bool
	Name             string
	NoVIF            bool
	PermAddr         MAC
	IftypeSupport    uint32
	CipherSupport    []uint32
	// SMPageNum requests a shared memory ring of 2^SMPageNum pages.
	SMPageNum uint32
}

func (*NewRadio) Command() Command { return CmdNewRadio }

func (r *NewRadio) MarshalAttributes() ([]nla.Attr, error) {
	attrs := []nla.Attr{nla.Uint32(AttrChannels, r.Channels)}
	if r.RegHintAlpha2 != "" {
		if len(r.RegHintAlpha2) != 2 {
			return nil, fmt.Errorf("regulatory hint %q is not an alpha2 code", r.RegHintAlpha2)
		}
		attrs = append(attrs, nla.String(AttrRegHintAlpha2, r.RegHintAlpha2))
	}
	if r.RegCustomReg != nil {
		attrs = append(attrs, nla.Uint32(AttrRegCustomReg, *r.RegCustomReg))
	}
	if r.RegStrictReg {
		attrs = append(attrs, nla.Flag(AttrRegStrictReg))
	}
	if r.SupportP2PDevice {
		attrs = append(attrs, nla.Flag(AttrSupportP2PDevice))
	}
	if r.UseChanctx {
		attrs = append(attrs, nla.Flag(AttrUseChanctx))
	}
	if r.DestroyOnClose {
		attrs = append(attrs, nla.Flag(AttrDestroyRadioOnClose))
	}
	if r.Name != "" {
		attrs = append(attrs, nla.String(AttrRadioName, r.Name))
	}
	if r.NoVIF {
		attrs = append(attrs, nla.Flag(AttrNoVIF))
	}
	if !r.PermAddr.IsZero() {
		attrs = append(attrs, nla.Bytes(AttrPermAddr, r.PermAddr[:]))
	}
	if r.IftypeSupport != 0 {
		attrs = append(attrs, nla.Uint32(AttrIftypeSupport, r.IftypeSupport))
	}
	if len(r.CipherSupport) > 0 {
		attrs = append(attrs, nla.Uint32s(AttrCipherSupport, r.CipherSupport))
	}
	if r.SMPageNum != 0 {
		attrs = append(attrs, nla.Uint32(AttrSMPageNum, r.SMPageNum))
	}
	if r.ID != nil {
		attrs = append(attrs, nla.Uint32(AttrRadioID, *r.ID))
	}
	return attrs, nil
}

func (r *NewRadio) UnmarshalAttributes(attrs []nla.Attr) error {
	*r = NewRadio{}
	for _, a := range attrs {
		var err error
		switch a.Type {
		case AttrRadioID:
			r.ID, err = parseUint32Ptr(a.Value)
		case AttrChannels:
			r.Channels, err = nla.ParseUint32(a.Value)
		case AttrRegHintAlpha2:
			r.RegHintAlpha2 = nla.ParseString(a.Value)
		case AttrRegCustomReg:
			r.RegCustomReg, err = parseUint32Ptr(a.Value)
		case AttrRegStrictReg:
			r.RegStrictReg = true
		case AttrSupportP2PDevice:
			r.SupportP2PDevice = true
		case AttrUseChanctx:
			r.UseChanctx = true
		case AttrDestroyRadioOnClose:
			r.DestroyOnClose = true
		case AttrRadioName:
			r.Name = nla.ParseString(a.Value)
		case AttrNoVIF:
			r.NoVIF = true
		case AttrPermAddr:
			err = nla.ParseFixed(r.PermAddr[:], a.Value)
		case AttrIftypeSupport:
			r.IftypeSupport, err = nla.ParseUint32(a.Value)
		case AttrCipherSupport:
			r.CipherSupport, err = nla.ParseUint32s(a.Value)
		case AttrSMPageNum:
			r.SMPageNum, err = nla.ParseUint32(a.Value)
		}
		if err != nil {
			return fmt.Errorf("attribute %d: %w", a.Type, err)
		}
	}
	return nil
}

// DelRadio deletes a radio by id or name. The driver broadcasts the same
// shape when a radio goes away.
type DelRadio struct {
	ID   *uint32
	Name string
}

func (*DelRadio) Command() Command { return CmdDelRadio }

func (r *DelRadio) MarshalAttributes() ([]nla.Attr, error) {
	var attrs []nla.Attr
	if r.ID != nil {
		attrs = append(attrs, nla.Uint32(AttrRadioID, *r.ID))
	}
	if r.Name != "" {
		attrs = append(attrs, nla.String(AttrRadioName, r.Name))
	}
	if len(attrs) == 0 {
		return nil, fmt.Errorf("del radio: neither id nor name set")
	}
	return attrs, nil
}

func (r *DelRadio) UnmarshalAttributes(attrs []nla.Attr) error {
	*r = DelRadio{}
	for _, a := range attrs {
		var err error
		switch a.Type {
		case AttrRadioID:
			r.ID, err = parseUint32Ptr(a.Value)
		case AttrRadioName:
			r.Name = nla.ParseString(a.Value)
		}
		if err != nil {
			return fmt.Errorf("attribute %d: %w", a.Type, err)
		}
	}
	return nil
}

// RadioQuery asks for one radio, or for all of them when ID is nil.
type RadioQuery struct {
	ID *uint32
}

func (*RadioQuery) Command() Command { return CmdGetRadio }

func (q *RadioQuery) MarshalAttributes() ([]nla.Attr, error) {
	if q.ID == nil {
		return nil, nil
	}
	return []nla.Attr{nla.Uint32(AttrRadioID, *q.ID)}, nil
}

func (*RadioQuery) UnmarshalAttributes([]nla.Attr) error {
	return unsupported("radio query", "from attributes")
}

// FrameTx is a transmission reported by the driver, either inline (Frame)
// or through the shared memory ring (TxInfoNotify merged with the ring
// record).
type FrameTx struct {
	Transmitter MAC
	// Frame is nil when the message carried no frame body.
	Frame       *Frame
	Flags       uint32
	Rates       TxRates
	RateFlags   TxRateFlags
	Cookie      uint64
	Freq        uint32
	Header      *Header80211
	FrameLength uint32
	Timestamp   uint64
	SMPointer   *uint64
}

func (*FrameTx) Command() Command { return CmdFrame }

func (*FrameTx) MarshalAttributes() ([]nla.Attr, error) {
	return nil, unsupported("frame tx", "to attributes")
}

func (t *FrameTx) UnmarshalAttributes(attrs []nla.Attr) error {
	*t = FrameTx{}
	for _, a := range attrs {
		var err error
		switch a.Type {
		case AttrAddrTransmitter:
			err = nla.ParseFixed(t.Transmitter[:], a.Value)
		case AttrFrame:
			f := new(Frame)
			if err = f.UnmarshalBinary(a.Value); err == nil {
				t.Frame = f
			}
		case AttrFlags:
			t.Flags, err = nla.ParseUint32(a.Value)
		case AttrTxInfo:
			t.Rates, err = parseTxRates(a.Value)
		case AttrTxInfoFlags:
			t.RateFlags, err = parseTxRateFlags(a.Value)
		case AttrCookie:
			t.Cookie, err = nla.ParseUint64(a.Value)
		case AttrFreq:
			t.Freq, err = nla.ParseUint32(a.Value)
		case AttrFrameHeader:
			var h Header80211
			if h, err = parseHeader(a.Value); err == nil {
				t.Header = &h
			}
		case AttrFrameLength:
			t.FrameLength, err = nla.ParseUint32(a.Value)
		case AttrFrameTimestamp:
			t.Timestamp, err = nla.ParseUint64(a.Value)
		case AttrSMPointer:
			t.SMPointer, err = parseUint64Ptr(a.Value)
		}
		if err != nil {
			return fmt.Errorf("attribute %d: %w", a.Type, err)
		}
	}
	return nil
}

// Destination returns the receiver address of the transmission, taken from
// the frame or, lacking one, from the separately reported header.
func (t *FrameTx) Destination() (MAC, bool) {
	switch {
	case t.Frame != nil:
		return t.Frame.Header.Addr1, true
	case t.Header != nil:
		return t.Header.Addr1, true
	}
	return MAC{}, false
}

// Clone returns a deep copy of t.
func (t *FrameTx) Clone() *FrameTx {
	c := *t
	if t.Frame != nil {
		f := t.Frame.Clone()
		c.Frame = &f
	}
	if t.Header != nil {
		h := *t.Header
		c.Header = &h
	}
	if t.SMPointer != nil {
		p := *t.SMPointer
		c.SMPointer = &p
	}
	return &c
}

// FrameRx delivers a frame to a receiving radio.
type FrameRx struct {
	Receiver MAC
	Frame    Frame
	RxRate   uint32
	Signal   int32
	Freq     uint32
}

func (*FrameRx) Command() Command { return CmdFrame }

func (r *FrameRx) MarshalAttributes() ([]nla.Attr, error) {
	frame, err := r.Frame.MarshalBinary()
	if err != nil {
		return nil, err
	}
	attrs := []nla.Attr{
		nla.Bytes(AttrAddrReceiver, r.Receiver[:]),
		nla.Bytes(AttrFrame, frame),
		nla.Uint32(AttrRxRate, r.RxRate),
		nla.Int32(AttrSignal, r.Signal),
	}
	if r.Freq != 0 {
		attrs = append(attrs, nla.Uint32(AttrFreq, r.Freq))
	}
	return attrs, nil
}

func (*FrameRx) UnmarshalAttributes([]nla.Attr) error {
	return unsupported("frame rx", "from attributes")
}

// TxStatus reports the outcome of a transmission back to its sender.
type TxStatus struct {
	Transmitter MAC
	Flags       uint32
	Signal      int32
	Rates       TxRates
	Cookie      uint64
	Freq        uint32
}

func (*TxStatus) Command() Command { return CmdTxStatus }

func (s *TxStatus) MarshalAttributes() ([]nla.Attr, error) {
	attrs := []nla.Attr{
		nla.Bytes(AttrAddrTransmitter, s.Transmitter[:]),
		nla.Uint32(AttrFlags, s.Flags),
		nla.Int32(AttrSignal, s.Signal),
		s.Rates.attr(AttrTxInfo),
		nla.Uint64(AttrCookie, s.Cookie),
	}
	if s.Freq != 0 {
		attrs = append(attrs, nla.Uint32(AttrFreq, s.Freq))
	}
	return attrs, nil
}

func (*TxStatus) UnmarshalAttributes([]nla.Attr) error {
	return unsupported("tx status", "from attributes")
}

// TxInfo is the status-only view of a TxInfoNotify message.
type TxInfo struct {
	Transmitter MAC
	Flags       uint32
	Rates       TxRates
	RateFlags   TxRateFlags
	Cookie      uint64
	Freq        uint32
	Header      *Header80211
	FrameLength uint32
	Timestamp   uint64
	SMPointer   *uint64
}

func (*TxInfo) Command() Command { return CmdTxInfoNotify }

func (*TxInfo) MarshalAttributes() ([]nla.Attr, error) {
	return nil, unsupported("tx info", "to attributes")
}

func (i *TxInfo) UnmarshalAttributes(attrs []nla.Attr) error {
	var t FrameTx
	if err := t.UnmarshalAttributes(attrs); err != nil {
		return err
	}
	*i = TxInfo{
		Transmitter: t.Transmitter,
		Flags:       t.Flags,
		Rates:       t.Rates,
		RateFlags:   t.RateFlags,
		Cookie:      t.Cookie,
		Freq:        t.Freq,
		Header:      t.Header,
		FrameLength: t.FrameLength,
		Timestamp:   t.Timestamp,
		SMPointer:   t.SMPointer,
	}
	return nil
}

// RxInfo tells the driver a frame was written to the receiving radio's
// ring.
type RxInfo struct {
	Transmitter MAC
	Flags       uint32
	RxRate      uint32
	Signal      int32
	Rates       TxRates
	Cookie      uint64
	Freq        uint32
	Timestamp   uint64
	Receiver    ReceiverInfo
	SMPointer   uint64
}

func (*RxInfo) Command() Command { return CmdRxInfoNotify }

func (r *RxInfo) MarshalAttributes() ([]nla.Attr, error) {
	return []nla.Attr{
		nla.Bytes(AttrAddrTransmitter, r.Transmitter[:]),
		nla.Uint32(AttrFlags, r.Flags),
		nla.Uint32(AttrRxRate, r.RxRate),
		nla.Int32(AttrSignal, r.Signal),
		r.Rates.attr(AttrTxInfo),
		nla.Uint64(AttrCookie, r.Cookie),
		nla.Uint32(AttrFreq, r.Freq),
		nla.Uint64(AttrFrameTimestamp, r.Timestamp),
		r.Receiver.attr(AttrReceiverInfo),
		nla.Uint64(AttrSMPointer, r.SMPointer),
	}, nil
}

func (*RxInfo) UnmarshalAttributes([]nla.Attr) error {
	return unsupported("rx info", "from attributes")
}

// MacAddrChange reports an address added to or removed from a radio.
type MacAddrChange struct {
	Added bool
	// Radio is the permanent address of the radio.
	Radio MAC
	Addr  MAC
}

func (c *MacAddrChange) Command() Command {
	if c.Added {
		return CmdAddMacAddr
	}
	return CmdDelMacAddr
}

func (*MacAddrChange) MarshalAttributes() ([]nla.Attr, error) {
	return nil, unsupported("mac address change", "to attributes")
}

func (c *MacAddrChange) UnmarshalAttributes(attrs []nla.Attr) error {
	*c = MacAddrChange{Added: c.Added}
	for _, a := range attrs {
		var err error
		switch a.Type {
		case AttrAddrTransmitter:
			err = nla.ParseFixed(c.Radio[:], a.Value)
		case AttrAddrReceiver:
			err = nla.ParseFixed(c.Addr[:], a.Value)
		}
		if err != nil {
			return fmt.Errorf("attribute %d: %w", a.Type, err)
		}
	}
	return nil
}

func parseUint32Ptr(v []byte) (*uint32, error) {
	n, err := nla.ParseUint32(v)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func parseUint64Ptr(v []byte) (*uint64, error) {
	n, err := nla.ParseUint64(v)
	if err != nil {
		return nil, err
	}
	return &n, nil
}
