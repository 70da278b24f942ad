// Package hwsim implements the MAC80211_HWSIM generic netlink protocol:
// command and attribute numbering, typed messages for every command the
// medium exchanges with the driver and a connection bound to the family.
package hwsim

import (
	"errors"
	"fmt"

	"github.com/romshark/hwsim-medium/genl"
	"github.com/romshark/hwsim-medium/nla"
)

var (
	ErrProtocol    = errors.New("protocol error")
	ErrUnsupported = errors.New("unsupported message direction")
)

// Schema lists every attribute type the family defines.
var Schema = nla.NewTypes(
	AttrAddrReceiver, AttrAddrTransmitter, AttrFrame, AttrFlags, AttrRxRate,
	AttrSignal, AttrTxInfo, AttrCookie, AttrChannels, AttrRadioID,
	AttrRegHintAlpha2, AttrRegCustomReg, AttrRegStrictReg,
	AttrSupportP2PDevice, AttrUseChanctx, AttrDestroyRadioOnClose,
	AttrRadioName, AttrNoVIF, AttrFreq, AttrPad, AttrTxInfoFlags,
	AttrPermAddr, AttrIftypeSupport, AttrCipherSupport, AttrFrameHeader,
	AttrFrameLength, AttrReceiverInfo, AttrFrameTimestamp, AttrSMPointer,
	AttrSMPageNum,
)

// Message is a decoded MAC80211_HWSIM message.
type Message struct {
	Command Command
	Attrs   []nla.Attr
}

// ParseMessage decodes the generic netlink message m. Unknown attribute
// types are dropped silently; an unknown command is ErrProtocol.
func ParseMessage(m genl.Message) (Message, error) {
	cmd := Command(m.Command)
	if cmd == CmdUnspec || cmd > cmdMax {
		return Message{}, fmt.Errorf("%w: unknown command %d", ErrProtocol, m.Command)
	}
	attrs, err := nla.Decode(m.Payload, Schema)
	if err != nil && !errors.Is(err, nla.ErrUnknownAttributeType) {
		return Message{}, fmt.Errorf("%w: %s: %w", ErrProtocol, cmd, err)
	}
	return Message{Command: cmd, Attrs: attrs}, nil
}

// Genl returns the generic netlink form of m addressed to family.
func (m Message) Genl(family uint16) genl.Message {
	return genl.Message{
		Header:  genl.Header{Type: family},
		Command: uint8(m.Command),
		Version: FamilyVersion,
		Payload: nla.Encode(m.Attrs),
	}
}

// Payload is a typed MAC80211_HWSIM message.
//
// Every payload converts in at least one direction. The direction a kind
// does not support fails with ErrUnsupported.
type Payload interface {
	Command() Command
	MarshalAttributes() ([]nla.Attr, error)
	UnmarshalAttributes(attrs []nla.Attr) error
}

// Encode builds the message carrying p.
func Encode(p Payload) (Message, error) {
	attrs, err := p.MarshalAttributes()
	if err != nil {
		return Message{}, err
	}
	return Message{Command: p.Command(), Attrs: attrs}, nil
}

// Decode converts a received message into its typed payload.
func Decode(m Message) (Payload, error) {
	var p Payload
	switch m.Command {
	case CmdFrame:
		p = new(FrameTx)
	case CmdTxInfoNotify:
		p = new(TxInfo)
	case CmdNewRadio, CmdGetRadio:
		p = new(NewRadio)
	case CmdDelRadio:
		p = new(DelRadio)
	case CmdAddMacAddr, CmdDelMacAddr:
		p = new(MacAddrChange)
	default:
		return nil, fmt.Errorf("%w: %s is never received", ErrUnsupported, m.Command)
	}
	if err := p.UnmarshalAttributes(m.Attrs); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", m.Command, err)
	}
	if mc, ok := p.(*MacAddrChange); ok {
		mc.Added = m.Command == CmdAddMacAddr
	}
	return p, nil
}

func unsupported(kind, dir string) error {
	return fmt.Errorf("%w: %s %s", ErrUnsupported, kind, dir)
}
