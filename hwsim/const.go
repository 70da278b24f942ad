package hwsim

import "fmt"

const (
	FamilyName    = "MAC80211_HWSIM"
	FamilyVersion = 1
)

// Command is a MAC80211_HWSIM generic netlink command.
type Command uint8

const (
	CmdUnspec Command = iota
	CmdRegister
	CmdFrame
	CmdTxStatus // HWSIM_CMD_TX_INFO_FRAME
	CmdNewRadio
	CmdDelRadio
	CmdGetRadio
	CmdAddMacAddr
	CmdDelMacAddr
	CmdTxInfoNotify
	CmdRxInfoNotify

	cmdMax = CmdRxInfoNotify
)

func (c Command) String() string {
	switch c {
	case CmdUnspec:
		return "unspec"
	case CmdRegister:
		return "register"
	case CmdFrame:
		return "frame"
	case CmdTxStatus:
		return "tx_status"
	case CmdNewRadio:
		return "new_radio"
	case CmdDelRadio:
		return "del_radio"
	case CmdGetRadio:
		return "get_radio"
	case CmdAddMacAddr:
		return "add_mac_addr"
	case CmdDelMacAddr:
		return "del_mac_addr"
	case CmdTxInfoNotify:
		return "tx_info_notify"
	case CmdRxInfoNotify:
		return "rx_info_notify"
	}
	return fmt.Sprintf("command(%d)", uint8(c))
}

// Attribute types.
const (
	AttrUnspec uint16 = iota
	AttrAddrReceiver
	AttrAddrTransmitter
	AttrFrame
	AttrFlags
	AttrRxRate
	AttrSignal
	AttrTxInfo
	AttrCookie
	AttrChannels
	AttrRadioID
	AttrRegHintAlpha2
	AttrRegCustomReg
	AttrRegStrictReg
	AttrSupportP2PDevice
	AttrUseChanctx
	AttrDestroyRadioOnClose
	AttrRadioName
	AttrNoVIF
	AttrFreq
	AttrPad
	AttrTxInfoFlags
	AttrPermAddr
	AttrIftypeSupport
	AttrCipherSupport
	AttrFrameHeader
	AttrFrameLength
	_
	AttrReceiverInfo
	AttrFrameTimestamp
	AttrSMPointer
	AttrSMPageNum
)

// TX control flags carried in AttrFlags.
const (
	TxCtlReqTxStatus uint32 = 1 << 0
	TxCtlNoAck       uint32 = 1 << 1
	TxStatAck        uint32 = 1 << 2
)

// MaxRates is the number of rate slots in TX_INFO and TX_INFO_FLAGS.
const MaxRates = 4
