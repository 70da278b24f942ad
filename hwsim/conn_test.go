package hwsim_test

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romshark/hwsim-medium/genl"
	"github.com/romshark/hwsim-medium/hwsim"
	"github.com/romshark/hwsim-medium/nla"
)

const family = 0x1c

type fakeTransport struct {
	sent     []genl.Message
	code     int32
	replies  []genl.Message
	incoming []genl.Message
	err      error
	dumped   bool
	closed   bool
}

func (f *fakeTransport) Send(m genl.Message) (genl.Message, error) {
	f.sent = append(f.sent, m)
	return m, f.err
}

func (f *fakeTransport) Receive() ([]genl.Message, error) {
	return f.incoming, f.err
}

func (f *fakeTransport) Execute(m genl.Message) (int32, []genl.Message, error) {
	f.sent = append(f.sent, m)
	return f.code, f.replies, f.err
}

func (f *fakeTransport) Dump(m genl.Message) ([]genl.Message, error) {
	f.sent = append(f.sent, m)
	f.dumped = true
	return f.replies, f.err
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

func TestConnRequestReturnsAckCode(t *testing.T) {
	ft := &fakeTransport{code: 5}
	c := hwsim.NewConn(ft, family)

	idx, err := c.Request(&hwsim.NewRadio{Channels: 1, PermAddr: addrA})
	require.NoError(t, err)
	assert.Equal(t, 5, idx)

	require.Len(t, ft.sent, 1)
	assert.Equal(t, uint16(family), ft.sent[0].Header.Type)
	assert.Equal(t, uint8(hwsim.CmdNewRadio), ft.sent[0].Command)
	assert.Equal(t, uint8(hwsim.FamilyVersion), ft.sent[0].Version)

	ft.err = &genl.AckError{Errno: syscall.EEXIST}
	_, err = c.Request(&hwsim.NewRadio{Channels: 1})
	require.ErrorIs(t, err, syscall.EEXIST)
}

func TestConnNotify(t *testing.T) {
	ft := &fakeTransport{}
	c := hwsim.NewConn(ft, family)
	require.NoError(t, c.Notify(&hwsim.TxStatus{Transmitter: addrA, Cookie: 3}))
	require.Len(t, ft.sent, 1)
	assert.Equal(t, uint8(hwsim.CmdTxStatus), ft.sent[0].Command)

	attrs, err := nla.Decode(ft.sent[0].Payload, hwsim.Schema)
	require.NoError(t, err)
	v, ok := nla.Find(attrs, hwsim.AttrCookie)
	require.True(t, ok)
	cookie, err := nla.ParseUint64(v)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), cookie)

	require.ErrorIs(t, c.Notify(&hwsim.FrameTx{}), hwsim.ErrUnsupported)
}

func TestConnReceiveDropsBadMessages(t *testing.T) {
	good := hwsim.Message{
		Command: hwsim.CmdTxInfoNotify,
		Attrs:   []nla.Attr{nla.Uint64(hwsim.AttrCookie, 1)},
	}.Genl(family)
	unknown := genl.Message{Header: genl.Header{Type: family}, Command: 77}
	otherFamily := hwsim.Message{Command: hwsim.CmdFrame}.Genl(0x20)
	nack := genl.AckMessage(genl.Header{Seq: 9}, -int32(syscall.EINVAL))
	ack := genl.AckMessage(genl.Header{Seq: 10}, 0)

	ft := &fakeTransport{incoming: []genl.Message{unknown, good, otherFamily, nack, ack}}
	msgs, err := hwsim.NewConn(ft, family).Receive()
	require.ErrorIs(t, err, hwsim.ErrProtocol)
	require.ErrorIs(t, err, syscall.EINVAL)
	require.Len(t, msgs, 1)
	assert.Equal(t, hwsim.CmdTxInfoNotify, msgs[0].Command)
}

func TestConnRadios(t *testing.T) {
	reply := func(id uint32, name string) genl.Message {
		attrs, err := (&hwsim.NewRadio{ID: &id, Channels: 1, Name: name}).MarshalAttributes()
		require.NoError(t, err)
		return hwsim.Message{Command: hwsim.CmdGetRadio, Attrs: attrs}.Genl(family)
	}
	ft := &fakeTransport{replies: []genl.Message{reply(0, "phy0"), reply(1, "phy1")}}
	c := hwsim.NewConn(ft, family)

	radios, err := c.Radios(&hwsim.RadioQuery{})
	require.NoError(t, err)
	assert.True(t, ft.dumped)
	require.Len(t, radios, 2)
	assert.Equal(t, "phy1", radios[1].Name)
	assert.Equal(t, uint32(1), *radios[1].ID)

	ft.dumped = false
	id := uint32(0)
	_, err = c.Radios(&hwsim.RadioQuery{ID: &id})
	require.NoError(t, err)
	assert.False(t, ft.dumped)

	require.NoError(t, c.Close())
	assert.True(t, ft.closed)
}
